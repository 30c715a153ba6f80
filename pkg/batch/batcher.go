package batch

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Add once the batcher has been closed.
var ErrClosed = errors.New("batcher closed")

// Processor processes a batch of items
type Processor[T any] interface {
	ProcessBatch(ctx context.Context, items []T) error
}

// ProcessorFunc adapts a function to Processor
type ProcessorFunc[T any] func(ctx context.Context, items []T) error

// ProcessBatch calls f(ctx, items)
func (f ProcessorFunc[T]) ProcessBatch(ctx context.Context, items []T) error {
	return f(ctx, items)
}

// Batcher collects items and hands them to a Processor in insertion order,
// either when batchSize is reached or every batchInterval.
type Batcher[T any] struct {
	batchSize     int
	batchInterval time.Duration
	processor     Processor[T]
	onError       func(err error, items []T)

	mu      sync.Mutex
	pending []T
	closed  bool

	// procMu serializes ProcessBatch calls so batches never overtake each other.
	procMu sync.Mutex

	flushChan chan struct{}
	stopChan  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Batcher
type Option[T any] func(*Batcher[T])

// WithErrorHandler sets the callback invoked when a background flush fails
func WithErrorHandler[T any](fn func(err error, items []T)) Option[T] {
	return func(b *Batcher[T]) {
		b.onError = fn
	}
}

// NewBatcher creates a new batcher and starts its flush loop
func NewBatcher[T any](batchSize int, batchInterval time.Duration, processor Processor[T], opts ...Option[T]) *Batcher[T] {
	if batchSize <= 0 {
		batchSize = 1
	}
	if batchInterval <= 0 {
		batchInterval = time.Second
	}

	b := &Batcher[T]{
		batchSize:     batchSize,
		batchInterval: batchInterval,
		processor:     processor,
		pending:       make([]T, 0, batchSize),
		flushChan:     make(chan struct{}, 1),
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()

	return b
}

// Add enqueues an item without blocking on the processor
func (b *Batcher[T]) Add(item T) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.pending = append(b.pending, item)
	shouldFlush := len(b.pending) >= b.batchSize
	b.mu.Unlock()

	if shouldFlush {
		select {
		case b.flushChan <- struct{}{}:
		default:
		}
	}

	return nil
}

// Flush synchronously processes everything pending
func (b *Batcher[T]) Flush(ctx context.Context) error {
	b.procMu.Lock()
	defer b.procMu.Unlock()

	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return nil
	}
	items := b.pending
	b.pending = make([]T, 0, b.batchSize)
	b.mu.Unlock()

	return b.processor.ProcessBatch(ctx, items)
}

func (b *Batcher[T]) flushInBackground() {
	b.procMu.Lock()
	defer b.procMu.Unlock()

	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	items := b.pending
	b.pending = make([]T, 0, b.batchSize)
	b.mu.Unlock()

	if err := b.processor.ProcessBatch(context.Background(), items); err != nil && b.onError != nil {
		b.onError(err, items)
	}
}

func (b *Batcher[T]) run() {
	defer close(b.done)

	ticker := time.NewTicker(b.batchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flushInBackground()
		case <-b.flushChan:
			b.flushInBackground()
		case <-b.stopChan:
			b.flushInBackground()
			return
		}
	}
}

// Close stops accepting items, drains what is pending and waits for the
// flush loop to exit. Safe to call more than once.
func (b *Batcher[T]) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		close(b.stopChan)
	})
	<-b.done
}

// PendingCount returns the number of pending items
func (b *Batcher[T]) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

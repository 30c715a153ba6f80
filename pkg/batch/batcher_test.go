package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	mu      sync.Mutex
	batches [][]int
	err     error
}

func (p *recordingProcessor) ProcessBatch(_ context.Context, items []int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, append([]int(nil), items...))
	return p.err
}

func (p *recordingProcessor) flat() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []int
	for _, b := range p.batches {
		out = append(out, b...)
	}
	return out
}

func TestBatcher_FlushPreservesOrder(t *testing.T) {
	proc := &recordingProcessor{}
	b := NewBatcher[int](100, time.Hour, proc)
	defer b.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Add(i))
	}
	assert.Equal(t, 10, b.PendingCount())

	require.NoError(t, b.Flush(context.Background()))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, proc.flat())
	assert.Equal(t, 0, b.PendingCount())
}

func TestBatcher_SizeTriggersFlush(t *testing.T) {
	proc := &recordingProcessor{}
	b := NewBatcher[int](3, time.Hour, proc)
	defer b.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Add(i))
	}

	assert.Eventually(t, func() bool {
		return len(proc.flat()) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestBatcher_IntervalTriggersFlush(t *testing.T) {
	proc := &recordingProcessor{}
	b := NewBatcher[int](100, 10*time.Millisecond, proc)
	defer b.Close()

	require.NoError(t, b.Add(42))

	assert.Eventually(t, func() bool {
		return len(proc.flat()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestBatcher_CloseDrainsAndRejects(t *testing.T) {
	proc := &recordingProcessor{}
	b := NewBatcher[int](100, time.Hour, proc)

	require.NoError(t, b.Add(1))
	require.NoError(t, b.Add(2))
	b.Close()
	b.Close()

	assert.Equal(t, []int{1, 2}, proc.flat())
	assert.ErrorIs(t, b.Add(3), ErrClosed)
}

func TestBatcher_ErrorHandler(t *testing.T) {
	proc := &recordingProcessor{err: errors.New("write failed")}

	var mu sync.Mutex
	var failed []int
	b := NewBatcher[int](1, time.Hour, proc, WithErrorHandler(func(err error, items []int) {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, items...)
	}))

	require.NoError(t, b.Add(7))
	b.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{7}, failed)
}

func TestProcessorFunc(t *testing.T) {
	var got []string
	p := ProcessorFunc[string](func(_ context.Context, items []string) error {
		got = items
		return nil
	})

	require.NoError(t, p.ProcessBatch(context.Background(), []string{"a"}))
	assert.Equal(t, []string{"a"}, got)
}

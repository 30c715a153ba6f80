package services

import (
	"sync"

	"worklens/internal/core/domain"
	"worklens/internal/core/ports"
)

// MetricsSnapshot is a point-in-time copy of MetricsService counters.
type MetricsSnapshot struct {
	Connections     map[domain.Role]int
	SourcesOnline   int
	ActiveStreams   int
	FramesRelayed   int
	FrameDeliveries int
	FramesDropped   map[string]int
	SendsDropped    int
	ControlAccepted map[string]int
	ControlRejected map[string]int
	WorkEvents      map[string]int
	AuditWritten    int
	AuditFailures   int
}

// MetricsService keeps process-local counters. It backs the status endpoint
// when prometheus is disabled and is what tests assert against.
type MetricsService struct {
	mu sync.RWMutex
	s  MetricsSnapshot
}

func NewMetricsService() *MetricsService {
	return &MetricsService{s: MetricsSnapshot{
		Connections:     make(map[domain.Role]int),
		FramesDropped:   make(map[string]int),
		ControlAccepted: make(map[string]int),
		ControlRejected: make(map[string]int),
		WorkEvents:      make(map[string]int),
	}}
}

func (m *MetricsService) ConnectionOpened(role domain.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.Connections[role]++
}

func (m *MetricsService) ConnectionClosed(role domain.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s.Connections[role] > 0 {
		m.s.Connections[role]--
	}
}

func (m *MetricsService) SetSourcesOnline(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.SourcesOnline = n
}

func (m *MetricsService) SetActiveStreams(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.ActiveStreams = n
}

func (m *MetricsService) ControlMessage(event string, accepted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if accepted {
		m.s.ControlAccepted[event]++
	} else {
		m.s.ControlRejected[event]++
	}
}

func (m *MetricsService) FrameRelayed(fanout int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.FramesRelayed++
	m.s.FrameDeliveries += fanout
}

func (m *MetricsService) FrameDropped(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.FramesDropped[reason]++
}

func (m *MetricsService) SendDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.SendsDropped++
}

func (m *MetricsService) WorkSessionEvent(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.WorkEvents[event]++
}

func (m *MetricsService) AuditWritten(count int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.s.AuditFailures += count
		return
	}
	m.s.AuditWritten += count
}

// Snapshot returns a copy of the counters.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.s
	out.Connections = copyMap(m.s.Connections)
	out.FramesDropped = copyMap(m.s.FramesDropped)
	out.ControlAccepted = copyMap(m.s.ControlAccepted)
	out.ControlRejected = copyMap(m.s.ControlRejected)
	out.WorkEvents = copyMap(m.s.WorkEvents)
	return out
}

func copyMap[K comparable](in map[K]int) map[K]int {
	out := make(map[K]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// MultiMetrics fans every call out to several recorders.
type MultiMetrics []ports.MetricsRecorder

func (mm MultiMetrics) ConnectionOpened(role domain.Role) {
	for _, m := range mm {
		m.ConnectionOpened(role)
	}
}

func (mm MultiMetrics) ConnectionClosed(role domain.Role) {
	for _, m := range mm {
		m.ConnectionClosed(role)
	}
}

func (mm MultiMetrics) SetSourcesOnline(n int) {
	for _, m := range mm {
		m.SetSourcesOnline(n)
	}
}

func (mm MultiMetrics) SetActiveStreams(n int) {
	for _, m := range mm {
		m.SetActiveStreams(n)
	}
}

func (mm MultiMetrics) ControlMessage(event string, accepted bool) {
	for _, m := range mm {
		m.ControlMessage(event, accepted)
	}
}

func (mm MultiMetrics) FrameRelayed(fanout int) {
	for _, m := range mm {
		m.FrameRelayed(fanout)
	}
}

func (mm MultiMetrics) FrameDropped(reason string) {
	for _, m := range mm {
		m.FrameDropped(reason)
	}
}

func (mm MultiMetrics) SendDropped() {
	for _, m := range mm {
		m.SendDropped()
	}
}

func (mm MultiMetrics) WorkSessionEvent(event string) {
	for _, m := range mm {
		m.WorkSessionEvent(event)
	}
}

func (mm MultiMetrics) AuditWritten(count int, err error) {
	for _, m := range mm {
		m.AuditWritten(count, err)
	}
}

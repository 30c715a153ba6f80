package monitoring

import (
	"worklens/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.MetricsRecorder on top of
// prometheus collectors registered with reg.
type PrometheusCollector struct {
	// Gauges
	connections   *prometheus.GaugeVec
	sourcesOnline prometheus.Gauge
	activeStreams prometheus.Gauge

	// Counters
	connectionsTotal *prometheus.CounterVec
	controlMessages  *prometheus.CounterVec
	framesRelayed    prometheus.Counter
	framesDropped    *prometheus.CounterVec
	sendsDropped     prometheus.Counter
	workEvents       *prometheus.CounterVec
	auditEntries     *prometheus.CounterVec

	// Histograms
	frameFanout prometheus.Histogram
}

func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		connections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worklens_connections",
			Help: "Open control channel connections by role",
		}, []string{"role"}),

		sourcesOnline: factory.NewGauge(prometheus.GaugeOpts{
			Name: "worklens_sources_online",
			Help: "Number of sources with at least one live connection",
		}),

		activeStreams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "worklens_active_streams",
			Help: "Number of sources currently relaying frames",
		}),

		connectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "worklens_connections_total",
			Help: "Total control channel connections accepted",
		}, []string{"role"}),

		controlMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "worklens_control_messages_total",
			Help: "Control messages by event and outcome",
		}, []string{"event", "outcome"}),

		framesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "worklens_frames_relayed_total",
			Help: "Frames accepted for relay",
		}),

		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "worklens_frames_dropped_total",
			Help: "Frames dropped before fan-out",
		}, []string{"reason"}),

		sendsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "worklens_sends_dropped_total",
			Help: "Messages dropped because a connection buffer was full",
		}),

		workEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "worklens_work_session_events_total",
			Help: "Work session lifecycle events",
		}, []string{"event"}),

		auditEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "worklens_audit_entries_total",
			Help: "Audit entries by write outcome",
		}, []string{"outcome"}),

		frameFanout: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "worklens_frame_fanout",
			Help:    "Viewers reached per relayed frame",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
		}),
	}
}

func roleLabel(role domain.Role) string {
	if name := role.String(); name != "" {
		return name
	}
	return "anonymous"
}

func outcome(ok bool) string {
	if ok {
		return "accepted"
	}
	return "rejected"
}

func (p *PrometheusCollector) ConnectionOpened(role domain.Role) {
	p.connections.WithLabelValues(roleLabel(role)).Inc()
	p.connectionsTotal.WithLabelValues(roleLabel(role)).Inc()
}

func (p *PrometheusCollector) ConnectionClosed(role domain.Role) {
	p.connections.WithLabelValues(roleLabel(role)).Dec()
}

func (p *PrometheusCollector) SetSourcesOnline(n int) {
	p.sourcesOnline.Set(float64(n))
}

func (p *PrometheusCollector) SetActiveStreams(n int) {
	p.activeStreams.Set(float64(n))
}

func (p *PrometheusCollector) ControlMessage(event string, accepted bool) {
	p.controlMessages.WithLabelValues(event, outcome(accepted)).Inc()
}

func (p *PrometheusCollector) FrameRelayed(fanout int) {
	p.framesRelayed.Inc()
	p.frameFanout.Observe(float64(fanout))
}

func (p *PrometheusCollector) FrameDropped(reason string) {
	p.framesDropped.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) SendDropped() {
	p.sendsDropped.Inc()
}

func (p *PrometheusCollector) WorkSessionEvent(event string) {
	p.workEvents.WithLabelValues(event).Inc()
}

func (p *PrometheusCollector) AuditWritten(count int, err error) {
	if err != nil {
		p.auditEntries.WithLabelValues("failed").Add(float64(count))
		return
	}
	p.auditEntries.WithLabelValues("written").Add(float64(count))
}

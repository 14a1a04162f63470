package llm

import "github.com/prometheus/client_golang/prometheus"

// Request modes and outcomes used as metric labels.
const (
	modeCompletion = "completion"
	modeStream     = "stream"
	// modeUnknown labels requests rejected before the body is read
	modeUnknown = "unknown"

	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeBackend  = "backend_error"
	outcomeCanceled = "canceled"
)

// Metrics holds the proxy's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// Requests counts chat requests by mode and outcome
	Requests *prometheus.CounterVec
	// StreamChunks counts content chunks sent to streaming clients
	StreamChunks prometheus.Counter
	// ActiveStreams tracks streams whose producer is still running
	ActiveStreams prometheus.Gauge
	// Characters counts prompt and completion characters by direction
	Characters *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kimi_proxy_requests_total",
				Help: "Chat requests",
			},
			[]string{"mode", "outcome"},
		),
		StreamChunks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kimi_proxy_stream_chunks_total",
				Help: "Content chunks streamed to clients",
			},
		),
		ActiveStreams: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "kimi_proxy_streams_active",
				Help: "Active streaming responses",
			},
		),
		Characters: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kimi_proxy_characters_total",
				Help: "Prompt and completion characters",
			},
			[]string{"direction"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.StreamChunks, m.ActiveStreams, m.Characters)
	}
	return m
}

func (m *Metrics) request(mode, outcome string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) chunk() {
	if m == nil {
		return
	}
	m.StreamChunks.Inc()
}

func (m *Metrics) streamStarted() {
	if m == nil {
		return
	}
	m.ActiveStreams.Inc()
}

func (m *Metrics) streamFinished() {
	if m == nil {
		return
	}
	m.ActiveStreams.Dec()
}

func (m *Metrics) characters(prompt, completion int) {
	if m == nil {
		return
	}
	m.Characters.WithLabelValues("prompt").Add(float64(prompt))
	m.Characters.WithLabelValues("completion").Add(float64(completion))
}

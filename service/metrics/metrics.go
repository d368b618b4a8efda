package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics broker 的 Prometheus 指标。所有方法对 nil 接收者安全，测试里可以不注册。
type Metrics struct {
	// Connections 当前连接数，label: authenticated (true|false)
	Connections *prometheus.GaugeVec

	// Frames 入站帧计数，label: type
	Frames *prometheus.CounterVec

	// HandleDuration 单帧处理耗时，label: type
	HandleDuration *prometheus.HistogramVec

	// Auth 认证结果，label: result (success|rejected|error)
	Auth *prometheus.CounterVec

	// Messages 发送时观察到的消息状态，label: status (sent|delivered)
	Messages *prometheus.CounterVec

	// Dropped 因发送队列满被断开的连接
	Dropped prometheus.Counter
}

// New 注册到 reg；传 prometheus.DefaultRegisterer 即可在 /metrics 暴露
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connections: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dyad_connections",
			Help: "Live WebSocket connections",
		}, []string{"authenticated"}),
		Frames: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dyad_frames_total",
			Help: "Inbound frames by type",
		}, []string{"type"}),
		HandleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dyad_frame_handle_seconds",
			Help:    "Time spent handling one inbound frame",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"type"}),
		Auth: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dyad_auth_total",
			Help: "Authentication attempts by result",
		}, []string{"result"}),
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dyad_messages_total",
			Help: "Persisted messages by status observed at send time",
		}, []string{"status"}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "dyad_slow_consumers_dropped_total",
			Help: "Connections closed because their send queue was full",
		}),
	}
}

func authLabel(authed bool) string {
	if authed {
		return "true"
	}
	return "false"
}

func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.Connections.WithLabelValues(authLabel(false)).Inc()
}

// ConnAuthenticated 未认证 -> 已认证
func (m *Metrics) ConnAuthenticated() {
	if m == nil {
		return
	}
	m.Connections.WithLabelValues(authLabel(false)).Dec()
	m.Connections.WithLabelValues(authLabel(true)).Inc()
}

func (m *Metrics) ConnClosed(authed bool) {
	if m == nil {
		return
	}
	m.Connections.WithLabelValues(authLabel(authed)).Dec()
}

func (m *Metrics) Frame(typ string, seconds float64) {
	if m == nil {
		return
	}
	m.Frames.WithLabelValues(typ).Inc()
	m.HandleDuration.WithLabelValues(typ).Observe(seconds)
}

func (m *Metrics) AuthResult(result string) {
	if m == nil {
		return
	}
	m.Auth.WithLabelValues(result).Inc()
}

func (m *Metrics) Message(status string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(status).Inc()
}

func (m *Metrics) SlowConsumer() {
	if m == nil {
		return
	}
	m.Dropped.Inc()
}

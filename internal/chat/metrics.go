package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	ConnectedSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connected_sessions",
		Help: "Number of named sessions currently in the registry",
	})

	SessionsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_sessions_accepted_total",
		Help: "Total connections accepted by the server",
	})

	EnvelopesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_envelopes_total",
		Help: "Total envelopes received from clients by kind",
	}, []string{"kind"})

	BroadcastFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_broadcast_failures_total",
		Help: "Broadcast deliveries that failed to write to a recipient",
	})

	DispatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_dispatch_seconds",
		Help:    "Time to handle each received envelope kind",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(ConnectedSessions)
	prometheus.MustRegister(SessionsAccepted)
	prometheus.MustRegister(EnvelopesTotal)
	prometheus.MustRegister(BroadcastFailures)
	prometheus.MustRegister(DispatchDuration)
}

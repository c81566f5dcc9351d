package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	commits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booksync",
			Name:      "remote_commits_total",
			Help:      "Remote commit attempts by outcome.",
		},
		[]string{"outcome"},
	)

	drains = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "booksync",
			Name:      "drains_total",
			Help:      "Completed drain passes.",
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "booksync",
			Name:      "pending_actions",
			Help:      "Unsynced pending actions in the queue.",
		},
	)

	online = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "booksync",
			Name:      "network_online",
			Help:      "Connectivity state, 1 when online.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(commits, drains, queueDepth, online)
	})
}

// IncCommit increments the commit counter for an outcome label
// (committed, retried, failed).
func IncCommit(outcome string) {
	commits.WithLabelValues(outcome).Inc()
}

// IncDrain counts a completed drain pass.
func IncDrain() {
	drains.Inc()
}

// SetQueueDepth records the current number of unsynced actions.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// SetOnline records the connectivity state.
func SetOnline(isOnline bool) {
	if isOnline {
		online.Set(1)
		return
	}
	online.Set(0)
}

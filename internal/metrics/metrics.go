package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	entryAdded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "waitlist",
			Name:      "entry_added_total",
			Help:      "Count of waitlist entries added by priority.",
		},
		[]string{"priority"},
	)

	entryScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "waitlist",
			Name:      "entry_scheduled_total",
			Help:      "Count of waitlist entries scheduled by auto-assignment.",
		},
	)

	entriesExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "waitlist",
			Name:      "entries_expired_total",
			Help:      "Count of waitlist entries expired by the worker.",
		},
	)

	bookingConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "waitlist",
			Name:      "booking_conflict_total",
			Help:      "Count of proposed assignments whose slot was taken before commit.",
		},
	)

	assignRuns = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "waitlist",
			Name:      "assign_run_seconds",
			Help:      "Duration of assignment runs by outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(entryAdded, entryScheduled, entriesExpired, bookingConflicts, assignRuns)
	})
}

func IncEntryAdded(priority string) {
	entryAdded.WithLabelValues(priority).Inc()
}

func IncEntryScheduled() {
	entryScheduled.Inc()
}

func AddEntriesExpired(n int) {
	entriesExpired.Add(float64(n))
}

func IncBookingConflict() {
	bookingConflicts.Inc()
}

func ObserveAssignRun(outcome string, elapsed time.Duration) {
	assignRuns.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

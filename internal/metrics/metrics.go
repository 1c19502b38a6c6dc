package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "kite_whiteboard"

var (
	once sync.Once

	schedulesAssembled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedules_assembled_total",
			Help:      "Count of teacher schedules built for a day.",
		},
	)

	assemblyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assembly_duration_seconds",
			Help:      "Time to assemble all teacher schedules for a day.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5},
		},
	)

	eventsExcluded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_excluded_total",
			Help:      "Count of events left out of a schedule, by reason.",
		},
		[]string{"reason"},
	)

	editDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edit_decisions_total",
			Help:      "Count of schedule edits by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	commits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_commits_total",
			Help:      "Count of event commits by outcome.",
		},
		[]string{"outcome"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Count of lesson cache lookups by result.",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			schedulesAssembled,
			assemblyDuration,
			eventsExcluded,
			editDecisions,
			commits,
			cacheLookups,
			httpRequests,
		)
	})
}

func AddSchedulesAssembled(n int) {
	schedulesAssembled.Add(float64(n))
}

func ObserveAssembly(seconds float64) {
	assemblyDuration.Observe(seconds)
}

func IncEventExcluded(reason string) {
	eventsExcluded.WithLabelValues(reason).Inc()
}

func IncEditDecision(op, outcome string) {
	editDecisions.WithLabelValues(op, outcome).Inc()
}

func IncCommit(outcome string) {
	commits.WithLabelValues(outcome).Inc()
}

func IncCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

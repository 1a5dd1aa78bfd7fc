package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Registry holds every revtrack metric. It is separate from the default
// registry so a run's counters can be dumped without Go runtime metrics.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// CacheLookups counts per-day cache lookups, labeled by result.
	CacheLookups = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "revtrack_cache_day_lookups_total",
		Help: "The total number of per-day commit cache lookups",
	}, []string{"result"}) // result: hit, miss, today

	// LiveFetches counts collaborator queries, labeled by kind and status.
	LiveFetches = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "revtrack_live_fetches_total",
		Help: "The total number of live repository and review queries",
	}, []string{"kind", "status"}) // kind: day, shelved, known; status: success, error

	// Reconciliations counts MissingRevisions calls, labeled by result.
	Reconciliations = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "revtrack_reconciliations_total",
		Help: "The total number of missing-revision reconciliations",
	}, []string{"result"}) // result: success, error

	// ReconcileDuration measures a reconciliation end to end.
	ReconcileDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "revtrack_reconcile_duration_seconds",
		Help:    "Time taken to compute the missing revisions of a user",
		Buckets: prometheus.DefBuckets,
	})

	// ParseFailures counts review records whose lines could not be parsed.
	ParseFailures = factory.NewCounter(prometheus.CounterOpts{
		Name: "revtrack_known_revision_parse_failures_total",
		Help: "Total number of review description lines skipped as unparsable",
	})
)

// Status maps an error to the status label value.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// WriteText writes the current values in the Prometheus text exposition format.
func WriteText(w io.Writer) error {
	families, err := Registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

package metrics

import (
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/common/expfmt"
	"k8s.io/component-base/metrics"
	"k8s.io/component-base/metrics/legacyregistry"
)

const (
	namespace = "activity_feed"
)

var (
	// FeedQueryDuration tracks the latency of list queries issued by the feed
	FeedQueryDuration = metrics.NewHistogramVec(
		&metrics.HistogramOpts{
			Namespace:      namespace,
			Name:           "query_duration_seconds",
			Help:           "Duration of feed list queries in seconds",
			StabilityLevel: metrics.ALPHA,
			// Buckets from 5ms to ~20s
			Buckets: metrics.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"operation"},
	)

	// FeedQueryTotal counts list queries by operation and outcome
	FeedQueryTotal = metrics.NewCounterVec(
		&metrics.CounterOpts{
			Namespace:      namespace,
			Name:           "query_total",
			Help:           "Total number of feed list queries",
			StabilityLevel: metrics.ALPHA,
		},
		[]string{"operation", "status"},
	)

	// FeedStaleResponses counts responses discarded because a newer query superseded them
	FeedStaleResponses = metrics.NewCounterVec(
		&metrics.CounterOpts{
			Namespace:      namespace,
			Name:           "stale_responses_total",
			Help:           "Total number of query responses dropped by the generation guard",
			StabilityLevel: metrics.ALPHA,
		},
		[]string{"operation"},
	)

	// FeedDuplicatesSkipped counts activities skipped because they were already held
	FeedDuplicatesSkipped = metrics.NewCounterVec(
		&metrics.CounterOpts{
			Namespace:      namespace,
			Name:           "duplicates_skipped_total",
			Help:           "Total number of activities skipped as duplicates",
			StabilityLevel: metrics.ALPHA,
		},
		[]string{"source"},
	)

	// StreamEvents counts watch events by outcome (delivered, filtered, stale, duplicate)
	StreamEvents = metrics.NewCounterVec(
		&metrics.CounterOpts{
			Namespace:      namespace,
			Name:           "stream_events_total",
			Help:           "Total number of live stream events by outcome",
			StabilityLevel: metrics.ALPHA,
		},
		[]string{"outcome"},
	)

	// StreamErrors counts stream transport failures
	StreamErrors = metrics.NewCounter(
		&metrics.CounterOpts{
			Namespace:      namespace,
			Name:           "stream_errors_total",
			Help:           "Total number of live stream transport errors",
			StabilityLevel: metrics.ALPHA,
		},
	)

	// FacetQueryErrors counts failed facet queries per field
	FacetQueryErrors = metrics.NewCounterVec(
		&metrics.CounterOpts{
			Namespace:      namespace,
			Name:           "facet_query_errors_total",
			Help:           "Total number of failed facet queries",
			StabilityLevel: metrics.ALPHA,
		},
		[]string{"field"},
	)

	// CELFilterErrors tracks client-side CEL filter compile errors
	CELFilterErrors = metrics.NewCounterVec(
		&metrics.CounterOpts{
			Namespace:      namespace,
			Name:           "cel_filter_errors_total",
			Help:           "Total number of CEL filter compile errors",
			StabilityLevel: metrics.ALPHA,
		},
		[]string{"error_type"},
	)
)

// init registers all custom metrics with the legacy registry
func init() {
	legacyregistry.MustRegister(
		FeedQueryDuration,
		FeedQueryTotal,
		FeedStaleResponses,
		FeedDuplicatesSkipped,
		StreamEvents,
		StreamErrors,
		FacetQueryErrors,
		CELFilterErrors,
	)
}

// WriteText gathers the activity feed metrics from the legacy registry and
// writes them to w in the Prometheus text format.
func WriteText(w io.Writer) error {
	families, err := legacyregistry.DefaultGatherer.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), namespace+"_") {
			continue
		}
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// Package metrics defines the Prometheus instrumentation surface for
// domain commits, visits, predicate lookups and grouping requests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every counter/histogram/gauge this module exposes.
// A single instance is built during server bootstrap and threaded
// through to each component.
type Metrics struct {
	CommitsTotal    *prometheus.CounterVec
	CommitDuration  *prometheus.HistogramVec
	VisitsTotal     *prometheus.CounterVec
	VisitDuration   *prometheus.HistogramVec
	PredicateLookupsTotal *prometheus.CounterVec
	PredicateLookupDuration prometheus.Histogram
	GroupingRequestsTotal *prometheus.CounterVec
	GroupingRequestDuration prometheus.Histogram
	OpenSessionsGauge *prometheus.GaugeVec
	PartCountGauge    *prometheus.GaugeVec
}

// New registers every metric against prometheus's default registerer via
// promauto and returns the bundle.
func New() *Metrics {
	return &Metrics{
		CommitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searchcore_tlog_commits_total",
				Help: "Total number of transaction-log commits by domain and result",
			},
			[]string{"domain", "result"}, // result: ok, error
		),
		CommitDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "searchcore_tlog_commit_duration_seconds",
				Help:    "Duration of transaction-log commits by domain",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
			[]string{"domain"},
		),
		VisitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searchcore_tlog_visits_total",
				Help: "Total number of transaction-log visit calls by domain",
			},
			[]string{"domain"},
		),
		VisitDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "searchcore_tlog_visit_duration_seconds",
				Help:    "Duration of transaction-log visit calls by domain",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
			[]string{"domain"},
		),
		PredicateLookupsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searchcore_predicate_lookups_total",
				Help: "Total number of predicate-index feature lookups by representation",
			},
			[]string{"representation"}, // btree, vector, cached
		),
		PredicateLookupDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "searchcore_predicate_lookup_duration_seconds",
				Help:    "Duration of predicate-index feature lookups",
				Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14),
			},
		),
		GroupingRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searchcore_grouping_requests_total",
				Help: "Total number of grouping-aggregation requests by outcome",
			},
			[]string{"outcome"}, // completed, deadline_exceeded, error
		),
		GroupingRequestDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "searchcore_grouping_request_duration_seconds",
				Help:    "Duration of grouping-aggregation requests",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
			},
		),
		OpenSessionsGauge: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "searchcore_tlog_open_sessions",
				Help: "Number of open visit sessions by domain",
			},
			[]string{"domain"},
		),
		PartCountGauge: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "searchcore_tlog_part_count",
				Help: "Number of on-disk parts by domain",
			},
			[]string{"domain"},
		),
	}
}

// ObserveCommit records the outcome and duration of a single commit.
func (m *Metrics) ObserveCommit(domain string, err error, d time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.CommitsTotal.WithLabelValues(domain, result).Inc()
	m.CommitDuration.WithLabelValues(domain).Observe(d.Seconds())
}

// ObserveVisit records the duration of a single visit call.
func (m *Metrics) ObserveVisit(domain string, d time.Duration) {
	m.VisitsTotal.WithLabelValues(domain).Inc()
	m.VisitDuration.WithLabelValues(domain).Observe(d.Seconds())
}

// ObservePredicateLookup records a feature lookup's representation and
// latency.
func (m *Metrics) ObservePredicateLookup(representation string, d time.Duration) {
	m.PredicateLookupsTotal.WithLabelValues(representation).Inc()
	m.PredicateLookupDuration.Observe(d.Seconds())
}

// ObserveGroupingRequest records a grouping request's outcome and
// latency.
func (m *Metrics) ObserveGroupingRequest(outcome string, d time.Duration) {
	m.GroupingRequestsTotal.WithLabelValues(outcome).Inc()
	m.GroupingRequestDuration.Observe(d.Seconds())
}

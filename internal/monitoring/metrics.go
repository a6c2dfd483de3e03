package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector-cli/internal/resilience"
)

const namespace = "prospector"

// Metrics holds the Prometheus collectors for ingestion and campaigns.
type Metrics struct {
	searchRequests *prometheus.CounterVec
	searchURLs     *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	extractions    *prometheus.CounterVec
	upserts        *prometheus.CounterVec
	runs           *prometheus.CounterVec
	sends          *prometheus.CounterVec

	leads      prometheus.Gauge
	suppressed prometheus.Gauge
	eligible   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		searchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Search engine requests by engine and error category.",
		}, []string{"engine", "result"}),
		searchURLs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_urls_total",
			Help:      "Result URLs returned by each search engine.",
		}, []string{"engine"}),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Search engine request latency.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"engine"}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Candidate site extractions by outcome (ok, empty, failed).",
		}, []string{"status"}),
		upserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lead_writes_total",
			Help:      "Lead writes by outcome (inserted, duplicate, no_email).",
		}, []string{"outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_runs_total",
			Help:      "Finished ingestion runs by status.",
		}, []string{"status"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "campaign_sends_total",
			Help:      "Campaign email sends by provider status code.",
		}, []string{"result", "code"}),
		leads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "leads",
			Help:      "Stored leads.",
		}),
		suppressed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "suppressed_emails",
			Help:      "Addresses on the suppression list.",
		}),
		eligible: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "campaign_eligible_leads",
			Help:      "Stored leads not on the suppression list.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.searchRequests, m.searchURLs, m.searchDuration,
		m.extractions, m.upserts, m.runs, m.sends,
		m.leads, m.suppressed, m.eligible,
	} {
		if err := reg.Register(c); err != nil {
			return nil, eris.Wrap(err, "monitoring: register metric")
		}
	}
	return m, nil
}

// RecordSearch counts one engine call. err is bucketed by its resilience
// category so label cardinality stays fixed.
func (m *Metrics) RecordSearch(engine string, urls int, err error, d time.Duration) {
	result := "ok"
	if err != nil {
		result = resilience.Classify(err)
	}
	m.searchRequests.WithLabelValues(engine, result).Inc()
	m.searchURLs.WithLabelValues(engine).Add(float64(urls))
	m.searchDuration.WithLabelValues(engine).Observe(d.Seconds())
}

// RecordExtraction counts one candidate extraction.
func (m *Metrics) RecordExtraction(status string) {
	m.extractions.WithLabelValues(status).Inc()
}

// RecordLeadWrite counts one lead write outcome.
func (m *Metrics) RecordLeadWrite(outcome string) {
	m.upserts.WithLabelValues(outcome).Inc()
}

// RecordRun counts one finished ingestion run.
func (m *Metrics) RecordRun(status string) {
	m.runs.WithLabelValues(status).Inc()
}

// RecordSend counts one campaign send attempt.
func (m *Metrics) RecordSend(status int, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.sends.WithLabelValues(result, strconv.Itoa(status)).Inc()
}

// SetSnapshot updates the store gauges.
func (m *Metrics) SetSnapshot(s *Snapshot) {
	m.leads.Set(float64(s.Leads))
	m.suppressed.Set(float64(s.Suppressed))
	m.eligible.Set(float64(s.Eligible))
}

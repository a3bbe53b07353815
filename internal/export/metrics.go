package export

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/ethpandaops/upicheck/internal/linkcheck"
)

const namespace = "upicheck"

// Metrics holds the Prometheus view of one check result. It is meant to
// be written once, either to stdout or to a node_exporter textfile.
type Metrics struct {
	registry *prometheus.Registry

	Passed          prometheus.Gauge
	Verdict         *prometheus.GaugeVec // verdict, reason
	DataMean        prometheus.Gauge
	DataVariance    prometheus.Gauge
	NonDataMean     prometheus.Gauge
	NonDataVariance prometheus.Gauge
	Samples         prometheus.Gauge
	SkippedSamples  prometheus.Gauge
	ExcludedLinks   prometheus.Gauge
	ExcludedPorts   prometheus.Gauge
	ReferenceGFlops prometheus.Gauge
	ElapsedSeconds  prometheus.Gauge
	LastRun         prometheus.Gauge

	LinkDataRate    *prometheus.GaugeVec // from_socket, from_upi, to_socket, to_upi
	LinkNonDataRate *prometheus.GaugeVec // from_socket, from_upi, to_socket, to_upi
}

// NewMetrics creates the metric set on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	linkLabels := []string{"from_socket", "from_upi", "to_socket", "to_upi"}

	m := &Metrics{
		registry: reg,

		Passed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "passed",
			Help:      "Whether the last UPI check passed (1=yes, 0=no).",
		}),
		Verdict: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "verdict",
				Help:      "Verdict of the last UPI check; the active verdict is set to 1.",
			},
			[]string{"verdict", "reason"},
		),
		DataMean: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "data_rate_mean",
			Help:      "Mean outgoing data rate per directed UPI link (GB/s).",
		}),
		DataVariance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "data_rate_variance",
			Help:      "Sample variance of the outgoing data rate across directed UPI links.",
		}),
		NonDataMean: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "non_data_rate_mean",
			Help:      "Mean outgoing non-data rate per directed UPI link (GB/s).",
		}),
		NonDataVariance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "non_data_rate_variance",
			Help:      "Sample variance of the outgoing non-data rate across directed UPI links.",
		}),
		Samples: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "samples",
			Help:      "Number of directed link samples scored.",
		}),
		SkippedSamples: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "skipped_samples",
			Help:      "Number of directed link samples dropped by exclusions.",
		}),
		ExcludedLinks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "excluded_links",
			Help:      "Number of links configured as down.",
		}),
		ExcludedPorts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "excluded_ports",
			Help:      "Number of ports configured as down.",
		}),
		ReferenceGFlops: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reference_gflops",
			Help:      "dgemm throughput reported for the first node pair.",
		}),
		ElapsedSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "elapsed_seconds",
			Help:      "Elapsed time of the measured run.",
		}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last UPI check.",
		}),
		LinkDataRate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "link_data_rate",
				Help:      "Outgoing data rate of a directed UPI link (GB/s).",
			},
			linkLabels,
		),
		LinkNonDataRate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "link_non_data_rate",
				Help:      "Outgoing non-data rate of a directed UPI link (GB/s).",
			},
			linkLabels,
		),
	}

	reg.MustRegister(
		m.Passed,
		m.Verdict,
		m.DataMean,
		m.DataVariance,
		m.NonDataMean,
		m.NonDataVariance,
		m.Samples,
		m.SkippedSamples,
		m.ExcludedLinks,
		m.ExcludedPorts,
		m.ReferenceGFlops,
		m.ElapsedSeconds,
		m.LastRun,
		m.LinkDataRate,
		m.LinkNonDataRate,
	)

	return m
}

// Observe records a result.
func (m *Metrics) Observe(res *linkcheck.Result, at time.Time) {
	passed := 0.0
	if res.Passed() {
		passed = 1
	}

	m.Passed.Set(passed)
	m.Verdict.Reset()
	m.Verdict.WithLabelValues(string(res.Verdict), string(res.Reason)).Set(1)
	m.DataMean.Set(res.Data.Mean)
	m.DataVariance.Set(res.Data.Variance)
	m.NonDataMean.Set(res.NonData.Mean)
	m.NonDataVariance.Set(res.NonData.Variance)
	m.Samples.Set(float64(res.Samples))
	m.SkippedSamples.Set(float64(res.Skipped))
	m.ExcludedLinks.Set(float64(len(res.ExcludedLinks)))
	m.ExcludedPorts.Set(float64(len(res.ExcludedPorts)))
	m.ReferenceGFlops.Set(res.ReferenceGFlops)
	m.ElapsedSeconds.Set(res.Elapsed)
	m.LastRun.Set(float64(at.Unix()))

	m.LinkDataRate.Reset()
	m.LinkNonDataRate.Reset()

	for _, l := range res.Links {
		labels := []string{
			strconv.Itoa(l.From.Socket),
			strconv.Itoa(l.From.Link),
			strconv.Itoa(l.To.Socket),
			strconv.Itoa(l.To.Link),
		}

		m.LinkDataRate.WithLabelValues(labels...).Set(l.Data)
		m.LinkNonDataRate.WithLabelValues(labels...).Set(l.NonData)
	}
}

// WriteText writes the metrics in the Prometheus text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	mfs, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}

	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))

	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encoding metric family %s: %w", mf.GetName(), err)
		}
	}

	return nil
}

// WriteTextfile atomically writes the metrics to path for the
// node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile %s: %w", path, err)
	}

	return nil
}

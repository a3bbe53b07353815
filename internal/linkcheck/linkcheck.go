// Package linkcheck scores UPI link bandwidth samples and decides whether
// the interconnect of a machine is healthy.
package linkcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/upicheck/internal/iostat"
	"github.com/ethpandaops/upicheck/internal/topology"
)

// Thresholds are the pass/fail limits applied to the data channel.
type Thresholds struct {
	// MaxDataVariance is the largest accepted sample variance of the
	// per-link data rate. Defaults to 0.05.
	MaxDataVariance float64 `yaml:"max_data_variance"`

	// MinMeanRatio is the fraction of NominalLinkBandwidth the mean data
	// rate must reach. Defaults to 0.9.
	MinMeanRatio float64 `yaml:"min_mean_ratio"`

	// NominalLinkBandwidth is the expected per-link data rate in the
	// unit reported by the tool. Defaults to 16.
	NominalLinkBandwidth float64 `yaml:"nominal_link_bandwidth"`
}

// DefaultThresholds returns the limits calibrated for Sapphire Rapids UPI.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxDataVariance:      0.05,
		MinMeanRatio:         0.9,
		NominalLinkBandwidth: 16,
	}
}

// Validate checks the thresholds for consistency.
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{
		"max_data_variance":      t.MaxDataVariance,
		"min_mean_ratio":         t.MinMeanRatio,
		"nominal_link_bandwidth": t.NominalLinkBandwidth,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be a finite number", name)
		}
	}

	if t.MaxDataVariance < 0 {
		return errors.New("max_data_variance must not be negative")
	}

	if t.MinMeanRatio < 0 {
		return errors.New("min_mean_ratio must not be negative")
	}

	if t.NominalLinkBandwidth <= 0 {
		return errors.New("nominal_link_bandwidth must be positive")
	}

	return nil
}

// MinDataMean is the lowest accepted mean data rate.
func (t Thresholds) MinDataMean() float64 {
	return t.MinMeanRatio * t.NominalLinkBandwidth
}

// Verdict is the outcome of an evaluation.
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
	// VerdictVacuous means every link was excluded and nothing was scored.
	VerdictVacuous Verdict = "vacuous"
)

// Reason explains a failing verdict.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonUneven              Reason = "uneven_bandwidth"
	ReasonLowBandwidth        Reason = "low_bandwidth"
	ReasonInsufficientSamples Reason = "insufficient_samples"
	ReasonInvalidElapsed      Reason = "invalid_elapsed"
)

// VerdictError is returned by Result.Err for a failing verdict.
type VerdictError struct {
	Reason  Reason
	Message string
}

func (e *VerdictError) Error() string {
	return e.Message
}

// LinkRate is the normalized rate of one directed link.
type LinkRate struct {
	Key     string        `json:"key"`
	From    topology.Port `json:"from"`
	To      topology.Port `json:"to"`
	Data    float64       `json:"data"`
	NonData float64       `json:"non_data"`
}

// Result is everything an evaluation produced.
type Result struct {
	Verdict Verdict `json:"verdict"`
	Reason  Reason  `json:"reason,omitempty"`
	Message string  `json:"message,omitempty"`

	Data    ChannelStats `json:"data"`
	NonData ChannelStats `json:"non_data"`
	Links   []LinkRate   `json:"links"`

	Samples int `json:"samples"`
	Skipped int `json:"skipped"`

	// ReferenceGFlops is the dgemm throughput of the run. It is reported
	// but never scored.
	ReferenceGFlops float64 `json:"reference_gflops"`
	Elapsed         float64 `json:"elapsed_seconds"`
	ElapsedFound    bool    `json:"elapsed_found"`

	Topology      topology.Topology  `json:"topology"`
	ExcludedLinks []topology.LinkKey `json:"excluded_links"`
	ExcludedPorts []string           `json:"excluded_ports"`
	Thresholds    Thresholds         `json:"thresholds"`
}

// Passed reports whether the verdict is a pass, vacuous or not.
func (r *Result) Passed() bool {
	return r.Verdict == VerdictPass || r.Verdict == VerdictVacuous
}

// Err returns a *VerdictError for a failing verdict and nil otherwise.
func (r *Result) Err() error {
	if r.Passed() {
		return nil
	}

	return &VerdictError{Reason: r.Reason, Message: r.Message}
}

// Evaluator scores one report against a fixed topology and exclusion set.
type Evaluator struct {
	log        logrus.FieldLogger
	topo       topology.Topology
	exclusions *topology.ExclusionSet
	thresholds Thresholds
}

// New creates an Evaluator.
func New(
	log logrus.FieldLogger,
	topo topology.Topology,
	exclusions *topology.ExclusionSet,
	thresholds Thresholds,
) *Evaluator {
	return &Evaluator{
		log:        log.WithField("component", "linkcheck"),
		topo:       topo,
		exclusions: exclusions,
		thresholds: thresholds,
	}
}

// Evaluate reads a report from r and scores it. The returned error is
// only set when the report could not be read; a failing verdict is
// reported through the Result.
//
// When the exclusions cover the whole topology, r is not read at all and
// the result is vacuous.
func (e *Evaluator) Evaluate(ctx context.Context, r io.Reader) (*Result, error) {
	res := &Result{
		Topology:      e.topo,
		ExcludedLinks: e.exclusions.Links(),
		ExcludedPorts: portStrings(e.exclusions.Ports()),
		Thresholds:    e.thresholds,
		Links:         []LinkRate{},
	}

	if e.exclusions.CoversTopology(e.topo) {
		e.log.WithFields(logrus.Fields{
			"excluded_links": e.exclusions.LinkCount(),
			"sockets":        e.topo.Sockets,
			"upis":           e.topo.LinksPerSocket,
		}).Info("All links excluded, nothing to check")

		res.Verdict = VerdictVacuous

		return res, nil
	}

	agg := NewAggregator(e.exclusions)

	summary, err := iostat.Scan(ctx, r, func(o iostat.Observation) error {
		if !agg.Add(o) {
			e.log.WithField("link", o.Key()).Debug("Skipping excluded link")
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading iostat report: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"samples":          agg.Samples(),
		"skipped":          agg.Skipped(),
		"elapsed":          summary.Elapsed,
		"reference_gflops": summary.ReferenceGFlops,
		"lines":            summary.Lines,
	}).Debug("Report scanned")

	if !summary.ElapsedFound {
		e.log.WithField("elapsed", summary.Elapsed).
			Warn("No elapsed time trailer in report, using default")
	}

	res.Samples = agg.Samples()
	res.Skipped = agg.Skipped()
	res.ReferenceGFlops = summary.ReferenceGFlops
	res.Elapsed = summary.Elapsed
	res.ElapsedFound = summary.ElapsedFound

	e.judge(res, agg)

	return res, nil
}

func (e *Evaluator) judge(res *Result, agg *Aggregator) {
	if math.IsNaN(res.Elapsed) || math.IsInf(res.Elapsed, 0) || res.Elapsed <= 0 {
		res.fail(ReasonInvalidElapsed, fmt.Sprintf(
			"invalid elapsed time %g seconds", res.Elapsed,
		))

		return
	}

	data, nonData, links := agg.Rates(res.Elapsed)
	res.Links = links

	if len(data) < 2 {
		res.fail(ReasonInsufficientSamples, fmt.Sprintf(
			"not enough UPI link samples to score: found %d, need at least 2",
			len(data),
		))

		return
	}

	res.Data = summarize(data)
	res.NonData = summarize(nonData)

	// Comparisons are written to fail on NaN.
	if !(res.Data.Variance <= e.thresholds.MaxDataVariance) {
		res.fail(ReasonUneven, fmt.Sprintf(
			"uneven data bandwidth between UPI links (variance=%.4f, max %.4f)",
			res.Data.Variance, e.thresholds.MaxDataVariance,
		))

		return
	}

	if !(res.Data.Mean >= e.thresholds.MinDataMean()) {
		res.fail(ReasonLowBandwidth, fmt.Sprintf(
			"overall data bandwidth is low: found %5.2f, expecting %.0f%% of %gGB/s",
			res.Data.Mean,
			e.thresholds.MinMeanRatio*100,
			e.thresholds.NominalLinkBandwidth,
		))

		return
	}

	res.Verdict = VerdictPass
}

func (r *Result) fail(reason Reason, msg string) {
	r.Verdict = VerdictFail
	r.Reason = reason
	r.Message = msg
}

func portStrings(ports []topology.Port) []string {
	out := make([]string, 0, len(ports))
	for _, p := range ports {
		out = append(out, p.String())
	}

	return out
}

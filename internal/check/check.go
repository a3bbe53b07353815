// Package check runs a UPI link check end to end: it builds the exclusion
// set, scores the report, prints the result and hands it to the
// configured sinks.
package check

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/upicheck/internal/export"
	"github.com/ethpandaops/upicheck/internal/export/http"
	"github.com/ethpandaops/upicheck/internal/host"
	"github.com/ethpandaops/upicheck/internal/linkcheck"
	"github.com/ethpandaops/upicheck/internal/report"
	"github.com/ethpandaops/upicheck/internal/topology"
)

// Runner performs a single link check.
type Runner struct {
	log    logrus.FieldLogger
	cfg    *Config
	stdout io.Writer
	now    func() time.Time
}

// NewRunner creates a Runner that renders results to stdout.
func NewRunner(log logrus.FieldLogger, cfg *Config, stdout io.Writer) *Runner {
	return &Runner{
		log:    log.WithField("component", "check"),
		cfg:    cfg,
		stdout: stdout,
		now:    time.Now,
	}
}

// Run scores the report read from input. The result is returned whenever
// the report was scored, together with a *linkcheck.VerdictError when
// the check failed. Configuration and parse errors return a nil result.
func (r *Runner) Run(ctx context.Context, input io.Reader) (*linkcheck.Result, error) {
	exclusions, err := topology.NewExclusionSet(r.cfg.Topology, r.cfg.DownPorts, r.cfg.DownLinks)
	if err != nil {
		return nil, err
	}

	format, err := report.ParseFormat(r.cfg.Output.Format)
	if err != nil {
		return nil, err
	}

	evaluator := linkcheck.New(r.log, r.cfg.Topology, exclusions, r.cfg.Thresholds)

	res, err := evaluator.Evaluate(ctx, input)
	if err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"verdict": res.Verdict,
		"reason":  res.Reason,
		"samples": res.Samples,
	}).Info("Check complete")

	if err := report.Render(r.stdout, format, r.cfg.Output.Verbose, res); err != nil {
		return res, fmt.Errorf("rendering result: %w", err)
	}

	r.export(ctx, res, r.now())

	return res, res.Err()
}

// export delivers the result to every enabled sink. Failures are logged
// and never affect the verdict.
func (r *Runner) export(ctx context.Context, res *linkcheck.Result, at time.Time) {
	if path := r.cfg.Output.MetricsTextfile; path != "" {
		metrics := export.NewMetrics()
		metrics.Observe(res, at)

		if err := metrics.WriteTextfile(path); err != nil {
			r.log.WithError(err).Error("Failed to write metrics textfile")
		} else {
			r.log.WithField("path", path).Debug("Wrote metrics textfile")
		}
	}

	sinks := r.cfg.Sinks
	if !sinks.ClickHouse.Enabled && !sinks.HTTP.Enabled {
		return
	}

	rec := export.NewRunRecord(res, host.Collect(r.cfg.Meta.HostName), at)

	if sinks.ClickHouse.Enabled {
		if err := r.writeClickHouse(ctx, rec); err != nil {
			r.log.WithError(err).Error("Failed to write result to ClickHouse")
		}
	}

	if sinks.HTTP.Enabled {
		err := http.Publish(ctx, r.log, sinks.HTTP, "upi_check_runs", []*export.RunRecord{&rec})
		if err != nil {
			r.log.WithError(err).Error("Failed to publish result over HTTP")
		}
	}
}

func (r *Runner) writeClickHouse(ctx context.Context, rec export.RunRecord) error {
	writer := export.NewClickHouseWriter(r.log, r.cfg.Sinks.ClickHouse)

	if err := writer.Start(ctx); err != nil {
		return err
	}

	defer func() {
		if err := writer.Stop(); err != nil {
			r.log.WithError(err).Warn("Failed to close ClickHouse connection")
		}
	}()

	return writer.Write(ctx, rec)
}

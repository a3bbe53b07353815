// Package latency runs the Intel Memory Latency Checker and extracts the
// idle latencies measured from NUMA node 0.
package latency

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrRowNotFound is returned when the output has no row for node 0.
var ErrRowNotFound = errors.New("no latency row for numa node 0 in mlc output")

// Config configures the mlc invocation.
type Config struct {
	// Command is the mlc binary. Defaults to
	// /usr/local/BenchElem/x86_64/mlc.
	Command string `yaml:"command"`

	// Args are passed to Command. Defaults to
	// ["--latency_matrix", "-b10000"].
	Args []string `yaml:"args"`

	// Timeout bounds the mlc run. Zero means no limit.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the invocation used on BenchElem nodes.
func DefaultConfig() Config {
	return Config{
		Command: "/usr/local/BenchElem/x86_64/mlc",
		Args:    []string{"--latency_matrix", "-b10000"},
	}
}

// ParseRow scans a latency matrix and returns the latencies of the node 0
// row in column order, truncated to their integer part. Scanning stops at
// that row.
//
//	Numa node            0       1
//	       0         117.2   201.9
//	       1         200.7   115.0
func ParseRow(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		index, err := strconv.Atoi(fields[0])
		if err != nil || index != 0 {
			continue
		}

		values := make([]string, 0, len(fields)-1)
		for _, f := range fields[1:] {
			whole, _, _ := strings.Cut(f, ".")
			values = append(values, whole)
		}

		return values, nil
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading mlc output: %w", err)
	}

	return nil, ErrRowNotFound
}

// Write prints one value per line.
func Write(w io.Writer, values []string) error {
	for _, v := range values {
		if _, err := fmt.Fprintln(w, v); err != nil {
			return err
		}
	}

	return nil
}

// Runner executes mlc and parses its combined output.
type Runner struct {
	log logrus.FieldLogger
	cfg Config
}

// NewRunner creates a Runner. Unset fields take their defaults.
func NewRunner(log logrus.FieldLogger, cfg Config) *Runner {
	defaults := DefaultConfig()

	if cfg.Command == "" {
		cfg.Command = defaults.Command
	}

	if cfg.Args == nil {
		cfg.Args = defaults.Args
	}

	return &Runner{
		log: log.WithField("component", "mlc"),
		cfg: cfg,
	}
}

// Run executes mlc and returns the node 0 latencies.
func (r *Runner) Run(ctx context.Context) ([]string, error) {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.cfg.Command, r.cfg.Args...)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	r.log.WithFields(logrus.Fields{
		"command": r.cfg.Command,
		"args":    r.cfg.Args,
	}).Debug("Starting mlc")

	start := time.Now()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", r.cfg.Command, err)
	}

	waitErr := make(chan error, 1)

	go func() {
		err := cmd.Wait()
		pw.CloseWithError(err)
		waitErr <- err
	}()

	values, parseErr := ParseRow(pr)

	// Keep draining so mlc never blocks on a full pipe.
	_, _ = io.Copy(io.Discard, pr)

	err := <-waitErr

	r.log.WithField("duration", time.Since(start)).Debug("mlc finished")

	// A complete node 0 row is kept even when mlc exits non-zero.
	if parseErr == nil {
		if err != nil {
			r.log.WithError(err).Warn("mlc exited with an error after printing its latency matrix")
		}

		return values, nil
	}

	if err != nil {
		return nil, fmt.Errorf("running %s: %w", r.cfg.Command, err)
	}

	return nil, parseErr
}

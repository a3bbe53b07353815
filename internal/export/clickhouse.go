package export

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/sirupsen/logrus"
)

// ClickHouseConfig configures the ClickHouse result writer.
type ClickHouseConfig struct {
	// Enabled turns on the ClickHouse sink.
	Enabled bool `yaml:"enabled"`

	// Endpoint is the ClickHouse native protocol address.
	Endpoint string `yaml:"endpoint"`

	// Database is the target database name.
	Database string `yaml:"database"`

	// RunsTable receives one row per check. Defaults to "upi_check_runs".
	RunsTable string `yaml:"runs_table"`

	// LinksTable receives one row per directed link per check.
	// Defaults to "upi_check_links".
	LinksTable string `yaml:"links_table"`

	// Username for ClickHouse authentication.
	Username string `yaml:"username"`

	// Password for ClickHouse authentication.
	Password string `yaml:"password"`

	// DialTimeout bounds connection setup. Defaults to 10s.
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// ApplyDefaults fills unset fields.
func (c *ClickHouseConfig) ApplyDefaults() {
	if c.Database == "" {
		c.Database = "default"
	}

	if c.RunsTable == "" {
		c.RunsTable = "upi_check_runs"
	}

	if c.LinksTable == "" {
		c.LinksTable = "upi_check_links"
	}

	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
}

// Validate checks the configuration.
func (c *ClickHouseConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Endpoint == "" {
		return errors.New("clickhouse endpoint is required when enabled")
	}

	return nil
}

// MigrationDSN returns the connection string used by schema migrations.
func (c *ClickHouseConfig) MigrationDSN() string {
	q := url.Values{}
	q.Set("database", c.Database)

	if c.Username != "" {
		q.Set("username", c.Username)
	}

	if c.Password != "" {
		q.Set("password", c.Password)
	}

	return fmt.Sprintf("clickhouse://%s?%s", c.Endpoint, q.Encode())
}

// ClickHouseWriter writes check results to ClickHouse.
type ClickHouseWriter struct {
	log  logrus.FieldLogger
	cfg  ClickHouseConfig
	conn clickhouse.Conn
}

// NewClickHouseWriter creates a new ClickHouse writer.
func NewClickHouseWriter(
	log logrus.FieldLogger,
	cfg ClickHouseConfig,
) *ClickHouseWriter {
	cfg.ApplyDefaults()

	return &ClickHouseWriter{
		log: log.WithField("component", "clickhouse"),
		cfg: cfg,
	}
}

// Start opens the ClickHouse connection.
func (w *ClickHouseWriter) Start(ctx context.Context) error {
	opts := &clickhouse.Options{
		Addr: []string{w.cfg.Endpoint},
		Auth: clickhouse.Auth{
			Database: w.cfg.Database,
			Username: w.cfg.Username,
			Password: w.cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout:  w.cfg.DialTimeout,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return fmt.Errorf("opening ClickHouse connection: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()

		return fmt.Errorf("pinging ClickHouse: %w", err)
	}

	w.conn = conn

	w.log.WithField("endpoint", w.cfg.Endpoint).
		Debug("ClickHouse writer connected")

	return nil
}

// Write inserts the run row followed by its link rows.
func (w *ClickHouseWriter) Write(ctx context.Context, rec RunRecord) error {
	if w.conn == nil {
		return errors.New("clickhouse writer not started")
	}

	if err := w.writeRun(ctx, rec); err != nil {
		return err
	}

	if len(rec.Links) == 0 {
		return nil
	}

	return w.writeLinks(ctx, rec)
}

func (w *ClickHouseWriter) writeRun(ctx context.Context, rec RunRecord) error {
	batch, err := w.conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s.%s (run_id, event_date_time, hostname, kernel_release, machine, sockets, upis, verdict, reason, message, data_mean, data_variance, non_data_mean, non_data_variance, samples, skipped, reference_gflops, elapsed_seconds, excluded_links, excluded_ports)",
		w.cfg.Database, w.cfg.RunsTable,
	))
	if err != nil {
		return fmt.Errorf("preparing run batch: %w", err)
	}

	if err := batch.Append(
		rec.RunID,
		rec.Timestamp,
		rec.Hostname,
		rec.KernelRelease,
		rec.Machine,
		clampUint[uint16](rec.Sockets),
		clampUint[uint16](rec.UPIs),
		rec.Verdict,
		rec.Reason,
		rec.Message,
		rec.DataMean,
		rec.DataVariance,
		rec.NonDataMean,
		rec.NonDataVariance,
		clampUint[uint32](rec.Samples),
		clampUint[uint32](rec.Skipped),
		rec.ReferenceGFlops,
		rec.ElapsedSeconds,
		rec.ExcludedLinks,
		rec.ExcludedPorts,
	); err != nil {
		return fmt.Errorf("appending run row: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("sending run row: %w", err)
	}

	return nil
}

func (w *ClickHouseWriter) writeLinks(ctx context.Context, rec RunRecord) error {
	batch, err := w.conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s.%s (run_id, event_date_time, hostname, from_socket, from_upi, to_socket, to_upi, data_rate, non_data_rate)",
		w.cfg.Database, w.cfg.LinksTable,
	))
	if err != nil {
		return fmt.Errorf("preparing link batch: %w", err)
	}

	for _, l := range rec.Links {
		if err := batch.Append(
			rec.RunID,
			rec.Timestamp,
			rec.Hostname,
			l.FromSocket,
			l.FromUPI,
			l.ToSocket,
			l.ToUPI,
			l.DataRate,
			l.NonDataRate,
		); err != nil {
			return fmt.Errorf("appending link row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("sending batch of %d link rows: %w", len(rec.Links), err)
	}

	w.log.WithFields(logrus.Fields{
		"run_id": rec.RunID,
		"links":  len(rec.Links),
	}).Debug("Wrote check result to ClickHouse")

	return nil
}

// Stop closes the ClickHouse connection.
func (w *ClickHouseWriter) Stop() error {
	if w.conn != nil {
		return w.conn.Close()
	}

	return nil
}

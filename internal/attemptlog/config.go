package attemptlog

import (
	"context"
	"log/slog"

	"github.com/mixaill76/agent_failover/internal/config"
	"github.com/mixaill76/agent_failover/internal/monitoring"
)

// Open connects to PostgreSQL, ensures the table and starts a recorder.
// Close the writer after stopping the recorder.
func Open(ctx context.Context, cfg config.AttemptLogConfig, logger *slog.Logger, metrics *monitoring.Metrics) (*Recorder, *PGWriter, error) {
	writer, err := NewPGWriter(ctx, cfg.DatabaseURL, cfg.Table, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := writer.EnsureTable(ctx); err != nil {
		writer.Close()
		return nil, nil, err
	}

	rec := NewRecorder(writer, Options{
		QueueSize:     cfg.QueueSize,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
		Logger:        logger,
		Metrics:       metrics,
	})
	rec.Start()
	return rec, writer, nil
}

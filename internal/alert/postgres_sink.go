package alert

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/agentchain/replaycore/internal/anomaly"
)

// PostgresSink persists anomalies to a Postgres table, mirroring
// pkg/database.Client's connection-pool setup and
// pkg/database.AnchorRepository's single parameterized INSERT.
type PostgresSink struct {
	db     *sql.DB
	logger *log.Logger
}

// PostgresSinkOption configures a PostgresSink at construction.
type PostgresSinkOption func(*PostgresSink)

// WithLogger overrides the sink's default logger.
func WithLogger(logger *log.Logger) PostgresSinkOption {
	return func(s *PostgresSink) { s.logger = logger }
}

// NewPostgresSink opens a pooled connection to databaseURL and verifies
// it with a ping, the same sequence as database.NewClient.
func NewPostgresSink(databaseURL string, opts ...PostgresSinkOption) (*PostgresSink, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("alert: database URL cannot be empty")
	}

	sink := &PostgresSink{
		logger: log.New(log.Writer(), "[AlertSink] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(sink)
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("alert: open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("alert: ping database: %w", err)
	}

	sink.db = db
	return sink, nil
}

// Close releases the underlying connection pool.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

const insertAnomalyQuery = `
	INSERT INTO incident_anomalies (
		anomaly_id, code, kind, severity, message, task_pda, dispute_pda,
		source_event_name, signature, slot, source_event_sequence, trace_id,
		repeat_count, emitted_at_ms, metadata
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (anomaly_id) DO UPDATE SET
		repeat_count = EXCLUDED.repeat_count,
		emitted_at_ms = EXCLUDED.emitted_at_ms`

// Emit upserts one anomaly row, keyed by anomalyId so repeat
// detections update repeat_count in place rather than duplicating rows.
// Info-severity anomalies are dropped here: incident_anomalies is an
// audit trail for Warning/Error incident reconstruction, not a general
// event log.
func (s *PostgresSink) Emit(ctx context.Context, a anomaly.Record) error {
	if a.Severity != anomaly.SeverityWarning && a.Severity != anomaly.SeverityError {
		return nil
	}

	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("alert: marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, insertAnomalyQuery,
		a.AnomalyID, a.Code, string(a.Kind), string(a.Severity), a.Message,
		nullableString(a.TaskPda), nullableString(a.DisputePda),
		nullableString(a.SourceEventName), nullableString(a.Signature),
		a.Slot, a.SourceEventSequence, nullableString(a.TraceID),
		a.RepeatCount, a.EmittedAtMs, metadata,
	)
	if err != nil {
		return fmt.Errorf("alert: insert anomaly: %w", err)
	}
	return nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/otherjamesbrown/meetiq/pkg/meeting/scoring"
)

// Execer is the subset of pgxpool.Pool PostgresSink uses.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	insertSnapshotSQL = `
		INSERT INTO meeting_snapshots (session_id, at, ready, overall, trend, profile_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	upsertReportSQL = `
		INSERT INTO meeting_reports (session_id, title, profile_id, final_score, rating, generated_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE SET
			title = EXCLUDED.title,
			profile_id = EXCLUDED.profile_id,
			final_score = EXCLUDED.final_score,
			rating = EXCLUDED.rating,
			generated_at = EXCLUDED.generated_at,
			payload = EXCLUDED.payload,
			updated_at = NOW()`
)

// PostgresSink persists ready snapshots and final reports. Not-ready
// warm-up snapshots are skipped.
type PostgresSink struct {
	db    Execer
	close func()
}

// NewPostgresSink returns a sink over db. closeFn, if set, runs on Close.
func NewPostgresSink(db Execer, closeFn func()) *PostgresSink {
	return &PostgresSink{db: db, close: closeFn}
}

// Name implements Sink.
func (s *PostgresSink) Name() string { return "postgres" }

// WriteSnapshot implements Sink.
func (s *PostgresSink) WriteSnapshot(ctx context.Context, snap scoring.Snapshot) error {
	if !snap.Ready {
		return nil
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	_, err = s.db.Exec(ctx, insertSnapshotSQL,
		snap.SessionID, snap.At, snap.Ready, snap.Overall, snap.Trend, string(snap.ProfileID), payload)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

// WriteReport implements Sink.
func (s *PostgresSink) WriteReport(ctx context.Context, r *scoring.Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	_, err = s.db.Exec(ctx, upsertReportSQL,
		r.SessionID, r.Title, string(r.ProfileID), r.FinalScore, string(r.Rating.Band), r.GeneratedAt, payload)
	if err != nil {
		return fmt.Errorf("failed to upsert report: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *PostgresSink) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}

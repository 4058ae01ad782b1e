package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/otherjamesbrown/meetiq/pkg/meeting/scoring"
)

// DefaultStreamPrefix prefixes every Redis key written by RedisSink.
const DefaultStreamPrefix = "meetiq"

// DefaultStreamMaxLen approximately caps each snapshot stream.
const DefaultStreamMaxLen = 1000

// RedisClient is the subset of the go-redis API RedisSink uses.
type RedisClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisConfig configures a RedisSink.
type RedisConfig struct {
	Prefix    string
	MaxLen    int64
	ReportTTL time.Duration
}

// RedisSink appends snapshots to a per-session stream and stores the final
// report under a per-session key.
type RedisSink struct {
	client RedisClient
	cfg    RedisConfig
}

// NewRedisSink returns a sink over client.
func NewRedisSink(client RedisClient, cfg RedisConfig) *RedisSink {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultStreamPrefix
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = DefaultStreamMaxLen
	}
	return &RedisSink{client: client, cfg: cfg}
}

// StreamKey returns the snapshot stream key of a session.
func (s *RedisSink) StreamKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s:snapshots", s.cfg.Prefix, sessionID)
}

// ReportKey returns the report key of a session.
func (s *RedisSink) ReportKey(sessionID string) string {
	return fmt.Sprintf("%s:session:%s:report", s.cfg.Prefix, sessionID)
}

// Name implements Sink.
func (s *RedisSink) Name() string { return "redis" }

// WriteSnapshot implements Sink.
func (s *RedisSink) WriteSnapshot(ctx context.Context, snap scoring.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.StreamKey(snap.SessionID),
		MaxLen: s.cfg.MaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"at":      snap.At.UTC().Format(time.RFC3339Nano),
			"ready":   snap.Ready,
			"overall": snap.Overall,
			"trend":   snap.Trend,
			"profile": string(snap.ProfileID),
			"payload": string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis xadd %s: %w", s.StreamKey(snap.SessionID), err)
	}
	return nil
}

// WriteReport implements Sink.
func (s *RedisSink) WriteReport(ctx context.Context, r *scoring.Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := s.client.Set(ctx, s.ReportKey(r.SessionID), payload, s.cfg.ReportTTL).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.ReportKey(r.SessionID), err)
	}
	return nil
}

// Close closes the client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}

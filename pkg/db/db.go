// Package db opens the Postgres pool used to persist meeting snapshots and
// reports, and applies the embedded schema.
package db

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	mqerrors "github.com/otherjamesbrown/meetiq/pkg/errors"
)

// Config describes the meetiq database. The pool is small: one replay or
// monitor writes at most one snapshot per tick.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// ApplicationName shows up in pg_stat_activity.
	ApplicationName string

	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultConfig returns the local development settings.
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		Database:        "meetiq",
		User:            "meetiq",
		SSLMode:         "disable",
		ApplicationName: "meetiq",
		MaxConns:        4,
		MinConns:        0,
		MaxConnIdleTime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// ConnectionString renders the config as a postgres:// URL.
func (c *Config) ConnectionString() string {
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(c.ConnectTimeout.Seconds())))
	}
	if c.ApplicationName != "" {
		q.Set("application_name", c.ApplicationName)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Validate rejects configs that cannot possibly connect.
func (c *Config) Validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("postgres host is required: %w", mqerrors.ErrValidation)
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid postgres port %d: %w", c.Port, mqerrors.ErrValidation)
	case c.Database == "":
		return fmt.Errorf("postgres database is required: %w", mqerrors.ErrValidation)
	case c.User == "":
		return fmt.Errorf("postgres user is required: %w", mqerrors.ErrValidation)
	case c.MaxConns < 1 || c.MinConns > c.MaxConns:
		return fmt.Errorf("pool size min %d max %d: %w", c.MinConns, c.MaxConns, mqerrors.ErrValidation)
	}
	return nil
}

// Connect opens a pool and pings it. An unreachable server is reported as
// ErrUnavailable. The caller closes the pool.
func Connect(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres at %s:%d: %v: %w", cfg.Host, cfg.Port, err, mqerrors.ErrUnavailable)
	}
	return pool, nil
}

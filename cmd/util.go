package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/meetiq/config"
	"github.com/otherjamesbrown/meetiq/credentials"
	"github.com/otherjamesbrown/meetiq/pkg/db"
	mqerrors "github.com/otherjamesbrown/meetiq/pkg/errors"
	"github.com/otherjamesbrown/meetiq/pkg/ingest/transcript"
	"github.com/otherjamesbrown/meetiq/pkg/logging"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/classifier"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/profile"
	"github.com/otherjamesbrown/meetiq/pkg/semantic"
)

// connectTimeout bounds the reachability checks for optional sinks.
const connectTimeout = 5 * time.Second

// SemanticClient is a semantic classifier that owns a connection.
type SemanticClient interface {
	classifier.Semantic
	Close() error
}

// resolveConfig returns the preloaded config or loads it.
func resolveConfig(cfg *config.CLIConfig, load func() (*config.CLIConfig, error)) (*config.CLIConfig, error) {
	if cfg != nil {
		return cfg, nil
	}
	if load == nil {
		load = config.LoadConfig
	}
	cfg, err := load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// resolveFormat applies a per-command --output override.
func resolveFormat(cfg *config.CLIConfig, override string) (config.OutputFormat, error) {
	format := cfg.OutputFormat
	if override != "" {
		format = config.OutputFormat(override)
	}
	if format == "" {
		format = config.DefaultOutputFormat
	}
	if !format.IsValid() {
		return "", fmt.Errorf("invalid output format %q (must be text, json, or yaml): %w", format, mqerrors.ErrValidation)
	}
	return format, nil
}

// writeStructured encodes v as indented JSON or YAML.
func writeStructured(w io.Writer, format config.OutputFormat, v interface{}) error {
	switch format {
	case config.OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case config.OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported structured format: %s", format)
	}
}

// NewLogger builds the CLI logger. Console output is used when stderr is a
// terminal unless the config forces a format.
func NewLogger(cfg *config.CLIConfig, w io.Writer) logging.Logger {
	lc := logging.DefaultConfig()
	lc.Level = logging.LevelWarn
	if cfg.Debug {
		lc.Level = logging.LevelDebug
	}
	if w != nil {
		lc.Output = w
	}
	switch cfg.LogFormat {
	case config.LogFormatJSON:
		lc.JSONFormat = true
	case config.LogFormatConsole:
		lc.JSONFormat = false
	default:
		lc.JSONFormat = !isTerminal(os.Stderr)
	}
	return logging.NewLogger(lc)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// loadTable returns the configured profile table, or the built-in one.
func loadTable(cfg *config.CLIConfig) (*profile.Table, error) {
	if cfg.ProfilesFile == "" {
		return profile.Default(), nil
	}
	path, err := config.ExpandPath(cfg.ProfilesFile)
	if err != nil {
		return nil, fmt.Errorf("expanding profiles file: %w", err)
	}
	table, err := profile.LoadTableFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading profiles from %s: %w", path, err)
	}
	return table, nil
}

// parseType validates a --type flag against the table. Empty means automatic.
func parseType(table *profile.Table, raw string) (profile.TypeID, error) {
	if raw == "" {
		return "", nil
	}
	id := profile.Normalize(raw)
	if !table.Has(id) {
		return "", fmt.Errorf("unknown meeting type %q: %w", raw, mqerrors.ErrValidation)
	}
	return id, nil
}

// loadedTranscript is a parsed transcript plus the metadata in its file name.
type loadedTranscript struct {
	Path       string
	Info       transcript.Info
	Transcript *transcript.Transcript
}

// readTranscript opens, decodes and parses a transcript file. An empty
// format is detected from the name and first bytes.
func readTranscript(path, format, encoding string) (*loadedTranscript, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening transcript: %w", err)
	}
	defer f.Close()

	decoded, err := transcript.NewDecodingReader(f, encoding)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(decoded)
	if format == "" {
		head, _ := br.Peek(64)
		format = transcript.DetectFormat(path, head)
	}

	tr, err := transcript.Parse(br, format)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &loadedTranscript{
		Path:       path,
		Info:       transcript.InfoFromFilename(path),
		Transcript: tr,
	}, nil
}

// connectToRedis opens a Redis client and checks it is reachable.
func connectToRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Address, err)
	}
	return client, nil
}

// connectToDatabase opens the Postgres pool and applies the schema.
func connectToDatabase(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	dbCfg := db.DefaultConfig()
	if cfg.Host != "" {
		dbCfg.Host = cfg.Host
	}
	if cfg.Port != 0 {
		dbCfg.Port = cfg.Port
	}
	if cfg.Database != "" {
		dbCfg.Database = cfg.Database
	}
	if cfg.User != "" {
		dbCfg.User = cfg.User
	}
	if cfg.SSLMode != "" {
		dbCfg.SSLMode = cfg.SSLMode
	}
	dbCfg.Password = cfg.Password

	pool, err := db.Connect(ctx, dbCfg)
	if err != nil {
		return nil, err
	}
	if _, err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return pool, nil
}

// dialSemantic connects to the semantic classifier. The address falls back
// to the one stored with the token.
func dialSemantic(cfg config.SemanticConfig, opts *semantic.Options) (SemanticClient, error) {
	o := *opts
	o.Address = cfg.Address
	o.Method = cfg.Method
	o.Insecure = cfg.Insecure

	creds, err := credentials.ActiveToken()
	switch {
	case err == nil:
		o.Token = creds.Token
		if o.Address == "" {
			o.Address = creds.Address
		}
	case errors.Is(err, credentials.ErrNoCredentials):
	default:
		return nil, fmt.Errorf("loading semantic classifier token: %w", err)
	}

	client, err := semantic.Dial(&o)
	if err != nil {
		return nil, err
	}
	return client, nil
}

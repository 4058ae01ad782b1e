// Package cmd provides CLI commands for the meetiq tool.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/meetiq/config"
	"github.com/otherjamesbrown/meetiq/pkg/buildinfo"
	"github.com/otherjamesbrown/meetiq/pkg/db"
	mqerrors "github.com/otherjamesbrown/meetiq/pkg/errors"
	"github.com/otherjamesbrown/meetiq/pkg/ingest/transcript"
	"github.com/otherjamesbrown/meetiq/pkg/logging"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/classifier"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/monitor"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/profile"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/scoring"
	"github.com/otherjamesbrown/meetiq/pkg/observability"
	"github.com/otherjamesbrown/meetiq/pkg/semantic"
	"github.com/otherjamesbrown/meetiq/pkg/sink"
)

// ReplayCommandDeps holds the dependencies for the replay command.
type ReplayCommandDeps struct {
	Config     *config.CLIConfig
	LoadConfig func() (*config.CLIConfig, error)
	Logger     logging.Logger

	// Now is the fallback meeting start when neither --start nor the file
	// name supplies one.
	Now func() time.Time

	ConnectRedis    func(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error)
	ConnectDatabase func(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error)
	DialSemantic    func(cfg config.SemanticConfig, opts *semantic.Options) (SemanticClient, error)
}

// DefaultReplayDeps returns the default dependencies for production use.
func DefaultReplayDeps() *ReplayCommandDeps {
	return &ReplayCommandDeps{
		LoadConfig:      config.LoadConfig,
		Now:             time.Now,
		ConnectRedis:    connectToRedis,
		ConnectDatabase: connectToDatabase,
		DialSemantic:    dialSemantic,
	}
}

type replayOptions struct {
	title          string
	meetingType    string
	start          string
	format         string
	encoding       string
	output         string
	metricsFile    string
	ignoreSpeakers bool
	redis          bool
	postgres       bool
	semantic       bool
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(deps *ReplayCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultReplayDeps()
	}
	opts := &replayOptions{}

	cmd := &cobra.Command{
		Use:   "replay <transcript>",
		Short: "Score a recorded meeting transcript",
		Long: `Replay a transcript through the live meeting monitor.

Utterances are fed in timestamp order while a simulated clock advances through
meeting time. The meeting is scored every tick_interval (default 1m), the
meeting type is detected once enough has been said, and the final report is
printed when the transcript ends.

Supported formats are WebVTT (Zoom, Teams, Webex exports) and plain text lines
of the form "m:ss : Speaker : text". The format is detected from the file
extension or content unless --format is given. Files in legacy encodings can
be decoded with --encoding (utf-16, windows-1252, shift_jis, ...).

Action items, decisions, open questions and topic switches are extracted from
the utterances by keyword. A decision resolves the oldest open question.

Sinks:
  --redis      Append snapshots to a Redis stream and store the final report
  --postgres   Persist ready snapshots and the report (schema applied on connect)
  -o json|yaml Stream every snapshot and the report to stdout`,
		Example: `  # Score a Zoom transcript
  meetiq replay "Weekly Sync-20240312 0930-1.vtt"

  # Pin the meeting type and start time
  meetiq replay notes.txt --type standup --start 2024-03-12T09:00:00Z

  # Force heuristic speaker detection and stream JSON
  meetiq replay call.vtt --ignore-speakers -o json

  # Persist to Redis and Postgres, ask the semantic classifier
  meetiq replay call.vtt --redis --postgres --semantic`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), deps, opts, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.title, "title", "", "Meeting title (default: from file name)")
	cmd.Flags().StringVar(&opts.meetingType, "type", "", "Meeting type, disables automatic detection (e.g. standup, planning)")
	cmd.Flags().StringVar(&opts.start, "start", "", "Wall-clock meeting start (RFC3339)")
	cmd.Flags().StringVar(&opts.format, "format", "", "Transcript format: vtt or txt (default: detect)")
	cmd.Flags().StringVar(&opts.encoding, "encoding", "", "Transcript character encoding (default: utf-8)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output format: text, json, yaml")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file when done")
	cmd.Flags().BoolVar(&opts.ignoreSpeakers, "ignore-speakers", false, "Ignore speaker labels and attribute heuristically")
	cmd.Flags().BoolVar(&opts.redis, "redis", false, "Publish snapshots and the report to Redis")
	cmd.Flags().BoolVar(&opts.postgres, "postgres", false, "Persist snapshots and the report to Postgres")
	cmd.Flags().BoolVar(&opts.semantic, "semantic", false, "Ask the semantic classifier service during detection")

	return cmd
}

func runReplay(ctx context.Context, deps *ReplayCommandDeps, opts *replayOptions, path string, out io.Writer) error {
	cfg, err := resolveConfig(deps.Config, deps.LoadConfig)
	if err != nil {
		return err
	}
	format, err := resolveFormat(cfg, opts.output)
	if err != nil {
		return err
	}
	log := deps.Logger
	if log == nil {
		log = NewLogger(cfg, nil)
	}

	table, err := loadTable(cfg)
	if err != nil {
		return err
	}
	meetingType, err := parseType(table, opts.meetingType)
	if err != nil {
		return err
	}

	lt, err := readTranscript(path, opts.format, opts.encoding)
	if err != nil {
		return err
	}
	if len(lt.Transcript.Segments) == 0 {
		return fmt.Errorf("transcript %s has no utterances: %w", path, mqerrors.ErrValidation)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	start, err := replayStart(opts.start, lt.Info, now)
	if err != nil {
		return err
	}
	title := opts.title
	if title == "" {
		title = lt.Info.Title
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMeetingMetrics(reg)
	tracer := observability.NewTracer()
	clk := newReplayClock(start)

	var sinks []sink.Sink
	closeSinks := func() {
		if err := sink.Multi(sinks).Close(); err != nil {
			log.Warn("closing sinks", logging.Err(err))
		}
	}
	if format != config.OutputFormatText {
		ws, err := sink.NewWriterSink(out, string(format))
		if err != nil {
			return err
		}
		sinks = append(sinks, ws)
	}

	emitter := observability.NewEventEmitter(nil)
	if opts.redis {
		client, err := deps.ConnectRedis(ctx, cfg.Redis)
		if err != nil {
			closeSinks()
			return err
		}
		sinks = append(sinks, sink.NewRedisSink(client, sink.RedisConfig{
			Prefix: cfg.Redis.StreamPrefix,
			MaxLen: cfg.Redis.MaxLen,
		}))
		emitter = observability.NewEventEmitter(observability.NewRedisEventPublisher(
			func(ctx context.Context, channel string, message interface{}) error {
				return client.Publish(ctx, channel, message).Err()
			},
		))
	}
	if opts.postgres {
		pool, err := deps.ConnectDatabase(ctx, cfg.Postgres)
		if err != nil {
			closeSinks()
			return err
		}
		if _, err := db.RegisterPoolStatsCollector(reg, pool, buildinfo.Name); err != nil {
			log.Warn("pool stats collector not registered", logging.Err(err))
		}
		sinks = append(sinks, sink.NewPostgresSink(pool, pool.Close))
	}

	classifierOpts := []classifier.Option{
		classifier.WithTable(table),
		classifier.WithClock(clk.Now),
		classifier.WithLogger(log),
	}
	if opts.semantic {
		client, err := deps.DialSemantic(cfg.Semantic, &semantic.Options{
			Table:   table,
			Logger:  log,
			Metrics: metrics,
			Tracer:  tracer,
		})
		if err != nil {
			closeSinks()
			return err
		}
		defer client.Close()
		classifierOpts = append(classifierOpts, classifier.WithSemantic(client, semanticTimeout(cfg)))
	}

	mon := monitor.New(
		monitor.WithConfig(monitor.Config{
			Classify:        cfg.Classification.Enabled,
			MinElapsed:      cfg.Classification.MinElapsed,
			MinFragments:    cfg.Classification.MinFragments,
			SwitchThreshold: cfg.Classification.SwitchThreshold,
		}),
		monitor.WithClock(clk.Now),
		monitor.WithLogger(log),
		monitor.WithTable(table),
		monitor.WithClassifier(classifier.New(classifierOpts...)),
		monitor.WithSinks(sinks...),
		monitor.WithMetrics(metrics),
		monitor.WithTracer(tracer),
		monitor.WithEmitter(emitter),
	)
	defer func() {
		if err := mon.Close(); err != nil {
			log.Warn("closing monitor", logging.Err(err))
		}
	}()

	r := &replayer{
		mon:            mon,
		clock:          clk,
		interval:       cfg.TickInterval,
		ignoreSpeakers: opts.ignoreSpeakers,
	}
	if format == config.OutputFormatText {
		fmt.Fprintf(out, "Replaying %s (%d utterances, %s)\n\n", title, len(lt.Transcript.Segments), formatElapsed(lt.Transcript.Duration))
		r.onTick = func(snap scoring.Snapshot) {
			printSnapshotLine(out, snap)
		}
	}

	report, err := r.run(ctx, title, meetingType, lt.Transcript)
	if err != nil {
		return err
	}

	if opts.metricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.metricsFile, reg); err != nil {
			log.Warn("writing metrics file", logging.F("path", opts.metricsFile), logging.Err(err))
		}
	}

	if format != config.OutputFormatText {
		return nil
	}
	fmt.Fprintln(out)
	if res, ok := mon.Classification(); ok {
		printDetection(out, table, res)
	}
	if sug, ok := mon.Suggestion(); ok && sug.Applied {
		fmt.Fprintf(out, "Profile switched from %s to %s (%d%% confidence)\n\n", sug.From, sug.To, sug.Confidence)
	}
	printReport(out, report)
	return nil
}

// semanticTimeout prefers the service timeout over the classification one.
func semanticTimeout(cfg *config.CLIConfig) time.Duration {
	if cfg.Semantic.Timeout > 0 {
		return cfg.Semantic.Timeout
	}
	if cfg.Classification.Timeout > 0 {
		return cfg.Classification.Timeout
	}
	return classifier.DefaultSemanticTimeout
}

// replayStart picks the wall-clock start of a replayed meeting: the --start
// flag, then a clock time in the file name, then now.
func replayStart(raw string, info transcript.Info, now func() time.Time) (time.Time, error) {
	if raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --start %q (want RFC3339): %w", raw, mqerrors.ErrValidation)
		}
		return t, nil
	}
	if info.HasClock {
		return info.Start, nil
	}
	return now(), nil
}

// replayClock is a settable clock shared by the monitor and its background
// classification. It never moves backwards.
type replayClock struct {
	mu    sync.Mutex
	start time.Time
	now   time.Time
}

func newReplayClock(start time.Time) *replayClock {
	return &replayClock{start: start, now: start}
}

// Now returns the current simulated time.
func (c *replayClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock to offset into the meeting and returns the new time.
func (c *replayClock) Advance(offset time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t := c.start.Add(offset); t.After(c.now) {
		c.now = t
	}
	return c.now
}

// replayer drives a monitor through a parsed transcript.
type replayer struct {
	mon            *monitor.Monitor
	clock          *replayClock
	interval       time.Duration
	ignoreSpeakers bool
	onTick         func(scoring.Snapshot)
}

func (r *replayer) run(ctx context.Context, title string, id profile.TypeID, tr *transcript.Transcript) (*scoring.Report, error) {
	if r.interval <= 0 {
		r.interval = config.DefaultTickInterval
	}
	if _, err := r.mon.Start(title, id); err != nil {
		return nil, err
	}

	var last, end time.Duration
	next := r.interval
	for _, seg := range tr.Segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for seg.Start >= next {
			if err := r.tick(ctx, next); err != nil {
				return nil, err
			}
			last = next
			next += r.interval
		}
		r.ingest(seg)
		end = maxDuration(end, seg.Start, seg.End)
	}
	end = maxDuration(end, tr.Duration)

	for next <= end {
		if err := r.tick(ctx, next); err != nil {
			return nil, err
		}
		last = next
		next += r.interval
	}
	if end > last {
		if err := r.tick(ctx, end); err != nil {
			return nil, err
		}
	}

	report, err := r.mon.End(ctx)
	if err != nil {
		if errors.Is(err, mqerrors.ErrInvalidState) {
			return nil, fmt.Errorf("meeting too short to score (%s): %w", formatElapsed(end), err)
		}
		return nil, err
	}
	return report, nil
}

// tick scores the meeting at offset and waits for any classification it
// started, so a profile switch lands on the following tick.
func (r *replayer) tick(ctx context.Context, offset time.Duration) error {
	r.clock.Advance(offset)
	snap := r.mon.Tick(ctx)
	if _, err := r.mon.AwaitClassification(ctx); err != nil {
		return err
	}
	if r.onTick != nil {
		r.onTick(snap)
	}
	return nil
}

func (r *replayer) ingest(seg transcript.Segment) {
	at := r.clock.Advance(seg.Start)
	label := seg.Speaker
	if r.ignoreSpeakers {
		label = ""
	}
	r.mon.Ingest(scoring.Fragment{SpeakerID: label, Text: seg.Text, At: at})

	m := transcript.DetectMarkers(seg.Text)
	if !m.Any() {
		return
	}
	if m.Decision {
		r.mon.AddDecision(seg.Text, at)
		r.mon.ResolveOldestQuestion()
	}
	if m.Question {
		r.mon.AddQuestion(seg.Text, at)
	}
	if m.Action {
		r.mon.AddActionItem(seg.Text, at)
	}
	if m.TopicSwitch {
		r.mon.RecordTopicSwitch()
	}
}

func maxDuration(ds ...time.Duration) time.Duration {
	var m time.Duration
	for _, d := range ds {
		if d > m {
			m = d
		}
	}
	return m
}

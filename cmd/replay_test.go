package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/meetiq/config"
	mqerrors "github.com/otherjamesbrown/meetiq/pkg/errors"
	"github.com/otherjamesbrown/meetiq/pkg/ingest/transcript"
	"github.com/otherjamesbrown/meetiq/pkg/logging"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/classifier"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/monitor"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/profile"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/scoring"
	"github.com/otherjamesbrown/meetiq/pkg/semantic"
	"github.com/otherjamesbrown/meetiq/pkg/sink"
)

var fixedNow = time.Date(2024, 3, 12, 9, 15, 0, 0, time.UTC)

var standupLines = []string{
	"Yesterday I finished the login page and reviewed two pull requests.",
	"Today I will pair with Sam on the payment flow.",
	"I'm blocked on the staging database credentials.",
	"Yesterday I worked on the release notes.",
	"Today I'm going to fix the flaky integration test.",
	"No blockers for me, I'll update the ticket after this.",
}

// writeTranscript writes a labelled TXT transcript with one line every step,
// rotating through three speakers, and returns its path.
func writeTranscript(t *testing.T, name string, lines []string, n int, step time.Duration) string {
	t.Helper()
	speakers := []string{"Alice", "Bob", "Carol"}
	var b strings.Builder
	for i := 0; i < n; i++ {
		at := time.Duration(i) * step
		fmt.Fprintf(&b, "%d:%02d : %s : %s\n",
			int(at/time.Minute), int(at%time.Minute/time.Second),
			speakers[i%len(speakers)], lines[i%len(lines)])
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func testReplayDeps() *ReplayCommandDeps {
	return &ReplayCommandDeps{
		Config: config.DefaultConfig(),
		Logger: logging.NewNopLogger(),
		Now:    func() time.Time { return fixedNow },
		ConnectRedis: func(context.Context, config.RedisConfig) (*redis.Client, error) {
			return nil, errors.New("redis not available in tests")
		},
		DialSemantic: func(config.SemanticConfig, *semantic.Options) (SemanticClient, error) {
			return nil, errors.New("semantic not available in tests")
		},
	}
}

func executeReplay(t *testing.T, deps *ReplayCommandDeps, args ...string) (string, error) {
	t.Helper()
	cmd := NewReplayCommand(deps)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestReplayCommand_Structure(t *testing.T) {
	cmd := NewReplayCommand(nil)
	assert.Equal(t, "replay <transcript>", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
	for _, name := range []string{"title", "type", "start", "format", "encoding", "output", "ignore-speakers", "redis", "postgres", "semantic", "metrics-file"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "missing --%s", name)
	}
}

func TestReplay_TextReport(t *testing.T) {
	path := writeTranscript(t, "Daily Standup-20240312 0915-1.txt", standupLines, 24, 15*time.Second)

	out, err := executeReplay(t, testReplayDeps(), path)
	require.NoError(t, err)

	assert.Contains(t, out, "Replaying Daily Standup (24 utterances, 5:45)")
	assert.Contains(t, out, "warming up")
	assert.Contains(t, out, "IQ ")
	assert.Contains(t, out, "Meeting IQ Report: Daily Standup")
	assert.Contains(t, out, "Dimensions:")
	assert.Contains(t, out, "Alice")
}

func TestReplay_JSONStream(t *testing.T) {
	path := writeTranscript(t, "call.txt", standupLines, 24, 15*time.Second)

	metricsFile := filepath.Join(t.TempDir(), "metrics.prom")
	out, err := executeReplay(t, testReplayDeps(), path, "-o", "json", "--type", "standup", "--title", "Sync", "--metrics-file", metricsFile)
	require.NoError(t, err)

	dec := json.NewDecoder(strings.NewReader(out))
	var envs []sink.Envelope
	for {
		var env sink.Envelope
		err := dec.Decode(&env)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		envs = append(envs, env)
	}
	require.NotEmpty(t, envs)

	last := envs[len(envs)-1]
	require.Equal(t, sink.KindReport, last.Kind)
	require.NotNil(t, last.Report)
	assert.Equal(t, "Sync", last.Report.Title)
	assert.Equal(t, profile.Standup, last.Report.ProfileID)
	assert.Equal(t, 3, last.Report.Stats.Speakers)

	// Ticks at 1m..5m plus the final partial minute.
	snapshots := envs[:len(envs)-1]
	require.Len(t, snapshots, 6)
	assert.False(t, snapshots[0].Snapshot.Ready)
	assert.True(t, snapshots[len(snapshots)-1].Snapshot.Ready)

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "meetiq_")
}

func TestReplay_Errors(t *testing.T) {
	long := writeTranscript(t, "long.txt", standupLines, 24, 15*time.Second)
	short := writeTranscript(t, "short.txt", standupLines, 4, 10*time.Second)
	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	tests := []struct {
		name  string
		args  []string
		check func(error) bool
	}{
		{"unknown type", []string{long, "--type", "retro"}, mqerrors.IsValidation},
		{"bad start", []string{long, "--start", "yesterday"}, mqerrors.IsValidation},
		{"bad output", []string{long, "-o", "xml"}, mqerrors.IsValidation},
		{"bad format", []string{long, "--format", "srt"}, mqerrors.IsValidation},
		{"empty transcript", []string{empty}, mqerrors.IsValidation},
		{"too short to score", []string{short}, mqerrors.IsInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeReplay(t, testReplayDeps(), tt.args...)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}
}

func TestReplay_SinkConnectFailure(t *testing.T) {
	path := writeTranscript(t, "call.txt", standupLines, 24, 15*time.Second)
	_, err := executeReplay(t, testReplayDeps(), path, "--redis")
	assert.ErrorContains(t, err, "redis not available")
}

type fakeSemanticClient struct {
	mu     sync.Mutex
	calls  int
	closed bool
}

func (f *fakeSemanticClient) Classify(context.Context, string) (*classifier.Opinion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &classifier.Opinion{Type: profile.Standup, Confidence: 0.95, Reasoning: "status updates"}, nil
}

func (f *fakeSemanticClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestReplay_SemanticCollaborator(t *testing.T) {
	path := writeTranscript(t, "call.txt", standupLines, 24, 15*time.Second)

	fake := &fakeSemanticClient{}
	deps := testReplayDeps()
	deps.DialSemantic = func(cfg config.SemanticConfig, opts *semantic.Options) (SemanticClient, error) {
		assert.NotNil(t, opts.Table)
		assert.NotNil(t, opts.Metrics)
		return fake, nil
	}

	out, err := executeReplay(t, deps, path, "--semantic")
	require.NoError(t, err)
	assert.Contains(t, out, "Semantic opinion: STANDUP")

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 1, fake.calls)
	assert.True(t, fake.closed)
}

func TestReplayer_LogsMarkers(t *testing.T) {
	tr := &transcript.Transcript{Segments: []transcript.Segment{
		{Speaker: "Alice", Text: "What should we do about the outage?", Start: 0},
		{Speaker: "Bob", Text: "Can you send the incident notes by Friday?", Start: 30 * time.Second},
		{Speaker: "Alice", Text: "We decided to roll back the release.", Start: time.Minute},
		{Speaker: "Carol", Text: "Moving on to the roadmap.", Start: 90 * time.Second},
		{Speaker: "Bob", Text: "The roadmap looks fine to me.", Start: 3 * time.Minute},
	}}

	clk := newReplayClock(fixedNow)
	mon := monitor.New(
		monitor.WithClock(clk.Now),
		monitor.WithConfig(monitor.Config{}),
	)
	var ticks int
	r := &replayer{mon: mon, clock: clk, interval: time.Minute, onTick: func(scoring.Snapshot) { ticks++ }}

	report, err := r.run(context.Background(), "Incident review", "", tr)
	require.NoError(t, err)

	assert.Equal(t, 3, ticks)
	assert.Equal(t, 1, report.Stats.ActionItems)
	assert.Equal(t, 1, report.Stats.Decisions)
	assert.Equal(t, 2, report.Stats.Questions)
	// the decision resolved the oldest question
	assert.Equal(t, 1, report.Stats.OpenQuestions)
	assert.Equal(t, 1, report.Stats.TopicSwitches)
}

func TestReplayer_UnmarkedSegmentsOnlyIngested(t *testing.T) {
	tr := &transcript.Transcript{Segments: []transcript.Segment{
		{Speaker: "Alice", Text: "the dashboard loads in two seconds now", Start: 0},
		{Speaker: "Bob", Text: "nice, the cache helped a lot", Start: 30 * time.Second},
		{Speaker: "Alice", Text: "We decided to keep it.", Start: time.Minute},
	}}
	clk := newReplayClock(fixedNow)
	mon := monitor.New(monitor.WithClock(clk.Now), monitor.WithConfig(monitor.Config{}))
	r := &replayer{mon: mon, clock: clk, interval: time.Minute}

	report, err := r.run(context.Background(), "", "", tr)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Stats.Fragments)
	assert.Equal(t, 1, report.Stats.Decisions)
	assert.Zero(t, report.Stats.Questions)
	assert.Zero(t, report.Stats.ActionItems)
	assert.Zero(t, report.Stats.TopicSwitches)
}

func TestReplayer_IgnoreSpeakers(t *testing.T) {
	tr := &transcript.Transcript{Segments: []transcript.Segment{
		{Speaker: "Alice", Text: "hello everyone", Start: 0},
		{Speaker: "Bob", Text: "hi there", Start: 150 * time.Second},
	}}
	clk := newReplayClock(fixedNow)
	mon := monitor.New(monitor.WithClock(clk.Now), monitor.WithConfig(monitor.Config{}))
	r := &replayer{mon: mon, clock: clk, interval: time.Minute, ignoreSpeakers: true}

	report, err := r.run(context.Background(), "", "", tr)
	require.NoError(t, err)
	for _, s := range report.Speakers {
		assert.NotEqual(t, "Alice", s.ID)
		assert.NotEqual(t, "Bob", s.ID)
	}
}

func TestReplayClock(t *testing.T) {
	clk := newReplayClock(fixedNow)
	assert.Equal(t, fixedNow, clk.Now())

	assert.Equal(t, fixedNow.Add(time.Minute), clk.Advance(time.Minute))
	// never backwards
	assert.Equal(t, fixedNow.Add(time.Minute), clk.Advance(30*time.Second))
	assert.Equal(t, fixedNow.Add(time.Minute), clk.Now())
}

func TestReplayStart(t *testing.T) {
	now := func() time.Time { return fixedNow }
	fromName := transcript.Info{Start: time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC), HasClock: true}
	dateOnly := transcript.Info{Start: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}

	tests := []struct {
		name    string
		raw     string
		info    transcript.Info
		want    time.Time
		wantErr bool
	}{
		{name: "flag wins", raw: "2024-05-01T08:00:00Z", info: fromName, want: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)},
		{name: "file name clock", info: fromName, want: fromName.Start},
		{name: "date without clock falls back to now", info: dateOnly, want: fixedNow},
		{name: "nothing", want: fixedNow},
		{name: "invalid flag", raw: "08:00", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := replayStart(tt.raw, tt.info, now)
			if tt.wantErr {
				assert.True(t, mqerrors.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v want %v", got, tt.want)
		})
	}
}

func TestSemanticTimeout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Semantic.Timeout = 2 * time.Second
	assert.Equal(t, 2*time.Second, semanticTimeout(cfg))

	cfg.Semantic.Timeout = 0
	cfg.Classification.Timeout = 3 * time.Second
	assert.Equal(t, 3*time.Second, semanticTimeout(cfg))

	cfg.Classification.Timeout = 0
	assert.Equal(t, classifier.DefaultSemanticTimeout, semanticTimeout(cfg))
}

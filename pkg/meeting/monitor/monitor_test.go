package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mqerrors "github.com/otherjamesbrown/meetiq/pkg/errors"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/classifier"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/profile"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/scoring"
	"github.com/otherjamesbrown/meetiq/pkg/observability"
)

var base = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) set(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = base.Add(d)
}

type recordingSink struct {
	mu        sync.Mutex
	name      string
	snapshots []scoring.Snapshot
	reports   []*scoring.Report
	err       error
	closed    bool
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) WriteSnapshot(_ context.Context, snap scoring.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.snapshots = append(s.snapshots, snap)
	return nil
}

func (s *recordingSink) WriteReport(_ context.Context, r *scoring.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.reports = append(s.reports, r)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

type fakeSemantic struct {
	op  *classifier.Opinion
	err error
}

func (f *fakeSemantic) Classify(context.Context, string) (*classifier.Opinion, error) {
	return f.op, f.err
}

type fixture struct {
	m       *Monitor
	clk     *clock
	sink    *recordingSink
	metrics *observability.MeetingMetrics
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	clk := &clock{t: base}
	rec := &recordingSink{name: "memory"}
	metrics := observability.NewMeetingMetrics(prometheus.NewRegistry())
	all := append([]Option{
		WithClock(clk.now),
		WithSinks(rec),
		WithMetrics(metrics),
	}, opts...)
	return &fixture{m: New(all...), clk: clk, sink: rec, metrics: metrics}
}

// feed ingests n neutral fragments rotating over three labelled speakers,
// fifteen seconds apart.
func (f *fixture) feed(n int) {
	speakers := []string{"Ana", "Ben", "Cy"}
	for i := 0; i < n; i++ {
		f.m.Ingest(scoring.Fragment{
			SpeakerID: speakers[i%len(speakers)],
			Text:      strings.TrimSpace(strings.Repeat("note ", 20)),
			At:        base.Add(time.Duration(i) * 15 * time.Second),
		})
	}
}

func await(t *testing.T, m *Monitor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	started, err := m.AwaitClassification(ctx)
	require.NoError(t, err)
	require.True(t, started, "classification should have started")
}

func TestMonitor_AutoSwitchAppliedAtNextTick(t *testing.T) {
	f := newFixture(t)
	_, err := f.m.Start("Daily Standup", "")
	require.NoError(t, err)
	f.feed(12)

	f.clk.set(3 * time.Minute)
	first := f.m.Tick(context.Background())
	require.True(t, first.Ready)
	assert.Equal(t, profile.General, first.ProfileID)
	await(t, f.m)

	res, ok := f.m.Classification()
	require.True(t, ok)
	assert.Equal(t, profile.Standup, res.Type)
	// title 0.9, speaking 0.6 and temporal 0.5 weighted .35/.05/.05
	assert.Equal(t, 82, res.Confidence)

	sug, ok := f.m.Suggestion()
	require.True(t, ok)
	assert.Equal(t, profile.General, sug.From)
	assert.Equal(t, profile.Standup, sug.To)
	assert.False(t, sug.Applied)

	f.clk.set(4 * time.Minute)
	second := f.m.Tick(context.Background())
	assert.Equal(t, profile.Standup, second.ProfileID)
	sug, _ = f.m.Suggestion()
	assert.True(t, sug.Applied)
	assert.False(t, f.m.Session().ProfileLocked)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ProfileSwitches.WithLabelValues("GENERAL", "STANDUP")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ClassificationsTotal.WithLabelValues("STANDUP")))

	f.clk.set(5 * time.Minute)
	f.m.Tick(context.Background())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ClassificationsTotal.WithLabelValues("STANDUP")), "classified once per meeting")
	assert.Len(t, f.sink.snapshots, 3)
}

func TestMonitor_ExplicitProfileIsNeverSwitched(t *testing.T) {
	f := newFixture(t)
	_, err := f.m.Start("Daily Standup", profile.Review)
	require.NoError(t, err)
	f.feed(12)

	f.clk.set(3 * time.Minute)
	f.m.Tick(context.Background())
	await(t, f.m)

	res, ok := f.m.Classification()
	require.True(t, ok)
	assert.Equal(t, profile.Standup, res.Type)
	_, ok = f.m.Suggestion()
	assert.False(t, ok)

	f.clk.set(4 * time.Minute)
	assert.Equal(t, profile.Review, f.m.Tick(context.Background()).ProfileID)
}

func TestMonitor_UserChoiceDropsPendingSwitch(t *testing.T) {
	f := newFixture(t)
	_, err := f.m.Start("Daily Standup", "")
	require.NoError(t, err)
	f.feed(12)

	f.clk.set(3 * time.Minute)
	f.m.Tick(context.Background())
	await(t, f.m)

	require.NoError(t, f.m.SetProfile(profile.Planning))
	f.clk.set(4 * time.Minute)
	assert.Equal(t, profile.Planning, f.m.Tick(context.Background()).ProfileID)
	sug, ok := f.m.Suggestion()
	require.True(t, ok)
	assert.False(t, sug.Applied)

	assert.True(t, mqerrors.IsNotFound(f.m.SetProfile("RETRO")))
}

func TestMonitor_ClassificationPolicy(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		fragments int
		at        time.Duration
	}{
		{"too few fragments", DefaultConfig(), 9, 5 * time.Minute},
		{"too early", DefaultConfig(), 12, 150 * time.Second},
		{"still warming up", DefaultConfig(), 12, 90 * time.Second},
		{"disabled", Config{MinElapsed: time.Minute, MinFragments: 1, SwitchThreshold: 70}, 12, 5 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, WithConfig(tt.cfg))
			_, err := f.m.Start("Daily Standup", "")
			require.NoError(t, err)
			f.feed(tt.fragments)

			f.clk.set(tt.at)
			f.m.Tick(context.Background())
			started, err := f.m.AwaitClassification(context.Background())
			require.NoError(t, err)
			assert.False(t, started)
			_, ok := f.m.Classification()
			assert.False(t, ok)
		})
	}
}

func TestMonitor_SemanticFailureIsCountedNotReturned(t *testing.T) {
	clk := &clock{t: base}
	sem := &fakeSemantic{err: errors.New("rpc error: code = Unavailable desc = connection refused")}
	c := classifier.New(
		classifier.WithClock(clk.now),
		classifier.WithSemantic(sem, time.Second),
	)
	rec := &recordingSink{name: "memory"}
	metrics := observability.NewMeetingMetrics(prometheus.NewRegistry())
	m := New(WithClock(clk.now), WithClassifier(c), WithSinks(rec), WithMetrics(metrics))
	f := &fixture{m: m, clk: clk, sink: rec, metrics: metrics}

	_, err := m.Start("Daily Standup", "")
	require.NoError(t, err)
	f.feed(12)
	clk.set(3 * time.Minute)
	snap := m.Tick(context.Background())
	assert.True(t, snap.Ready)
	await(t, m)

	res, ok := m.Classification()
	require.True(t, ok)
	assert.Equal(t, profile.Standup, res.Type)
	assert.Nil(t, res.Semantic)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CollaboratorErrors.WithLabelValues(mqerrors.StageSemantic, string(mqerrors.ErrModelUnavailable))))
}

func TestMonitor_SemanticOpinionJoinsCombination(t *testing.T) {
	clk := &clock{t: base}
	sem := &fakeSemantic{op: &classifier.Opinion{Type: profile.Standup, Confidence: 0.95}}
	c := classifier.New(
		classifier.WithClock(clk.now),
		classifier.WithSemantic(sem, time.Second),
	)
	m := New(WithClock(clk.now), WithClassifier(c))
	f := &fixture{m: m, clk: clk, sink: &recordingSink{}}

	_, err := m.Start("Daily Standup", "")
	require.NoError(t, err)
	f.feed(12)
	clk.set(3 * time.Minute)
	m.Tick(context.Background())
	await(t, m)

	res, ok := m.Classification()
	require.True(t, ok)
	require.NotNil(t, res.Semantic)
	// (0.315 + 0.2375 + 0.03 + 0.025) / 0.70
	assert.Equal(t, 87, res.Confidence)
}

func TestMonitor_SinkFailureDoesNotStopTick(t *testing.T) {
	failing := &recordingSink{name: "redis", err: fmt.Errorf("redis xadd: dial tcp: connection refused")}
	f := newFixture(t, WithSinks(failing))
	f.feed(3)
	f.clk.set(3 * time.Minute)

	snap := f.m.Tick(context.Background())
	assert.True(t, snap.Ready)
	assert.Len(t, f.sink.snapshots, 1, "healthy sink still written")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SinkWritesTotal.WithLabelValues("redis", "snapshot", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SinkWritesTotal.WithLabelValues("memory", "snapshot", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CollaboratorErrors.WithLabelValues(mqerrors.StageSink, string(mqerrors.ErrSinkUnavailable))))
}

func TestMonitor_End(t *testing.T) {
	f := newFixture(t, WithConfig(Config{}))
	f.feed(6)
	f.m.AddActionItem("send notes", time.Time{})
	f.m.AddDecision("ship friday", time.Time{})
	q := f.m.AddQuestion("who reviews?", time.Time{})
	require.NoError(t, f.m.ResolveQuestion(q))
	f.m.RecordTopicSwitch()

	f.clk.set(time.Minute)
	f.m.Tick(context.Background())
	_, err := f.m.End(context.Background())
	assert.True(t, mqerrors.IsInvalidState(err))
	assert.Empty(t, f.sink.reports)

	f.clk.set(6 * time.Minute)
	snap := f.m.Tick(context.Background())
	report, err := f.m.End(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snap.Overall, report.FinalScore)
	assert.Equal(t, 1, report.Stats.ActionItems)
	assert.Equal(t, 0, report.Stats.OpenQuestions)
	assert.Equal(t, 1, report.Stats.TopicSwitches)
	require.Len(t, f.sink.reports, 1)
	assert.Equal(t, report, f.sink.reports[0])

	require.NoError(t, f.m.Close())
	assert.True(t, f.sink.closed)
}

func TestMonitor_SpeakersRoundTrip(t *testing.T) {
	f := newFixture(t)
	rec := f.m.Ingest(scoring.Fragment{Text: "good morning everyone", At: base})
	require.NoError(t, f.m.RenameSpeaker(rec.ID, "Dana"))
	assert.True(t, mqerrors.IsNotFound(f.m.RenameSpeaker("speaker_7", "Eve")))

	exported := f.m.ExportSpeakers()
	_, err := f.m.Start("next", "")
	require.NoError(t, err)
	assert.Empty(t, f.m.Speakers())

	f.m.ImportSpeakers(exported)
	require.Len(t, f.m.Speakers(), 1)
	assert.Equal(t, "Dana", f.m.Speakers()[0].DisplayName)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FragmentsTotal.WithLabelValues("heuristic")))
}

func TestMonitor_StartResetsState(t *testing.T) {
	f := newFixture(t)
	first := f.m.SessionID()
	f.feed(12)
	f.clk.set(3 * time.Minute)
	f.m.Tick(context.Background())
	await(t, f.m)

	second, err := f.m.Start("fresh", "")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	_, ok := f.m.Classification()
	assert.False(t, ok)
	_, ok = f.m.Suggestion()
	assert.False(t, ok)
	assert.Equal(t, 0, f.m.Stats().Fragments)
}

// Package monitor runs one live meeting: it feeds fragments to the scoring
// engine, publishes each tick to the report sinks and opportunistically
// classifies the meeting in the background.
//
// All Monitor methods are safe for concurrent use. The engine and attributor
// underneath are only ever touched while holding the monitor's mutex.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqerrors "github.com/otherjamesbrown/meetiq/pkg/errors"
	"github.com/otherjamesbrown/meetiq/pkg/logging"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/classifier"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/profile"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/scoring"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/speaker"
	"github.com/otherjamesbrown/meetiq/pkg/observability"
	"github.com/otherjamesbrown/meetiq/pkg/sink"
)

// Config controls opportunistic classification.
type Config struct {
	Classify        bool
	MinElapsed      time.Duration
	MinFragments    int
	SwitchThreshold int
}

// DefaultConfig returns the default classification policy.
func DefaultConfig() Config {
	return Config{
		Classify:        true,
		MinElapsed:      3 * time.Minute,
		MinFragments:    10,
		SwitchThreshold: 70,
	}
}

// Suggestion records an automatic profile change.
type Suggestion struct {
	SessionID  string         `json:"session_id" yaml:"session_id"`
	From       profile.TypeID `json:"from" yaml:"from"`
	To         profile.TypeID `json:"to" yaml:"to"`
	Confidence int            `json:"confidence" yaml:"confidence"`
	Reasoning  string         `json:"reasoning" yaml:"reasoning"`
	At         time.Time      `json:"at" yaml:"at"`
	Applied    bool           `json:"applied" yaml:"applied"`
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithConfig sets the classification policy.
func WithConfig(cfg Config) Option {
	return func(m *Monitor) { m.cfg = cfg }
}

// WithClock sets the time source shared with the engine and classifier.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

// WithTable sets the profile table.
func WithTable(t *profile.Table) Option {
	return func(m *Monitor) {
		if t != nil {
			m.table = t
		}
	}
}

// WithClassifier sets the meeting type classifier. Its table should match
// the monitor's.
func WithClassifier(c *classifier.Classifier) Option {
	return func(m *Monitor) { m.classifier = c }
}

// WithSinks adds report sinks.
func WithSinks(sinks ...sink.Sink) Option {
	return func(m *Monitor) { m.sinks = append(m.sinks, sinks...) }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics *observability.MeetingMetrics) Option {
	return func(m *Monitor) { m.metrics = metrics }
}

// WithTracer sets the tracer.
func WithTracer(t *observability.Tracer) Option {
	return func(m *Monitor) {
		if t != nil {
			m.tracer = t
		}
	}
}

// WithEmitter sets the event emitter.
func WithEmitter(e *observability.EventEmitter) Option {
	return func(m *Monitor) {
		if e != nil {
			m.emitter = e
		}
	}
}

// Monitor orchestrates a single meeting.
type Monitor struct {
	mu sync.Mutex

	cfg        Config
	now        func() time.Time
	log        logging.Logger
	table      *profile.Table
	engine     *scoring.Engine
	classifier *classifier.Classifier
	sinks      []sink.Sink
	metrics    *observability.MeetingMetrics
	tracer     *observability.Tracer
	emitter    *observability.EventEmitter

	attempted  bool
	done       chan struct{}
	cancel     context.CancelFunc
	result     *classifier.Result
	pending    *Suggestion
	suggestion *Suggestion
}

// New returns a Monitor with a fresh GENERAL meeting.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		cfg:     DefaultConfig(),
		now:     time.Now,
		log:     logging.NewNopLogger(),
		table:   profile.Default(),
		tracer:  observability.NewTracer(),
		emitter: observability.NewEventEmitter(nil),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(logging.F("component", "monitor"))
	m.engine = scoring.NewEngine(
		scoring.WithClock(m.now),
		scoring.WithLogger(m.log),
		scoring.WithTable(m.table),
	)
	if m.classifier == nil {
		m.classifier = classifier.New(
			classifier.WithTable(m.table),
			classifier.WithClock(m.now),
			classifier.WithLogger(m.log),
		)
	}
	return m
}

// Start begins a new meeting, discarding the previous one. An empty id lets
// classification choose the profile; any other id pins it.
func (m *Monitor) Start(title string, id profile.TypeID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessionID, err := m.engine.StartMeeting(title, id)
	if err != nil {
		return "", err
	}
	m.stopClassification()
	m.attempted = false
	m.done = nil
	m.result = nil
	m.pending = nil
	m.suggestion = nil
	return sessionID, nil
}

// SessionID returns the current session id.
func (m *Monitor) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.SessionID()
}

// Ingest attributes and records a transcript fragment.
func (m *Monitor) Ingest(f scoring.Fragment) speaker.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	attribution := "heuristic"
	if f.SpeakerID != "" {
		attribution = "label"
	}
	rec := m.engine.Ingest(f)
	if m.metrics != nil {
		m.metrics.RecordFragment(attribution)
		m.metrics.SetSpeakers(m.engine.Attributor().Len())
	}
	return rec
}

// AddActionItem logs an action item.
func (m *Monitor) AddActionItem(text string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engine.AddActionItem(text, at)
}

// AddDecision logs a decision.
func (m *Monitor) AddDecision(text string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engine.AddDecision(text, at)
}

// AddQuestion logs an open question and returns its index.
func (m *Monitor) AddQuestion(text string, at time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.AddQuestion(text, at)
}

// ResolveQuestion marks question i resolved.
func (m *Monitor) ResolveQuestion(i int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.ResolveQuestion(i)
}

// ResolveOldestQuestion resolves the earliest open question, if any.
func (m *Monitor) ResolveOldestQuestion() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.ResolveOldestQuestion()
}

// RecordTopicSwitch counts a topic switch.
func (m *Monitor) RecordTopicSwitch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engine.RecordTopicSwitch()
}

// RenameSpeaker sets a speaker's display name.
func (m *Monitor) RenameSpeaker(id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.RenameSpeaker(id, name)
}

// SetProfile pins the meeting to a profile chosen by the user. A pending
// automatic switch is dropped.
func (m *Monitor) SetProfile(id profile.TypeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.engine.SetProfile(id, true); err != nil {
		return err
	}
	m.pending = nil
	return nil
}

// Speakers returns the speakers seen so far.
func (m *Monitor) Speakers() []speaker.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.Speakers()
}

// ExportSpeakers snapshots the attributor state.
func (m *Monitor) ExportSpeakers() speaker.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.Attributor().Export()
}

// ImportSpeakers restores a previously exported attributor state.
func (m *Monitor) ImportSpeakers(s speaker.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engine.Attributor().Import(s)
}

// Session returns a copy of the session state.
func (m *Monitor) Session() scoring.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.Session()
}

// Stats summarises the meeting so far.
func (m *Monitor) Stats() scoring.Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.Stats()
}

// Classification returns the background classification result, if any.
func (m *Monitor) Classification() (classifier.Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.result == nil {
		return classifier.Result{}, false
	}
	return *m.result, true
}

// Suggestion returns the latest automatic profile suggestion, if any.
func (m *Monitor) Suggestion() (Suggestion, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.suggestion == nil {
		return Suggestion{}, false
	}
	return *m.suggestion, true
}

// Tick applies a pending profile switch, scores the meeting, starts
// background classification when the policy allows and publishes the
// snapshot to every sink. Sink failures are logged, never returned.
func (m *Monitor) Tick(ctx context.Context) scoring.Snapshot {
	m.mu.Lock()
	ctx, span := m.tracer.StartTickSpan(ctx, m.engine.SessionID())
	defer span.End()
	helper := observability.NewSpanHelper(span)

	m.applyPending(ctx)

	start := time.Now()
	snap := m.engine.Tick()
	elapsed := time.Since(start)

	m.maybeClassify(ctx, snap)
	m.mu.Unlock()

	helper.SetScore(snap.Ready, snap.Overall, snap.Trend, string(snap.ProfileID))
	helper.SetDuration(elapsed.Milliseconds())
	m.recordTick(snap, elapsed)

	m.write(ctx, sink.KindSnapshot, func(ctx context.Context, s sink.Sink) error {
		return s.WriteSnapshot(ctx, snap)
	})
	helper.SetSuccess()
	return snap
}

func (m *Monitor) recordTick(snap scoring.Snapshot, elapsed time.Duration) {
	if m.metrics == nil {
		return
	}
	m.metrics.RecordTick(snap.Ready, elapsed.Seconds())
	if !snap.Ready {
		return
	}
	m.metrics.SetScore(string(snap.ProfileID), snap.Overall)
	for _, d := range snap.Dimensions {
		m.metrics.SetDimension(string(d.Name), d.Value)
	}
	for _, in := range snap.Insights {
		m.metrics.RecordInsight(string(in.Severity), in.Dimension)
	}
}

// applyPending switches to a suggested profile. Callers hold m.mu.
func (m *Monitor) applyPending(ctx context.Context) {
	p := m.pending
	if p == nil {
		return
	}
	m.pending = nil

	s := m.engine.Session()
	if s.ProfileLocked || s.ProfileID != p.From {
		m.log.Debug("profile suggestion dropped",
			logging.F("session_id", s.ID),
			logging.F("profile", string(s.ProfileID)),
		)
		return
	}
	if err := m.engine.SetProfile(p.To, false); err != nil {
		m.log.Warn("profile switch failed", logging.Err(err))
		return
	}
	p.Applied = true
	m.suggestion = p

	m.log.Info("meeting profile switched",
		logging.F("session_id", s.ID),
		logging.F("from", string(p.From)),
		logging.F("to", string(p.To)),
		logging.F("confidence", p.Confidence),
	)
	if m.metrics != nil {
		m.metrics.RecordProfileSwitch(string(p.From), string(p.To))
	}
	ev := observability.NewProfileSwitchedEvent(s.ID, string(p.From), string(p.To), p.Confidence)
	if err := m.emitter.EmitProfileSwitched(ctx, ev); err != nil {
		m.log.Warn("failed to emit profile switch", logging.Err(err))
	}
}

// maybeClassify starts the single background classification of this
// meeting. Callers hold m.mu.
func (m *Monitor) maybeClassify(ctx context.Context, snap scoring.Snapshot) {
	if !m.cfg.Classify || m.attempted || !snap.Ready {
		return
	}
	if snap.Stats.Duration < m.cfg.MinElapsed || snap.Stats.Fragments < m.cfg.MinFragments {
		return
	}
	m.attempted = true

	in := m.engine.ClassificationContext()
	sessionID := m.engine.SessionID()
	current := m.engine.Profile().ID

	cctx, cancel := context.WithCancel(logging.ContextWithSession(context.WithoutCancel(ctx), sessionID))
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	go func() {
		defer close(done)
		defer cancel()
		m.classify(cctx, sessionID, current, in)
	}()
}

func (m *Monitor) classify(ctx context.Context, sessionID string, current profile.TypeID, in classifier.Context) {
	ctx, span := m.tracer.StartClassifySpan(ctx, sessionID, len(in.Transcript))
	defer span.End()
	helper := observability.NewSpanHelper(span)

	res := m.classifier.Detect(ctx, in)
	helper.SetClassification(string(res.Type), res.Confidence)
	helper.SetSuccess()

	if res.SemanticErr != nil {
		m.recordCollaboratorError(ctx, sessionID, res.SemanticErr)
		helper.AddEvent("semantic_unavailable")
	}
	if m.metrics != nil {
		m.metrics.RecordClassification(string(res.Type), res.Confidence)
	}
	ev := observability.NewClassifiedEvent(sessionID, string(res.Type), res.Confidence, res.Reasoning, res.Semantic != nil)
	if err := m.emitter.EmitClassified(ctx, ev); err != nil {
		m.log.Warn("failed to emit classification", logging.Err(err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engine.SessionID() != sessionID {
		return
	}
	m.result = &res

	m.log.Info("meeting classified",
		logging.F("session_id", sessionID),
		logging.F("type", string(res.Type)),
		logging.F("confidence", res.Confidence),
		logging.F("reasoning", res.Reasoning),
	)

	if res.Confidence < m.cfg.SwitchThreshold || res.Type == current || m.engine.Session().ProfileLocked {
		return
	}
	sug := &Suggestion{
		SessionID:  sessionID,
		From:       current,
		To:         res.Type,
		Confidence: res.Confidence,
		Reasoning:  res.Reasoning,
		At:         res.DetectedAt,
	}
	m.pending = sug
	m.suggestion = sug
}

// AwaitClassification blocks until the background classification of the
// current meeting has finished. It reports false when none was started.
func (m *Monitor) AwaitClassification(ctx context.Context) (bool, error) {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done == nil {
		return false, nil
	}
	select {
	case <-done:
		return true, nil
	case <-ctx.Done():
		return true, ctx.Err()
	}
}

// stopClassification cancels an in-flight classification. Callers hold m.mu.
func (m *Monitor) stopClassification() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// End generates the final report, cancels any in-flight classification and
// publishes the report to every sink. It fails with ErrInvalidState when the
// meeting never produced a scored tick.
func (m *Monitor) End(ctx context.Context) (*scoring.Report, error) {
	ctx, span := m.tracer.StartReportSpan(ctx, m.SessionID())
	defer span.End()
	helper := observability.NewSpanHelper(span)

	m.mu.Lock()
	m.stopClassification()
	report, err := m.engine.GenerateReport()
	m.mu.Unlock()
	if err != nil {
		helper.SetError(err, "invalid_state", false)
		return nil, fmt.Errorf("ending meeting: %w", err)
	}
	helper.SetScore(true, report.FinalScore, 0, string(report.ProfileID))

	m.write(ctx, sink.KindReport, func(ctx context.Context, s sink.Sink) error {
		return s.WriteReport(ctx, report)
	})
	m.log.Info("meeting ended",
		logging.F("session_id", report.SessionID),
		logging.F("score", report.FinalScore),
		logging.F("profile", string(report.ProfileID)),
	)
	return report, nil
}

// Close closes every sink.
func (m *Monitor) Close() error {
	m.mu.Lock()
	m.stopClassification()
	m.mu.Unlock()
	return sink.Multi(m.sinks).Close()
}

func (m *Monitor) write(ctx context.Context, kind string, fn func(context.Context, sink.Sink) error) {
	for _, s := range m.sinks {
		sctx, span := m.tracer.StartSinkSpan(ctx, s.Name(), kind)
		err := fn(sctx, s)
		status := "ok"
		if err != nil {
			status = "error"
			ce := mqerrors.ClassifyError(err, mqerrors.StageSink)
			observability.NewSpanHelper(span).SetError(err, string(ce.Code), ce.Code.Retryable())
			m.log.Warn("sink write failed",
				logging.F("sink", s.Name()),
				logging.F("kind", kind),
				logging.F("code", string(ce.Code)),
				logging.Err(err),
			)
			m.recordCollaboratorError(sctx, m.SessionID(), ce)
		}
		if m.metrics != nil {
			m.metrics.RecordSinkWrite(s.Name(), kind, status)
		}
		span.End()
	}
}

func (m *Monitor) recordCollaboratorError(ctx context.Context, sessionID string, ce *mqerrors.CollaboratorError) {
	if m.metrics != nil {
		m.metrics.RecordCollaboratorError(ce.Stage, string(ce.Code))
	}
	ev := observability.NewErrorEvent(sessionID, ce.Stage, string(ce.Code), ce.Error(), mqerrors.IsErrorRetryable(ce))
	if err := m.emitter.EmitError(ctx, ev); err != nil {
		m.log.Debug("failed to emit error event", logging.Err(err))
	}
}

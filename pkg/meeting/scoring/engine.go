// Package scoring implements the adaptive meeting quality engine.
//
// The Engine owns one meeting's Session. Each Tick recomputes six dimensions
// from the full session state, weights them by the active profile, tracks the
// trend against the previous ready tick and emits prioritized insights. For the
// first two minutes a tick only reports that the meeting is warming up.
//
// An Engine is not safe for concurrent use; callers serialize access.
package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	mqerrors "github.com/otherjamesbrown/meetiq/pkg/errors"
	"github.com/otherjamesbrown/meetiq/pkg/logging"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/classifier"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/profile"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/speaker"
)

// WarmUp is the session age before scoring starts.
const WarmUp = 2 * time.Minute

// DefaultHistorySize bounds the score history (twelve hours of minute ticks).
const DefaultHistorySize = 720

// State of the engine's warm-up state machine.
type State string

const (
	StateWarmingUp State = "warming_up"
	StateActive    State = "active"
)

// HistoryPoint is one ready tick's overall score.
type HistoryPoint struct {
	Score int       `json:"score" yaml:"score"`
	At    time.Time `json:"at" yaml:"at"`
}

// Snapshot is the result of a tick.
type Snapshot struct {
	SessionID   string           `json:"session_id" yaml:"session_id"`
	At          time.Time        `json:"at" yaml:"at"`
	Ready       bool             `json:"ready" yaml:"ready"`
	Overall     int              `json:"overall" yaml:"overall"`
	// Trend is Overall minus the previous ready tick's Overall. The first
	// ready tick has nothing to compare against and reports 0.
	Trend       int              `json:"trend" yaml:"trend"`
	Dimensions  []DimensionScore `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	Insights    []Insight        `json:"insights" yaml:"insights"`
	ProfileID   profile.TypeID   `json:"profile_id" yaml:"profile_id"`
	ProfileName string           `json:"profile_name" yaml:"profile_name"`
	ProfileIcon string           `json:"profile_icon" yaml:"profile_icon"`
	Stats       Stats            `json:"stats" yaml:"stats"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithTable sets the profile table.
func WithTable(t *profile.Table) Option {
	return func(e *Engine) {
		if t != nil {
			e.table = t
		}
	}
}

// WithHistorySize bounds the score history.
func WithHistorySize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.historySize = n
		}
	}
}

// Engine scores one meeting at a time.
type Engine struct {
	table       *profile.Table
	log         logging.Logger
	now         func() time.Time
	historySize int

	attributor *speaker.Attributor
	session    *Session
	state      State
	history    []HistoryPoint
	lastScore  int
	lastDims   []DimensionScore
	lastTickAt time.Time
}

// NewEngine returns an Engine with a fresh GENERAL session started now.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		table:       profile.Default(),
		log:         logging.NewNopLogger(),
		now:         time.Now,
		historySize: DefaultHistorySize,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.attributor = speaker.New(speaker.WithLogger(e.log))
	e.reset("", profile.General, false)
	return e
}

// StartMeeting resets all state and starts a new session. An empty id selects
// GENERAL; any other id locks the profile against automatic switching.
func (e *Engine) StartMeeting(title string, id profile.TypeID) (string, error) {
	locked := id != ""
	if id == "" {
		id = profile.General
	}
	if !e.table.Has(id) {
		return "", fmt.Errorf("meeting type %s: %w", id, mqerrors.ErrNotFound)
	}
	e.reset(title, id, locked)
	e.log.Info("meeting started",
		logging.F("session_id", e.session.ID),
		logging.F("profile", string(id)),
	)
	return e.session.ID, nil
}

func (e *Engine) reset(title string, id profile.TypeID, locked bool) {
	e.attributor.Reset()
	e.session = &Session{
		ID:            uuid.New().String(),
		Title:         title,
		StartedAt:     e.now(),
		ProfileID:     id,
		ProfileLocked: locked,
	}
	e.state = StateWarmingUp
	e.history = nil
	e.lastScore = 0
	e.lastDims = nil
	e.lastTickAt = time.Time{}
}

// SessionID returns the current session id.
func (e *Engine) SessionID() string {
	return e.session.ID
}

// State returns the warm-up state.
func (e *Engine) State() State {
	return e.state
}

// Session returns a copy of the session.
func (e *Engine) Session() Session {
	return e.session.clone()
}

// Table returns the profile table.
func (e *Engine) Table() *profile.Table {
	return e.table
}

// Profile returns the active profile.
func (e *Engine) Profile() profile.Profile {
	return e.table.Get(e.session.ProfileID)
}

// Ingest appends a fragment. A populated SpeakerID is trusted as an external
// label; otherwise the heuristic attributor decides. It returns the speaker
// the fragment was attributed to.
func (e *Engine) Ingest(f Fragment) speaker.Record {
	if f.At.IsZero() {
		f.At = e.now()
	}

	var rec speaker.Record
	if f.SpeakerID != "" {
		rec = e.attributor.Observe(f.SpeakerID, f.At, f.Text)
	} else {
		rec = e.attributor.Attribute(f.At, f.Text)
	}
	f.SpeakerID = rec.ID

	if n := len(e.session.Fragments); n == 0 || e.session.Fragments[n-1].SpeakerID != rec.ID {
		e.session.Turns++
	}
	e.session.Fragments = append(e.session.Fragments, f)
	return rec
}

// AddActionItem logs an action item.
func (e *Engine) AddActionItem(text string, at time.Time) {
	e.session.ActionItems = append(e.session.ActionItems, Item{Text: text, At: e.stamp(at)})
}

// AddDecision logs a decision.
func (e *Engine) AddDecision(text string, at time.Time) {
	e.session.Decisions = append(e.session.Decisions, Item{Text: text, At: e.stamp(at)})
}

// AddQuestion logs an open question and returns its index.
func (e *Engine) AddQuestion(text string, at time.Time) int {
	e.session.Questions = append(e.session.Questions, Question{Text: text, At: e.stamp(at)})
	return len(e.session.Questions) - 1
}

// ResolveQuestion marks question i resolved.
func (e *Engine) ResolveQuestion(i int) error {
	if i < 0 || i >= len(e.session.Questions) {
		return fmt.Errorf("question %d: %w", i, mqerrors.ErrNotFound)
	}
	e.session.Questions[i].Resolved = true
	return nil
}

// ResolveOldestQuestion resolves the earliest open question, if any.
func (e *Engine) ResolveOldestQuestion() bool {
	for i := range e.session.Questions {
		if !e.session.Questions[i].Resolved {
			e.session.Questions[i].Resolved = true
			return true
		}
	}
	return false
}

// RecordTopicSwitch increments the externally supplied topic-switch counter.
func (e *Engine) RecordTopicSwitch() {
	e.session.TopicSwitches++
}

// SetProfile switches the active profile; the next tick uses its weights.
// Explicit switches lock the profile against automatic reclassification.
func (e *Engine) SetProfile(id profile.TypeID, explicit bool) error {
	if !e.table.Has(id) {
		return fmt.Errorf("meeting type %s: %w", id, mqerrors.ErrNotFound)
	}
	e.session.ProfileID = id
	if explicit {
		e.session.ProfileLocked = true
	}
	e.log.Info("meeting profile changed",
		logging.F("session_id", e.session.ID),
		logging.F("profile", string(id)),
		logging.F("explicit", explicit),
	)
	return nil
}

// RenameSpeaker sets a speaker's display name.
func (e *Engine) RenameSpeaker(id, name string) error {
	return e.attributor.Rename(id, name)
}

// Speakers returns speaker records in order of first appearance.
func (e *Engine) Speakers() []speaker.Record {
	return e.attributor.Speakers()
}

// Attributor exposes the speaker attributor for export and import.
func (e *Engine) Attributor() *speaker.Attributor {
	return e.attributor
}

// History returns the score history, oldest first.
func (e *Engine) History() []HistoryPoint {
	return append([]HistoryPoint(nil), e.history...)
}

func (e *Engine) stamp(at time.Time) time.Time {
	if at.IsZero() {
		return e.now()
	}
	return at
}

// Stats summarises the session as of now.
func (e *Engine) Stats() Stats {
	return e.statsAt(e.now())
}

func (e *Engine) statsAt(now time.Time) Stats {
	d := now.Sub(e.session.StartedAt)
	if d < 0 {
		d = 0
	}
	return Stats{
		Duration:      d,
		Minutes:       int(math.Round(d.Minutes())),
		Speakers:      e.attributor.Len(),
		Fragments:     len(e.session.Fragments),
		ActionItems:   len(e.session.ActionItems),
		Decisions:     len(e.session.Decisions),
		Questions:     len(e.session.Questions),
		OpenQuestions: e.session.unresolved(),
		TopicSwitches: e.session.TopicSwitches,
	}
}

func (e *Engine) inputsAt(stats Stats) inputs {
	speakers := e.attributor.Speakers()
	talk := make([]time.Duration, len(speakers))
	for i, s := range speakers {
		talk[i] = s.TalkTime
	}

	var chars int
	for _, f := range e.session.Fragments {
		chars += utf8.RuneCountInString(f.Text)
	}
	var avg float64
	if n := len(e.session.Fragments); n > 0 {
		avg = float64(chars) / float64(n)
	}

	return inputs{
		minutes:        stats.Duration.Minutes(),
		talk:           talk,
		fragments:      stats.Fragments,
		avgFragmentLen: avg,
		topicSwitches:  stats.TopicSwitches,
		actions:        stats.ActionItems,
		decisions:      stats.Decisions,
		questions:      stats.Questions,
	}
}

// Tick recomputes the snapshot from the full session state. Before WarmUp
// has elapsed it returns a not-ready snapshot with a single info insight.
// Trend is relative to the previous ready tick.
func (e *Engine) Tick() Snapshot {
	now := e.now()
	stats := e.statsAt(now)
	p := e.Profile()

	snap := Snapshot{
		SessionID:   e.session.ID,
		At:          now,
		ProfileID:   p.ID,
		ProfileName: p.Name,
		ProfileIcon: p.Icon,
		Stats:       stats,
	}

	if e.state == StateWarmingUp && stats.Duration < WarmUp {
		snap.Insights = []Insight{warmingUpInsight()}
		return snap
	}
	if e.state == StateWarmingUp {
		e.state = StateActive
		e.log.Debug("scoring active", logging.F("session_id", e.session.ID))
	}

	in := e.inputsAt(stats)
	dims, overall := computeDimensions(in, p.Weights)

	if len(e.history) > 0 {
		snap.Trend = overall - e.lastScore
	}
	e.history = append(e.history, HistoryPoint{Score: overall, At: now})
	if len(e.history) > e.historySize {
		e.history = e.history[len(e.history)-e.historySize:]
	}
	e.lastScore = overall
	e.lastDims = dims
	e.lastTickAt = now

	snap.Ready = true
	snap.Overall = overall
	snap.Dimensions = dims
	snap.Insights = e.insights(now, p, overall, dims, in.minutes)

	e.log.Debug("tick scored",
		logging.F("session_id", e.session.ID),
		logging.F("score", overall),
		logging.F("trend", snap.Trend),
		logging.F("profile", string(p.ID)),
	)
	return snap
}

func (e *Engine) insights(now time.Time, p profile.Profile, overall int, dims []DimensionScore, minutes float64) []Insight {
	var participation int
	for _, d := range dims {
		if d.Name == profile.Participation {
			participation = d.Value
		}
	}
	return generateInsights(insightInputs{
		now:           now,
		profile:       p,
		overall:       overall,
		participation: participation,
		minutes:       minutes,
		speakers:      e.attributor.Speakers(),
		actions:       len(e.session.ActionItems),
		unresolved:    e.session.unresolved(),
	})
}

// ClassificationContext builds a classifier snapshot of the session as of now.
func (e *Engine) ClassificationContext() classifier.Context {
	now := e.now()
	speakers := e.attributor.Speakers()

	talk := make([]time.Duration, len(speakers))
	var total time.Duration
	for i, s := range speakers {
		talk[i] = s.TalkTime
		total += s.TalkTime
	}
	_, dominance, _ := shares(talk)

	var avgTurn time.Duration
	if e.session.Turns > 0 {
		avgTurn = total / time.Duration(e.session.Turns)
	}

	transcript := make([]string, 0, len(e.session.Fragments))
	for _, f := range e.session.Fragments {
		if t := strings.TrimSpace(f.Text); t != "" {
			transcript = append(transcript, t)
		}
	}

	d := now.Sub(e.session.StartedAt)
	if d < 0 {
		d = 0
	}
	return classifier.Context{
		Title:            e.session.Title,
		Transcript:       transcript,
		SpeakerCount:     len(speakers),
		AvgTurnLength:    avgTurn,
		SpeakerDominance: dominance,
		Duration:         d,
		At:               now,
	}
}

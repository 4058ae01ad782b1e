// Package speaker attributes transcript fragments to speaker turns.
//
// Without diarized audio the Attributor falls back to heuristics: silence gaps,
// question/answer and response markers, word-length style shifts and a
// continuity penalty for fast back-to-back monologue fragments. When the audio
// source already labels fragments, Observe bypasses the heuristics.
//
// An Attributor is owned by a single meeting and is not safe for concurrent use.
package speaker

import (
	"fmt"
	"strings"
	"time"

	mqerrors "github.com/otherjamesbrown/meetiq/pkg/errors"
	"github.com/otherjamesbrown/meetiq/pkg/logging"
)

// ContextSize caps the rolling window of closed turns.
const ContextSize = 10

// Record holds the running statistics of one speaker.
type Record struct {
	ID            string        `json:"id" yaml:"id"`
	DisplayName   string        `json:"display_name" yaml:"display_name"`
	TalkTime      time.Duration `json:"talk_time" yaml:"talk_time"`
	Words         int           `json:"words" yaml:"words"`
	Contributions int           `json:"contributions" yaml:"contributions"`
	FirstSeenAt   time.Time     `json:"first_seen_at" yaml:"first_seen_at"`
	LastSpokeAt   time.Time     `json:"last_spoke_at" yaml:"last_spoke_at"`
	AvgWordLength float64       `json:"avg_word_length" yaml:"avg_word_length"`

	// samples counts fragments that contributed to AvgWordLength.
	samples int
}

// Turn is a closed run of fragments from one speaker.
type Turn struct {
	SpeakerID string    `json:"speaker_id"`
	Text      string    `json:"text"`
	At        time.Time `json:"at"`
}

// Option configures an Attributor.
type Option func(*Attributor)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(a *Attributor) {
		if l != nil {
			a.log = l
		}
	}
}

// Attributor tracks speakers and decides where each fragment belongs.
type Attributor struct {
	log logging.Logger

	speakers []*Record
	byID     map[string]*Record
	current  *Record
	count    int

	started  bool
	lastAt   time.Time
	lastText string

	turn    []string
	turnAt  time.Time
	context []Turn
}

// New returns an empty Attributor.
func New(opts ...Option) *Attributor {
	a := &Attributor{
		log:  logging.NewNopLogger(),
		byID: make(map[string]*Record),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Attribute assigns a fragment spoken at `at` to a speaker using the change
// heuristics and returns that speaker's updated record. The first fragment
// always opens speaker 1.
func (a *Attributor) Attribute(at time.Time, text string) Record {
	changed := true
	if a.started {
		gap := at.Sub(a.lastAt)
		if gap < 0 {
			a.log.Warn("fragment out of order", logging.F("gap", gap))
		}
		sig := Evaluate(a.lastText, text, gap)
		changed = sig.Changed()
		a.log.Debug("speaker change evaluated",
			logging.F("change_score", sig.ChangeScore),
			logging.F("changed", changed),
		)
	}

	if changed || a.current == nil {
		a.closeTurn()
		a.current = a.newSpeaker(at)
	}
	return a.record(at, text)
}

// Observe attributes a fragment to an externally supplied speaker label,
// creating the speaker on first sight.
func (a *Attributor) Observe(label string, at time.Time, text string) Record {
	label = strings.TrimSpace(label)
	if label == "" {
		return a.Attribute(at, text)
	}

	r, ok := a.byID[label]
	if !ok {
		a.count++
		r = &Record{ID: label, DisplayName: label, FirstSeenAt: at}
		a.speakers = append(a.speakers, r)
		a.byID[label] = r
		a.log.Debug("speaker observed", logging.F("speaker_id", label))
	}
	if r != a.current {
		a.closeTurn()
		a.current = r
	}
	return a.record(at, text)
}

func (a *Attributor) newSpeaker(at time.Time) *Record {
	a.count++
	id := fmt.Sprintf("speaker_%d", a.count)
	for a.byID[id] != nil {
		a.count++
		id = fmt.Sprintf("speaker_%d", a.count)
	}
	r := &Record{
		ID:          id,
		DisplayName: fmt.Sprintf("Speaker %d", a.count),
		FirstSeenAt: at,
	}
	a.speakers = append(a.speakers, r)
	a.byID[id] = r
	a.log.Debug("new speaker detected", logging.F("speaker_id", id))
	return r
}

// record updates the current speaker's stats and the heuristic state.
func (a *Attributor) record(at time.Time, text string) Record {
	r := a.current
	words := strings.Fields(text)

	r.Contributions++
	r.LastSpokeAt = at
	r.Words += len(words)
	r.TalkTime += EstimateTalkTime(len(words))
	if len(words) > 0 {
		r.AvgWordLength = (r.AvgWordLength*float64(r.samples) + avgWordLength(words)) / float64(r.samples+1)
		r.samples++
	}

	if len(a.turn) == 0 {
		a.turnAt = at
	}
	if t := strings.TrimSpace(text); t != "" {
		a.turn = append(a.turn, t)
	}

	a.started = true
	a.lastAt = at
	a.lastText = text
	return *r
}

func (a *Attributor) closeTurn() {
	if a.current == nil || len(a.turn) == 0 {
		a.turn = a.turn[:0]
		return
	}
	a.context = append(a.context, Turn{
		SpeakerID: a.current.ID,
		Text:      strings.Join(a.turn, " "),
		At:        a.turnAt,
	})
	if len(a.context) > ContextSize {
		a.context = a.context[len(a.context)-ContextSize:]
	}
	a.turn = a.turn[:0]
}

// Rename sets a speaker's display name. Unknown ids leave state unchanged.
func (a *Attributor) Rename(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("speaker name is empty: %w", mqerrors.ErrValidation)
	}
	r, ok := a.byID[id]
	if !ok {
		return fmt.Errorf("speaker %q: %w", id, mqerrors.ErrNotFound)
	}
	r.DisplayName = name
	return nil
}

// Lookup returns the record for id.
func (a *Attributor) Lookup(id string) (Record, bool) {
	r, ok := a.byID[id]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Current returns the active speaker, if any.
func (a *Attributor) Current() (Record, bool) {
	if a.current == nil {
		return Record{}, false
	}
	return *a.current, true
}

// Speakers returns all speakers in order of first appearance.
func (a *Attributor) Speakers() []Record {
	out := make([]Record, len(a.speakers))
	for i, r := range a.speakers {
		out[i] = *r
	}
	return out
}

// Len returns the number of speakers seen.
func (a *Attributor) Len() int {
	return len(a.speakers)
}

// Context returns the most recent closed turns, oldest first.
func (a *Attributor) Context() []Turn {
	out := make([]Turn, len(a.context))
	copy(out, a.context)
	return out
}

// Reset clears all state.
func (a *Attributor) Reset() {
	a.speakers = nil
	a.byID = make(map[string]*Record)
	a.current = nil
	a.count = 0
	a.started = false
	a.lastAt = time.Time{}
	a.lastText = ""
	a.turn = nil
	a.turnAt = time.Time{}
	a.context = nil
}

// Snapshot is the serializable state of an Attributor.
type Snapshot struct {
	Speakers []Record `json:"speakers" yaml:"speakers"`
	Count    int      `json:"count" yaml:"count"`
}

// Export returns a snapshot of all speakers.
func (a *Attributor) Export() Snapshot {
	return Snapshot{Speakers: a.Speakers(), Count: a.count}
}

// Import replaces the current state with a snapshot. The last speaker
// becomes current and heuristics resume from its last contribution.
func (a *Attributor) Import(s Snapshot) {
	a.Reset()
	for i := range s.Speakers {
		r := s.Speakers[i]
		if r.ID == "" {
			continue
		}
		if r.AvgWordLength > 0 {
			r.samples = r.Contributions
		}
		a.speakers = append(a.speakers, &r)
		a.byID[r.ID] = &r
	}
	a.count = s.Count
	if a.count < len(a.speakers) {
		a.count = len(a.speakers)
	}
	if n := len(a.speakers); n > 0 {
		a.current = a.speakers[n-1]
		a.lastAt = a.current.LastSpokeAt
		a.started = true
	}
}

package scoring

import (
	"time"

	"github.com/otherjamesbrown/meetiq/pkg/meeting/profile"
)

// Fragment is one attributed piece of transcript. Fragments are append-only.
type Fragment struct {
	SpeakerID  string    `json:"speaker_id" yaml:"speaker_id"`
	Text       string    `json:"text" yaml:"text"`
	At         time.Time `json:"at" yaml:"at"`
	Confidence float64   `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

// Item is a logged action item or decision.
type Item struct {
	Text string    `json:"text" yaml:"text"`
	At   time.Time `json:"at" yaml:"at"`
}

// Question is a logged question.
type Question struct {
	Text     string    `json:"text" yaml:"text"`
	At       time.Time `json:"at" yaml:"at"`
	Resolved bool      `json:"resolved" yaml:"resolved"`
}

// Session is the mutable state of one meeting.
type Session struct {
	ID            string         `json:"id" yaml:"id"`
	Title         string         `json:"title,omitempty" yaml:"title,omitempty"`
	StartedAt     time.Time      `json:"started_at" yaml:"started_at"`
	Fragments     []Fragment     `json:"fragments" yaml:"fragments"`
	ActionItems   []Item         `json:"action_items" yaml:"action_items"`
	Decisions     []Item         `json:"decisions" yaml:"decisions"`
	Questions     []Question     `json:"questions" yaml:"questions"`
	TopicSwitches int            `json:"topic_switches" yaml:"topic_switches"`
	ProfileID     profile.TypeID `json:"profile_id" yaml:"profile_id"`
	// ProfileLocked is set when the profile was chosen explicitly rather than defaulted.
	ProfileLocked bool `json:"profile_locked" yaml:"profile_locked"`
	// Turns counts speaker changes between consecutive fragments, plus the first.
	Turns int `json:"turns" yaml:"turns"`
}

func (s *Session) clone() Session {
	c := *s
	c.Fragments = append([]Fragment(nil), s.Fragments...)
	c.ActionItems = append([]Item(nil), s.ActionItems...)
	c.Decisions = append([]Item(nil), s.Decisions...)
	c.Questions = append([]Question(nil), s.Questions...)
	return c
}

func (s *Session) unresolved() int {
	var n int
	for _, q := range s.Questions {
		if !q.Resolved {
			n++
		}
	}
	return n
}

// Stats summarises a session.
type Stats struct {
	Duration      time.Duration `json:"duration" yaml:"duration"`
	Minutes       int           `json:"minutes" yaml:"minutes"`
	Speakers      int           `json:"speakers" yaml:"speakers"`
	Fragments     int           `json:"fragments" yaml:"fragments"`
	ActionItems   int           `json:"action_items" yaml:"action_items"`
	Decisions     int           `json:"decisions" yaml:"decisions"`
	Questions     int           `json:"questions" yaml:"questions"`
	OpenQuestions int           `json:"open_questions" yaml:"open_questions"`
	TopicSwitches int           `json:"topic_switches" yaml:"topic_switches"`
}

package transcript

import (
	"regexp"
	"strings"
)

// Markers flags what a single utterance should be logged as. An utterance can
// carry several markers at once.
type Markers struct {
	Action      bool `json:"action,omitempty" yaml:"action,omitempty"`
	Decision    bool `json:"decision,omitempty" yaml:"decision,omitempty"`
	Question    bool `json:"question,omitempty" yaml:"question,omitempty"`
	TopicSwitch bool `json:"topic_switch,omitempty" yaml:"topic_switch,omitempty"`
}

// Any reports whether at least one marker is set.
func (m Markers) Any() bool {
	return m.Action || m.Decision || m.Question || m.TopicSwitch
}

var (
	actionMarker = regexp.MustCompile(`\b(action item|i'll|i will|we'll|you'll|can you|could you|will (send|share|follow up|take|own|write|draft|set up|schedule)|by (end of day|eod|friday|monday|tomorrow|next week)|todo|follow[- ]up)\b`)

	decisionMarker = regexp.MustCompile(`\b(we('ve| have)? decided|let's go with|we'll go with|decision is|agreed|we agree|final decision|approved|settled on|going with)\b`)

	questionOpener = regexp.MustCompile(`^(who|what|when|where|why|how|which|can|could|should|would|do|does|did|is|are|will)\b`)

	topicSwitchMarker = regexp.MustCompile(`\b(moving on|next topic|next item|let's move on|switching gears|on to the next|next on the agenda)\b`)
)

// DetectMarkers classifies one utterance by lexical pattern. It is a cheap
// extraction pass for replayed transcripts, not a language model.
func DetectMarkers(text string) Markers {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return Markers{}
	}
	return Markers{
		Action:      actionMarker.MatchString(t),
		Decision:    decisionMarker.MatchString(t),
		Question:    strings.HasSuffix(t, "?") || (strings.Contains(t, "?") && questionOpener.MatchString(t)),
		TopicSwitch: topicSwitchMarker.MatchString(t),
	}
}

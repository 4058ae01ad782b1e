package classifier

import (
	"strings"
	"time"

	"github.com/otherjamesbrown/meetiq/pkg/meeting/profile"
)

// Source identifies a signal extractor.
type Source string

const (
	SourceTitle        Source = "title"
	SourceConversation Source = "conversation"
	SourceSemantic     Source = "semantic"
	SourceSpeaking     Source = "speaking"
	SourceTemporal     Source = "temporal"
)

// SourceWeights are the fixed per-source combination weights.
type SourceWeights struct {
	Title        float64 `json:"title"`
	Conversation float64 `json:"conversation"`
	Semantic     float64 `json:"semantic"`
	Speaking     float64 `json:"speaking"`
	Temporal     float64 `json:"temporal"`
}

// DefaultSourceWeights returns title .35, conversation .30, semantic .25,
// speaking .05, temporal .05.
func DefaultSourceWeights() SourceWeights {
	return SourceWeights{
		Title:        0.35,
		Conversation: 0.30,
		Semantic:     0.25,
		Speaking:     0.05,
		Temporal:     0.05,
	}
}

// For returns the weight of source s.
func (w SourceWeights) For(s Source) float64 {
	switch s {
	case SourceTitle:
		return w.Title
	case SourceConversation:
		return w.Conversation
	case SourceSemantic:
		return w.Semantic
	case SourceSpeaking:
		return w.Speaking
	case SourceTemporal:
		return w.Temporal
	}
	return 0
}

// Signal is one extractor's partial result. Types absent from Scores
// contribute nothing to the combination.
type Signal struct {
	Source Source                     `json:"source"`
	Scores map[profile.TypeID]float64 `json:"scores"`
}

func newSignal(s Source) Signal {
	return Signal{Source: s, Scores: make(map[profile.TypeID]float64)}
}

// Top returns the highest-scoring type in canonical order, strict > wins.
func (s Signal) Top(order []profile.TypeID) (profile.TypeID, float64, bool) {
	var (
		best  profile.TypeID
		score float64
		found bool
	)
	for _, id := range order {
		if v, ok := s.Scores[id]; ok && v > score {
			best, score, found = id, v, true
		}
	}
	return best, score, found
}

// TitleSignal scores each profile's title keywords: weight × min(matches/2, 1).
func TitleSignal(table *profile.Table, title string) Signal {
	sig := newSignal(SourceTitle)
	lower := strings.ToLower(strings.TrimSpace(title))
	if lower == "" {
		return sig
	}
	for _, p := range table.Profiles() {
		var matches int
		for _, kw := range p.TitleKeywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				matches++
			}
		}
		if matches > 0 && p.KeywordWeight > 0 {
			sig.Scores[p.ID] = p.KeywordWeight * clamp01(float64(matches)/2)
		}
	}
	return sig
}

// ConversationSignal maps lexical features to type scores.
func ConversationSignal(f Features) Signal {
	sig := newSignal(SourceConversation)

	if f.UpdateScore() > 0.6 {
		sig.Scores[profile.Standup] = clamp01(0.7 + float64(f.YesterdayRefs)*0.2)
	}
	if f.QuestionDensity > 0.15 && f.IdeaMarkers > 3 {
		sig.Scores[profile.Brainstorm] = clamp01(0.6 + min(float64(f.IdeaMarkers)/10, 0.3))
	}
	if s := f.DecisionScore(); s > 0.5 {
		sig.Scores[profile.DecisionMaking] = clamp01(0.65 + s*0.25)
	}
	if f.ActionMatches > 5 && f.FutureRefs > 3 {
		sig.Scores[profile.Planning] = 0.7
	}
	if s := f.ProblemScore(); s > 0.6 {
		sig.Scores[profile.ProblemSolving] = clamp01(0.65 + s*0.25)
	}
	if s := f.ClientScore(); s > 0.5 {
		sig.Scores[profile.ClientMeeting] = clamp01(0.6 + s*0.3)
	}
	return sig
}

// ShortTurn is the average turn length below which many speakers suggest a standup.
const ShortTurn = 60 * time.Second

// SpeakingSignal scores speaker dynamics.
func SpeakingSignal(in Context) Signal {
	sig := newSignal(SourceSpeaking)
	if in.SpeakerCount == 2 {
		sig.Scores[profile.OneOnOne] = 0.7
	}
	if in.SpeakerCount >= 3 && in.AvgTurnLength < ShortTurn {
		sig.Scores[profile.Standup] = 0.6
	}
	if in.SpeakerDominance > 0.6 {
		sig.Scores[profile.Review] = 0.5
	}
	return sig
}

// TemporalSignal scores duration and time of day.
func TemporalSignal(in Context) Signal {
	sig := newSignal(SourceTemporal)
	if !in.At.IsZero() {
		h := in.At.Hour()
		if in.Duration < 20*time.Minute && h >= 8 && h <= 11 {
			sig.Scores[profile.Standup] = 0.5
		}
	}
	if in.Duration >= 45*time.Minute && in.Duration <= 90*time.Minute {
		sig.Scores[profile.Brainstorm] = 0.4
	}
	return sig
}

// SemanticSignal turns an external opinion into a single-type signal.
func SemanticSignal(op *Opinion) Signal {
	sig := newSignal(SourceSemantic)
	if op != nil && op.Type != "" && op.Confidence > 0 {
		sig.Scores[op.Type] = clamp01(op.Confidence)
	}
	return sig
}

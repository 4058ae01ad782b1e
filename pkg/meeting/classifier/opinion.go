package classifier

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/otherjamesbrown/meetiq/pkg/meeting/profile"
)

// Opinion is an external semantic classifier's judgment.
type Opinion struct {
	Type       profile.TypeID `json:"type"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning,omitempty"`
}

// Semantic is an optional collaborator that classifies a transcript excerpt.
// Implementations should honour ctx cancellation; a nil opinion means no opinion.
type Semantic interface {
	Classify(ctx context.Context, excerpt string) (*Opinion, error)
}

// Excerpt policy for semantic classification.
const (
	MinExcerptFragments = 5
	ExcerptFragments    = 20
	ExcerptMaxChars     = 2000
)

// Excerpt returns the last ExcerptFragments fragments joined by newlines and
// truncated to ExcerptMaxChars characters. It returns "" when fewer than
// MinExcerptFragments fragments exist or the result is blank.
func Excerpt(fragments []string) string {
	if len(fragments) < MinExcerptFragments {
		return ""
	}
	if len(fragments) > ExcerptFragments {
		fragments = fragments[len(fragments)-ExcerptFragments:]
	}
	s := strings.Join(fragments, "\n")
	if utf8.RuneCountInString(s) > ExcerptMaxChars {
		s = string([]rune(s)[:ExcerptMaxChars])
	}
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}

type rawOpinion struct {
	Type       string          `json:"type"`
	Confidence json.RawMessage `json:"confidence"`
	Reasoning  string          `json:"reasoning"`
}

// ParseOpinion extracts an Opinion from a free-text model response. The first
// JSON object found is used; confidence may be 0..1 or 0..100, numeric or
// quoted. Anything malformed yields (nil, false).
func ParseOpinion(raw string) (*Opinion, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	var r rawOpinion
	if err := json.Unmarshal([]byte(raw[start:end+1]), &r); err != nil {
		return nil, false
	}

	id := profile.Normalize(r.Type)
	if id == "" {
		return nil, false
	}

	conf, ok := parseConfidence(r.Confidence)
	if !ok {
		return nil, false
	}

	return &Opinion{Type: id, Confidence: conf, Reasoning: strings.TrimSpace(r.Reasoning)}, true
}

func parseConfidence(msg json.RawMessage) (float64, bool) {
	s := strings.TrimSpace(string(msg))
	if s == "" || s == "null" {
		return 0, false
	}
	s = strings.Trim(s, `"`)
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	if v > 1 {
		v /= 100
	}
	return clamp01(v), true
}

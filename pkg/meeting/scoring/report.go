package scoring

import (
	"fmt"
	"sort"
	"time"

	mqerrors "github.com/otherjamesbrown/meetiq/pkg/errors"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/profile"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/speaker"
)

// Report is the post-meeting summary.
type Report struct {
	SessionID   string           `json:"session_id" yaml:"session_id"`
	Title       string           `json:"title,omitempty" yaml:"title,omitempty"`
	ProfileID   profile.TypeID   `json:"profile_id" yaml:"profile_id"`
	ProfileName string           `json:"profile_name" yaml:"profile_name"`
	FinalScore  int              `json:"final_score" yaml:"final_score"`
	Rating      profile.Rating   `json:"rating" yaml:"rating"`
	Stats       Stats            `json:"stats" yaml:"stats"`
	Dimensions  []DimensionScore `json:"dimensions" yaml:"dimensions"`
	Strengths   []DimensionScore `json:"strengths" yaml:"strengths"`
	Weaknesses  []DimensionScore `json:"weaknesses" yaml:"weaknesses"`
	History     []HistoryPoint   `json:"history" yaml:"history"`
	Insights    []Insight        `json:"insights" yaml:"insights"`
	Speakers    []speaker.Record `json:"speakers" yaml:"speakers"`
	LastTickAt  time.Time        `json:"last_tick_at" yaml:"last_tick_at"`
	GeneratedAt time.Time        `json:"generated_at" yaml:"generated_at"`
}

// GenerateReport summarises the session using the last ready tick's scores.
// It does not change engine state and fails with ErrInvalidState until a
// ready tick has happened.
func (e *Engine) GenerateReport() (*Report, error) {
	if len(e.lastDims) == 0 {
		return nil, fmt.Errorf("no scored tick yet: %w", mqerrors.ErrInvalidState)
	}

	now := e.now()
	stats := e.statsAt(now)
	p := e.Profile()

	dims := append([]DimensionScore(nil), e.lastDims...)
	ranked := append([]DimensionScore(nil), dims...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Value > ranked[j].Value })

	return &Report{
		SessionID:   e.session.ID,
		Title:       e.session.Title,
		ProfileID:   p.ID,
		ProfileName: p.Name,
		FinalScore:  e.lastScore,
		Rating:      profile.RatingFor(e.lastScore),
		Stats:       stats,
		Dimensions:  dims,
		Strengths:   append([]DimensionScore(nil), ranked[:2]...),
		Weaknesses:  append([]DimensionScore(nil), ranked[len(ranked)-2:]...),
		History:     e.History(),
		Insights:    e.insights(now, p, e.lastScore, dims, stats.Duration.Minutes()),
		Speakers:    e.attributor.Speakers(),
		LastTickAt:  e.lastTickAt,
		GeneratedAt: now,
	}, nil
}

// Package profile holds the meeting type profiles that drive adaptive scoring.
//
// A profile is pure data: dimension weights summing to 1.0, success criteria,
// red flags, banded narrative templates and the title keywords used by the
// classifier. The built-in table is embedded as YAML; a replacement table can
// be loaded from disk without touching engine code.
package profile

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// TypeID identifies a meeting type.
type TypeID string

// Built-in meeting types.
const (
	Standup        TypeID = "STANDUP"
	Brainstorm     TypeID = "BRAINSTORM"
	DecisionMaking TypeID = "DECISION_MAKING"
	OneOnOne       TypeID = "ONE_ON_ONE"
	Planning       TypeID = "PLANNING"
	Review         TypeID = "REVIEW"
	ProblemSolving TypeID = "PROBLEM_SOLVING"
	ClientMeeting  TypeID = "CLIENT_MEETING"
	General        TypeID = "GENERAL"
)

// Normalize upper-cases and trims an id so user and model input match table ids.
func Normalize(s string) TypeID {
	s = strings.TrimSpace(strings.ToUpper(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return TypeID(s)
}

// Dimension is one of the six scored axes of meeting quality.
type Dimension string

const (
	Participation Dimension = "participation"
	Focus         Dimension = "focus"
	Actions       Dimension = "actions"
	Decisions     Dimension = "decisions"
	Engagement    Dimension = "engagement"
	Efficiency    Dimension = "efficiency"
)

// Dimensions returns the six dimensions in their fixed reporting order.
func Dimensions() []Dimension {
	return []Dimension{Participation, Focus, Actions, Decisions, Engagement, Efficiency}
}

// WeightEpsilon is the tolerance for the weight-sum invariant.
const WeightEpsilon = 1e-6

// Weights are the per-dimension weights of a profile.
type Weights struct {
	Participation float64 `yaml:"participation" json:"participation"`
	Focus         float64 `yaml:"focus" json:"focus"`
	Actions       float64 `yaml:"actions" json:"actions"`
	Decisions     float64 `yaml:"decisions" json:"decisions"`
	Engagement    float64 `yaml:"engagement" json:"engagement"`
	Efficiency    float64 `yaml:"efficiency" json:"efficiency"`
}

// Get returns the weight for d, or 0 for an unknown dimension.
func (w Weights) Get(d Dimension) float64 {
	switch d {
	case Participation:
		return w.Participation
	case Focus:
		return w.Focus
	case Actions:
		return w.Actions
	case Decisions:
		return w.Decisions
	case Engagement:
		return w.Engagement
	case Efficiency:
		return w.Efficiency
	}
	return 0
}

// Sum returns the total of all six weights.
func (w Weights) Sum() float64 {
	var total float64
	for _, d := range Dimensions() {
		total += w.Get(d)
	}
	return total
}

// Validate checks every weight is in [0,1] and the total is 1 within WeightEpsilon.
func (w Weights) Validate() error {
	for _, d := range Dimensions() {
		if v := w.Get(d); v < 0 || v > 1 {
			return fmt.Errorf("weight %s=%v out of range [0,1]", d, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > WeightEpsilon {
		return fmt.Errorf("weights sum to %v, want 1.0", sum)
	}
	return nil
}

// Templates are the four score-banded narrative lines of a profile.
type Templates struct {
	Excellent string `yaml:"excellent" json:"excellent"`
	Good      string `yaml:"good" json:"good"`
	NeedsWork string `yaml:"needs_work" json:"needs_work"`
	Poor      string `yaml:"poor" json:"poor"`
}

// For returns the template for band b.
func (t Templates) For(b Band) string {
	switch b {
	case BandExcellent:
		return t.Excellent
	case BandGood:
		return t.Good
	case BandNeedsWork:
		return t.NeedsWork
	default:
		return t.Poor
	}
}

// Profile is an immutable meeting type definition.
type Profile struct {
	ID              TypeID    `yaml:"id" json:"id"`
	Name            string    `yaml:"name" json:"name"`
	Icon            string    `yaml:"icon" json:"icon"`
	Description     string    `yaml:"description" json:"description"`
	TypicalMinutes  int       `yaml:"typical_minutes" json:"typical_minutes"`
	PrimaryGoals    []string  `yaml:"primary_goals" json:"primary_goals"`
	Weights         Weights   `yaml:"weights" json:"weights"`
	SuccessCriteria []string  `yaml:"success_criteria" json:"success_criteria"`
	RedFlags        []string  `yaml:"red_flags" json:"red_flags"`
	Templates       Templates `yaml:"templates" json:"templates"`

	// NeedsWorkAction overrides the suggested action for the needs-work band.
	NeedsWorkAction string `yaml:"needs_work_action" json:"needs_work_action"`

	// TitleKeywords feed the classifier's title signal; KeywordWeight caps it.
	TitleKeywords []string `yaml:"title_keywords,omitempty" json:"title_keywords,omitempty"`
	KeywordWeight float64  `yaml:"keyword_weight,omitempty" json:"keyword_weight,omitempty"`
}

// DisplayName returns the icon-prefixed name.
func (p Profile) DisplayName() string {
	if p.Icon == "" {
		return p.Name
	}
	return p.Icon + " " + p.Name
}

// TypicalDuration returns the expected meeting length.
func (p Profile) TypicalDuration() time.Duration {
	return time.Duration(p.TypicalMinutes) * time.Minute
}

// ContextualInsight returns the narrative template for a score.
func (p Profile) ContextualInsight(score int) string {
	return p.Templates.For(BandFor(score))
}

// Validate checks the profile's invariants.
func (p Profile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("profile id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("profile %s: name is required", p.ID)
	}
	if err := p.Weights.Validate(); err != nil {
		return fmt.Errorf("profile %s: %w", p.ID, err)
	}
	if p.Templates.Excellent == "" || p.Templates.Good == "" || p.Templates.NeedsWork == "" || p.Templates.Poor == "" {
		return fmt.Errorf("profile %s: all four templates are required", p.ID)
	}
	if p.KeywordWeight < 0 || p.KeywordWeight > 1 {
		return fmt.Errorf("profile %s: keyword_weight %v out of range [0,1]", p.ID, p.KeywordWeight)
	}
	return nil
}

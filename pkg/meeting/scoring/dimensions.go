package scoring

import (
	"math"
	"time"

	"github.com/otherjamesbrown/meetiq/pkg/meeting/profile"
)

// DimensionScore is one weighted dimension of a snapshot.
type DimensionScore struct {
	Name   profile.Dimension `json:"name" yaml:"name"`
	Label  string            `json:"label" yaml:"label"`
	Weight float64           `json:"weight" yaml:"weight"`
	Value  int               `json:"value" yaml:"value"`
}

var dimensionLabels = map[profile.Dimension]string{
	profile.Participation: "Participation Balance",
	profile.Focus:         "Clarity & Focus",
	profile.Actions:       "Action-Oriented",
	profile.Decisions:     "Decision Velocity",
	profile.Engagement:    "Engagement Quality",
	profile.Efficiency:    "Time Efficiency",
}

// Label returns the display label of a dimension.
func Label(d profile.Dimension) string {
	if l, ok := dimensionLabels[d]; ok {
		return l
	}
	return string(d)
}

// Scoring thresholds.
const (
	earlyMinutes       = 2.0
	actionsWarmMinutes = 5.0

	maxShare          = 0.40
	dominancePenalty  = 200.0
	voiceBonusPer     = 5
	voiceBonusCap     = 20
	singleSpeaker     = 30
	freeTopicSwitches = 3
	switchPenalty     = 10
	substantialChars  = 100.0
	substantialBonus  = 10
)

// inputs is the session state a scoring pass reads.
type inputs struct {
	minutes        float64
	talk           []time.Duration
	fragments      int
	avgFragmentLen float64
	topicSwitches  int
	actions        int
	decisions      int
	questions      int
}

func clampRound(v float64) int {
	r := int(math.Round(v))
	switch {
	case r < 0:
		return 0
	case r > 100:
		return 100
	}
	return r
}

// shares returns each speaker's share of total talk time and the maximum.
// ok is false when there is no talk time at all.
func shares(talk []time.Duration) (out []float64, top float64, ok bool) {
	var total time.Duration
	for _, t := range talk {
		total += t
	}
	if total <= 0 {
		return nil, 0, false
	}
	out = make([]float64, len(talk))
	for i, t := range talk {
		out[i] = float64(t) / float64(total)
		if out[i] > top {
			top = out[i]
		}
	}
	return out, top, true
}

func participationScore(in inputs) int {
	switch len(in.talk) {
	case 0:
		return 0
	case 1:
		return singleSpeaker
	}
	_, top, ok := shares(in.talk)
	if !ok {
		return 0
	}
	score := 100.0
	if top > maxShare {
		score -= (top - maxShare) * dominancePenalty
	}
	score += float64(min(len(in.talk)*voiceBonusPer, voiceBonusCap))
	return clampRound(score)
}

func focusScore(in inputs) int {
	if in.minutes < earlyMinutes {
		return 100
	}
	score := 100.0
	if in.topicSwitches > freeTopicSwitches {
		score -= float64((in.topicSwitches - freeTopicSwitches) * switchPenalty)
	}
	if in.avgFragmentLen > substantialChars {
		score += substantialBonus
	}
	return clampRound(score)
}

func actionsScore(in inputs) int {
	if in.minutes < actionsWarmMinutes {
		return 50
	}
	perTen := float64(in.actions) / in.minutes * 10
	switch {
	case perTen >= 2:
		return 85
	case perTen >= 1:
		return 70
	case in.actions > 0:
		return 50
	default:
		return 20
	}
}

func decisionsScore(in inputs) int {
	if in.questions == 0 && in.decisions == 0 {
		return 60
	}
	rate := 1.0
	if in.questions > 0 {
		rate = float64(in.decisions) / float64(in.questions)
	}
	score := rate * 100
	if in.decisions >= 3 {
		score += 10
	}
	if in.decisions >= 5 {
		score += 10
	}
	return clampRound(score)
}

func engagementScore(in inputs) int {
	if in.minutes < earlyMinutes {
		return 50
	}
	score := 50.0
	questionRate := float64(in.questions) / in.minutes
	switch {
	case questionRate >= 0.3:
		score += 25
	case questionRate >= 0.1:
		score += 15
	}
	interactionRate := float64(in.fragments) / in.minutes
	if interactionRate > 5 {
		score += 15
	}
	if interactionRate > 10 {
		score += 10
	}
	return clampRound(score)
}

func efficiencyScore(in inputs) int {
	minutes := in.minutes
	if minutes <= 0 {
		minutes = 1
	}
	perMinute := float64(in.actions+in.decisions) / minutes
	switch {
	case perMinute > 0.5:
		return 90
	case perMinute > 0.3:
		return 75
	case perMinute > 0.1:
		return 60
	default:
		return 50
	}
}

// computeDimensions scores all six dimensions and the weighted overall score.
func computeDimensions(in inputs, w profile.Weights) ([]DimensionScore, int) {
	values := map[profile.Dimension]int{
		profile.Participation: participationScore(in),
		profile.Focus:         focusScore(in),
		profile.Actions:       actionsScore(in),
		profile.Decisions:     decisionsScore(in),
		profile.Engagement:    engagementScore(in),
		profile.Efficiency:    efficiencyScore(in),
	}

	dims := make([]DimensionScore, 0, len(values))
	var total float64
	for _, d := range profile.Dimensions() {
		v := values[d]
		weight := w.Get(d)
		total += float64(v) * weight
		dims = append(dims, DimensionScore{Name: d, Label: Label(d), Weight: weight, Value: v})
	}
	return dims, clampRound(total)
}

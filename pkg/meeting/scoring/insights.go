package scoring

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/otherjamesbrown/meetiq/pkg/meeting/profile"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/speaker"
)

// Severity of an insight.
type Severity string

const (
	SeveritySuccess  Severity = "success"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Priority of an insight.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// DimensionOverall marks an insight about the whole meeting.
const DimensionOverall = "overall"

// MaxInsights caps the insights returned per tick.
const MaxInsights = 5

// Insight is a coaching message.
type Insight struct {
	Severity  Severity `json:"severity" yaml:"severity"`
	Dimension string   `json:"dimension" yaml:"dimension"`
	Message   string   `json:"message" yaml:"message"`
	Action    string   `json:"action,omitempty" yaml:"action,omitempty"`
	Priority  Priority `json:"priority" yaml:"priority"`
}

// WarmingUpMessage is the single insight returned before scoring starts.
const WarmingUpMessage = "Meeting IQ will calculate after 2 minutes..."

func warmingUpInsight() Insight {
	return Insight{
		Severity: SeverityInfo,
		Message:  WarmingUpMessage,
		Priority: PriorityLow,
	}
}

const (
	quietAfter     = 10 * time.Minute
	dominantShare  = 0.6
	noActionsAfter = 10.0
	manyActions    = 5
)

func severityFor(b profile.Band) Severity {
	switch b {
	case profile.BandExcellent:
		return SeveritySuccess
	case profile.BandGood:
		return SeverityInfo
	case profile.BandNeedsWork:
		return SeverityWarning
	default:
		return SeverityCritical
	}
}

// SuggestedAction returns the overall action for a score under profile p.
func SuggestedAction(p profile.Profile, score int) string {
	switch profile.BandFor(score) {
	case profile.BandExcellent:
		return "Keep up the excellent work!"
	case profile.BandGood:
		return "You're doing well - small tweaks can make it excellent"
	case profile.BandNeedsWork:
		if p.NeedsWorkAction != "" {
			return p.NeedsWorkAction
		}
		return "Focus on key objectives"
	default:
		return "Meeting needs significant improvements - consider restructuring"
	}
}

// insightInputs is the state insight generation reads.
type insightInputs struct {
	now           time.Time
	profile       profile.Profile
	overall       int
	participation int
	minutes       float64
	speakers      []speaker.Record
	actions       int
	unresolved    int
}

// generateInsights builds the overall insight plus every triggered condition,
// stable-sorted by priority and truncated to MaxInsights.
func generateInsights(in insightInputs) []Insight {
	band := profile.BandFor(in.overall)
	insights := []Insight{{
		Severity:  severityFor(band),
		Dimension: DimensionOverall,
		Message:   fmt.Sprintf("%s: %s", in.profile.DisplayName(), in.profile.Templates.For(band)),
		Action:    SuggestedAction(in.profile, in.overall),
		Priority:  PriorityHigh,
	}}

	if len(in.speakers) > 1 {
		for _, s := range in.speakers {
			silent := in.now.Sub(s.LastSpokeAt)
			if silent > quietAfter {
				insights = append(insights, Insight{
					Severity:  SeverityWarning,
					Dimension: string(profile.Participation),
					Message:   fmt.Sprintf("%s hasn't spoken in %d minutes", s.DisplayName, int(math.Round(silent.Minutes()))),
					Action:    "Consider asking for their input",
					Priority:  PriorityHigh,
				})
				break
			}
		}
	}

	if len(in.speakers) > 2 {
		talk := make([]time.Duration, len(in.speakers))
		for i, s := range in.speakers {
			talk[i] = s.TalkTime
		}
		if sh, _, ok := shares(talk); ok {
			for i, share := range sh {
				if share > dominantShare {
					insights = append(insights, Insight{
						Severity:  SeverityWarning,
						Dimension: string(profile.Participation),
						Message:   fmt.Sprintf("%s has spoken %d%% of the time", in.speakers[i].DisplayName, int(math.Round(share*100))),
						Action:    "Encourage others to contribute",
						Priority:  PriorityMedium,
					})
				}
			}
		}
	}

	if in.minutes > noActionsAfter && in.actions == 0 {
		insights = append(insights, Insight{
			Severity:  SeverityCritical,
			Dimension: string(profile.Actions),
			Message:   fmt.Sprintf("No action items defined in %d minutes", int(math.Round(in.minutes))),
			Action:    `Ask: "What are our next steps?"`,
			Priority:  PriorityHigh,
		})
	}

	if in.unresolved > 0 {
		insights = append(insights, Insight{
			Severity:  SeverityWarning,
			Dimension: string(profile.Decisions),
			Message:   fmt.Sprintf("%d question(s) remain unresolved", in.unresolved),
			Action:    "Review pending items before ending",
			Priority:  PriorityMedium,
		})
	}

	if in.participation > 85 {
		insights = append(insights, Insight{
			Severity:  SeveritySuccess,
			Dimension: string(profile.Participation),
			Message:   "Great participation balance! 🎉",
			Action:    "Keep encouraging diverse viewpoints",
			Priority:  PriorityLow,
		})
	}

	if in.actions >= manyActions {
		insights = append(insights, Insight{
			Severity:  SeveritySuccess,
			Dimension: string(profile.Actions),
			Message:   fmt.Sprintf("%d action items defined!", in.actions),
			Action:    "Excellent progress",
			Priority:  PriorityLow,
		})
	}

	sort.SliceStable(insights, func(i, j int) bool {
		return insights[i].Priority.rank() < insights[j].Priority.rank()
	})
	if len(insights) > MaxInsights {
		insights = insights[:MaxInsights]
	}
	return insights
}

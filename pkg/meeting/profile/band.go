package profile

// Band is a score band used for templates, suggested actions and report ratings.
type Band string

const (
	BandExcellent Band = "excellent"
	BandGood      Band = "good"
	BandNeedsWork Band = "needs_work"
	BandPoor      Band = "poor"
)

// BandFor maps a 0..100 score to its band.
func BandFor(score int) Band {
	switch {
	case score >= 81:
		return BandExcellent
	case score >= 61:
		return BandGood
	case score >= 41:
		return BandNeedsWork
	default:
		return BandPoor
	}
}

// Rating is the display token for a band.
type Rating struct {
	Band  Band   `json:"band" yaml:"band"`
	Label string `json:"label" yaml:"label"`
	Color string `json:"color" yaml:"color"`
	Emoji string `json:"emoji" yaml:"emoji"`
}

// Rating returns the display token for b.
func (b Band) Rating() Rating {
	switch b {
	case BandExcellent:
		return Rating{Band: b, Label: "Excellent", Color: "#10b981", Emoji: "🟢"}
	case BandGood:
		return Rating{Band: b, Label: "Good", Color: "#3b82f6", Emoji: "🔵"}
	case BandNeedsWork:
		return Rating{Band: b, Label: "Needs Work", Color: "#f59e0b", Emoji: "🟠"}
	default:
		return Rating{Band: BandPoor, Label: "Poor", Color: "#ef4444", Emoji: "🔴"}
	}
}

// RatingFor is shorthand for BandFor(score).Rating().
func RatingFor(score int) Rating {
	return BandFor(score).Rating()
}

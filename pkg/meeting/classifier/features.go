package classifier

import (
	"regexp"
	"strings"
)

// Features are lexical counts over a lowercased transcript. They are fuzzy by
// nature; each is a count of non-overlapping pattern matches.
type Features struct {
	UpdateMatches   int     `json:"update_matches" yaml:"update_matches"`
	QuestionDensity float64 `json:"question_density" yaml:"question_density"`
	IdeaMarkers     int     `json:"idea_markers" yaml:"idea_markers"`
	DecisionMatches int     `json:"decision_matches" yaml:"decision_matches"`
	ActionMatches   int     `json:"action_matches" yaml:"action_matches"`
	YesterdayRefs   int     `json:"yesterday_refs" yaml:"yesterday_refs"`
	TodayRefs       int     `json:"today_refs" yaml:"today_refs"`
	FutureRefs      int     `json:"future_refs" yaml:"future_refs"`
	ProblemMatches  int     `json:"problem_matches" yaml:"problem_matches"`
	ClientMatches   int     `json:"client_matches" yaml:"client_matches"`
}

func ratio(n int, d float64) float64 {
	return clamp01(float64(n) / d)
}

// UpdateScore is min(matches/5, 1).
func (f Features) UpdateScore() float64 { return ratio(f.UpdateMatches, 5) }

// DecisionScore is min(matches/4, 1).
func (f Features) DecisionScore() float64 { return ratio(f.DecisionMatches, 4) }

// ActionScore is min(matches/6, 1).
func (f Features) ActionScore() float64 { return ratio(f.ActionMatches, 6) }

// ProblemScore is min(matches/5, 1).
func (f Features) ProblemScore() float64 { return ratio(f.ProblemMatches, 5) }

// ClientScore is min(matches/4, 1).
func (f Features) ClientScore() float64 { return ratio(f.ClientMatches, 4) }

var (
	updatePatterns = compileAll(
		`i (worked|did|completed|finished|shipped)`,
		`yesterday (i|we)`,
		`my update|status update`,
		`blocked (on|by)`,
		`working on`,
		`today (i|we) (will|plan)`,
	)
	ideaPatterns = compileAll(
		`what if`,
		`we could`,
		`how about`,
		`maybe we`,
		`another idea`,
		`building on`,
		`(yes|yeah) and`,
	)
	decisionPatterns = compileAll(
		`let's decide`,
		`we need to choose`,
		`vote on`,
		`should we go with`,
		`final decision`,
		`approve|approval`,
		`(agree|agreed) on`,
	)
	actionPatterns = compileAll(
		`(will|should) (do|create|build|implement)`,
		`action item`,
		`next step`,
		`who (will|should|can)`,
		`by (when|friday|monday|tomorrow)`,
		`assign|owner|responsible`,
	)
	problemPatterns = compileAll(
		`issue|problem|bug`,
		`root cause`,
		`fix|solve|resolve`,
		`why (is|did|does)`,
		`not working`,
		`broken|failing`,
	)
	clientPatterns = compileAll(
		`client|customer`,
		`understand your needs`,
		`how can we help`,
		`demo|showcase`,
		`feedback from you`,
		`your (team|organization)`,
	)

	yesterdayRef  = regexp.MustCompile(`yesterday|last (week|sprint)`)
	todayRef      = regexp.MustCompile(`today|currently|right now`)
	futureRef     = regexp.MustCompile(`tomorrow|next (week|sprint)|will|planning`)
	sentenceSplit = regexp.MustCompile(`[.!?]`)
)

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

func countAll(text string, patterns []*regexp.Regexp) int {
	var n int
	for _, p := range patterns {
		n += len(p.FindAllStringIndex(text, -1))
	}
	return n
}

// ExtractFeatures computes lexical features over transcript fragments.
func ExtractFeatures(fragments []string) Features {
	text := strings.ToLower(strings.Join(fragments, " "))
	if strings.TrimSpace(text) == "" {
		return Features{}
	}

	return Features{
		UpdateMatches:   countAll(text, updatePatterns),
		QuestionDensity: questionDensity(text),
		IdeaMarkers:     countAll(text, ideaPatterns),
		DecisionMatches: countAll(text, decisionPatterns),
		ActionMatches:   countAll(text, actionPatterns),
		YesterdayRefs:   len(yesterdayRef.FindAllStringIndex(text, -1)),
		TodayRefs:       len(todayRef.FindAllStringIndex(text, -1)),
		FutureRefs:      len(futureRef.FindAllStringIndex(text, -1)),
		ProblemMatches:  countAll(text, problemPatterns),
		ClientMatches:   countAll(text, clientPatterns),
	}
}

// questionDensity is question marks per sentence piece.
func questionDensity(text string) float64 {
	questions := strings.Count(text, "?")
	pieces := len(sentenceSplit.Split(text, -1))
	if pieces == 0 {
		return 0
	}
	return float64(questions) / float64(pieces)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractFeatures(t *testing.T) {
	tests := []struct {
		name  string
		text  []string
		check func(t *testing.T, f Features)
	}{
		{
			name: "standup updates",
			text: []string{"Yesterday I worked on the parser.", "Today I will finish tests.", "I'm blocked on review."},
			check: func(t *testing.T, f Features) {
				// "yesterday i", "i worked", "blocked on", "today i will"
				assert.Equal(t, 4, f.UpdateMatches)
				assert.Equal(t, 1, f.YesterdayRefs)
				assert.Equal(t, 1, f.TodayRefs)
			},
		},
		{
			name: "brainstorm ideas",
			text: []string{"What if we tried voice?", "Yeah and we could add video.", "How about a plugin?", "Maybe we ship both?"},
			check: func(t *testing.T, f Features) {
				assert.Equal(t, 5, f.IdeaMarkers)
				assert.Greater(t, f.QuestionDensity, 0.15)
			},
		},
		{
			name: "decision language",
			text: []string{"Let's decide today.", "Should we go with option B?", "We need approval and agreed on scope."},
			check: func(t *testing.T, f Features) {
				assert.Equal(t, 4, f.DecisionMatches)
				assert.Equal(t, 1.0, f.DecisionScore())
			},
		},
		{
			name: "problem language",
			text: []string{"The bug is not working after the deploy.", "Root cause is a broken cache, we need a fix."},
			check: func(t *testing.T, f Features) {
				// bug, not working, root cause, broken, fix
				assert.Equal(t, 5, f.ProblemMatches)
				assert.Equal(t, 1.0, f.ProblemScore())
			},
		},
		{
			name: "client language",
			text: []string{"Thanks for joining, we want to understand your needs.", "How can we help your team with the demo?"},
			check: func(t *testing.T, f Features) {
				// understand your needs, how can we help, your team, demo
				assert.Equal(t, 4, f.ClientMatches)
			},
		},
		{
			name: "empty",
			text: []string{"", "  "},
			check: func(t *testing.T, f Features) {
				assert.Equal(t, Features{}, f)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, ExtractFeatures(tt.text))
		})
	}
}

func TestQuestionDensity(t *testing.T) {
	assert.InDelta(t, 0.5, questionDensity("one? two"), 1e-9)
	assert.Equal(t, 0.0, questionDensity("no questions here"))
}

func TestFeatureScoresClamp(t *testing.T) {
	f := Features{UpdateMatches: 50, DecisionMatches: 2, ActionMatches: 3}
	assert.Equal(t, 1.0, f.UpdateScore())
	assert.Equal(t, 0.5, f.DecisionScore())
	assert.Equal(t, 0.5, f.ActionScore())
}

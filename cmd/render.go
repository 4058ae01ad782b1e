package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/otherjamesbrown/meetiq/pkg/meeting/classifier"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/profile"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/scoring"
)

// formatElapsed renders a meeting offset as m:ss or h:mm:ss.
func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// printSnapshotLine prints one tick of a replay.
func printSnapshotLine(w io.Writer, snap scoring.Snapshot) {
	at := formatElapsed(snap.Stats.Duration)
	if !snap.Ready {
		fmt.Fprintf(w, "%8s  warming up (%d fragments)\n", at, snap.Stats.Fragments)
		return
	}
	rating := profile.RatingFor(snap.Overall)
	fmt.Fprintf(w, "%8s  IQ %3d  %+4d  %-12s %s %s\n",
		at, snap.Overall, snap.Trend, rating.Label, snap.ProfileIcon, snap.ProfileName)
}

// printDetection prints a classification result.
func printDetection(w io.Writer, table *profile.Table, res classifier.Result) {
	p := table.Get(res.Type)
	fmt.Fprintf(w, "Detected type: %s (%d%% confidence)\n", p.DisplayName(), res.Confidence)
	fmt.Fprintf(w, "  %s\n", res.Reasoning)
	if res.Semantic != nil {
		fmt.Fprintf(w, "  Semantic opinion: %s (%.0f%%)\n", res.Semantic.Type, res.Semantic.Confidence*100)
	}
	fmt.Fprintln(w)
}

// printScores prints per-type scores, highest first.
func printScores(w io.Writer, table *profile.Table, scores map[profile.TypeID]float64) {
	ids := make([]profile.TypeID, 0, len(scores))
	for _, id := range table.Order() {
		if _, ok := scores[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.SliceStable(ids, func(i, j int) bool { return scores[ids[i]] > scores[ids[j]] })

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tNAME\tSCORE")
	for _, id := range ids {
		fmt.Fprintf(tw, "%s\t%s\t%.0f\n", id, table.Get(id).Name, scores[id]*100)
	}
	tw.Flush()
}

// printReport prints the final meeting report.
func printReport(w io.Writer, r *scoring.Report) {
	title := r.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Fprintf(w, "Meeting IQ Report: %s\n", title)
	fmt.Fprintf(w, "  Session:   %s\n", r.SessionID)
	fmt.Fprintf(w, "  Profile:   %s (%s)\n", r.ProfileName, r.ProfileID)
	fmt.Fprintf(w, "  Score:     %d %s %s\n", r.FinalScore, r.Rating.Emoji, r.Rating.Label)
	fmt.Fprintf(w, "  Duration:  %s, %d speakers, %d fragments\n",
		formatElapsed(r.Stats.Duration), r.Stats.Speakers, r.Stats.Fragments)
	fmt.Fprintf(w, "  Outcomes:  %d actions, %d decisions, %d/%d questions open, %d topic switches\n",
		r.Stats.ActionItems, r.Stats.Decisions, r.Stats.OpenQuestions, r.Stats.Questions, r.Stats.TopicSwitches)

	fmt.Fprintln(w, "\nDimensions:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, d := range r.Dimensions {
		fmt.Fprintf(tw, "  %s\t%d\tweight %.2f\n", d.Label, d.Value, d.Weight)
	}
	tw.Flush()

	if len(r.Strengths) > 0 {
		fmt.Fprintf(w, "\nStrengths:  %s\n", dimensionLabels(r.Strengths))
	}
	if len(r.Weaknesses) > 0 {
		fmt.Fprintf(w, "Weaknesses: %s\n", dimensionLabels(r.Weaknesses))
	}

	if len(r.Insights) > 0 {
		fmt.Fprintln(w, "\nInsights:")
		for _, in := range r.Insights {
			fmt.Fprintf(w, "  [%s] %s\n", in.Severity, in.Message)
			if in.Action != "" {
				fmt.Fprintf(w, "      -> %s\n", in.Action)
			}
		}
	}

	if len(r.Speakers) > 0 {
		fmt.Fprintln(w, "\nSpeakers:")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  NAME\tTALK\tWORDS\tFRAGMENTS")
		for _, s := range r.Speakers {
			fmt.Fprintf(tw, "  %s\t%s\t%d\t%d\n", s.DisplayName, formatElapsed(s.TalkTime), s.Words, s.Contributions)
		}
		tw.Flush()
	}
}

func dimensionLabels(ds []scoring.DimensionScore) string {
	parts := make([]string, len(ds))
	for i, d := range ds {
		parts[i] = fmt.Sprintf("%s (%d)", d.Label, d.Value)
	}
	return strings.Join(parts, ", ")
}

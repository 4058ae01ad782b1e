package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/meetiq/config"
	"github.com/otherjamesbrown/meetiq/pkg/logging"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/classifier"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/profile"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/scoring"
	"github.com/otherjamesbrown/meetiq/pkg/semantic"
)

// ClassifyCommandDeps holds the dependencies for the classify command.
type ClassifyCommandDeps struct {
	Config     *config.CLIConfig
	LoadConfig func() (*config.CLIConfig, error)
	Logger     logging.Logger
	Now        func() time.Time

	DialSemantic func(cfg config.SemanticConfig, opts *semantic.Options) (SemanticClient, error)
}

// DefaultClassifyDeps returns the default dependencies for production use.
func DefaultClassifyDeps() *ClassifyCommandDeps {
	return &ClassifyCommandDeps{
		LoadConfig:   config.LoadConfig,
		Now:          time.Now,
		DialSemantic: dialSemantic,
	}
}

type classifyOptions struct {
	title          string
	start          string
	format         string
	encoding       string
	output         string
	ignoreSpeakers bool
	semantic       bool
}

// ClassifyResult is the structured output of the classify command.
type ClassifyResult struct {
	Title      string              `json:"title" yaml:"title"`
	Type       profile.TypeID      `json:"type" yaml:"type"`
	Name       string              `json:"name" yaml:"name"`
	Confidence int                 `json:"confidence" yaml:"confidence"`
	Reasoning  string              `json:"reasoning" yaml:"reasoning"`
	Scores     map[string]int      `json:"scores" yaml:"scores"`
	Features   classifier.Features `json:"features" yaml:"features"`
	Semantic   *SemanticOpinion    `json:"semantic,omitempty" yaml:"semantic,omitempty"`
	Speakers   int                 `json:"speakers" yaml:"speakers"`
	Fragments  int                 `json:"fragments" yaml:"fragments"`
	Duration   string              `json:"duration" yaml:"duration"`
}

// SemanticOpinion is the semantic classifier's view in ClassifyResult.
type SemanticOpinion struct {
	Type       profile.TypeID `json:"type" yaml:"type"`
	Confidence int            `json:"confidence" yaml:"confidence"`
	Reasoning  string         `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
}

// NewClassifyCommand creates the classify command.
func NewClassifyCommand(deps *ClassifyCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultClassifyDeps()
	}
	opts := &classifyOptions{}

	cmd := &cobra.Command{
		Use:   "classify <transcript>",
		Short: "Detect the type of a recorded meeting",
		Long: `Classify a whole transcript in one pass.

The title, conversation patterns, speaking dynamics and time of day are
combined into per-type scores; the highest wins. With --semantic the
configured classifier service is asked for an opinion as well. Failures of
the service are reported as warnings and never fail the command.`,
		Example: `  meetiq classify standup.vtt
  meetiq classify call.txt --title "Q3 planning" -o json
  meetiq classify call.vtt --semantic`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClassify(cmd.Context(), deps, opts, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.title, "title", "", "Meeting title (default: from file name)")
	cmd.Flags().StringVar(&opts.start, "start", "", "Wall-clock meeting start (RFC3339)")
	cmd.Flags().StringVar(&opts.format, "format", "", "Transcript format: vtt or txt (default: detect)")
	cmd.Flags().StringVar(&opts.encoding, "encoding", "", "Transcript character encoding (default: utf-8)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output format: text, json, yaml")
	cmd.Flags().BoolVar(&opts.ignoreSpeakers, "ignore-speakers", false, "Ignore speaker labels and attribute heuristically")
	cmd.Flags().BoolVar(&opts.semantic, "semantic", false, "Ask the semantic classifier service")

	return cmd
}

func runClassify(ctx context.Context, deps *ClassifyCommandDeps, opts *classifyOptions, path string, out io.Writer) error {
	cfg, err := resolveConfig(deps.Config, deps.LoadConfig)
	if err != nil {
		return err
	}
	format, err := resolveFormat(cfg, opts.output)
	if err != nil {
		return err
	}
	log := deps.Logger
	if log == nil {
		log = NewLogger(cfg, nil)
	}
	table, err := loadTable(cfg)
	if err != nil {
		return err
	}

	lt, err := readTranscript(path, opts.format, opts.encoding)
	if err != nil {
		return err
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	start, err := replayStart(opts.start, lt.Info, now)
	if err != nil {
		return err
	}
	title := opts.title
	if title == "" {
		title = lt.Info.Title
	}

	clk := newReplayClock(start)
	engine := scoring.NewEngine(
		scoring.WithClock(clk.Now),
		scoring.WithTable(table),
		scoring.WithLogger(log),
	)
	if _, err := engine.StartMeeting(title, ""); err != nil {
		return err
	}
	var end time.Duration
	for _, seg := range lt.Transcript.Segments {
		label := seg.Speaker
		if opts.ignoreSpeakers {
			label = ""
		}
		engine.Ingest(scoring.Fragment{SpeakerID: label, Text: seg.Text, At: clk.Advance(seg.Start)})
		end = maxDuration(end, seg.Start, seg.End)
	}
	clk.Advance(maxDuration(end, lt.Transcript.Duration))
	in := engine.ClassificationContext()

	classifierOpts := []classifier.Option{
		classifier.WithTable(table),
		classifier.WithClock(clk.Now),
		classifier.WithLogger(log),
	}
	if opts.semantic {
		client, err := deps.DialSemantic(cfg.Semantic, &semantic.Options{Table: table, Logger: log})
		if err != nil {
			return err
		}
		defer client.Close()
		classifierOpts = append(classifierOpts, classifier.WithSemantic(client, semanticTimeout(cfg)))
	}

	res := classifier.New(classifierOpts...).Detect(ctx, in)
	if res.SemanticErr != nil {
		log.Warn("semantic classifier unavailable",
			logging.F("code", string(res.SemanticErr.Code)),
			logging.F("retryable", res.SemanticErr.Code.Retryable()),
			logging.F("hint", res.SemanticErr.Code.Hint()),
		)
	}

	if format == config.OutputFormatText {
		fmt.Fprintf(out, "%s\n", title)
		fmt.Fprintf(out, "  %d speakers, %d fragments, %s\n\n", in.SpeakerCount, len(in.Transcript), formatElapsed(in.Duration))
		printDetection(out, table, res)
		printScores(out, table, res.Scores)
		return nil
	}
	return writeStructured(out, format, newClassifyResult(title, table, in, res))
}

func newClassifyResult(title string, table *profile.Table, in classifier.Context, res classifier.Result) *ClassifyResult {
	out := &ClassifyResult{
		Title:      title,
		Type:       res.Type,
		Name:       table.Get(res.Type).Name,
		Confidence: res.Confidence,
		Reasoning:  res.Reasoning,
		Scores:     make(map[string]int, len(res.Scores)),
		Features:   res.Features,
		Speakers:   in.SpeakerCount,
		Fragments:  len(in.Transcript),
		Duration:   in.Duration.String(),
	}
	for id, v := range res.Scores {
		out.Scores[string(id)] = int(v*100 + 0.5)
	}
	if res.Semantic != nil {
		out.Semantic = &SemanticOpinion{
			Type:       res.Semantic.Type,
			Confidence: int(res.Semantic.Confidence*100 + 0.5),
			Reasoning:  res.Semantic.Reasoning,
		}
	}
	return out
}

// Package classifier decides what kind of meeting is taking place.
//
// Independent signal extractors (title keywords, conversation patterns,
// speaker dynamics, duration/time of day and an optional external semantic
// opinion) each score candidate types in [0,1]. The combiner takes a weighted
// average per type over only the sources that scored it, so weights
// renormalize per type. The winner is the highest combined score, ties going
// to the earlier type in the profile table.
package classifier

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	mqerrors "github.com/otherjamesbrown/meetiq/pkg/errors"
	"github.com/otherjamesbrown/meetiq/pkg/logging"
	"github.com/otherjamesbrown/meetiq/pkg/meeting/profile"
)

// Context is the snapshot a classification runs over.
type Context struct {
	Title            string
	Transcript       []string
	SpeakerCount     int
	AvgTurnLength    time.Duration
	SpeakerDominance float64
	Duration         time.Duration
	// At is the wall-clock time of the classification, used for time of day.
	At time.Time
	// Semantic is a pre-fetched opinion. Detect fills it when a collaborator is configured.
	Semantic *Opinion
}

// Result is a classification outcome.
type Result struct {
	Type       profile.TypeID             `json:"type"`
	Confidence int                        `json:"confidence"`
	Scores     map[profile.TypeID]float64 `json:"scores"`
	Reasoning  string                     `json:"reasoning"`
	Signals    []Signal                   `json:"signals,omitempty"`
	Features   Features                   `json:"features"`
	Semantic   *Opinion                   `json:"semantic,omitempty"`
	DetectedAt time.Time                  `json:"detected_at"`

	// SemanticErr is set when the collaborator failed; the result is still valid.
	SemanticErr *mqerrors.CollaboratorError `json:"-"`
}

// HistorySize caps the detection history.
const HistorySize = 50

// DefaultSemanticTimeout bounds a semantic collaborator call.
const DefaultSemanticTimeout = 5 * time.Second

// Option configures a Classifier.
type Option func(*Classifier)

// WithTable sets the profile table (default profile.Default()).
func WithTable(t *profile.Table) Option {
	return func(c *Classifier) {
		if t != nil {
			c.table = t
		}
	}
}

// WithSourceWeights overrides the per-source weights.
func WithSourceWeights(w SourceWeights) Option {
	return func(c *Classifier) { c.weights = w }
}

// WithSemantic configures an external semantic collaborator and its timeout.
func WithSemantic(s Semantic, timeout time.Duration) Option {
	return func(c *Classifier) {
		c.semantic = s
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock sets the time source used to stamp results.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

// Classifier combines signals into a meeting type. It is safe for concurrent
// use; the only mutable state is the detection history.
type Classifier struct {
	table    *profile.Table
	weights  SourceWeights
	semantic Semantic
	timeout  time.Duration
	log      logging.Logger
	now      func() time.Time

	mu      sync.Mutex
	history []Result
}

// New returns a Classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		table:   profile.Default(),
		weights: DefaultSourceWeights(),
		timeout: DefaultSemanticTimeout,
		log:     logging.NewNopLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Table returns the profile table in use.
func (c *Classifier) Table() *profile.Table {
	return c.table
}

// Detect fetches a semantic opinion when a collaborator is configured and the
// excerpt policy allows, then classifies. Collaborator failures are logged
// and recorded on the result but never returned.
func (c *Classifier) Detect(ctx context.Context, in Context) Result {
	var semErr *mqerrors.CollaboratorError
	if c.semantic != nil && in.Semantic == nil {
		in.Semantic, semErr = c.askSemantic(ctx, in.Transcript)
	}
	r := c.Classify(in)
	r.SemanticErr = semErr
	return r
}

func (c *Classifier) askSemantic(ctx context.Context, transcript []string) (*Opinion, *mqerrors.CollaboratorError) {
	excerpt := Excerpt(transcript)
	if excerpt == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	op, err := c.semantic.Classify(ctx, excerpt)
	if err != nil {
		ce := mqerrors.ClassifyError(err, mqerrors.StageSemantic)
		if ce.Code == mqerrors.ErrTimeout {
			ce.Duration = time.Since(start)
			ce.Timeout = c.timeout
		}
		c.log.WithContext(ctx).Warn("semantic classifier failed, continuing without opinion",
			logging.F("code", string(ce.Code)),
			logging.F("retryable", ce.Code.Retryable()),
			logging.Err(err),
		)
		return nil, ce
	}
	if op == nil || !c.table.Has(op.Type) {
		c.log.Debug("semantic classifier returned no usable opinion")
		return nil, nil
	}
	return op, nil
}

// Classify combines all signals for in. It never fails: an empty transcript,
// or no signal firing at all, yields GENERAL at confidence 0.
func (c *Classifier) Classify(in Context) Result {
	result := Result{
		Type:       profile.General,
		Scores:     make(map[profile.TypeID]float64),
		Reasoning:  "insufficient data",
		DetectedAt: c.now(),
	}

	if !hasContent(in.Transcript) {
		c.remember(result)
		return result
	}

	features := ExtractFeatures(in.Transcript)
	signals := []Signal{
		TitleSignal(c.table, in.Title),
		ConversationSignal(features),
		SemanticSignal(in.Semantic),
		SpeakingSignal(in),
		TemporalSignal(in),
	}

	order := c.table.Order()
	var top float64
	for _, id := range order {
		var total, weight float64
		for _, sig := range signals {
			if v, ok := sig.Scores[id]; ok && v > 0 {
				w := c.weights.For(sig.Source)
				total += v * w
				weight += w
			}
		}
		if weight == 0 {
			continue
		}
		score := total / weight
		result.Scores[id] = score
		if score > top {
			top = score
			result.Type = id
		}
	}

	result.Confidence = int(math.Round(top * 100))
	result.Signals = signals
	result.Features = features
	result.Semantic = in.Semantic
	result.Reasoning = reasoning(result.Type, signals, features, in.Semantic, order)

	c.log.Debug("meeting type classified",
		logging.F("meeting_type", string(result.Type)),
		logging.F("confidence", result.Confidence),
	)
	c.remember(result)
	return result
}

func hasContent(fragments []string) bool {
	for _, f := range fragments {
		if strings.TrimSpace(f) != "" {
			return true
		}
	}
	return false
}

func reasoning(winner profile.TypeID, signals []Signal, f Features, op *Opinion, order []profile.TypeID) string {
	var reasons []string

	if top, _, ok := signals[0].Top(order); ok && top == winner {
		reasons = append(reasons, "title match")
	}
	switch winner {
	case profile.Standup:
		if f.UpdateScore() > 0.5 {
			reasons = append(reasons, "update pattern detected")
		}
	case profile.Brainstorm:
		if f.IdeaMarkers > 3 {
			reasons = append(reasons, strconv.Itoa(f.IdeaMarkers)+" idea markers")
		}
	case profile.DecisionMaking:
		if f.DecisionScore() > 0.5 {
			reasons = append(reasons, "decision language")
		}
	}
	if op != nil && op.Type == winner {
		reasons = append(reasons, "semantic analysis confirms")
	}

	if len(reasons) == 0 {
		return "pattern analysis"
	}
	return strings.Join(reasons, ", ")
}

func (c *Classifier) remember(r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, r)
	if len(c.history) > HistorySize {
		c.history = c.history[len(c.history)-HistorySize:]
	}
}

// History returns past results, oldest first.
func (c *Classifier) History() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Result, len(c.history))
	copy(out, c.history)
	return out
}

// Last returns the most recent result.
func (c *Classifier) Last() (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.history) == 0 {
		return Result{}, false
	}
	return c.history[len(c.history)-1], true
}

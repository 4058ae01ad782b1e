package speaker

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Change detection thresholds.
const (
	// ChangeThreshold is the score at which a new turn is declared.
	ChangeThreshold = 3

	longPause       = 1500 * time.Millisecond
	shortPause      = 800 * time.Millisecond
	continuityPause = 600 * time.Millisecond

	// fragments longer than this many characters count as monologue for continuity
	monologueChars = 30
	// minimum answer length after a question
	answerChars = 10
	// minimum words on both sides before comparing word-length style
	styleMinWords = 3
	styleShift    = 2.0
)

var interrogatives = []string{"what", "how", "when", "why", "who", "can you", "could you", "would you"}

var addressingMarkers = []string{
	"thanks", "thank you", "i agree", "i disagree", "actually", "well",
	"yes", "yeah", "no", "sure", "okay", "right", "exactly", "absolutely",
	"i think", "in my opinion", "from my perspective", "let me",
	"i would say", "i believe", "personally", "to answer", "regarding",
	"about that", "on that point", "you mentioned", "as you said",
}

// Signals is the breakdown of a change-score evaluation.
type Signals struct {
	Pause       int  `json:"pause"`
	Answer      bool `json:"answer"`
	Addressing  bool `json:"addressing"`
	StyleShift  bool `json:"style_shift"`
	Continuity  bool `json:"continuity"`
	ChangeScore int  `json:"change_score"`
}

// Changed reports whether the score reaches ChangeThreshold.
func (s Signals) Changed() bool {
	return s.ChangeScore >= ChangeThreshold
}

// Evaluate scores the likelihood that curr was spoken by someone other than
// the speaker of prev, given the silence gap between them.
func Evaluate(prev, curr string, gap time.Duration) Signals {
	if gap < 0 {
		gap = 0
	}

	var s Signals
	switch {
	case gap > longPause:
		s.Pause = 3
	case gap > shortPause:
		s.Pause = 1
	}
	s.ChangeScore = s.Pause

	p := strings.ToLower(strings.TrimSpace(prev))
	c := strings.ToLower(strings.TrimSpace(curr))

	if isQuestionLike(p) && utf8.RuneCountInString(c) > answerChars {
		s.Answer = true
		s.ChangeScore += 2
	}
	if hasAddressingMarker(c) {
		s.Addressing = true
		s.ChangeScore += 2
	}
	if styleShifted(prev, curr) {
		s.StyleShift = true
		s.ChangeScore++
	}
	if gap < continuityPause && utf8.RuneCountInString(curr) > monologueChars && utf8.RuneCountInString(prev) > monologueChars {
		s.Continuity = true
		s.ChangeScore -= 2
	}
	return s
}

// isQuestionLike reports a "?" anywhere, or a sentence that opens with an
// interrogative word.
func isQuestionLike(text string) bool {
	if strings.Contains(text, "?") {
		return true
	}
	sentences := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == ';'
	})
	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		for _, w := range interrogatives {
			if hasTokenPrefix(sentence, w) {
				return true
			}
		}
	}
	return false
}

// hasAddressingMarker matches a marker as a whole-token prefix or as a
// space-delimited substring.
func hasAddressingMarker(text string) bool {
	for _, m := range addressingMarkers {
		if hasTokenPrefix(text, m) || strings.Contains(text, " "+m+" ") {
			return true
		}
	}
	return false
}

func hasTokenPrefix(text, marker string) bool {
	if !strings.HasPrefix(text, marker) {
		return false
	}
	rest := text[len(marker):]
	if rest == "" {
		return true
	}
	r, _ := utf8.DecodeRuneInString(rest)
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func styleShifted(prev, curr string) bool {
	pw := strings.Fields(prev)
	cw := strings.Fields(curr)
	if len(pw) < styleMinWords || len(cw) < styleMinWords {
		return false
	}
	diff := avgWordLength(pw) - avgWordLength(cw)
	if diff < 0 {
		diff = -diff
	}
	return diff > styleShift
}

func avgWordLength(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	var total int
	for _, w := range words {
		total += utf8.RuneCountInString(w)
	}
	return float64(total) / float64(len(words))
}

// WordsPerMinute is the speaking rate used to estimate talk time.
const WordsPerMinute = 150

// EstimateTalkTime converts a word count to speaking time at WordsPerMinute.
func EstimateTalkTime(words int) time.Duration {
	return time.Duration(words) * time.Minute / WordsPerMinute
}

// Package transcript turns meeting transcript files into timed fragments.
//
// Two formats are understood: WebVTT (including Zoom/Teams style numbered
// speaker headers and <v> voice tags) and plain text "m:ss : Speaker : text"
// lines. Files in legacy encodings are decoded with NewDecodingReader.
package transcript

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	mqerrors "github.com/otherjamesbrown/meetiq/pkg/errors"
)

// Formats.
const (
	FormatVTT = "vtt"
	FormatTXT = "txt"
)

// Segment is one timed utterance. Speaker is empty when the source carries
// no label.
type Segment struct {
	Speaker   string        `json:"speaker,omitempty" yaml:"speaker,omitempty"`
	SpeakerID string        `json:"speaker_id,omitempty" yaml:"speaker_id,omitempty"`
	Text      string        `json:"text" yaml:"text"`
	Start     time.Duration `json:"start" yaml:"start"`
	End       time.Duration `json:"end" yaml:"end"`
}

// Transcript is a parsed transcript file.
type Transcript struct {
	Segments []Segment     `json:"segments" yaml:"segments"`
	Speakers []string      `json:"speakers" yaml:"speakers"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Format   string        `json:"format" yaml:"format"`
}

// Texts returns the non-empty segment texts in order.
func (t *Transcript) Texts() []string {
	out := make([]string, 0, len(t.Segments))
	for _, s := range t.Segments {
		if s.Text != "" {
			out = append(out, s.Text)
		}
	}
	return out
}

// Labelled reports whether any segment carries a speaker label.
func (t *Transcript) Labelled() bool {
	return len(t.Speakers) > 0
}

// DetectFormat picks a format from the file extension, falling back to the
// first line of content.
func DetectFormat(name string, head []byte) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".vtt":
		return FormatVTT
	case ".txt":
		return FormatTXT
	}
	if strings.HasPrefix(strings.TrimPrefix(string(head), "\ufeff"), "WEBVTT") {
		return FormatVTT
	}
	return FormatTXT
}

// Parse reads a transcript in the given format.
func Parse(r io.Reader, format string) (*Transcript, error) {
	switch strings.ToLower(format) {
	case FormatVTT:
		return ParseVTT(r)
	case FormatTXT:
		return ParseTXT(r)
	default:
		return nil, fmt.Errorf("transcript format %q: %w", format, mqerrors.ErrValidation)
	}
}

type speakerSet struct {
	seen  map[string]bool
	names []string
}

func (s *speakerSet) add(name string) {
	if name == "" {
		return
	}
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if !s.seen[name] {
		s.seen[name] = true
		s.names = append(s.names, name)
	}
}

func (s *speakerSet) list() []string {
	if s.names == nil {
		return []string{}
	}
	return s.names
}

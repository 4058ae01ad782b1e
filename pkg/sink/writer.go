package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/meetiq/pkg/meeting/scoring"
)

// Writer formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Envelope is one record written by a WriterSink.
type Envelope struct {
	Kind     string            `json:"kind" yaml:"kind"`
	Snapshot *scoring.Snapshot `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`
	Report   *scoring.Report   `json:"report,omitempty" yaml:"report,omitempty"`
}

// WriterSink writes JSON lines or YAML documents to an io.Writer.
type WriterSink struct {
	mu     sync.Mutex
	w      io.Writer
	format string
	yenc   *yaml.Encoder
}

// NewWriterSink returns a sink writing format to w.
func NewWriterSink(w io.Writer, format string) (*WriterSink, error) {
	s := &WriterSink{w: w, format: format}
	switch format {
	case FormatJSON:
	case FormatYAML:
		s.yenc = yaml.NewEncoder(w)
		s.yenc.SetIndent(2)
	default:
		return nil, fmt.Errorf("unsupported sink format: %s", format)
	}
	return s, nil
}

// Name implements Sink.
func (s *WriterSink) Name() string { return "writer" }

// WriteSnapshot implements Sink.
func (s *WriterSink) WriteSnapshot(_ context.Context, snap scoring.Snapshot) error {
	return s.write(Envelope{Kind: KindSnapshot, Snapshot: &snap})
}

// WriteReport implements Sink.
func (s *WriterSink) WriteReport(_ context.Context, r *scoring.Report) error {
	return s.write(Envelope{Kind: KindReport, Report: r})
}

func (s *WriterSink) write(e Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.yenc != nil {
		if err := s.yenc.Encode(e); err != nil {
			return fmt.Errorf("encoding %s: %w", e.Kind, err)
		}
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", e.Kind, err)
	}
	data = append(data, '\n')
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", e.Kind, err)
	}
	return nil
}

// Close flushes a pending YAML document stream.
func (s *WriterSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.yenc != nil {
		return s.yenc.Close()
	}
	return nil
}

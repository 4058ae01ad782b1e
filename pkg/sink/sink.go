// Package sink delivers score snapshots and final reports to their consumers.
//
// Sinks are best-effort collaborators: callers classify and log their errors
// but never let a failing sink stop a meeting.
package sink

import (
	"context"
	"errors"

	"github.com/otherjamesbrown/meetiq/pkg/meeting/scoring"
)

// Record kinds.
const (
	KindSnapshot = "snapshot"
	KindReport   = "report"
)

// Sink receives snapshots and reports.
type Sink interface {
	Name() string
	WriteSnapshot(ctx context.Context, s scoring.Snapshot) error
	WriteReport(ctx context.Context, r *scoring.Report) error
	Close() error
}

// Multi fans writes out to several sinks and joins their errors.
type Multi []Sink

// Name implements Sink.
func (m Multi) Name() string { return "multi" }

// WriteSnapshot implements Sink.
func (m Multi) WriteSnapshot(ctx context.Context, s scoring.Snapshot) error {
	var errs []error
	for _, sk := range m {
		if err := sk.WriteSnapshot(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteReport implements Sink.
func (m Multi) WriteReport(ctx context.Context, r *scoring.Report) error {
	var errs []error
	for _, sk := range m {
		if err := sk.WriteReport(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Sink.
func (m Multi) Close() error {
	var errs []error
	for _, sk := range m {
		if err := sk.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

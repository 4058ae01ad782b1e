// Package errors holds the error vocabulary shared by the meeting packages.
//
// Library operations wrap one of the sentinels below so callers can branch
// with errors.Is, or with the IsX helpers:
//
//	return fmt.Errorf("speaker %q: %w", id, mqerrors.ErrNotFound)
//
// Failures of optional collaborators (the semantic classifier, report sinks)
// are described by CollaboratorError instead; see ClassifyError.
package errors

import "errors"

var (
	// ErrNotFound: unknown speaker id, profile or question.
	ErrNotFound = errors.New("not found")

	// ErrValidation: bad input such as an unknown meeting type, a profile
	// whose weights do not sum to one, or a malformed transcript.
	ErrValidation = errors.New("validation error")

	// ErrInvalidState: the meeting cannot do this yet, e.g. a report
	// requested before the first scored tick.
	ErrInvalidState = errors.New("invalid state")

	// ErrUnavailable: an optional collaborator is not configured or cannot
	// be reached.
	ErrUnavailable = errors.New("unavailable")
)

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation reports whether err wraps ErrValidation.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsInvalidState reports whether err wraps ErrInvalidState.
func IsInvalidState(err error) bool { return errors.Is(err, ErrInvalidState) }

// IsUnavailable reports whether err wraps ErrUnavailable.
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }

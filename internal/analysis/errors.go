package analysis

import (
	"errors"
	"fmt"

	"github.com/BroWo1/factcheck-backend/internal/storage/models"
)

var (
	ErrNotFound          = models.ErrNotFound
	ErrInvalidTransition = errors.New("invalid session status transition")
	ErrRunInProgress     = errors.New("analysis already running for session")
	ErrStepFinalized     = errors.New("step already finalized")
	ErrStepOpen          = errors.New("previous step still in progress")

	// ErrPageSkipped marks a crawl that produced no content for a reason
	// other than a transport failure (robots, status code, content type).
	ErrPageSkipped = errors.New("page skipped")

	// ErrNoSources and ErrNoContent end a traditional run that has no
	// evidence to evaluate.
	ErrNoSources = errors.New("no sources found")
	ErrNoContent = errors.New("content extraction failed: no source yielded content")
)

// ParsingError means a collaborator answered but its text could not be
// decoded. The step continues with its fallback payload.
type ParsingError struct {
	Step int
	Raw  string
	Err  error
}

func (e *ParsingError) Error() string {
	return fmt.Sprintf("step %d: failed to parse collaborator response: %v", e.Step, e.Err)
}

func (e *ParsingError) Unwrap() error { return e.Err }

// ExternalCallError means a collaborator call failed at the transport,
// auth, or service level. It aborts the run.
type ExternalCallError struct {
	Op  string
	Err error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ExternalCallError) Unwrap() error { return e.Err }

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ResourceCleanupError is logged and never changes a run's outcome.
type ResourceCleanupError struct {
	Resource string
	Err      error
}

func (e *ResourceCleanupError) Error() string {
	return fmt.Sprintf("failed to release %s: %v", e.Resource, e.Err)
}

func (e *ResourceCleanupError) Unwrap() error { return e.Err }

func external(op string, err error) error {
	var ext *ExternalCallError
	if errors.As(err, &ext) {
		return err
	}
	return &ExternalCallError{Op: op, Err: err}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

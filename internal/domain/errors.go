package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidPrompt = errors.New("invalid prompt")
)

// MalformedEnhancementError reports an enhancement backend response that
// could not be parsed into the expected variant batch.
type MalformedEnhancementError struct {
	Backend string
	Raw     string
	Err     error
}

func (e *MalformedEnhancementError) Error() string {
	return fmt.Sprintf("enhance: malformed response from %s: %v (raw: %s)", e.Backend, e.Err, Excerpt(e.Raw))
}

func (e *MalformedEnhancementError) Unwrap() error { return e.Err }

// InvalidBatchError reports a variant batch that cannot be ranked, e.g. an
// empty one.
type InvalidBatchError struct {
	Reason string
}

func (e *InvalidBatchError) Error() string {
	return fmt.Sprintf("rank: invalid batch: %s", e.Reason)
}

// GenerationBackendError reports a failed image generation call, carrying the
// backend identity and raw detail so callers can decide whether to retry,
// switch backend, or abort.
type GenerationBackendError struct {
	Backend    string
	StatusCode int
	Detail     string
	Err        error
}

func (e *GenerationBackendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generate: backend %s: %v", e.Backend, e.Err)
	}
	return fmt.Sprintf("generate: backend %s: status %d: %s", e.Backend, e.StatusCode, Excerpt(e.Detail))
}

func (e *GenerationBackendError) Unwrap() error { return e.Err }

// MalformedEvaluationError reports an evaluation backend response without a
// parseable score.
type MalformedEvaluationError struct {
	Backend string
	Raw     string
	Err     error
}

func (e *MalformedEvaluationError) Error() string {
	return fmt.Sprintf("evaluate: malformed response from %s: %v (raw: %s)", e.Backend, e.Err, Excerpt(e.Raw))
}

func (e *MalformedEvaluationError) Unwrap() error { return e.Err }

const excerptLimit = 240

// Excerpt truncates a raw backend response for inclusion in error messages
// and logs.
func Excerpt(s string) string {
	if len(s) <= excerptLimit {
		return s
	}
	return s[:excerptLimit] + "... [truncated]"
}

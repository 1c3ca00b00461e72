package model

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a failure reported by a collaborator or stage.
type ErrorKind string

const (
	// ErrNetwork is a transport-level failure reaching a collaborator.
	ErrNetwork ErrorKind = "NetworkError"
	// ErrService means the collaborator was reachable but reported failure.
	ErrService ErrorKind = "ServiceError"
	// ErrTimeout means a bounded wait was exceeded.
	ErrTimeout ErrorKind = "TimeoutError"
	// ErrParse means a response could not be interpreted after all fallbacks.
	ErrParse ErrorKind = "ParseError"
	// ErrInvalidState means an operation was invoked in the wrong session state.
	ErrInvalidState ErrorKind = "InvalidStateError"
	// ErrValidation means a required input was missing.
	ErrValidation ErrorKind = "ValidationError"
	// ErrUnavailable means the backend health check failed.
	ErrUnavailable ErrorKind = "ServiceUnavailable"
)

// Stage names used in Failure.Stage.
const (
	StageResearch  = "research"
	StageDraft     = "draft"
	StageRank      = "rank"
	StageRefine    = "refine"
	StageArticle   = "article"
	StageWorker    = "worker"
	StageScheduler = "scheduler"
	StageHealth    = "health"
)

// Failure is a typed, serializable error carried inside results.
type Failure struct {
	Kind    ErrorKind `json:"kind"`
	Stage   string    `json:"stage,omitempty"`
	Message string    `json:"message"`

	cause error
}

// NewFailure builds a Failure.
func NewFailure(kind ErrorKind, stage, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

func (f *Failure) Error() string {
	if f.Stage == "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
	return fmt.Sprintf("%s (%s): %s", f.Kind, f.Stage, f.Message)
}

// WithCause records the Go error behind f so errors.Is and errors.As can
// still match it. The cause is not serialized.
func (f *Failure) WithCause(err error) *Failure {
	f.cause = err
	return f
}

func (f *Failure) Unwrap() error { return f.cause }

// Unreachable reports whether the failure means the collaborator could not
// be reached at all, as opposed to rejecting this particular input.
func (f *Failure) Unreachable() bool {
	switch f.Kind {
	case ErrNetwork, ErrTimeout, ErrUnavailable:
		return true
	}
	return false
}

// UserMessage renders a short human-readable message naming the company and stage.
func (f *Failure) UserMessage(company string) string {
	subject := company
	if subject == "" {
		subject = "request"
	}
	if f.Unreachable() {
		return fmt.Sprintf("%s: %s service unreachable, is it running? (%s)", subject, f.Stage, f.Message)
	}
	return fmt.Sprintf("%s: %s returned an error for this input (%s)", subject, f.Stage, f.Message)
}

// ClassifyError maps a Go error from a transport call onto a Failure.
// Deadline errors become TimeoutError; anything else uses fallback.
func ClassifyError(err error, stage string, fallback ErrorKind) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: ErrTimeout, Stage: stage, Message: err.Error()}
	}
	return &Failure{Kind: fallback, Stage: stage, Message: err.Error()}
}

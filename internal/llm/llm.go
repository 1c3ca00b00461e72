// Package llm abstracts the language-model providers used for drafting,
// rewriting and article analysis.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Prompt is a single-turn completion request.
type Prompt struct {
	System      string
	User        string
	MaxTokens   int64
	Temperature *float64
	// JSON asks providers that support it for a JSON response body.
	JSON bool
}

// Usage is provider-neutral token accounting.
type Usage struct {
	InputTokens      int64
	OutputTokens     int64
	CacheWriteTokens int64
	CacheReadTokens  int64
}

// Completion is the text a provider returned.
type Completion struct {
	Text     string
	Provider string
	Model    string
	Usage    Usage
}

// Completer produces one completion per prompt.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (*Completion, error)
}

// StatusError marks a failure the provider reported in an HTTP response, as
// opposed to a transport failure.
type StatusError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Classify maps a Complete error onto the failure taxonomy.
func Classify(err error, stage string) *model.Failure {
	if err == nil {
		return nil
	}
	var f *model.Failure
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewFailure(model.ErrTimeout, stage, "%v", err)
	}
	var se *StatusError
	if errors.As(err, &se) {
		return model.NewFailure(model.ErrService, stage, "%v", err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return model.NewFailure(model.ErrTimeout, stage, "%v", err)
	}
	return model.NewFailure(model.ErrNetwork, stage, "%v", err)
}

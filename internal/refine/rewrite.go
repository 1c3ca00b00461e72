// Package refine edits one stored draft variant at a time from a free-text
// instruction.
package refine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/outreach-cli/internal/llm"
	"github.com/sells-group/outreach-cli/internal/model"
)

const rewriteSystem = `You are an expert B2B sales copywriter. Rewrite the email exactly as the user asks. ` +
	`Keep it professional, concise and specific, with a clear next step. ` +
	`Return the full email with a first line "Subject: ..." followed by the body.`

// RewriteResult is the outcome of a generic rewrite.
type RewriteResult struct {
	Success      bool           `json:"success"`
	RefinedEmail string         `json:"refined_email"`
	Error        *model.Failure `json:"error,omitempty"`
}

// Rewriter asks the language model to rewrite an email per an instruction.
type Rewriter struct {
	llm       llm.Completer
	timeout   time.Duration
	maxTokens int64
}

// NewRewriter creates a Rewriter. A zero timeout means 30s.
func NewRewriter(completer llm.Completer, timeout time.Duration) *Rewriter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Rewriter{llm: completer, timeout: timeout, maxTokens: 1500}
}

// Rewrite returns the rewritten email text. It never returns a Go error.
func (r *Rewriter) Rewrite(ctx context.Context, currentEmail, instruction string) RewriteResult {
	if strings.TrimSpace(instruction) == "" {
		return RewriteResult{Error: model.NewFailure(model.ErrValidation, model.StageRefine, "refinement request is required")}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	temp := 0.6
	comp, err := r.llm.Complete(ctx, llm.Prompt{
		System:      rewriteSystem,
		User:        BuildRewritePrompt(currentEmail, instruction),
		MaxTokens:   r.maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return RewriteResult{Error: llm.Classify(err, model.StageRefine)}
	}
	text := strings.TrimSpace(comp.Text)
	if text == "" {
		return RewriteResult{Error: model.NewFailure(model.ErrParse, model.StageRefine, "empty rewrite")}
	}
	return RewriteResult{Success: true, RefinedEmail: text}
}

// BuildRewritePrompt renders the rewrite request.
func BuildRewritePrompt(currentEmail, instruction string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current email:\n%s\n\n", strings.TrimSpace(currentEmail))
	fmt.Fprintf(&b, "Requested change:\n%s\n\n", strings.TrimSpace(instruction))
	b.WriteString("Guidelines:\n")
	b.WriteString("1. Apply the requested change precisely.\n")
	b.WriteString("2. Keep the product's core value proposition.\n")
	b.WriteString("3. Name concrete benefits and the next step.\n")
	b.WriteString("4. Keep a reasonable length.\n\n")
	b.WriteString("Write the complete improved email including the subject line.")
	return b.String()
}

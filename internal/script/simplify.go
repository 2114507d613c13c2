package script

import (
	"context"
	"fmt"

	"github.com/apresai/storytime/internal/llm"
	"github.com/apresai/storytime/internal/retry"
)

// SimplifyAgeGroup is the audience of the quick path.
const SimplifyAgeGroup = "5-10"

const (
	defaultSimplifyTemperature = 0.7
	defaultSimplifyMaxTokens   = 2000
)

// SimplifyPrompt builds the quick-path system instruction.
func SimplifyPrompt(ageGroup string) string {
	return fmt.Sprintf("Simplify this story for children aged %s. Keep characters and main plot points.\n\n%s", ageGroup, formatRules)
}

// Simplifier rewrites a story as a script in one call, without the expert
// panel.
type Simplifier struct {
	llm      llm.Completer
	opts     Options
	ageGroup string
}

func NewSimplifier(c llm.Completer, opts Options) *Simplifier {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = retry.DefaultMaxAttempts
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaultSimplifyTemperature
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaultSimplifyMaxTokens
	}
	return &Simplifier{llm: c, opts: opts, ageGroup: SimplifyAgeGroup}
}

func (s *Simplifier) Simplify(ctx context.Context, text string) (string, error) {
	req := llm.Request{
		System:      SimplifyPrompt(s.ageGroup),
		User:        text,
		Model:       s.opts.Model,
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	}
	return complete(ctx, s.llm, req, s.opts, "simplify")
}

package script

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/apresai/storytime/internal/experts"
	"github.com/apresai/storytime/internal/llm"
	"github.com/apresai/storytime/internal/retry"
)

// formatRules is the line contract every script-producing prompt carries.
const formatRules = `Format the output with clear speaker attributions (e.g., "NARRATOR:", "CHARACTER_NAME:") and include:
- A narrator for descriptive passages
- Distinct character voices for dialogue
- Clear scene transitions
- Emotional expressions and reactions
- Age-appropriate descriptions

Write exactly one dialogue block per line, as SPEAKER: utterance.
Use NARRATOR as the speaker for every descriptive passage.
Write in the same language as the original story.`

const synthesisTemplate = `Based on the expert analyses, create a simplified version of the text that is appropriate for children aged %s.

Create a simplified version that:
1. Maintains the original story and message
2. Uses age-appropriate language
3. Includes clear dialogue attribution for all characters
4. Is engaging and easy to follow
5. Preserves key themes and lessons

%s

Expert Analyses:
%s`

// Options tunes the completion calls made by Synthesizer and Simplifier.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	// MaxAttempts bounds the retry loop; values below 1 mean one attempt.
	MaxAttempts int
	Logger      *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// SynthesisPrompt builds the system instruction for turning a story plus
// its analysis into a script.
func SynthesisPrompt(analysis experts.Analysis, ageGroup string) (string, error) {
	data, err := json.MarshalIndent(analysis.Steps(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal analyses: %w", err)
	}
	return fmt.Sprintf(synthesisTemplate, ageGroup, formatRules, data), nil
}

// Synthesizer writes one speaker-attributed script from a story and its
// expert analysis.
type Synthesizer struct {
	llm  llm.Completer
	opts Options
}

func NewSynthesizer(c llm.Completer, opts Options) *Synthesizer {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = retry.DefaultMaxAttempts
	}
	return &Synthesizer{llm: c, opts: opts}
}

// Synthesize returns the script text. The model output is passed through
// unvalidated, blank answers included.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, analysis experts.Analysis, ageGroup string) (string, error) {
	if ageGroup == "" {
		ageGroup = experts.DefaultAgeGroup
	}
	system, err := SynthesisPrompt(analysis, ageGroup)
	if err != nil {
		return "", err
	}
	req := llm.Request{
		System:      system,
		User:        text,
		Model:       s.opts.Model,
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	}
	return complete(ctx, s.llm, req, s.opts, "synthesize")
}

// complete runs one completion, retrying only when the call itself fails.
func complete(ctx context.Context, c llm.Completer, req llm.Request, opts Options, op string) (string, error) {
	log := opts.logger()
	start := time.Now()

	res := retry.Fixed(ctx, opts.MaxAttempts, func(ctx context.Context, n int) retry.Result[string] {
		r := retry.From(c.Complete(ctx, req))
		if !r.IsOk() {
			log.Warn("script completion attempt failed", "op", op, "attempt", n, "max_attempts", opts.MaxAttempts, "error", r.Error())
		}
		return r
	})

	out, err := res.Unwrap()
	if err != nil {
		return "", err
	}
	log.Info("script completion done",
		"op", op,
		"chars", len(out),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

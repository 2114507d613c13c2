package experts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/apresai/storytime/internal/llm"
	"github.com/apresai/storytime/internal/observability"
	"github.com/apresai/storytime/internal/progress"
	"go.opentelemetry.io/otel/attribute"
)

const systemTemplate = `You are a %s specializing in children's literature. Your task is to analyze the following text for children aged %s.

%s

Provide your analysis in a clear, structured format. Focus on making the content accessible and engaging for children.`

// SystemPrompt builds the instruction sent for one role.
func SystemPrompt(r Role, ageGroup string) string {
	return fmt.Sprintf(systemTemplate, r.Name, ageGroup, r.Prompt)
}

// Result is one role's contribution. On failure Text holds "Error: <msg>".
type Result struct {
	RoleID   string `json:"role_id"`
	RoleName string `json:"role"`
	Text     string `json:"analysis"`
	Err      error  `json:"-"`
}

// Failed reports whether the role's call failed.
func (r Result) Failed() bool { return r.Err != nil }

// Analysis holds one Result per role, in panel order.
type Analysis []Result

// Step is the {role, analysis} pair embedded in the script prompt.
type Step struct {
	Role     string `json:"role"`
	Analysis string `json:"analysis"`
}

// Steps flattens the analysis for prompt embedding. Failed roles are left
// out; their error markers stay in the Analysis itself.
func (a Analysis) Steps() []Step {
	steps := make([]Step, 0, len(a))
	for _, r := range a {
		if r.Failed() {
			continue
		}
		steps = append(steps, Step{Role: r.RoleName, Analysis: r.Text})
	}
	return steps
}

// Failures counts roles whose call failed.
func (a Analysis) Failures() int {
	n := 0
	for _, r := range a {
		if r.Failed() {
			n++
		}
	}
	return n
}

// Options tunes the completion calls made for each role.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Logger      *slog.Logger
	Progress    progress.Callback
}

// Analyzer consults every role, sequentially, in panel order.
type Analyzer struct {
	llm   llm.Completer
	roles []Role
	opts  Options
	log   *slog.Logger
}

func NewAnalyzer(c llm.Completer, opts Options) *Analyzer {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{llm: c, roles: Roles(), opts: opts, log: log}
}

// Analyze runs the whole panel over text. Individual role failures are
// captured in the returned Analysis; the only error returned is a context
// error, with the roles completed so far.
func (a *Analyzer) Analyze(ctx context.Context, text, ageGroup string) (Analysis, error) {
	if ageGroup == "" {
		ageGroup = DefaultAgeGroup
	}
	start := time.Now()
	out := make(Analysis, 0, len(a.roles))

	for i, role := range a.roles {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		progress.Emit(a.opts.Progress, progress.StepEvent(progress.StageAnalysis,
			fmt.Sprintf("Consulting %s", role.Name), i, len(a.roles), 0.05, 0.45, start))

		callStart := time.Now()
		callCtx, span := observability.StartSpan(ctx, "expert.analyze", attribute.String("role", role.ID))
		reply, err := a.llm.Complete(callCtx, llm.Request{
			System:      SystemPrompt(role, ageGroup),
			User:        text,
			Model:       a.opts.Model,
			Temperature: a.opts.Temperature,
			MaxTokens:   a.opts.MaxTokens,
		})
		observability.EndSpan(span, err)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			a.log.Warn("expert analysis failed", "role", role.ID, "error", err)
			out = append(out, Result{
				RoleID:   role.ID,
				RoleName: role.Name,
				Text:     "Error: " + err.Error(),
				Err:      err,
			})
			continue
		}

		a.log.Debug("expert analysis complete",
			"role", role.ID,
			"chars", len(reply),
			"duration_ms", time.Since(callStart).Milliseconds(),
		)
		out = append(out, Result{RoleID: role.ID, RoleName: role.Name, Text: reply})
	}

	a.log.Info("expert panel complete",
		"roles", len(out),
		"failures", out.Failures(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

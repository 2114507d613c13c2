// Package pipeline wires ingest, expert analysis, script synthesis and
// narration into the flows exposed by the CLI and the MCP server.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/apresai/storytime/internal/assembly"
	"github.com/apresai/storytime/internal/audiobook"
	"github.com/apresai/storytime/internal/experts"
	"github.com/apresai/storytime/internal/ingest"
	"github.com/apresai/storytime/internal/llm"
	"github.com/apresai/storytime/internal/progress"
	"github.com/apresai/storytime/internal/script"
	"github.com/apresai/storytime/internal/tts"
)

// Stage names used in errors and failures.
const (
	StageConfig     = "config"
	StageIngest     = "ingest"
	StageAnalysis   = "analysis"
	StageScript     = "script"
	StageSimplify   = "simplify"
	StageTTS        = "tts"
	StageAssembly   = "assembly"
	StagePersisting = "save"
)

type PipelineError struct {
	Stage   string
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Stage, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Config holds the collaborators of a Pipeline. LLM drives the expert panel
// and the synthesizer, SimplifyLLM the quick path (LLM when nil) and Speech
// every narration.
type Config struct {
	LLM         llm.Completer
	SimplifyLLM llm.Completer
	Speech      tts.Provider
	Voices      tts.VoiceMap

	Analysis experts.Options
	Script   script.Options
	Simplify script.Options

	Logger   *slog.Logger
	Progress progress.Callback
}

type Pipeline struct {
	cfg         Config
	log         *slog.Logger
	analyzer    *experts.Analyzer
	synthesizer *script.Synthesizer
	simplifier  *script.Simplifier
}

func New(cfg Config) *Pipeline {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{cfg: cfg, log: log}

	if cfg.LLM != nil {
		a := cfg.Analysis
		a.Logger, a.Progress = log, cfg.Progress
		p.analyzer = experts.NewAnalyzer(cfg.LLM, a)

		s := cfg.Script
		s.Logger = log
		p.synthesizer = script.NewSynthesizer(cfg.LLM, s)
	}

	simplifyLLM := cfg.SimplifyLLM
	if simplifyLLM == nil {
		simplifyLLM = cfg.LLM
	}
	if simplifyLLM != nil {
		s := cfg.Simplify
		s.Logger = log
		p.simplifier = script.NewSimplifier(simplifyLLM, s)
	}
	return p
}

// WithProgress returns a copy of p reporting to cb.
func (p *Pipeline) WithProgress(cb progress.Callback) *Pipeline {
	cfg := p.cfg
	cfg.Progress = cb
	return New(cfg)
}

// Analyze runs the expert panel and the synthesizer. A synthesis failure
// yields a Failure that still carries the finished analysis.
func (p *Pipeline) Analyze(ctx context.Context, text, ageGroup string) Outcome {
	if p.analyzer == nil {
		return fail(StageConfig, "analysis is not configured", nil, nil)
	}
	if ageGroup == "" {
		ageGroup = experts.DefaultAgeGroup
	}

	analysis, err := p.analyzer.Analyze(ctx, text, ageGroup)
	if err != nil {
		return fail(StageAnalysis, "Error in analysis", err, analysis)
	}
	if n := analysis.Failures(); n > 0 {
		p.log.Warn("expert analysis incomplete", "failed_roles", n, "roles", len(analysis))
	}

	progress.Emit(p.cfg.Progress, progress.NewEvent(progress.StageScript, "Writing script", 0.45, time.Now()))
	scriptText, err := p.synthesizer.Synthesize(ctx, text, analysis, ageGroup)
	if err != nil {
		return fail(StageScript, "Error in simplification", err, analysis)
	}

	lines := script.Parse(scriptText)
	p.review(lines)

	return &StoryResult{
		Analysis:       analysis,
		SimplifiedText: scriptText,
		Characters:     script.Characters(lines),
		TargetAgeGroup: ageGroup,
	}
}

// Narrate voices an existing script into outDir.
func (p *Pipeline) Narrate(ctx context.Context, scriptText, outDir string) Outcome {
	if p.cfg.Speech == nil {
		return fail(StageConfig, "speech synthesis is not configured", nil, nil)
	}
	lines := script.Parse(scriptText)
	if len(lines) == 0 {
		p.log.Warn("script has no lines to narrate")
	}

	asm := audiobook.NewAssembler(p.cfg.Speech, audiobook.Options{
		OutputDir: outDir,
		Voices:    p.cfg.Voices,
		Logger:    p.log,
		Progress:  p.cfg.Progress,
	})
	artifacts, err := asm.AssembleLines(ctx, lines)
	if err != nil {
		return fail(StageTTS, err.Error(), err, nil)
	}

	return &AudiobookResult{
		SimplifiedText: scriptText,
		AudioFiles:     audiobook.Paths(artifacts),
		Characters:     script.Characters(lines),
	}
}

// GenerateAudiobook is the quick path: simplify the story straight into a
// script and narrate it.
func (p *Pipeline) GenerateAudiobook(ctx context.Context, text, outDir string) Outcome {
	if p.simplifier == nil {
		return fail(StageConfig, "simplification is not configured", nil, nil)
	}

	progress.Emit(p.cfg.Progress, progress.NewEvent(progress.StageScript, "Simplifying story", 0.2, time.Now()))
	scriptText, err := p.simplifier.Simplify(ctx, text)
	if err != nil {
		return fail(StageSimplify, err.Error(), err, nil)
	}
	p.review(script.Parse(scriptText))

	return p.Narrate(ctx, scriptText, outDir)
}

// Generate is the full path: analysis, synthesis, then narration.
func (p *Pipeline) Generate(ctx context.Context, text, ageGroup, outDir string) Outcome {
	out := p.Analyze(ctx, text, ageGroup)
	story, ok := out.(*StoryResult)
	if !ok {
		return out
	}

	out = p.Narrate(ctx, story.SimplifiedText, outDir)
	switch r := out.(type) {
	case *AudiobookResult:
		r.Analysis = story.Analysis
	case *Failure:
		r.Analysis = story.Analysis
	}
	return out
}

func (p *Pipeline) review(lines []script.Line) {
	for _, issue := range script.Review(lines) {
		p.log.Warn("script review", "category", issue.Category, "message", issue.Message)
	}
}

func fail(stage, msg string, err error, analysis experts.Analysis) *Failure {
	if err != nil && msg != err.Error() {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &Failure{Stage: stage, Message: msg, Analysis: analysis, Err: err}
}

// Mode selects the flow Run executes.
type Mode string

const (
	ModeAnalyze Mode = "analyze"
	ModeFull    Mode = "full"
	ModeQuick   Mode = "quick"
)

// Options configures one CLI run.
type Options struct {
	Input      string
	OutputDir  string
	AgeGroup   string
	Mode       Mode
	ScriptOut  string // save the script document here
	ScriptOnly bool
	FromScript string
	MergeTo    string
	Merger     assembly.Merger
}

// Run ingests opts.Input (or loads opts.FromScript) and executes the flow
// named by opts.Mode. Failures come back as *PipelineError alongside the
// Failure outcome.
func (p *Pipeline) Run(ctx context.Context, opts Options) (Outcome, error) {
	start := time.Now()

	if opts.FromScript != "" {
		doc, err := script.LoadDocument(opts.FromScript)
		if err != nil {
			return nil, &PipelineError{Stage: StageScript, Message: "failed to load script", Err: err}
		}
		p.log.Info("script loaded", "path", opts.FromScript, "lines", len(doc.Lines))
		return p.finish(ctx, p.Narrate(ctx, script.Format(doc.Lines), opts.OutputDir), opts, start)
	}

	progress.Emit(p.cfg.Progress, progress.NewEvent(progress.StageIngest, "Reading story", 0.02, start))
	content, err := ingest.Ingest(ctx, opts.Input)
	if err != nil {
		return nil, &PipelineError{Stage: StageIngest, Message: "failed to extract content", Err: err}
	}
	p.log.Info("content ingested",
		"title", content.Title,
		"source", content.Source,
		"source_type", ingest.DetectSource(opts.Input).String(),
		"words", content.WordCount,
	)

	var out Outcome
	switch opts.Mode {
	case ModeQuick:
		out = p.GenerateAudiobook(ctx, content.Text, opts.OutputDir)
	case ModeAnalyze:
		out = p.Analyze(ctx, content.Text, opts.AgeGroup)
	case ModeFull, "":
		if opts.ScriptOnly {
			out = p.Analyze(ctx, content.Text, opts.AgeGroup)
		} else {
			out = p.Generate(ctx, content.Text, opts.AgeGroup, opts.OutputDir)
		}
	default:
		return nil, &PipelineError{Stage: StageConfig, Message: fmt.Sprintf("unknown mode %q", opts.Mode)}
	}

	if opts.ScriptOut != "" {
		if err := saveScript(out, content, opts); err != nil {
			return out, err
		}
	}
	return p.finish(ctx, out, opts, start)
}

func (p *Pipeline) finish(ctx context.Context, out Outcome, opts Options, start time.Time) (Outcome, error) {
	if err := AsError(out); err != nil {
		return out, err
	}

	book, ok := out.(*AudiobookResult)
	merge := ok && opts.MergeTo != ""
	if merge && len(book.AudioFiles) == 0 {
		p.log.Warn("no clips to merge", "path", opts.MergeTo)
		merge = false
	}
	if merge {
		merger := opts.Merger
		if merger == nil {
			merger = assembly.NewFFmpegAssembler(assembly.DefaultPause)
		}
		progress.Emit(p.cfg.Progress, progress.NewEvent(progress.StageAssembly, "Merging clips", 0.97, start))
		workDir, err := os.MkdirTemp("", "storytime-*")
		if err != nil {
			return out, &PipelineError{Stage: StageAssembly, Message: "failed to create temp directory", Err: err}
		}
		defer os.RemoveAll(workDir)

		if err := merger.Merge(ctx, book.AudioFiles, workDir, opts.MergeTo); err != nil {
			return out, &PipelineError{Stage: StageAssembly, Message: "failed to merge clips", Err: err}
		}
		p.log.Info("audiobook merged", "path", opts.MergeTo, "duration", probeDuration(opts.MergeTo))
	}

	e := progress.NewEvent(progress.StageComplete, "Done", 1, start)
	if ok {
		e.ClipCount = len(book.AudioFiles)
		e.OutputDir = opts.OutputDir
		e.OutputFile = opts.MergeTo
	}
	progress.Emit(p.cfg.Progress, e)
	return out, nil
}

func saveScript(out Outcome, content *ingest.Content, opts Options) error {
	var text string
	switch r := out.(type) {
	case *StoryResult:
		text = r.SimplifiedText
	case *AudiobookResult:
		text = r.SimplifiedText
	default:
		return nil
	}
	ageGroup := opts.AgeGroup
	if opts.Mode == ModeQuick {
		ageGroup = script.SimplifyAgeGroup
	}
	doc := script.NewDocument(content.Title, ageGroup, content.Source, text)
	if dir := filepath.Dir(opts.ScriptOut); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &PipelineError{Stage: StagePersisting, Message: "failed to create script directory", Err: err}
		}
	}
	if err := script.SaveDocument(doc, opts.ScriptOut); err != nil {
		return &PipelineError{Stage: StagePersisting, Message: "failed to save script", Err: err}
	}
	return nil
}

// probeDuration asks ffprobe for a file's length as m:ss. It returns ""
// when ffprobe is unavailable.
func probeDuration(path string) string {
	out, err := exec.Command("ffprobe",
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return ""
	}
	s := strings.TrimSpace(string(out))
	var secs float64
	if _, err := fmt.Sscanf(s, "%f", &secs); err != nil {
		return ""
	}
	return fmt.Sprintf("%d:%02d", int(secs)/60, int(secs)%60)
}


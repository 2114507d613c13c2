// Package audiobook narrates a script line by line into audio clip files.
package audiobook

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apresai/storytime/internal/observability"
	"github.com/apresai/storytime/internal/progress"
	"github.com/apresai/storytime/internal/script"
	"github.com/apresai/storytime/internal/tts"
	"go.opentelemetry.io/otel/attribute"
)

// Artifact is one written clip.
type Artifact struct {
	Index   int    `json:"index"`
	Speaker string `json:"speaker"`
	Path    string `json:"path"`
}

// Paths returns the clip paths in line order.
func Paths(artifacts []Artifact) []string {
	out := make([]string, len(artifacts))
	for i, a := range artifacts {
		out[i] = a.Path
	}
	return out
}

// Options configures an Assembler.
type Options struct {
	OutputDir string
	Voices    tts.VoiceMap
	Logger    *slog.Logger
	Progress  progress.Callback
}

// Assembler synthesizes one clip per script line.
type Assembler struct {
	provider tts.Provider
	outDir   string
	voices   tts.VoiceMap
	log      *slog.Logger
	progress progress.Callback
}

// NewAssembler creates an Assembler. A zero Voices map falls back to the
// provider defaults.
func NewAssembler(provider tts.Provider, opts Options) *Assembler {
	voices := opts.Voices
	if voices == (tts.VoiceMap{}) {
		voices = provider.DefaultVoices()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Assembler{
		provider: provider,
		outDir:   opts.OutputDir,
		voices:   voices,
		log:      log,
		progress: opts.Progress,
	}
}

// Assemble parses scriptText and narrates every line in order. The first
// failure stops the run; clips already written are left on disk.
func (a *Assembler) Assemble(ctx context.Context, scriptText string) ([]Artifact, error) {
	return a.AssembleLines(ctx, script.Parse(scriptText))
}

// AssembleLines narrates already parsed lines.
func (a *Assembler) AssembleLines(ctx context.Context, lines []script.Line) ([]Artifact, error) {
	if err := os.MkdirAll(a.outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", a.outDir, err)
	}

	start := time.Now()
	artifacts := make([]Artifact, 0, len(lines))

	for i, line := range lines {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		progress.Emit(a.progress, progress.StepEvent(progress.StageTTS,
			fmt.Sprintf("Narrating %s", line.Speaker), i+1, len(lines), 0.6, 0.95, start))

		voice := a.voices.For(line.Speaker)
		lineCtx, span := observability.StartSpan(ctx, "tts.synthesize",
			attribute.Int("index", line.Index),
			attribute.String("speaker", line.Speaker),
			attribute.String("voice", voice.ID),
		)
		res, err := a.provider.Synthesize(lineCtx, line.Text, voice)
		observability.EndSpan(span, err)
		if err != nil {
			return nil, fmt.Errorf("synthesize line %d (%s): %w", line.Index, line.Speaker, err)
		}

		path := filepath.Join(a.outDir, ClipName(line.Index, line.Speaker, res.Format))
		if err := os.WriteFile(path, res.Data, 0644); err != nil {
			return nil, fmt.Errorf("write clip %s: %w", path, err)
		}

		a.log.Debug("clip written",
			"index", line.Index,
			"speaker", line.Speaker,
			"voice", voice.ID,
			"bytes", len(res.Data),
			"path", path,
		)
		artifacts = append(artifacts, Artifact{Index: line.Index, Speaker: line.Speaker, Path: path})
	}

	a.log.Info("narration complete",
		"clips", len(artifacts),
		"provider", a.provider.Name(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return artifacts, nil
}

var pathSeparators = strings.NewReplacer("/", "_", "\\", "_")

// ClipName is the file name for a line's clip: line_{index}_{SPEAKER}.{ext}.
func ClipName(index int, speaker string, format tts.AudioFormat) string {
	return fmt.Sprintf("line_%d_%s.%s", index, pathSeparators.Replace(speaker), format.Ext())
}

// Package assembly merges narrated clips into a single audiobook file.
package assembly

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrFFmpegNotFound is returned when the ffmpeg binary is not on PATH.
var ErrFFmpegNotFound = errors.New("ffmpeg not found on PATH")

// Audio quality constants for consistent output across all FFmpeg operations.
const (
	AudioBitrate    = "192k"
	AudioSampleRate = "44100"
	AudioChannels   = "2"
	AudioCodec      = "libmp3lame"
	AudioQuality    = "0" // LAME quality (0 = best)
	AudioResampler  = "aresample=resampler=soxr"
)

// DefaultPause is the silence inserted between clips.
const DefaultPause = 400 * time.Millisecond

// Merger joins clips, in order, into one output file.
type Merger interface {
	Merge(ctx context.Context, clips []string, workDir string, output string) error
}

type FFmpegAssembler struct {
	bin   string
	pause time.Duration
}

// NewFFmpegAssembler creates a merger. A zero pause uses DefaultPause.
func NewFFmpegAssembler(pause time.Duration) *FFmpegAssembler {
	if pause <= 0 {
		pause = DefaultPause
	}
	return &FFmpegAssembler{bin: "ffmpeg", pause: pause}
}

// CheckFFmpeg reports whether ffmpeg can be run.
func CheckFFmpeg() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return ErrFFmpegNotFound
	}
	return nil
}

func (a *FFmpegAssembler) Merge(ctx context.Context, clips []string, workDir string, output string) error {
	if len(clips) == 0 {
		return fmt.Errorf("no audio clips to merge")
	}
	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	silencePath := filepath.Join(workDir, "pause.mp3")
	if err := a.generateSilence(ctx, silencePath); err != nil {
		return fmt.Errorf("generate silence: %w", err)
	}

	listPath := filepath.Join(workDir, "concat.txt")
	if err := buildConcatList(clips, silencePath, listPath); err != nil {
		return fmt.Errorf("build concat list: %w", err)
	}

	if err := a.runConcat(ctx, listPath, output); err != nil {
		return fmt.Errorf("ffmpeg concat: %w", err)
	}
	return nil
}

func (a *FFmpegAssembler) generateSilence(ctx context.Context, output string) error {
	cmd := exec.CommandContext(ctx, a.bin,
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=%s:cl=stereo", AudioSampleRate),
		"-t", fmt.Sprintf("%.3f", a.pause.Seconds()),
		"-c:a", AudioCodec,
		"-b:a", AudioBitrate,
		"-y",
		output,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg silence generation failed: %w\n%s", err, stderr.String())
	}
	return nil
}

// buildConcatList writes an ffmpeg concat demuxer list with the pause
// between clips (not after the last one).
func buildConcatList(clips []string, silencePath string, listPath string) error {
	var lines []string
	for i, clip := range clips {
		lines = append(lines, concatEntry(clip))
		if i < len(clips)-1 {
			lines = append(lines, concatEntry(silencePath))
		}
	}

	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(listPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

// concatEntry quotes a path for the concat demuxer, escaping single quotes.
func concatEntry(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return fmt.Sprintf("file '%s'", strings.ReplaceAll(path, "'", `'\''`))
}

func (a *FFmpegAssembler) runConcat(ctx context.Context, listPath string, output string) error {
	cmd := exec.CommandContext(ctx, a.bin,
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-af", AudioResampler,
		"-c:a", AudioCodec,
		"-b:a", AudioBitrate,
		"-q:a", AudioQuality,
		"-ar", AudioSampleRate,
		"-ac", AudioChannels,
		"-y",
		output,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg concat failed: %w\n%s", err, stderr.String())
	}

	info, err := os.Stat(output)
	if err != nil {
		return fmt.Errorf("output file not created: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("output file is empty")
	}
	return nil
}

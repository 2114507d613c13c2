package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/mattn/go-isatty"
)

// BarRenderer shows pipeline progress on the CLI. On a terminal it redraws a
// status line and a bar in place; anywhere else it appends one line per
// step so the output reads well in CI logs.
type BarRenderer struct {
	out       io.Writer
	start     time.Time
	isTTY     bool
	width     int
	lastEvent Event
	lastLine  string // plain mode: last status printed
	lines     int    // TTY mode: rows drawn by the previous redraw
}

// NewBarRenderer detects whether out is a terminal and, if so, how wide it is.
func NewBarRenderer(out *os.File) *BarRenderer {
	tty := isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd())

	width := 80
	if tty {
		if w, _, err := term.GetSize(out.Fd()); err == nil && w > 0 {
			width = w
		}
	}
	return newRenderer(out, tty, width)
}

func newRenderer(out io.Writer, tty bool, width int) *BarRenderer {
	return &BarRenderer{
		out:   out,
		start: time.Now(),
		isTTY: tty,
		width: width,
	}
}

// Handle draws e. It can be used directly as a Callback.
func (r *BarRenderer) Handle(e Event) {
	e.Elapsed = time.Since(r.start)
	if e.Stage == StageComplete {
		e.Percent = 1.0
	}
	r.lastEvent = e

	if r.isTTY {
		r.renderTTY(e)
		return
	}
	r.renderPlain(e)
}

// Finish removes the live display and prints what the run produced, or the
// error that stopped it.
func (r *BarRenderer) Finish() {
	e := r.lastEvent
	if r.isTTY && r.lines > 0 {
		r.clearLines()
	}

	if e.Error != nil {
		fmt.Fprintf(r.out, "\n  Error: %v\n", e.Error)
		return
	}
	if e.Stage != StageComplete {
		return
	}

	switch {
	case e.OutputFile != "":
		fmt.Fprintf(r.out, "\n  Audiobook saved to %s (%d clips merged)\n", e.OutputFile, e.ClipCount)
	case e.ClipCount > 0:
		fmt.Fprintf(r.out, "\n  %d clips saved to %s\n", e.ClipCount, e.OutputDir)
	default:
		// analyze, script-only, or a script with nothing to narrate
		fmt.Fprintf(r.out, "\n  %s (%s)\n", e.Message, formatElapsed(e.Elapsed))
	}
	if e.LogFile != "" {
		fmt.Fprintf(r.out, "  Log: %s  |  Total: %s\n", e.LogFile, formatElapsed(e.Elapsed))
	}
}

// status is the one-line description shared by both modes.
func status(e Event) string {
	if e.StepTotal > 0 {
		return fmt.Sprintf("%s (%d/%d)", e.Message, e.Step, e.StepTotal)
	}
	return e.Message
}

func (r *BarRenderer) renderTTY(e Event) {
	if r.lines > 0 {
		r.clearLines()
	}

	bar := renderBar(e.Percent, r.barWidth())
	fmt.Fprintf(r.out, "  %s\n  %s %3d%%  %s", status(e), bar, int(e.Percent*100), formatElapsed(e.Elapsed))
	r.lines = 2
}

func (r *BarRenderer) renderPlain(e Event) {
	line := status(e)
	// Throttled progress repeats the same step; print it once.
	if line == r.lastLine {
		return
	}
	r.lastLine = line
	fmt.Fprintf(r.out, "[%s] %s\n", formatElapsed(e.Elapsed), line)
}

// clearLines erases the previous redraw, bottom row first, and leaves the
// cursor at the start of the top row.
func (r *BarRenderer) clearLines() {
	fmt.Fprint(r.out, "\r\033[2K")
	for i := 1; i < r.lines; i++ {
		fmt.Fprint(r.out, "\033[A\033[2K")
	}
	fmt.Fprint(r.out, "\r")
	r.lines = 0
}

// barWidth is the terminal width minus the fixed parts of the bar row
// (indent, brackets, percent and elapsed), kept between 20 and 60.
func (r *BarRenderer) barWidth() int {
	return min(max(r.width-16, 20), 60)
}

// renderBar draws a [####....] bar of the given width.
func renderBar(pct float64, width int) string {
	filled := int(min(max(pct, 0), 1) * float64(width))
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

// formatElapsed formats a duration as M:SS.
func formatElapsed(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

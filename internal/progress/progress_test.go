package progress

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStepEvent(t *testing.T) {
	e := StepEvent(StageAnalysis, "Case Analyst", 5, 10, 0.1, 0.5, time.Now())
	assert.Equal(t, StageAnalysis, e.Stage)
	assert.Equal(t, 5, e.Step)
	assert.Equal(t, 10, e.StepTotal)
	assert.InDelta(t, 0.3, e.Percent, 1e-9)

	zero := StepEvent(StageTTS, "x", 0, 0, 0.6, 0.9, time.Now())
	assert.InDelta(t, 0.6, zero.Percent, 1e-9)
}

func TestEmit_NilCallback(t *testing.T) {
	assert.NotPanics(t, func() { Emit(nil, Event{}) })

	var got []Stage
	Emit(func(e Event) { got = append(got, e.Stage) }, Event{Stage: StageScript})
	assert.Equal(t, []Stage{StageScript}, got)
}

func TestRenderBar(t *testing.T) {
	assert.Equal(t, "[##........]", renderBar(0.2, 10))
	assert.Equal(t, "[..........]", renderBar(-1, 10))
	assert.Equal(t, "[##########]", renderBar(2, 10))
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0:05", formatElapsed(5*time.Second))
	assert.Equal(t, "2:03", formatElapsed(123*time.Second))
}

func TestBarRenderer_PlainMode(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, false, 80)

	r.Handle(Event{Stage: StageTTS, Message: "Narrating line 1"})
	r.Handle(Event{Stage: StageComplete, Message: "Done", OutputDir: "out", ClipCount: 3})
	r.Finish()

	out := buf.String()
	assert.Contains(t, out, "Narrating line 1")
	assert.Contains(t, out, "3 clips saved to out")
}

func TestBarRenderer_PlainModePrintsEachStepOnce(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, false, 80)

	step := Event{Stage: StageAnalysis, Message: "Consulting Editor", Step: 10, StepTotal: 10}
	r.Handle(step)
	r.Handle(step)
	r.Handle(Event{Stage: StageScript, Message: "Writing script"})

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "Consulting Editor (10/10)"))
	assert.Contains(t, out, "] Writing script\n")
}

func TestBarRenderer_TTYRedraw(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, true, 36)

	r.Handle(Event{Stage: StageTTS, Message: "Narrating OWL", Percent: 0.5})
	assert.Contains(t, buf.String(), "  Narrating OWL\n  ["+strings.Repeat("#", 10)+strings.Repeat(".", 10)+"]  50%")

	r.Handle(Event{Stage: StageComplete, Message: "Done"})
	r.Finish()
	assert.Contains(t, buf.String(), "\033[A\033[2K")
	assert.Contains(t, buf.String(), "Done (0:00)")
}

func TestBarRenderer_FinishWithError(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf, false, 80)

	r.Handle(Event{Stage: StageTTS, Message: "x", Error: errors.New("quota exceeded")})
	r.Finish()

	assert.Contains(t, buf.String(), "Error: quota exceeded")
}

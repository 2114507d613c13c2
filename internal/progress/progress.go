package progress

import "time"

// Stage identifies which pipeline stage is active.
type Stage string

const (
	StageIngest   Stage = "ingest"
	StageAnalysis Stage = "analysis"
	StageScript   Stage = "script"
	StageTTS      Stage = "tts"
	StageAssembly Stage = "assembly"
	StageComplete Stage = "complete"
)

// Event carries progress information from the pipeline to the renderer.
type Event struct {
	Stage   Stage
	Message string
	Percent float64 // 0.0–1.0
	// Step and StepTotal count roles during analysis and lines during TTS.
	Step      int
	StepTotal int
	Elapsed   time.Duration
	Error     error
	// OutputDir is set on StageComplete with the directory holding the clips.
	OutputDir string
	// OutputFile is set on StageComplete when the clips were merged.
	OutputFile string
	// ClipCount is the number of audio clips written, set on StageComplete.
	ClipCount int
	// LogFile is the log file path, set on StageComplete.
	LogFile string
}

// Callback is the function signature for progress event handlers.
type Callback func(Event)

// NewEvent creates an Event with common fields populated.
func NewEvent(stage Stage, msg string, pct float64, start time.Time) Event {
	return Event{
		Stage:   stage,
		Message: msg,
		Percent: pct,
		Elapsed: time.Since(start),
	}
}

// StepEvent creates an Event for step n of total within a stage that
// occupies the [from, to) slice of overall progress.
func StepEvent(stage Stage, msg string, n, total int, from, to float64, start time.Time) Event {
	pct := from
	if total > 0 {
		pct = from + (to-from)*float64(n)/float64(total)
	}
	e := NewEvent(stage, msg, pct, start)
	e.Step = n
	e.StepTotal = total
	return e
}

// Emit calls cb when it is non-nil.
func Emit(cb Callback, e Event) {
	if cb != nil {
		cb(e)
	}
}

package pipeline

import (
	"encoding/json"

	"github.com/apresai/storytime/internal/experts"
	"github.com/apresai/storytime/internal/script"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Outcome is the payload returned at the pipeline boundary. It is one of
// *StoryResult, *AudiobookResult or *Failure.
type Outcome interface {
	Status() string
	outcome()
}

// StoryResult is a finished analysis and script.
type StoryResult struct {
	Analysis       experts.Analysis
	SimplifiedText string
	Characters     []script.Character
	TargetAgeGroup string
}

func (*StoryResult) Status() string { return StatusSuccess }
func (*StoryResult) outcome()       {}

func (r *StoryResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Status         string             `json:"status"`
		Analysis       experts.Analysis   `json:"analysis"`
		SimplifiedText string             `json:"simplified_text"`
		Characters     []script.Character `json:"characters"`
		TargetAgeGroup string             `json:"target_age_group"`
	}{StatusSuccess, r.Analysis, r.SimplifiedText, nonNil(r.Characters), r.TargetAgeGroup})
}

// AudiobookResult is a narrated script. Analysis is set only on the full
// path.
type AudiobookResult struct {
	SimplifiedText string
	AudioFiles     []string
	Characters     []script.Character
	Analysis       experts.Analysis
}

func (*AudiobookResult) Status() string { return StatusSuccess }
func (*AudiobookResult) outcome()       {}

func (r *AudiobookResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Status         string             `json:"status"`
		SimplifiedText string             `json:"simplified_text"`
		AudioFiles     []string           `json:"audio_files"`
		Characters     []script.Character `json:"characters,omitempty"`
		Analysis       experts.Analysis   `json:"analysis,omitempty"`
	}{StatusSuccess, r.SimplifiedText, nonNil(r.AudioFiles), r.Characters, r.Analysis})
}

// Failure reports a failed stage. Analysis carries whatever the expert
// panel finished before the failure.
type Failure struct {
	Stage    string
	Message  string
	Analysis experts.Analysis
	Err      error
}

func (*Failure) Status() string { return StatusError }
func (*Failure) outcome()       {}

func (f *Failure) Error() string { return f.Message }

func (f *Failure) Unwrap() error { return f.Err }

func (f *Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Status   string           `json:"status"`
		Stage    string           `json:"stage,omitempty"`
		Message  string           `json:"message"`
		Analysis experts.Analysis `json:"analysis,omitempty"`
	}{StatusError, f.Stage, f.Message, f.Analysis})
}

// AsError returns the *PipelineError for a Failure, or nil for a success.
func AsError(o Outcome) error {
	f, ok := o.(*Failure)
	if !ok {
		return nil
	}
	return &PipelineError{Stage: f.Stage, Message: f.Message, Err: f.Err}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

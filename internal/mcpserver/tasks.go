package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/apresai/storytime/internal/ingest"
	"github.com/apresai/storytime/internal/objectstore"
	"github.com/apresai/storytime/internal/observability"
	"github.com/apresai/storytime/internal/pipeline"
	"github.com/apresai/storytime/internal/progress"
	"github.com/apresai/storytime/internal/script"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	ModeFull  = "full"
	ModeQuick = "quick"
)

// StoryInput is one of: inline text, a URL, or a saved upload.
type StoryInput struct {
	Text  string
	URL   string
	Path  string
	Title string
}

// Source names the input for job records.
func (in StoryInput) Source() string {
	switch {
	case in.URL != "":
		return in.URL
	case in.Path != "":
		return filepath.Base(in.Path)
	default:
		return "inline"
	}
}

// Load extracts the story text.
func (in StoryInput) Load(ctx context.Context) (*ingest.Content, error) {
	switch {
	case in.Text != "":
		return ingest.FromText(in.Text, in.Title)
	case in.URL != "":
		return ingest.Ingest(ctx, in.URL)
	case in.Path != "":
		return ingest.Ingest(ctx, in.Path)
	default:
		return nil, fmt.Errorf("no input provided")
	}
}

// GenerateRequest holds parameters for an audiobook job.
type GenerateRequest struct {
	Input    StoryInput
	Mode     string // ModeFull or ModeQuick
	AgeGroup string
}

// TaskManager runs audiobook jobs in the background, at most maxTasks at
// a time.
type TaskManager struct {
	store    JobStore
	objects  objectstore.Store
	pipeline *pipeline.Pipeline
	llmName  string
	ttsName  string
	log      *slog.Logger
	baseCtx  context.Context // cancelled on SIGTERM for graceful shutdown

	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	maxTasks int
	running  int
	wg       sync.WaitGroup
}

// TaskOptions configures a TaskManager.
type TaskOptions struct {
	MaxTasks    int
	LLMProvider string
	TTSProvider string
	Logger      *slog.Logger
}

// NewTaskManager creates a task manager. baseCtx should be cancelled on
// SIGTERM so job goroutines can clean up.
func NewTaskManager(baseCtx context.Context, store JobStore, objects objectstore.Store, p *pipeline.Pipeline, opts TaskOptions) *TaskManager {
	if opts.MaxTasks <= 0 {
		opts.MaxTasks = 3
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &TaskManager{
		store:    store,
		objects:  objects,
		pipeline: p,
		llmName:  opts.LLMProvider,
		ttsName:  opts.TTSProvider,
		log:      log,
		baseCtx:  baseCtx,
		cancels:  make(map[string]context.CancelFunc),
		maxTasks: opts.MaxTasks,
	}
}

// StartTask records a job and runs it in a goroutine. It returns the job
// ID immediately.
func (tm *TaskManager) StartTask(ctx context.Context, req GenerateRequest) (string, error) {
	if req.Mode == "" {
		req.Mode = ModeQuick
	}
	if req.Mode != ModeFull && req.Mode != ModeQuick {
		return "", fmt.Errorf("unknown mode %q: choose %s or %s", req.Mode, ModeFull, ModeQuick)
	}

	id, err := NewJobID()
	if err != nil {
		return "", err
	}

	tm.mu.Lock()
	if tm.running >= tm.maxTasks {
		tm.mu.Unlock()
		return "", fmt.Errorf("max concurrent tasks reached (%d)", tm.maxTasks)
	}
	tm.running++

	// The job outlives the tool call, so it hangs off baseCtx and only
	// borrows the request's trace.
	taskCtx := observability.DetachTraceContextFrom(ctx, tm.baseCtx)
	taskCtx, cancel := context.WithCancel(taskCtx)
	tm.cancels[id] = cancel
	tm.mu.Unlock()

	err = tm.store.CreateJob(ctx, NewJob{
		ID:          id,
		Mode:        req.Mode,
		AgeGroup:    req.AgeGroup,
		Source:      req.Input.Source(),
		LLMProvider: tm.llmName,
		TTSProvider: tm.ttsName,
	})
	if err != nil {
		cancel()
		tm.release(id)
		return "", fmt.Errorf("create job: %w", err)
	}

	tm.wg.Add(1)
	go tm.runJob(taskCtx, id, req)

	return id, nil
}

// CancelTask cancels a running task. It reports false when no job with
// that ID is running here.
func (tm *TaskManager) CancelTask(id string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	cancel, ok := tm.cancels[id]
	if ok {
		cancel()
	}
	return ok
}

// Running reports the number of jobs in flight.
func (tm *TaskManager) Running() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.running
}

// Wait blocks until every job has finished or ctx is done.
func (tm *TaskManager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		tm.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (tm *TaskManager) release(id string) {
	tm.mu.Lock()
	if cancel, ok := tm.cancels[id]; ok {
		cancel()
		delete(tm.cancels, id)
	}
	tm.running--
	tm.mu.Unlock()
}

func (tm *TaskManager) runJob(ctx context.Context, id string, req GenerateRequest) {
	defer tm.wg.Done()

	ctx, span := tracer.Start(ctx, "job.run",
		trace.WithAttributes(
			attribute.String("job_id", id),
			attribute.String("mode", req.Mode),
		),
	)
	defer span.End()

	defer func() {
		// An interrupted job must not stay "narrating" forever.
		if ctx.Err() != nil {
			msg := "cancelled"
			if tm.baseCtx.Err() != nil {
				msg = "server shutdown during processing"
			}
			failCtx, failCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer failCancel()
			if err := tm.store.FailJob(failCtx, id, msg); err != nil {
				tm.log.Warn("Mark job failed", "job_id", id, "error", err)
			}
		}
		tm.release(id)
	}()

	log := tm.log.With("job_id", id)
	start := time.Now()

	fail := func(msg string, err error) {
		if err != nil {
			span.RecordError(err)
		}
		span.SetStatus(codes.Error, msg)
		log.ErrorContext(ctx, "Job failed", "error", msg, "elapsed", time.Since(start).Round(time.Second).String())
		if ferr := tm.store.FailJob(ctx, id, msg); ferr != nil {
			log.WarnContext(ctx, "Fail job failed", "error", ferr)
		}
	}

	workDir, err := os.MkdirTemp("", "storytime-job-*")
	if err != nil {
		fail(fmt.Sprintf("create work dir: %v", err), err)
		return
	}
	defer os.RemoveAll(workDir)

	tm.updateProgress(ctx, log, id, JobStatusIngesting, 0.02, "Reading story")
	content, err := req.Input.Load(ctx)
	if err != nil {
		fail(fmt.Sprintf("ingest: %v", err), err)
		return
	}

	log.InfoContext(ctx, "Job starting", "mode", req.Mode, "source", content.Source, "words", content.WordCount)

	p := tm.pipeline.WithProgress(tm.progressWriter(ctx, log, id, span))
	clipDir := filepath.Join(workDir, "clips")

	var out pipeline.Outcome
	ageGroup := req.AgeGroup
	if req.Mode == ModeQuick {
		out = p.GenerateAudiobook(ctx, content.Text, clipDir)
		ageGroup = script.SimplifyAgeGroup
	} else {
		out = p.Generate(ctx, content.Text, ageGroup, clipDir)
	}

	book, ok := out.(*pipeline.AudiobookResult)
	if !ok {
		f := out.(*pipeline.Failure)
		fail(f.Message, f.Err)
		return
	}

	tm.updateProgress(ctx, log, id, JobStatusUploading, 0.97, "Uploading clips")
	clips, err := publishFiles(ctx, tm.objects, id, book.AudioFiles)
	if err != nil {
		fail(err.Error(), err)
		return
	}

	doc := script.NewDocument(content.Title, ageGroup, content.Source, book.SimplifiedText)
	scriptPath := filepath.Join(workDir, "script.json")
	if err := script.SaveDocument(doc, scriptPath); err != nil {
		fail(err.Error(), err)
		return
	}
	scriptRef, err := publishFile(ctx, tm.objects, id, scriptPath)
	if err != nil {
		fail(err.Error(), err)
		return
	}

	names := make([]string, len(doc.Characters))
	for i, c := range doc.Characters {
		names[i] = c.Name
	}

	err = tm.store.CompleteJob(ctx, id, Completion{
		Title:      content.Title,
		Characters: names,
		Clips:      clips,
		ScriptKey:  scriptRef.Key,
		ScriptURL:  scriptRef.URL,
	})
	if err != nil {
		log.ErrorContext(ctx, "Complete job failed", "error", err)
	}

	span.SetAttributes(
		attribute.String("title", content.Title),
		attribute.Int("clips", len(clips)),
	)
	span.SetStatus(codes.Ok, "complete")
	log.InfoContext(ctx, "Job complete",
		"title", content.Title,
		"clips", len(clips),
		"elapsed", time.Since(start).Round(time.Second).String(),
	)
}

// progressWriter forwards pipeline events to the job record, at most once
// every two seconds except on stage transitions.
func (tm *TaskManager) progressWriter(ctx context.Context, log *slog.Logger, id string, span trace.Span) progress.Callback {
	var lastWrite time.Time
	var lastStage progress.Stage

	return func(evt progress.Event) {
		now := time.Now()
		stageChanged := evt.Stage != lastStage
		if !stageChanged && now.Sub(lastWrite) < 2*time.Second {
			return
		}

		if stageChanged {
			span.AddEvent("stage_transition",
				trace.WithAttributes(
					attribute.String("stage", string(evt.Stage)),
					attribute.Float64("percent", evt.Percent),
				),
			)
		}

		tm.updateProgress(ctx, log, id, mapStage(evt.Stage), evt.Percent, evt.Message)
		lastWrite = now
		lastStage = evt.Stage
	}
}

func (tm *TaskManager) updateProgress(ctx context.Context, log *slog.Logger, id string, status JobStatus, pct float64, msg string) {
	if err := tm.store.UpdateProgress(ctx, id, status, pct, msg); err != nil {
		log.WarnContext(ctx, "Update progress failed", "error", err)
	}
}

// mapStage maps a pipeline progress stage to a job status.
func mapStage(stage progress.Stage) JobStatus {
	switch stage {
	case progress.StageIngest:
		return JobStatusIngesting
	case progress.StageAnalysis:
		return JobStatusAnalyzing
	case progress.StageScript:
		return JobStatusScripting
	case progress.StageTTS:
		return JobStatusNarrating
	case progress.StageAssembly:
		return JobStatusUploading
	case progress.StageComplete:
		return JobStatusComplete
	default:
		return JobStatusSubmitted
	}
}

package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/apresai/storytime/internal/experts"
	"github.com/apresai/storytime/internal/ingest"
	"github.com/apresai/storytime/internal/pipeline"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("storytime-mcp")

var inputProperties = map[string]any{
	"input_text": map[string]any{
		"type":        "string",
		"description": "The story as plain text",
	},
	"input_url": map[string]any{
		"type":        "string",
		"description": "URL of a web page holding the story (alternative to input_text)",
	},
	"input_file_base64": map[string]any{
		"type":        "string",
		"description": "Base64-encoded story file: pdf, txt, epub or mobi, at most 16 MB (requires filename)",
	},
	"filename": map[string]any{
		"type":        "string",
		"description": "Name of the uploaded file, used to detect its format",
	},
	"title": map[string]any{
		"type":        "string",
		"description": "Story title (defaults to the first line of the text)",
	},
	"age_group": map[string]any{
		"type":        "string",
		"description": "Target age group, e.g. 5-7 or 8-12",
		"default":     experts.DefaultAgeGroup,
	},
}

func withInputs(extra map[string]any) map[string]any {
	props := make(map[string]any, len(inputProperties)+len(extra))
	for k, v := range inputProperties {
		props[k] = v
	}
	for k, v := range extra {
		props[k] = v
	}
	return props
}

// ToolDefs returns the MCP tool definitions.
func ToolDefs() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "analyze_story",
			Description: "Run the expert panel over a children's story and write a speaker-attributed script for it. Returns the per-expert analysis, the script and the character list.",
			InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: withInputs(nil),
			},
		},
		{
			Name:        "generate_audiobook",
			Description: "Turn a children's story into narrated audio clips, one per script line. Starts an async job and returns a job ID. Use get_audiobook to check progress.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: withInputs(map[string]any{
					"mode": map[string]any{
						"type":        "string",
						"description": "quick: simplify straight into a script; full: consult the expert panel first",
						"enum":        []string{ModeQuick, ModeFull},
						"default":     ModeQuick,
					},
				}),
			},
		},
		{
			Name:        "get_audiobook",
			Description: "Get the status of an audiobook job. Completed jobs list a URL for every clip and for the script.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"job_id": map[string]any{
						"type":        "string",
						"description": "The job ID returned from generate_audiobook",
					},
				},
				Required: []string{"job_id"},
			},
		},
		{
			Name:        "cancel_audiobook",
			Description: "Stop a running audiobook job. The job is marked failed with the message \"cancelled\".",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"job_id": map[string]any{
						"type":        "string",
						"description": "The job ID returned from generate_audiobook",
					},
				},
				Required: []string{"job_id"},
			},
		},
		{
			Name:        "list_audiobooks",
			Description: "List audiobook jobs, newest first.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of results (default 20)",
						"default":     defaultLimit,
					},
					"cursor": map[string]any{
						"type":        "string",
						"description": "Pagination cursor from a previous list_audiobooks call",
					},
				},
			},
		},
	}
}

// Handlers contains tool handler implementations.
type Handlers struct {
	tasks     *TaskManager
	store     JobStore
	pipeline  *pipeline.Pipeline
	uploadDir string
	log       *slog.Logger
}

func NewHandlers(tasks *TaskManager, store JobStore, p *pipeline.Pipeline, uploadDir string, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{tasks: tasks, store: store, pipeline: p, uploadDir: uploadDir, log: logger}
}

// parseInput reads the story input arguments. An uploaded file is saved
// under its own directory in the upload dir.
func (h *Handlers) parseInput(req mcp.CallToolRequest) (StoryInput, error) {
	in := StoryInput{
		Text:  strings.TrimSpace(mcp.ParseString(req, "input_text", "")),
		URL:   strings.TrimSpace(mcp.ParseString(req, "input_url", "")),
		Title: mcp.ParseString(req, "title", ""),
	}
	encoded := mcp.ParseString(req, "input_file_base64", "")

	given := 0
	for _, v := range []string{in.Text, in.URL, encoded} {
		if v != "" {
			given++
		}
	}
	switch {
	case given == 0:
		return in, errors.New("one of input_text, input_url or input_file_base64 is required")
	case given > 1:
		return in, errors.New("give only one of input_text, input_url or input_file_base64")
	}

	if in.URL != "" && ingest.DetectSource(in.URL) != ingest.SourceURL {
		return in, fmt.Errorf("input_url must be an http or https URL")
	}

	if encoded != "" {
		filename := mcp.ParseString(req, "filename", "")
		if filename == "" {
			return in, errors.New("filename is required with input_file_base64")
		}
		data := base64.NewDecoder(base64.StdEncoding, strings.NewReader(encoded))
		path, err := ingest.SaveUpload(filepath.Join(h.uploadDir, uuid.NewString()), filename, data)
		if err != nil {
			return in, err
		}
		in.Path = path
	}
	return in, nil
}

// HandleAnalyzeStory runs the full analysis synchronously.
func (h *Handlers) HandleAnalyzeStory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.analyze_story")
	defer span.End()

	ageGroup := mcp.ParseString(req, "age_group", experts.DefaultAgeGroup)
	span.SetAttributes(attribute.String("age_group", ageGroup))

	in, err := h.parseInput(req)
	if err != nil {
		span.SetStatus(codes.Error, "bad input")
		return mcp.NewToolResultError(err.Error()), nil
	}
	span.SetAttributes(attribute.String("source", in.Source()))

	content, err := in.Load(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ingest failed")
		return outcomeResult(&pipeline.Failure{Stage: pipeline.StageIngest, Message: err.Error(), Err: err})
	}

	out := h.pipeline.Analyze(ctx, content.Text, ageGroup)
	if f, ok := out.(*pipeline.Failure); ok {
		span.RecordError(f)
		span.SetStatus(codes.Error, f.Stage+" failed")
		h.log.WarnContext(ctx, "Story analysis failed", "stage", f.Stage, "error", f.Message)
	} else {
		h.log.InfoContext(ctx, "Story analyzed", "title", content.Title, "age_group", ageGroup)
	}
	return outcomeResult(out)
}

// HandleGenerateAudiobook starts an audiobook job.
func (h *Handlers) HandleGenerateAudiobook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.generate_audiobook")
	defer span.End()

	genReq := GenerateRequest{
		Mode:     mcp.ParseString(req, "mode", ModeQuick),
		AgeGroup: mcp.ParseString(req, "age_group", experts.DefaultAgeGroup),
	}
	span.SetAttributes(
		attribute.String("mode", genReq.Mode),
		attribute.String("age_group", genReq.AgeGroup),
	)

	in, err := h.parseInput(req)
	if err != nil {
		span.SetStatus(codes.Error, "bad input")
		return mcp.NewToolResultError(err.Error()), nil
	}
	genReq.Input = in

	id, err := h.tasks.StartTask(ctx, genReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start task failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to start task: %v", err)), nil
	}

	span.SetAttributes(attribute.String("job_id", id))
	h.log.InfoContext(ctx, "Audiobook job started", "job_id", id, "mode", genReq.Mode, "source", in.Source())

	return jsonResult(map[string]any{
		"job_id":  id,
		"status":  string(JobStatusSubmitted),
		"message": "Audiobook generation started. Use get_audiobook with this job_id to check progress.",
	})
}

// HandleGetAudiobook returns job details.
func (h *Handlers) HandleGetAudiobook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.get_audiobook")
	defer span.End()

	id := mcp.ParseString(req, "job_id", "")
	if id == "" {
		span.SetStatus(codes.Error, "missing job_id")
		return mcp.NewToolResultError("job_id is required"), nil
	}
	span.SetAttributes(attribute.String("job_id", id))

	item, err := h.store.GetJob(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get job failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to get audiobook: %v", err)), nil
	}
	if item == nil {
		span.SetStatus(codes.Error, "not found")
		return mcp.NewToolResultError(fmt.Sprintf("audiobook %s not found", id)), nil
	}

	result := map[string]any{
		"job_id":           item.JobID,
		"status":           item.Status,
		"mode":             item.Mode,
		"progress_percent": item.ProgressPercent,
		"stage_message":    item.StageMessage,
		"created_at":       item.CreatedAt,
	}
	if item.Title != "" {
		result["title"] = item.Title
	}
	if item.AgeGroup != "" {
		result["age_group"] = item.AgeGroup
	}
	if item.Source != "" {
		result["source"] = item.Source
	}
	if len(item.Clips) > 0 {
		urls := make([]string, len(item.Clips))
		for i, c := range item.Clips {
			urls[i] = c.URL
		}
		result["audio_files"] = urls
		result["clip_count"] = len(item.Clips)
	}
	if len(item.Characters) > 0 {
		result["characters"] = item.Characters
	}
	if item.ScriptURL != "" {
		result["script_url"] = item.ScriptURL
	}
	if item.ErrorMessage != "" {
		result["error"] = item.ErrorMessage
	}
	if item.TTSProvider != "" {
		result["tts_provider"] = item.TTSProvider
	}
	if item.CompletedAt != "" {
		result["completed_at"] = item.CompletedAt
	}

	return jsonResult(result)
}

// HandleCancelAudiobook cancels a job running on this server.
func (h *Handlers) HandleCancelAudiobook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.cancel_audiobook")
	defer span.End()

	id := mcp.ParseString(req, "job_id", "")
	if id == "" {
		span.SetStatus(codes.Error, "missing job_id")
		return mcp.NewToolResultError("job_id is required"), nil
	}
	span.SetAttributes(attribute.String("job_id", id))

	if !h.tasks.CancelTask(id) {
		span.SetStatus(codes.Error, "not running")
		return mcp.NewToolResultError(fmt.Sprintf("audiobook %s is not running", id)), nil
	}
	h.log.InfoContext(ctx, "Audiobook job cancelled", "job_id", id)

	return jsonResult(map[string]any{
		"job_id":  id,
		"status":  "cancelling",
		"message": "Cancellation requested. get_audiobook reports failed once the job stops.",
	})
}

// HandleListAudiobooks returns a page of jobs.
func (h *Handlers) HandleListAudiobooks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.list_audiobooks")
	defer span.End()

	limit := parseIntParam(req, "limit", defaultLimit)
	cursor := mcp.ParseString(req, "cursor", "")
	span.SetAttributes(
		attribute.Int("limit", limit),
		attribute.String("cursor", cursor),
	)

	items, nextCursor, err := h.store.ListJobs(ctx, limit, cursor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list jobs failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to list audiobooks: %v", err)), nil
	}

	span.SetAttributes(attribute.Int("result_count", len(items)))

	books := make([]map[string]any, 0, len(items))
	for _, item := range items {
		b := map[string]any{
			"job_id":     item.JobID,
			"status":     item.Status,
			"mode":       item.Mode,
			"created_at": item.CreatedAt,
		}
		if item.Title != "" {
			b["title"] = item.Title
		}
		if len(item.Clips) > 0 {
			b["clip_count"] = len(item.Clips)
		}
		if item.ScriptURL != "" {
			b["script_url"] = item.ScriptURL
		}
		books = append(books, b)
	}

	result := map[string]any{
		"audiobooks": books,
		"count":      len(books),
	}
	if nextCursor != "" {
		result["next_cursor"] = nextCursor
	}
	return jsonResult(result)
}

// outcomeResult renders a pipeline outcome; a Failure is flagged as a tool
// error but keeps its {"status": "error"} payload.
func outcomeResult(out pipeline.Outcome) (*mcp.CallToolResult, error) {
	res, err := jsonResult(out)
	if err != nil {
		return res, err
	}
	if out.Status() == pipeline.StatusError {
		res.IsError = true
	}
	return res, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func parseIntParam(req mcp.CallToolRequest, key string, defaultVal int) int {
	args := req.GetArguments()
	if args == nil {
		return defaultVal
	}
	raw, ok := args[key]
	if !ok {
		return defaultVal
	}
	switch v := raw.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultVal
	}
}

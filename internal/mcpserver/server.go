// Package mcpserver exposes story analysis and audiobook generation as MCP
// tools over streamable HTTP. Audiobook jobs run in the background, are
// tracked in DynamoDB and publish their clips to an object store.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/apresai/storytime/internal/config"
	"github.com/apresai/storytime/internal/objectstore"
	"github.com/apresai/storytime/internal/pipeline"
	"github.com/apresai/storytime/internal/tts"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/mark3labs/mcp-go/server"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
)

// Server is the MCP server for audiobook generation.
type Server struct {
	cfg      *config.Config
	mcp      *server.MCPServer
	http     *server.StreamableHTTPServer
	handlers *Handlers
	tasks    *TaskManager
	speech   tts.Provider
	nc       *nats.Conn
	log      *slog.Logger
}

// New creates and configures the MCP server. ctx bounds the lifetime of
// background jobs and should be cancelled on SIGTERM.
func New(ctx context.Context, cfg *config.Config, version string, logger *slog.Logger) (*Server, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	otelaws.AppendMiddlewares(&awsCfg.APIOptions)

	if cfg.Server.SecretPrefix != "" {
		sm := secretsmanager.NewFromConfig(awsCfg)
		if err := loadSecrets(ctx, sm, cfg.Server.SecretPrefix, &cfg.Keys, logger); err != nil {
			logger.Warn("Failed to load secrets from Secrets Manager, falling back to env vars",
				"error", err)
		}
	}

	s := &Server{cfg: cfg, log: logger}

	objects, err := s.openObjectStore(ctx, awsCfg)
	if err != nil {
		return nil, err
	}

	pcfg, err := pipeline.FromConfig(ctx, cfg, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	speech, voices, err := pipeline.SpeechFromConfig(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.speech = speech
	pcfg.Speech, pcfg.Voices = speech, voices
	p := pipeline.New(pcfg)

	store := NewStore(dynamodb.NewFromConfig(awsCfg), cfg.Server.JobsTable)
	s.tasks = NewTaskManager(ctx, store, objects, p, TaskOptions{
		MaxTasks:    cfg.Server.MaxTasks,
		LLMProvider: cfg.LLM.Provider,
		TTSProvider: speech.Name(),
		Logger:      logger,
	})
	s.handlers = NewHandlers(s.tasks, store, p, cfg.Paths.UploadDir, logger)

	s.mcp = server.NewMCPServer(
		"storytime",
		version,
		server.WithToolCapabilities(true),
	)
	s.handlers.Register(s.mcp)
	s.http = server.NewStreamableHTTPServer(s.mcp,
		server.WithStateLess(true),
	)

	return s, nil
}

// Register adds every tool to srv.
func (h *Handlers) Register(srv *server.MCPServer) {
	byName := map[string]server.ToolHandlerFunc{
		"analyze_story":      h.HandleAnalyzeStory,
		"generate_audiobook": h.HandleGenerateAudiobook,
		"get_audiobook":      h.HandleGetAudiobook,
		"cancel_audiobook":   h.HandleCancelAudiobook,
		"list_audiobooks":    h.HandleListAudiobooks,
	}
	for _, tool := range ToolDefs() {
		srv.AddTool(tool, byName[tool.Name])
	}
}

func (s *Server) openObjectStore(ctx context.Context, awsCfg aws.Config) (objectstore.Store, error) {
	switch s.cfg.Server.Store {
	case "nats":
		if s.cfg.Server.NATSURL == "" {
			return nil, errors.New("server.nats_url (STORYTIME_NATS_URL) is required for the nats store")
		}
		store, nc, err := objectstore.Connect(ctx, s.cfg.Server.NATSURL, s.cfg.Server.NATSBucket)
		if err != nil {
			return nil, err
		}
		s.nc = nc
		s.log.Info("Publishing to NATS object store", "bucket", s.cfg.Server.NATSBucket)
		return store, nil
	default:
		if s.cfg.Server.Bucket == "" {
			return nil, errors.New("server.bucket (STORYTIME_S3_BUCKET) is required for the s3 store")
		}
		s.log.Info("Publishing to S3", "bucket", s.cfg.Server.Bucket)
		return objectstore.NewS3Store(s3.NewFromConfig(awsCfg), s.cfg.Server.Bucket, s.cfg.Server.CDNBaseURL), nil
	}
}

// Start runs the HTTP MCP server until Shutdown.
func (s *Server) Start() error {
	s.log.Info("Starting MCP server", "addr", s.cfg.Server.Addr)
	return s.http.Start(s.cfg.Server.Addr)
}

// Shutdown stops accepting calls, waits for running jobs until ctx is
// done, then releases clients.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.http != nil {
		errs = append(errs, s.http.Shutdown(ctx))
	}
	if s.tasks != nil {
		if err := s.tasks.Wait(ctx); err != nil {
			s.log.Warn("Jobs still running at shutdown", "running", s.tasks.Running())
			errs = append(errs, err)
		}
	}
	errs = append(errs, s.Close())
	return errors.Join(errs...)
}

// Close releases the speech provider and the NATS connection.
func (s *Server) Close() error {
	var err error
	if s.speech != nil {
		err = s.speech.Close()
	}
	if s.nc != nil {
		s.nc.Close()
	}
	return err
}

// SecretsAPI is the subset of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// loadSecrets fills empty provider keys from Secrets Manager entries named
// prefix + env var name.
func loadSecrets(ctx context.Context, client SecretsAPI, prefix string, keys *config.APIKeys, logger *slog.Logger) error {
	secrets := map[string]*string{
		"ANTHROPIC_API_KEY":  &keys.Anthropic,
		"OPENAI_API_KEY":     &keys.OpenAI,
		"DEEPSEEK_API_KEY":   &keys.DeepSeek,
		"GEMINI_API_KEY":     &keys.Gemini,
		"ELEVENLABS_API_KEY": &keys.ElevenLabs,
	}

	missing, loaded := 0, 0
	for name, dst := range secrets {
		if *dst != "" {
			continue
		}
		missing++
		secretID := prefix + name
		result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(secretID),
		})
		if err != nil {
			logger.Info("Secret not found", "secret_id", secretID, "error", err)
			continue
		}
		if result.SecretString != nil {
			*dst = *result.SecretString
			loaded++
			logger.Info("Loaded secret", "secret_id", secretID)
		}
	}

	if missing > 0 && loaded == 0 {
		return fmt.Errorf("no secrets found under %s", prefix)
	}
	return nil
}

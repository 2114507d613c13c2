package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/apresai/storytime/internal/assembly"
	"github.com/apresai/storytime/internal/config"
	"github.com/apresai/storytime/internal/llm"
	"github.com/apresai/storytime/internal/observability"
	"github.com/apresai/storytime/internal/pipeline"
	"github.com/apresai/storytime/internal/progress"
	"github.com/apresai/storytime/internal/tts"
	"github.com/spf13/cobra"
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:          "storytime",
	Short:        "Turn children's stories into narrated, voice-cast audio",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "storytime %s\n", Version)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the expert panel over a story and write its script",
	Long: "Runs ten expert analyses over the story, synthesizes a speaker-attributed\n" +
		"script from them and prints the result as JSON.",
	RunE: runAnalyze,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Analyze a story, write its script and narrate every line",
	RunE:  runGenerate,
}

var audiobookCmd = &cobra.Command{
	Use:   "audiobook",
	Short: "Simplify a story straight into a script and narrate it",
	RunE:  runAudiobook,
}

var narrateCmd = &cobra.Command{
	Use:   "narrate",
	Short: "Narrate a saved script document",
	RunE:  runNarrate,
}

var listVoicesCmd = &cobra.Command{
	Use:   "list-voices",
	Short: "List available voices for all TTS providers",
	RunE:  runListVoices,
}

var (
	flagConfig         string
	flagLLM            string
	flagModel          string
	flagTTS            string
	flagNarratorVoice  string
	flagCharacterVoice string
	flagVerbose        bool

	flagInput      string
	flagOutput     string
	flagAge        string
	flagMerge      string
	flagScriptOnly bool
	flagSaveScript string
	flagFromScript string
)

func init() {
	rootCmd.AddCommand(versionCmd, analyzeCmd, generateCmd, audiobookCmd, narrateCmd, listVoicesCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "Config file (default storytime.toml if present)")
	pf.StringVar(&flagLLM, "llm", "", "LLM provider: "+strings.Join(llm.ProviderNames(), ", "))
	pf.StringVarP(&flagModel, "model", "m", "", "Model for analysis and script writing")
	pf.StringVarP(&flagTTS, "tts", "T", "", "TTS provider: "+strings.Join(tts.ProviderNames(), ", "))
	pf.StringVar(&flagNarratorVoice, "narrator-voice", "", "Voice ID for narration")
	pf.StringVar(&flagCharacterVoice, "character-voice", "", "Voice ID shared by every character")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Debug logging to stderr instead of the progress bar")

	for _, cmd := range []*cobra.Command{analyzeCmd, generateCmd, audiobookCmd} {
		cmd.Flags().StringVarP(&flagInput, "input", "i", "", "Story source (URL, or pdf, txt, epub or mobi path)")
		_ = cmd.MarkFlagRequired("input")
	}
	for _, cmd := range []*cobra.Command{analyzeCmd, generateCmd} {
		cmd.Flags().StringVar(&flagAge, "age", "", "Target age group (default from config, 8-12)")
	}

	analyzeCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Save the script document to this JSON file")

	for _, cmd := range []*cobra.Command{generateCmd, audiobookCmd, narrateCmd} {
		cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Directory for the audio clips (default from config)")
		cmd.Flags().StringVar(&flagMerge, "merge", "", "Also join the clips into one file (needs ffmpeg)")
	}
	for _, cmd := range []*cobra.Command{generateCmd, audiobookCmd} {
		cmd.Flags().StringVar(&flagSaveScript, "save-script", "", "Save the script document to this JSON file")
	}
	generateCmd.Flags().BoolVarP(&flagScriptOnly, "script-only", "S", false, "Stop after the script, skip narration")

	narrateCmd.Flags().StringVarP(&flagFromScript, "from-script", "f", "", "Script document written by analyze or --save-script")
	_ = narrateCmd.MarkFlagRequired("from-script")
}

// Execute runs the root command. ctx is cancelled on interrupt.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	return run(cmd, pipeline.Options{
		Input:     flagInput,
		AgeGroup:  flagAge,
		Mode:      pipeline.ModeAnalyze,
		ScriptOut: flagOutput,
	}, needs{llm: true, printJSON: true})
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if flagScriptOnly && flagMerge != "" {
		return fmt.Errorf("--script-only and --merge are mutually exclusive")
	}
	return run(cmd, pipeline.Options{
		Input:      flagInput,
		OutputDir:  flagOutput,
		AgeGroup:   flagAge,
		Mode:       pipeline.ModeFull,
		ScriptOut:  flagSaveScript,
		ScriptOnly: flagScriptOnly,
		MergeTo:    flagMerge,
	}, needs{llm: true, speech: !flagScriptOnly, printJSON: flagScriptOnly})
}

func runAudiobook(cmd *cobra.Command, args []string) error {
	return run(cmd, pipeline.Options{
		Input:     flagInput,
		OutputDir: flagOutput,
		Mode:      pipeline.ModeQuick,
		ScriptOut: flagSaveScript,
		MergeTo:   flagMerge,
	}, needs{llm: true, speech: true})
}

func runNarrate(cmd *cobra.Command, args []string) error {
	return run(cmd, pipeline.Options{
		FromScript: flagFromScript,
		OutputDir:  flagOutput,
		MergeTo:    flagMerge,
	}, needs{speech: true})
}

// needs lists what a command builds before it runs.
type needs struct {
	llm       bool
	speech    bool
	printJSON bool
}

func run(cmd *cobra.Command, opts pipeline.Options, n needs) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.AgeGroup == "" {
		opts.AgeGroup = cfg.AgeGroup
	}
	if opts.OutputDir == "" {
		opts.OutputDir = cfg.Paths.OutputDir
	}
	if opts.MergeTo != "" {
		if err := checkFFmpeg(); err != nil {
			return err
		}
	}

	logger, logFile, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	pcfg := pipeline.Config{Logger: logger}
	if n.llm {
		if pcfg, err = pipeline.FromConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}
	if n.speech {
		speech, voices, err := pipeline.SpeechFromConfig(ctx, cfg)
		if err != nil {
			return err
		}
		defer speech.Close()
		pcfg.Speech, pcfg.Voices = speech, voices
		logger.Debug("voices",
			"provider", speech.Name(),
			"narrator", voices.Narrator.ID,
			"character", voices.Character.ID,
		)
	}

	// The bar goes to stderr so JSON on stdout stays clean.
	var bar *progress.BarRenderer
	if !flagVerbose {
		bar = progress.NewBarRenderer(os.Stderr)
		pcfg.Progress = func(e progress.Event) {
			if e.Stage == progress.StageComplete {
				e.LogFile = logFile
			}
			bar.Handle(e)
		}
	}

	start := time.Now()
	out, runErr := pipeline.New(pcfg).Run(ctx, opts)
	if bar != nil {
		if runErr != nil {
			bar.Handle(progress.Event{Stage: failedStage(runErr), Message: "Failed", Error: runErr})
		}
		bar.Finish()
	}

	if out != nil && n.printJSON {
		if err := printOutcome(cmd.OutOrStdout(), out); err != nil {
			return err
		}
	} else if book, ok := out.(*pipeline.AudiobookResult); ok && flagVerbose {
		for _, f := range book.AudioFiles {
			fmt.Fprintln(cmd.OutOrStdout(), f)
		}
	}

	if runErr != nil {
		logger.Error("run failed", "error", runErr, "elapsed", time.Since(start).Round(time.Millisecond).String())
		return runErr
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg)
	return cfg, nil
}

// applyFlags lets command-line flags override file and environment values.
func applyFlags(cfg *config.Config) {
	if flagLLM != "" {
		cfg.LLM.Provider = flagLLM
	}
	if flagModel != "" {
		cfg.LLM.Model = flagModel
	}
	if flagTTS != "" {
		cfg.TTS.Provider = flagTTS
	}
	if flagNarratorVoice != "" {
		cfg.TTS.NarratorVoice = flagNarratorVoice
	}
	if flagCharacterVoice != "" {
		cfg.TTS.CharacterVoice = flagCharacterVoice
	}
	if flagVerbose {
		cfg.LogLevel = "debug"
	}
}

// newLogger logs as text to stderr in verbose mode. Otherwise JSON logs go
// to a timestamped file under paths.log_dir, or are dropped when it is
// unset, so they never tear the progress bar.
func newLogger(cfg *config.Config) (*slog.Logger, string, func(), error) {
	level := observability.ParseLevel(cfg.LogLevel)
	if flagVerbose {
		return observability.InitLogger(os.Stderr, level, observability.FormatText), "", func() {}, nil
	}
	if cfg.Paths.LogDir == "" {
		return observability.InitLogger(io.Discard, level, observability.FormatJSON), "", func() {}, nil
	}

	if err := os.MkdirAll(cfg.Paths.LogDir, 0755); err != nil {
		return nil, "", nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(cfg.Paths.LogDir, "storytime-"+time.Now().Format("20060102-150405")+".log")
	f, err := os.Create(path)
	if err != nil {
		return nil, "", nil, fmt.Errorf("create log file: %w", err)
	}
	return observability.InitLogger(f, level, observability.FormatJSON), path, func() { f.Close() }, nil
}

func failedStage(err error) progress.Stage {
	var pe *pipeline.PipelineError
	if errors.As(err, &pe) {
		return progress.Stage(pe.Stage)
	}
	return ""
}

func printOutcome(w io.Writer, out pipeline.Outcome) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func runListVoices(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "\nAvailable voices:")

	for _, name := range tts.ProviderNames() {
		voices, err := tts.AvailableVoices(name)
		if err != nil {
			return err
		}

		fmt.Fprintf(w, "\n  %s\n", strings.ToUpper(name))
		fmt.Fprintf(w, "  %s\n", strings.Repeat("─", 50))
		fmt.Fprintf(w, "  %-28s %-12s %-8s %s\n", "ID", "NAME", "GENDER", "DESCRIPTION")
		for _, v := range voices {
			def := ""
			if v.DefaultFor != "" {
				def = fmt.Sprintf(" (default %s)", v.DefaultFor)
			}
			fmt.Fprintf(w, "  %-28s %-12s %-8s %s%s\n", v.ID, v.Name, v.Gender, v.Description, def)
		}
	}
	fmt.Fprintln(w)
	return nil
}

func checkFFmpeg() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("%w: install it or drop --merge", assembly.ErrFFmpegNotFound)
	}
	return nil
}

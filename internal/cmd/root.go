package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/runger/clipfix/internal/config"
	"github.com/runger/clipfix/internal/lang"
)

// closeTimeout bounds flushing metrics and closing the store on exit.
const closeTimeout = 3 * time.Second

var (
	printOutput bool
	showDiff    bool
	noLLM       bool
	langName    string
	noCache     bool
	verbose     bool
	showTiming  bool
	readStdin   bool
	colorMode   string
)

var rootCmd = &cobra.Command{
	Use:   "clipfix [file]",
	Short: "Format and repair code pasted from chat assistants",
	Long: `clipfix - format and repair code pasted from chat assistants

Reads the clipboard (or a file, or stdin), finds the code in it, formats each
block with the right formatter, asks a model to repair blocks that no
formatter accepts, and writes the result back.

Examples:
  clipfix                     # fix the clipboard in place
  clipfix --diff              # show what would change
  clipfix --print answer.md   # fix a file and print the result
  pbpaste | clipfix --stdin   # fix stdin, print to stdout`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runFix,
}

// Execute runs the root command and prints any error to stderr.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		var ee *exitError
		if !errors.As(err, &ee) || ee.msg != "" {
			fmt.Fprintln(os.Stderr, styleError.Render("clipfix:"), err)
		}
	}
	return err
}

func init() {
	f := rootCmd.Flags()
	f.BoolVarP(&printOutput, "print", "p", false, "print the result to stdout instead of the clipboard")
	f.BoolVarP(&showDiff, "diff", "d", false, "show a unified diff instead of writing the result")
	f.BoolVar(&noLLM, "no-llm", false, "disable model classification and repair")
	f.StringVarP(&langName, "lang", "l", "", "treat every segment as this language")
	f.BoolVar(&noCache, "no-cache", false, "disable the result cache")
	f.BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
	f.BoolVar(&showTiming, "timing", false, "report per-segment durations")
	f.BoolVar(&readStdin, "stdin", false, "read from stdin instead of the clipboard")
	rootCmd.PersistentFlags().StringVar(&colorMode, "color", "auto", "color output: auto, always, or never")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(configCmd)
}

func runFix(cmd *cobra.Command, args []string) error {
	stderr := cmd.ErrOrStderr()
	if err := applyColorMode(colorMode, stderr); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cfg)

	var override lang.Language
	if langName != "" {
		l, ok := lang.Normalize(langName)
		if !ok {
			return fmt.Errorf("unknown language: %s", langName)
		}
		override = l
	}

	runID := uuid.NewString()
	logger := newLogger(stderr, cfg.Log.Level).With("run_id", runID)

	src, err := resolveSource(args, readStdin)
	if err != nil {
		return err
	}
	input, err := src.read(cmd.InOrStdin())
	if err != nil {
		return err
	}
	if strings.TrimSpace(input) == "" {
		return &exitError{code: 1, msg: fmt.Sprintf("nothing to format: %s is empty", src)}
	}

	a, err := newApp(cfg, appOptions{Override: override, RunID: runID, Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := a.Close(ctx); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	ctx := contextOf(cmd)
	res, err := a.engine.Run(ctx, input)
	if err != nil {
		return fmt.Errorf("run cancelled: %w", err)
	}
	a.prune(ctx)

	stdout := cmd.OutOrStdout()
	switch {
	case showDiff:
		writeDiff(stdout, src.String(), input, res.Output)
	case printOutput || src.kind != sourceClipboard:
		if _, err := io.WriteString(stdout, res.Output); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	case res.Changed(input):
		if err := clipboardWrite(res.Output); err != nil {
			return fmt.Errorf("failed to write clipboard: %w", err)
		}
	}

	writeSummary(stderr, res, input)
	if showTiming {
		writeTiming(stderr, res)
	}

	if n := res.Failed(); n > 0 {
		return &exitError{code: 2, msg: fmt.Sprintf("%d segment(s) could not be formatted", n)}
	}
	return nil
}

// applyFlags folds command-line switches into cfg.
func applyFlags(cfg *config.Config) {
	if noLLM {
		cfg.AI.Enabled = false
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}

// exitError carries a process exit status. An empty msg exits silently.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// ExitCode maps an error returned by Execute to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

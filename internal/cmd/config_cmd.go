package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/runger/clipfix/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Get or set configuration values",
	Long: `Get or set clipfix configuration values.

Without arguments, lists all configuration keys.
With one argument, shows the value of that key.
With two arguments, sets the key to the value.

Configuration is stored in ~/.config/clipfix/config.yaml (XDG compliant),
or in the file named by $CLIPFIX_CONFIG. Formatter commands are edited in
the file directly under "formatters:".

Keys are in the format: section.key
Sections: ai, classify, formatting, parallel, cache, privacy, log, knowledge

Examples:
  clipfix config                          # List all keys
  clipfix config ai.provider openai       # Use the OpenAI backend
  clipfix config classify.signal_order go,python,bash
  clipfix config parallel.max_workers 4`,
	Args: cobra.MaximumNArgs(2),
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	if err := applyColorMode(colorMode, cmd.OutOrStdout()); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out := cmd.OutOrStdout()
	switch len(args) {
	case 0:
		return listConfig(out, cfg)
	case 1:
		return getConfig(out, cfg, args[0])
	default:
		return setConfig(out, cfg, args[0], args[1])
	}
}

func listConfig(w io.Writer, cfg *config.Config) error {
	fmt.Fprintln(w, styleBold.Render("Configuration Keys"))
	fmt.Fprintln(w, rule())
	fmt.Fprintln(w)

	var failedKeys []string
	for _, key := range config.ListKeys() {
		value, err := cfg.Get(key)
		if err != nil {
			failedKeys = append(failedKeys, key)
			continue
		}
		if value == "" {
			value = styleDim.Render("(not set)")
		}
		fmt.Fprintf(w, "  %s = %s\n", styleKey.Render(key), value)
	}

	if len(cfg.Formatters) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, styleBold.Render("Formatter commands"))
		for _, f := range cfg.Formatters {
			fmt.Fprintf(w, "  %s = %s\n", styleKey.Render(f.ID), f.Command)
		}
	}

	if len(failedKeys) > 0 {
		fmt.Fprintf(w, "\n%s Failed to retrieve keys: %s\n", styleWarn.Render("Warning:"), strings.Join(failedKeys, ", "))
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Config file: %s\n", config.Path())
	return nil
}

func getConfig(w io.Writer, cfg *config.Config, key string) error {
	value, err := cfg.Get(key)
	if err != nil {
		return err
	}
	if value == "" {
		fmt.Fprintln(w, styleDim.Render("(not set)"))
	} else {
		fmt.Fprintln(w, value)
	}
	return nil
}

func setConfig(w io.Writer, cfg *config.Config, key, value string) error {
	if err := cfg.Set(key, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	path := config.Path()
	if err := cfg.SaveToFile(path); err != nil {
		return err
	}

	fmt.Fprintf(w, "%s = %s\n", styleKey.Render(key), value)
	fmt.Fprintf(w, "Saved to: %s\n", path)
	return nil
}

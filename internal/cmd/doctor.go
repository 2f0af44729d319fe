package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/runger/clipfix/internal/config"
	"github.com/runger/clipfix/internal/format"
	"github.com/runger/clipfix/internal/lang"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check formatters, backends and configuration",
	Long: `Run diagnostic checks on your clipfix installation.

This command checks:
- Configuration validity
- Which formatter binaries are installed
- Which languages have at least one usable formatter
- Generative backend availability
- The persistent cache

Examples:
  clipfix doctor`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

type checkResult struct {
	name    string
	status  string // "ok", "warn", "error"
	message string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if err := applyColorMode(colorMode, out); err != nil {
		return err
	}

	fmt.Fprintln(out, styleBold.Render("clipfix doctor"))
	fmt.Fprintln(out, rule())
	fmt.Fprintln(out)

	cfg, cfgResult := checkConfiguration()
	results := []checkResult{cfgResult}

	a, err := newApp(cfg, appOptions{Logger: newLogger(cmd.ErrOrStderr(), cfg.Log.Level)})
	if err != nil {
		results = append(results, checkResult{name: "Setup", status: "error", message: err.Error()})
		return printResults(out, results)
	}
	defer a.Close(context.Background())

	results = append(results, checkFormatters(a)...)
	results = append(results, checkLanguages(a)...)
	results = append(results, checkBackends(a))
	results = append(results, checkCache(contextOf(cmd), a))

	return printResults(out, results)
}

func printResults(w io.Writer, results []checkResult) error {
	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		var statusIcon string
		switch r.status {
		case "ok":
			statusIcon = styleOK.Render("[OK]")
		case "warn":
			statusIcon = styleWarn.Render("[WARN]")
			hasWarnings = true
		case "error":
			statusIcon = styleError.Render("[ERROR]")
			hasErrors = true
		}

		fmt.Fprintf(w, "  %s %s\n", statusIcon, r.name)
		if r.message != "" {
			fmt.Fprintf(w, "       %s\n", styleDim.Render(r.message))
		}
	}

	fmt.Fprintln(w)

	if hasErrors {
		fmt.Fprintln(w, styleError.Render("Some checks failed. Please fix the errors above."))
		return &exitError{code: 1}
	}
	if hasWarnings {
		fmt.Fprintln(w, styleWarn.Render("All critical checks passed, but there are warnings."))
	} else {
		fmt.Fprintln(w, styleOK.Render("All checks passed!"))
	}
	return nil
}

// checkConfiguration always returns a usable config: the defaults when the
// file cannot be loaded.
func checkConfiguration() (*config.Config, checkResult) {
	path := config.Path()

	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return config.DefaultConfig(), checkResult{
			name:    "Configuration",
			status:  "error",
			message: fmt.Sprintf("Failed to load: %v", err),
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, checkResult{
			name:    "Configuration",
			status:  "ok",
			message: "Using defaults (no config file)",
		}
	}

	return cfg, checkResult{
		name:    "Configuration",
		status:  "ok",
		message: path,
	}
}

func checkFormatters(a *app) []checkResult {
	avail := a.formatters.Availability()
	var results []checkResult
	for _, id := range a.formatters.IDs() {
		r := checkResult{name: "Formatter " + id, status: "ok", message: "built in"}
		if f, ok := a.formatters.Get(id); ok {
			if cf, ok := f.(*format.CommandFormatter); ok {
				r.message = cf.Binary()
				if !avail[id] {
					r.status = "warn"
					r.message = cf.Binary() + " not found in PATH"
				}
			}
		}
		results = append(results, r)
	}
	return results
}

func checkLanguages(a *app) []checkResult {
	avail := a.formatters.Availability()
	var missing []string
	for _, l := range lang.All {
		usable := false
		for _, id := range a.profiles.Get(l).Formatters {
			if avail[id] {
				usable = true
				break
			}
		}
		if !usable {
			missing = append(missing, string(l))
		}
	}

	if len(missing) == 0 {
		return []checkResult{{name: "Languages", status: "ok", message: fmt.Sprintf("all %d languages have a formatter", len(lang.All))}}
	}
	return []checkResult{{
		name:    "Languages",
		status:  "warn",
		message: "no installed formatter for: " + strings.Join(missing, ", "),
	}}
}

func checkBackends(a *app) checkResult {
	if !a.cfg.AI.Enabled {
		return checkResult{name: "Generative backend", status: "ok", message: "disabled (ai.enabled=false)"}
	}

	all := a.backends.ListAll()
	names := make([]string, 0, len(all))
	for name, ok := range all {
		state := "not configured"
		if ok {
			state = "available"
		}
		names = append(names, name+": "+state)
	}
	sort.Strings(names)

	if a.backend == nil {
		return checkResult{
			name:    "Generative backend",
			status:  "warn",
			message: "none available, repair and model classification are off (" + strings.Join(names, ", ") + ")",
		}
	}
	return checkResult{
		name:    "Generative backend",
		status:  "ok",
		message: a.backend.Name() + " " + a.backend.Model(),
	}
}

func checkCache(ctx context.Context, a *app) checkResult {
	if a.cache == nil {
		return checkResult{name: "Cache", status: "ok", message: "disabled"}
	}
	if a.store == nil {
		if a.cfg.Cache.Persist {
			return checkResult{name: "Cache", status: "warn", message: "persistent tier unavailable: " + a.paths.CacheDatabase()}
		}
		return checkResult{name: "Cache", status: "ok", message: "memory only"}
	}

	stats, err := a.cache.Stats(ctx)
	if err != nil {
		return checkResult{name: "Cache", status: "error", message: err.Error()}
	}
	entries := int64(0)
	if stats.Stored != nil {
		entries = stats.Stored.TotalEntries
	}
	return checkResult{
		name:    "Cache",
		status:  "ok",
		message: fmt.Sprintf("%s (%d entries)", a.paths.CacheDatabase(), entries),
	}
}

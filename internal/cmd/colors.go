package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Output styles. Rendering follows the colour profile set by applyColorMode.
var (
	styleBold  = lipgloss.NewStyle().Bold(true)
	styleOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleError = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleKey   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	styleDim   = lipgloss.NewStyle().Faint(true)
)

// applyColorMode sets the colour profile used by every style. "auto" detects
// the profile of w and honours NO_COLOR, CLICOLOR_FORCE and TERM=dumb.
func applyColorMode(mode string, w io.Writer) error {
	switch mode {
	case "always":
		lipgloss.SetColorProfile(termenv.ANSI256)
	case "never":
		lipgloss.SetColorProfile(termenv.Ascii)
	case "auto", "":
		lipgloss.SetColorProfile(termenv.NewOutput(w).EnvColorProfile())
	default:
		return fmt.Errorf("invalid color mode: %s (must be auto, always, or never)", mode)
	}
	return nil
}

// termWidth returns the terminal width, falling back to $COLUMNS and then 80.
func termWidth() int {
	if w := getTermWidthIoctl(); w > 0 {
		return w
	}
	if w, err := strconv.Atoi(os.Getenv("COLUMNS")); err == nil && w > 0 {
		return w
	}
	return 80
}

// rule returns a horizontal separator no wider than the terminal.
func rule() string {
	return styleDim.Render(strings.Repeat("-", min(termWidth(), 60)))
}

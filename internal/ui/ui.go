// Package ui provides terminal rendering helpers for the grocer CLI.
//
// Styling is disabled automatically when stdout is not a terminal or when
// the environment asks for no color (NO_COLOR et al.), so command output
// stays pipeable.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/grocersync/grocer/internal/status"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")) // blue
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // gray
)

// colorEnabled reports whether styled output should be produced.
func colorEnabled() bool {
	if termenv.EnvNoColor() {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func render(style lipgloss.Style, s string) string {
	if !colorEnabled() {
		return s
	}
	return style.Render(s)
}

// RenderAccent renders s in the accent color.
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderPass renders s in the success color.
func RenderPass(s string) string { return render(passStyle, s) }

// RenderWarn renders s in the warning color.
func RenderWarn(s string) string { return render(warnStyle, s) }

// RenderErr renders s in the error color.
func RenderErr(s string) string { return render(errStyle, s) }

// RenderMuted renders s dimmed.
func RenderMuted(s string) string { return render(mutedStyle, s) }

// RenderStatus renders a sync status label in its conventional color:
// syncing in the accent color, synced in green, error in red, idle dimmed.
func RenderStatus(s status.Status) string {
	switch s {
	case status.Syncing:
		return RenderAccent(s.String())
	case status.Synced:
		return RenderPass(s.String())
	case status.Error:
		return RenderErr(s.String())
	default:
		return RenderMuted(s.String())
	}
}

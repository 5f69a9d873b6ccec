package cliapp

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

type styles struct {
	title   lipgloss.Style
	label   lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style
}

// newStyles detects the color profile of out. Non-terminal writers and
// --no-color render plain text.
func newStyles(cmd *cobra.Command, out io.Writer) styles {
	r := lipgloss.NewRenderer(out)
	if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
		r.SetColorProfile(termenv.Ascii)
	}
	return styles{
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#3B82F6")),
		label:   r.NewStyle().Width(16).Foreground(lipgloss.Color("#9CA3AF")),
		success: r.NewStyle().Foreground(lipgloss.Color("#34D399")),
		failure: r.NewStyle().Foreground(lipgloss.Color("#F87171")),
		muted:   r.NewStyle().Faint(true),
	}
}

package terminal

import "github.com/charmbracelet/lipgloss"

type styles struct {
	debug       lipgloss.Style
	info        lipgloss.Style
	warn        lipgloss.Style
	error       lipgloss.Style
	message     lipgloss.Style
	returnValue lipgloss.Style
	blockTitle  lipgloss.Style
	block       lipgloss.Style
}

func newStyles() styles {
	return styles{
		debug:       lipgloss.NewStyle().Faint(true),
		info:        lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		warn:        lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		error:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		message:     lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		returnValue: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		blockTitle:  lipgloss.NewStyle().Bold(true),
		block: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("241")).
			Padding(0, 1),
	}
}

package tui

import "github.com/charmbracelet/lipgloss"

// styles holds the lipgloss styles for the dashboard. Colours follow the
// web dashboard.
type styles struct {
	Title     lipgloss.Style
	Panel     lipgloss.Style
	Label     lipgloss.Style
	Text      lipgloss.Style
	Muted     lipgloss.Style
	Online    lipgloss.Style
	Offline   lipgloss.Style
	Banner    lipgloss.Style
	Danger    lipgloss.Style
	Timestamp lipgloss.Style
	Battery   map[string]lipgloss.Style
	BarEmpty  lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		Title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F3F4F6")),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#374151")).
			Padding(0, 1),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")).Width(10),
		Text:    lipgloss.NewStyle().Foreground(lipgloss.Color("#F3F4F6")),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")),
		Online:  lipgloss.NewStyle().Foreground(lipgloss.Color("#22C55E")).Bold(true),
		Offline: lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true),
		Banner: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#EF4444")).
			Padding(0, 1),
		Danger:    lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true),
		Timestamp: lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")),
		Battery: map[string]lipgloss.Style{
			"high":     lipgloss.NewStyle().Foreground(lipgloss.Color("#22C55E")),
			"ok":       lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6")),
			"low":      lipgloss.NewStyle().Foreground(lipgloss.Color("#EAB308")),
			"critical": lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")),
		},
		BarEmpty: lipgloss.NewStyle().Foreground(lipgloss.Color("#374151")),
	}
}

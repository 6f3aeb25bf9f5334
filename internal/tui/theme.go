package tui

import "github.com/charmbracelet/lipgloss"

// Theme defines the color palette for the dashboard.
// Inspired by btop and Tokyo Night color scheme.
type Theme struct {
	BgDark   lipgloss.Color
	BgPanel  lipgloss.Color
	BgAccent lipgloss.Color

	TextPrimary lipgloss.Color
	TextDim     lipgloss.Color
	TextMuted   lipgloss.Color

	Border        lipgloss.Color
	BorderFocused lipgloss.Color

	Accent  lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Info    lipgloss.Color

	Running lipgloss.Color
	Pending lipgloss.Color
}

// DefaultTheme is the default dark theme.
var DefaultTheme = Theme{
	BgDark:   lipgloss.Color("#1a1b26"),
	BgPanel:  lipgloss.Color("#24283b"),
	BgAccent: lipgloss.Color("#414868"),

	TextPrimary: lipgloss.Color("#c0caf5"),
	TextDim:     lipgloss.Color("#565f89"),
	TextMuted:   lipgloss.Color("#414868"),

	Border:        lipgloss.Color("#414868"),
	BorderFocused: lipgloss.Color("#7aa2f7"),

	Accent:  lipgloss.Color("#7aa2f7"),
	Success: lipgloss.Color("#9ece6a"),
	Warning: lipgloss.Color("#e0af68"),
	Error:   lipgloss.Color("#f7768e"),
	Info:    lipgloss.Color("#7dcfff"),

	Running: lipgloss.Color("#e0af68"),
	Pending: lipgloss.Color("#565f89"),
}

// Styles provides pre-configured lipgloss styles using the theme.
type Styles struct {
	Base    lipgloss.Style
	Dim     lipgloss.Style
	Muted   lipgloss.Style
	Bold    lipgloss.Style
	Title   lipgloss.Style
	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Info    lipgloss.Style
	Running lipgloss.Style

	Panel      lipgloss.Style
	PanelTitle lipgloss.Style
	KeyBinding lipgloss.Style
	KeyHint    lipgloss.Style
	Footer     lipgloss.Style
}

// NewStyles creates a Styles instance from a Theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Base:  lipgloss.NewStyle().Foreground(t.TextPrimary),
		Dim:   lipgloss.NewStyle().Foreground(t.TextDim),
		Muted: lipgloss.NewStyle().Foreground(t.TextMuted),
		Bold:  lipgloss.NewStyle().Foreground(t.TextPrimary).Bold(true),
		Title: lipgloss.NewStyle().
			Foreground(t.Accent).
			Bold(true).
			Padding(0, 1),
		Header: lipgloss.NewStyle().
			Foreground(t.Accent).
			Bold(true),
		Success: lipgloss.NewStyle().Foreground(t.Success),
		Warning: lipgloss.NewStyle().Foreground(t.Warning),
		Error:   lipgloss.NewStyle().Foreground(t.Error),
		Info:    lipgloss.NewStyle().Foreground(t.Info),
		Running: lipgloss.NewStyle().Foreground(t.Running).Bold(true),

		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Border).
			Padding(0, 1),
		PanelTitle: lipgloss.NewStyle().
			Foreground(t.Accent).
			Bold(true).
			Padding(0, 1),
		KeyBinding: lipgloss.NewStyle().
			Foreground(t.Accent).
			Bold(true),
		KeyHint: lipgloss.NewStyle().
			Foreground(t.TextDim),
		Footer: lipgloss.NewStyle().
			Foreground(t.TextDim),
	}
}

// DefaultStyles returns styles using the default theme.
var DefaultStyles = NewStyles(DefaultTheme)

// StateIcon returns a colored indicator for a session state string.
func StateIcon(state string, s Styles) string {
	switch state {
	case "running":
		return s.Running.Render("●")
	case "paused":
		return s.Warning.Render("●")
	case "completed":
		return s.Success.Render("●")
	case "stopping", "starting":
		return s.Info.Render("●")
	default:
		return s.Dim.Render("○")
	}
}

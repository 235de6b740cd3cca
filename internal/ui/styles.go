package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Colors for the UI theme - Muted Professional Palette
var (
	ColorPrimary   = lipgloss.Color("#A78BFA") // Soft Purple (Lavender 400)
	ColorSecondary = lipgloss.Color("#22D3EE") // Bright Cyan (Cyan 400)
	ColorSuccess   = lipgloss.Color("#059669") // Emerald 600 (muted green)
	ColorWarning   = lipgloss.Color("#D97706") // Amber 600 (muted amber)
	ColorError     = lipgloss.Color("#DC2626") // Red 600 (muted red)
	ColorMuted     = lipgloss.Color("#9CA3AF") // Neutral Gray (Gray 400)
	ColorText      = lipgloss.Color("#F1F5F9") // Soft White (Slate 100)

	ColorBorder    = lipgloss.Color("#1E293B") // Subtle Slate Border
	ColorHighlight = lipgloss.Color("#E9D5FF") // Soft Purple (Purple 200)
	ColorDim       = lipgloss.Color("#6B7280") // Gray 500
	ColorAccent    = lipgloss.Color("#F472B6") // Pink Accent (Pink 400)
	ColorInfo      = lipgloss.Color("#2DD4BF") // Teal Info (Teal 400)
)

// ActionIcons marks rule actions in the list view.
var ActionIcons = map[string]string{
	"allow": "✓",
	"ask":   "?",
	"deny":  "✗",
}

// Styles holds the lipgloss styles used across the editor and wizard.
type Styles struct {
	Title       lipgloss.Style
	TabActive   lipgloss.Style
	Tab         lipgloss.Style
	TabBar      lipgloss.Style
	Heading     lipgloss.Style
	Selected    lipgloss.Style
	Row         lipgloss.Style
	Protected   lipgloss.Style
	Locked      lipgloss.Style
	Changed     lipgloss.Style
	Value       lipgloss.Style
	Label       lipgloss.Style
	Help        lipgloss.Style
	StatusOK    lipgloss.Style
	StatusErr   lipgloss.Style
	StatusWarn  lipgloss.Style
	Banner      lipgloss.Style
	Dialog      lipgloss.Style
	DialogTitle lipgloss.Style
	Button      lipgloss.Style
	ButtonFocus lipgloss.Style
}

// DefaultStyles returns the default style set.
func DefaultStyles() *Styles {
	return &Styles{
		Title: lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true),
		TabActive: lipgloss.NewStyle().
			Foreground(ColorText).
			Background(ColorPrimary).
			Bold(true).
			Padding(0, 2),
		Tab: lipgloss.NewStyle().
			Foreground(ColorMuted).
			Padding(0, 2),
		TabBar: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(ColorBorder),
		Heading: lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Bold(true).
			MarginTop(1),
		Selected: lipgloss.NewStyle().
			Foreground(ColorHighlight).
			Bold(true),
		Row: lipgloss.NewStyle().
			Foreground(ColorText),
		Protected: lipgloss.NewStyle().
			Foreground(ColorDim).
			Italic(true),
		Locked: lipgloss.NewStyle().
			Foreground(ColorMuted),
		Changed: lipgloss.NewStyle().
			Foreground(ColorWarning),
		Value: lipgloss.NewStyle().
			Foreground(ColorInfo),
		Label: lipgloss.NewStyle().
			Foreground(ColorText),
		Help: lipgloss.NewStyle().
			Foreground(ColorDim),
		StatusOK: lipgloss.NewStyle().
			Foreground(ColorSuccess),
		StatusErr: lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true),
		StatusWarn: lipgloss.NewStyle().
			Foreground(ColorWarning),
		Banner: lipgloss.NewStyle().
			Foreground(ColorWarning).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorWarning).
			Padding(0, 1),
		Dialog: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorPrimary).
			Padding(1, 2),
		DialogTitle: lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true),
		Button: lipgloss.NewStyle().
			Foreground(ColorMuted).
			Padding(0, 2),
		ButtonFocus: lipgloss.NewStyle().
			Foreground(ColorText).
			Background(ColorPrimary).
			Bold(true).
			Padding(0, 2),
	}
}

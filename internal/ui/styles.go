package ui

import (
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Theme represents the current color scheme
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

// currentTheme holds the active theme (set at init)
var currentTheme Theme = ThemeDark

// Dark Theme - Tokyo Night
var darkColors = struct {
	Bg, Surface, Border, Text, TextDim lipgloss.Color
	Accent, Purple, Cyan, Green        lipgloss.Color
	Yellow, Red, Comment               lipgloss.Color
}{
	Bg:      lipgloss.Color("#1a1b26"),
	Surface: lipgloss.Color("#24283b"),
	Border:  lipgloss.Color("#414868"),
	Text:    lipgloss.Color("#c0caf5"),
	TextDim: lipgloss.Color("#787fa0"),
	Accent:  lipgloss.Color("#7aa2f7"),
	Purple:  lipgloss.Color("#bb9af7"),
	Cyan:    lipgloss.Color("#7dcfff"),
	Green:   lipgloss.Color("#9ece6a"),
	Yellow:  lipgloss.Color("#e0af68"),
	Red:     lipgloss.Color("#f7768e"),
	Comment: lipgloss.Color("#787fa0"),
}

// Light Theme - Tokyo Night Light variant
var lightColors = struct {
	Bg, Surface, Border, Text, TextDim lipgloss.Color
	Accent, Purple, Cyan, Green        lipgloss.Color
	Yellow, Red, Comment               lipgloss.Color
}{
	Bg:      lipgloss.Color("#d5d6db"),
	Surface: lipgloss.Color("#e9e9ec"),
	Border:  lipgloss.Color("#9699a3"),
	Text:    lipgloss.Color("#343b58"),
	TextDim: lipgloss.Color("#6a6d7c"),
	Accent:  lipgloss.Color("#34548a"),
	Purple:  lipgloss.Color("#7847bd"),
	Cyan:    lipgloss.Color("#166775"),
	Green:   lipgloss.Color("#485e30"),
	Yellow:  lipgloss.Color("#8f5e15"),
	Red:     lipgloss.Color("#8c4351"),
	Comment: lipgloss.Color("#6a6d7c"),
}

// Active color variables (set by InitTheme)
var (
	ColorBg      lipgloss.Color
	ColorSurface lipgloss.Color
	ColorBorder  lipgloss.Color
	ColorText    lipgloss.Color
	ColorTextDim lipgloss.Color
	ColorAccent  lipgloss.Color
	ColorPurple  lipgloss.Color
	ColorCyan    lipgloss.Color
	ColorGreen   lipgloss.Color
	ColorYellow  lipgloss.Color
	ColorRed     lipgloss.Color
	ColorComment lipgloss.Color
)

// themeMu protects global color/style variables during live theme switches.
var themeMu sync.RWMutex

// InitTheme sets the active color palette based on theme name.
// Must be called before any UI rendering.
func InitTheme(theme string) {
	themeMu.Lock()
	defer themeMu.Unlock()
	if theme == "light" {
		currentTheme = ThemeLight
		ColorBg = lightColors.Bg
		ColorSurface = lightColors.Surface
		ColorBorder = lightColors.Border
		ColorText = lightColors.Text
		ColorTextDim = lightColors.TextDim
		ColorAccent = lightColors.Accent
		ColorPurple = lightColors.Purple
		ColorCyan = lightColors.Cyan
		ColorGreen = lightColors.Green
		ColorYellow = lightColors.Yellow
		ColorRed = lightColors.Red
		ColorComment = lightColors.Comment
	} else {
		currentTheme = ThemeDark
		ColorBg = darkColors.Bg
		ColorSurface = darkColors.Surface
		ColorBorder = darkColors.Border
		ColorText = darkColors.Text
		ColorTextDim = darkColors.TextDim
		ColorAccent = darkColors.Accent
		ColorPurple = darkColors.Purple
		ColorCyan = darkColors.Cyan
		ColorGreen = darkColors.Green
		ColorYellow = darkColors.Yellow
		ColorRed = darkColors.Red
		ColorComment = darkColors.Comment
	}
	initStyles()
}

// GetCurrentTheme returns the active theme
func GetCurrentTheme() Theme {
	return currentTheme
}

func init() {
	InitTheme("dark")
}

// Base Styles
var (
	TitleStyle     lipgloss.Style
	PanelStyle     lipgloss.Style
	HighlightStyle lipgloss.Style
	DimStyle       lipgloss.Style
	ErrorStyle     lipgloss.Style
)

// List Styles
var (
	ListItemStyle       lipgloss.Style
	ListItemActiveStyle lipgloss.Style
	ListCountStyle      lipgloss.Style
)

// Preview Styles
var (
	PreviewTitleStyle lipgloss.Style
	PreviewGroupStyle lipgloss.Style
	PreviewFileStyle  lipgloss.Style
)

// Menu Bar Styles
var (
	MenuBarStyle  lipgloss.Style
	MenuKeyStyle  lipgloss.Style
	MenuDescStyle lipgloss.Style
)

// Filter Styles
var (
	FilterBoxStyle    lipgloss.Style
	FilterPromptStyle lipgloss.Style
)

// Dialog Styles
var (
	DialogBoxStyle   lipgloss.Style
	DialogTitleStyle lipgloss.Style
)

// initStyles initializes all style variables with current theme colors.
// Called by InitTheme after color variables are set.
func initStyles() {
	TitleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorAccent).
		Background(ColorSurface).
		Padding(0, 1)

	PanelStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1)

	HighlightStyle = lipgloss.NewStyle().
		Foreground(ColorBg).
		Background(ColorAccent).
		Bold(true)

	DimStyle = lipgloss.NewStyle().
		Foreground(ColorComment)

	ErrorStyle = lipgloss.NewStyle().
		Foreground(ColorRed).
		Bold(true)

	ListItemStyle = lipgloss.NewStyle().
		Foreground(ColorText).
		Padding(0, 1)

	ListItemActiveStyle = lipgloss.NewStyle().
		Foreground(ColorBg).
		Background(ColorAccent).
		Bold(true).
		Padding(0, 1)

	ListCountStyle = lipgloss.NewStyle().
		Foreground(ColorTextDim)

	PreviewTitleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorCyan)

	PreviewGroupStyle = lipgloss.NewStyle().
		Foreground(ColorPurple)

	PreviewFileStyle = lipgloss.NewStyle().
		Foreground(ColorText)

	MenuBarStyle = lipgloss.NewStyle().
		Background(ColorSurface).
		Padding(0, 1)

	MenuKeyStyle = lipgloss.NewStyle().
		Foreground(ColorAccent).
		Bold(true)

	MenuDescStyle = lipgloss.NewStyle().
		Foreground(ColorTextDim)

	FilterBoxStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorAccent).
		Padding(0, 1)

	FilterPromptStyle = lipgloss.NewStyle().
		Foreground(ColorAccent).
		Bold(true)

	DialogBoxStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorRed).
		Padding(1, 2)

	DialogTitleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorRed)
}

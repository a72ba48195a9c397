package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary   = lipgloss.Color("#7D56F4")
	colorSecondary = lipgloss.Color("#F4A956")
	colorText      = lipgloss.Color("#FAFAFA")
	colorSubtext   = lipgloss.Color("#777777")
	colorSuccess   = lipgloss.Color("#43BF6D")
	colorError     = lipgloss.Color("#FF5F5F")

	styleWindow = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(colorPrimary).
			Align(lipgloss.Center)

	// Panels carry their title on the first content line.
	stylePanel = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(colorSubtext).
			Padding(0, 1)

	styleTitle = lipgloss.NewStyle().
			Background(colorPrimary).
			Foreground(colorText).
			Padding(0, 1).
			Bold(true)

	styleAppTitle = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true).
			Padding(0, 1).
			Align(lipgloss.Center)

	styleSelected = lipgloss.NewStyle().
			Foreground(colorSecondary).
			Bold(true)

	styleLabel = lipgloss.NewStyle().
			Foreground(colorSubtext).
			Width(10)

	styleValue   = lipgloss.NewStyle().Foreground(colorText)
	styleSubtext = lipgloss.NewStyle().Foreground(colorSubtext)
	styleError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)

	styleKey  = lipgloss.NewStyle().Foreground(colorSecondary).Bold(true)
	styleDesc = lipgloss.NewStyle().Foreground(colorSubtext)

	styleFooter = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder()).
			BorderForeground(colorSubtext).
			Padding(0, 1)

	styleMenuContainer = lipgloss.NewStyle().
				Padding(1)

	styleMenuItem = lipgloss.NewStyle().
			Foreground(colorText).
			Border(lipgloss.ThickBorder()).
			BorderForeground(colorSubtext).
			Padding(1, 4).
			Margin(0, 1).
			Align(lipgloss.Center).
			Width(22)

	styleMenuItemSelected = styleMenuItem.
				Foreground(colorText).
				BorderForeground(colorSecondary).
				Bold(true)

	styleScreenTooSmall = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true).
				Align(lipgloss.Center, lipgloss.Center)

	scrollbarTrack = lipgloss.NewStyle().
			Foreground(colorSubtext)

	scrollbarThumb = lipgloss.NewStyle().
			Foreground(colorPrimary)
)

// hint renders a footer key hint: the key in orange, the action in gray.
func hint(key, desc string) string {
	return styleKey.Render(key) + styleDesc.Render(" "+desc)
}

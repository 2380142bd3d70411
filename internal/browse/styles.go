package browse

import "github.com/charmbracelet/lipgloss"

var (
	promptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	kindStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	nameStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	containerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	cursorStyle    = lipgloss.NewStyle().Background(lipgloss.Color("236"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

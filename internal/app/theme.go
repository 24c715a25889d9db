package app

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	dividerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("117")).Bold(true)
	metaStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Faint(true)
	copiedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("70")).Bold(true)
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("110"))
	fileStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("180"))
)

package theme

import "charm.land/lipgloss/v2"

// Styles contains all pre-built lipgloss styles for the TUI.
type Styles struct {
	HeaderTitle lipgloss.Style
	HeaderUser  lipgloss.Style

	ModalContainer lipgloss.Style
	ModalTitle     lipgloss.Style
	SectionTitle   lipgloss.Style

	Item         lipgloss.Style
	ItemSelected lipgloss.Style
	ItemDetail   lipgloss.Style

	Label   lipgloss.Style
	Value   lipgloss.Style
	Muted   lipgloss.Style
	Error   lipgloss.Style
	Success lipgloss.Style
	Banner  lipgloss.Style

	ButtonNormal   lipgloss.Style
	ButtonFocused  lipgloss.Style
	ButtonDisabled lipgloss.Style

	HintKey       lipgloss.Style
	HintDesc      lipgloss.Style
	HintSeparator lipgloss.Style

	Spinner lipgloss.Style
}

// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program for the chat UI
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Controls holds channels carrying user intents out of the TUI.
type Controls struct {
	SendText      chan string
	GenerateImage chan string
	ToggleVoice   chan struct{}
	ClearHistory  chan struct{}
	ClearError    chan struct{}
	Quit          chan struct{}
}

// NewControls creates a control handler with buffered channels so the
// TUI never blocks on a slow consumer.
func NewControls() *Controls {
	return &Controls{
		SendText:      make(chan string, 4),
		GenerateImage: make(chan string, 4),
		ToggleVoice:   make(chan struct{}, 1),
		ClearHistory:  make(chan struct{}, 1),
		ClearError:    make(chan struct{}, 1),
		Quit:          make(chan struct{}, 1),
	}
}

// Run starts the TUI program.
func Run(controls *Controls) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(controls), tea.WithAltScreen())
	return p, nil
}

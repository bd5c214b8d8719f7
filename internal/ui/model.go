// ABOUTME: Bubbletea model for the voice chat TUI
// ABOUTME: Renders history, live transcript preview, and the input line
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/voxline/voxline-go/internal/history"
)

// imageCommand prefixes an input line that requests image generation.
const imageCommand = "/image "

// Model represents the TUI state
type Model struct {
	// Session
	sessionState string
	replying     bool
	errMsg       string

	// Conversation
	messages   []history.Message
	previewIn  string
	previewOut string

	// Input
	input string

	// Dimensions
	width  int
	height int

	controls *Controls
}

// NewModel creates a new TUI model
func NewModel(controls *Controls) Model {
	return Model{
		sessionState: "idle",
		controls:     controls,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	case HistoryMsg:
		m.messages = msg
	case PreviewMsg:
		m.previewIn = msg.Input
		m.previewOut = msg.Output
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := m.renderHeader()
	s += m.renderMessages()
	s += m.renderPreview()
	s += m.renderInput()
	s += m.renderHelp()
	return s
}

func (m Model) renderHeader() string {
	status := m.sessionState
	if m.replying {
		status += " (speaking)"
	}
	if m.errMsg != "" {
		status = "error"
	}
	return fmt.Sprintf("── Voxline ─ %s %s\n", status, strings.Repeat("─", m.barWidth(14+len(status))))
}

func (m Model) renderMessages() string {
	// Last messages that fit; history itself is unbounded.
	visible := m.visibleLines()
	start := 0
	if len(m.messages) > visible {
		start = len(m.messages) - visible
	}

	var b strings.Builder
	for _, msg := range m.messages[start:] {
		prefix := "you"
		if msg.Role == history.RoleModel {
			prefix = " ai"
		}
		text := msg.Text
		if msg.ImageURL != "" {
			text = strings.TrimSpace(text + " [image]")
		}
		b.WriteString(fmt.Sprintf("%s│ %s\n", prefix, truncate(text, m.width-6)))
	}
	for i := len(m.messages[start:]); i < visible; i++ {
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderPreview() string {
	if m.previewIn == "" && m.previewOut == "" {
		return "\n"
	}
	s := ""
	if m.previewIn != "" {
		s += fmt.Sprintf("you… %s\n", truncate(m.previewIn, m.width-6))
	}
	if m.previewOut != "" {
		s += fmt.Sprintf(" ai… %s\n", truncate(m.previewOut, m.width-6))
	}
	return s
}

func (m Model) renderInput() string {
	if m.errMsg != "" {
		return fmt.Sprintf("! %s\n", truncate(m.errMsg, m.width-4))
	}
	return fmt.Sprintf("> %s█\n", m.input)
}

func (m Model) renderHelp() string {
	if m.errMsg != "" {
		return "esc:Dismiss  ctrl+c:Quit\n"
	}
	return "enter:Send  /image <prompt>  ctrl+v:Voice  ctrl+l:Clear  ctrl+c:Quit\n"
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.signal(m.quitChan())
		return m, tea.Quit
	case "esc":
		if m.errMsg != "" {
			m.errMsg = ""
			m.signal(m.clearErrorChan())
		}
		return m, nil
	case "ctrl+v":
		m.signal(m.toggleVoiceChan())
		return m, nil
	case "ctrl+l":
		m.signal(m.clearHistoryChan())
		return m, nil
	case "enter":
		return m.submit(), nil
	case "backspace":
		if len(m.input) > 0 {
			runes := []rune(m.input)
			m.input = string(runes[:len(runes)-1])
		}
		return m, nil
	}

	if msg.Type == tea.KeyRunes {
		m.input += string(msg.Runes)
	} else if msg.Type == tea.KeySpace {
		m.input += " "
	}
	return m, nil
}

// submit routes the input line as a text turn or an image command.
func (m Model) submit() Model {
	line := strings.TrimSpace(m.input)
	if line == "" {
		return m
	}
	m.input = ""

	if prompt, ok := strings.CutPrefix(line, imageCommand); ok {
		m.send(m.generateImageChan(), strings.TrimSpace(prompt))
		return m
	}
	m.send(m.sendTextChan(), line)
	return m
}

// applyStatus updates model from a status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.SessionState != "" {
		m.sessionState = msg.SessionState
	}
	if msg.Replying != nil {
		m.replying = *msg.Replying
	}
	if msg.Error != nil {
		m.errMsg = *msg.Error
	}
}

// StatusMsg updates session status shown by the TUI. Nil pointer fields
// leave the current value untouched; an empty-string Error clears it.
type StatusMsg struct {
	SessionState string
	Replying     *bool
	Error        *string
}

// HistoryMsg replaces the rendered message list.
type HistoryMsg []history.Message

// PreviewMsg carries the live transcription partials.
type PreviewMsg struct {
	Input  string
	Output string
}

// Channel accessors tolerate a nil Controls so the model is testable
// standalone.

func (m Model) quitChan() chan struct{} {
	if m.controls == nil {
		return nil
	}
	return m.controls.Quit
}

func (m Model) toggleVoiceChan() chan struct{} {
	if m.controls == nil {
		return nil
	}
	return m.controls.ToggleVoice
}

func (m Model) clearHistoryChan() chan struct{} {
	if m.controls == nil {
		return nil
	}
	return m.controls.ClearHistory
}

func (m Model) clearErrorChan() chan struct{} {
	if m.controls == nil {
		return nil
	}
	return m.controls.ClearError
}

func (m Model) sendTextChan() chan string {
	if m.controls == nil {
		return nil
	}
	return m.controls.SendText
}

func (m Model) generateImageChan() chan string {
	if m.controls == nil {
		return nil
	}
	return m.controls.GenerateImage
}

func (m Model) signal(ch chan struct{}) {
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (m Model) send(ch chan string, v string) {
	if ch == nil {
		return
	}
	select {
	case ch <- v:
	default:
	}
}

func (m Model) visibleLines() int {
	lines := m.height - 6
	if lines < 1 {
		lines = 1
	}
	return lines
}

func (m Model) barWidth(used int) int {
	w := m.width - used
	if w < 0 {
		w = 0
	}
	return w
}

// truncate shortens to length runes; byte slicing would split
// multi-byte characters.
func truncate(s string, length int) string {
	if length < 4 {
		length = 4
	}
	runes := []rune(s)
	if len(runes) <= length {
		return s
	}
	return string(runes[:length-3]) + "..."
}

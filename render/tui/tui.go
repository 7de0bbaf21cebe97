// Package tui is a full-screen live chat view built on bubbletea. Messages
// reach the program through Renderer, which sits behind chat.Consume.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/onnwee/chatter/chat"
	"github.com/onnwee/chatter/render"
)

// DefaultScrollback is how many messages the view keeps.
const DefaultScrollback = 1000

const statusRefresh = time.Second

// MessageMsg carries one chat message into the program.
type MessageMsg chat.Message

type statusMsg []chat.AdapterStatus

// Sender is the part of *tea.Program the renderer needs.
type Sender interface {
	Send(msg tea.Msg)
}

// Renderer forwards messages to a running program.
type Renderer struct {
	s Sender
}

func NewRenderer(s Sender) *Renderer {
	return &Renderer{s: s}
}

func (r *Renderer) Render(m chat.Message) {
	r.s.Send(MessageMsg(m))
}

// StatusFunc reports the adapters shown in the header.
type StatusFunc func() []chat.AdapterStatus

// Model is the bubbletea model for the chat view.
type Model struct {
	status     StatusFunc
	scrollback int
	styles     render.Styles
	header     lipgloss.Style
	muted      lipgloss.Style

	lines    []chat.Message
	adapters []chat.AdapterStatus
	width    int
	height   int
	paused   bool
}

// New returns a Model. status may be nil.
func New(status StatusFunc, scrollback int) Model {
	if scrollback <= 0 {
		scrollback = DefaultScrollback
	}
	r := lipgloss.DefaultRenderer()
	return Model{
		status:     status,
		scrollback: scrollback,
		styles:     render.NewStyles(r),
		header:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")),
		muted:      r.NewStyle().Foreground(lipgloss.Color("#6B7280")),
	}
}

func (m Model) Init() tea.Cmd {
	return m.pollStatus()
}

func (m Model) pollStatus() tea.Cmd {
	if m.status == nil {
		return nil
	}
	status := m.status
	return func() tea.Msg { return statusMsg(status()) }
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "c":
			m.lines = nil
		case "p", " ":
			m.paused = !m.paused
		}
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case MessageMsg:
		if m.paused {
			return m, nil
		}
		m.lines = append(m.lines, chat.Message(msg))
		if over := len(m.lines) - m.scrollback; over > 0 {
			m.lines = append(m.lines[:0:0], m.lines[over:]...)
		}
	case statusMsg:
		m.adapters = msg
		return m, tea.Tick(statusRefresh, func(time.Time) tea.Msg {
			return refreshMsg{}
		})
	case refreshMsg:
		return m, m.pollStatus()
	}
	return m, nil
}

type refreshMsg struct{}

// Lines returns the messages currently held.
func (m Model) Lines() []chat.Message {
	return m.lines
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.header.Render("chatter"))
	if summary := m.summary(); summary != "" {
		b.WriteString(" " + m.muted.Render(summary))
	}
	if m.paused {
		b.WriteString(" " + m.muted.Render("(paused)"))
	}
	b.WriteString("\n")

	visible := m.lines
	if m.height > 3 && len(visible) > m.height-3 {
		visible = visible[len(visible)-(m.height-3):]
	}
	for _, line := range visible {
		b.WriteString(m.styles.Line(line))
		b.WriteString("\n")
	}
	b.WriteString(m.muted.Render("q quit · c clear · p pause"))
	return b.String()
}

// summary renders "active 2 · failed 1".
func (m Model) summary() string {
	if len(m.adapters) == 0 {
		return ""
	}
	counts := map[string]int{}
	for _, a := range m.adapters {
		counts[a.State]++
	}
	states := make([]string, 0, len(counts))
	for s := range counts {
		states = append(states, s)
	}
	sort.Strings(states)
	parts := make([]string, 0, len(states))
	for _, s := range states {
		parts = append(parts, fmt.Sprintf("%s %d", s, counts[s]))
	}
	return strings.Join(parts, " · ")
}

// Package render holds the chat.Renderer implementations the binary can
// print to: a coloured terminal writer, a structured log and a fan-out.
package render

import (
	"io"
	"log/slog"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/onnwee/chatter/chat"
)

// Platform colours, one per tag.
var platformColors = map[chat.Platform]lipgloss.Color{
	chat.PlatformYouTube: lipgloss.Color("#EF4444"), // Red
	chat.PlatformTwitch:  lipgloss.Color("#9146FF"), // Purple
	chat.PlatformKick:    lipgloss.Color("#53FC18"), // Green
	chat.PlatformDiscord: lipgloss.Color("#5865F2"), // Blurple
	chat.PlatformRelay:   lipgloss.Color("#F59E0B"), // Amber
}

// Styles are the lipgloss styles used for one message line.
type Styles struct {
	Tags   map[chat.Platform]lipgloss.Style
	Author lipgloss.Style
	Body   lipgloss.Style
}

// NewStyles builds Styles for r. Colour is dropped automatically when r's
// output is not a terminal.
func NewStyles(r *lipgloss.Renderer) Styles {
	s := Styles{
		Tags:   make(map[chat.Platform]lipgloss.Style, len(platformColors)),
		Author: r.NewStyle().Bold(true),
		Body:   r.NewStyle(),
	}
	for p, c := range platformColors {
		s.Tags[p] = r.NewStyle().Bold(true).Foreground(c)
	}
	return s
}

// Line formats m as "[YT] <author> body" with styling applied.
func (s Styles) Line(m chat.Message) string {
	tag, ok := s.Tags[m.Platform]
	if !ok {
		tag = s.Body
	}
	return tag.Render("["+m.Platform.Tag()+"]") + " " +
		s.Author.Render("<"+m.Author+">") + " " +
		s.Body.Render(m.Body)
}

// Terminal writes one line per message to w.
type Terminal struct {
	mu     sync.Mutex
	w      io.Writer
	styles Styles
}

func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w, styles: NewStyles(lipgloss.NewRenderer(w))}
}

func (t *Terminal) Render(m chat.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = io.WriteString(t.w, t.styles.Line(m)+"\n")
}

// Log records each message as a structured log entry.
type Log struct {
	log *slog.Logger
}

func NewLog(log *slog.Logger) *Log {
	if log == nil {
		log = slog.Default()
	}
	return &Log{log: log}
}

func (l *Log) Render(m chat.Message) {
	l.log.Info("chat message",
		slog.String("platform", string(m.Platform)),
		slog.String("author", m.Author),
		slog.String("body", m.Body))
}

// Multi hands every message to each renderer in order.
type Multi []chat.Renderer

func (ms Multi) Render(m chat.Message) {
	for _, r := range ms {
		r.Render(m)
	}
}

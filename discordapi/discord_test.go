package discordapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/chatter/chat"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeSession struct {
	mu       sync.Mutex
	handlers []interface{}
	opened   chan struct{}
	openErr  error
	closes   int
}

func newFakeSession() *fakeSession { return &fakeSession{opened: make(chan struct{})} }

func (f *fakeSession) AddHandler(h interface{}) func() {
	f.mu.Lock()
	f.handlers = append(f.handlers, h)
	f.mu.Unlock()
	return func() {}
}

func (f *fakeSession) Open() error {
	close(f.opened)
	return f.openErr
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	f.dispatch(&discordgo.Disconnect{})
	return nil
}

// dispatch calls every handler registered for the event's type.
func (f *fakeSession) dispatch(event interface{}) {
	f.mu.Lock()
	hs := append([]interface{}(nil), f.handlers...)
	f.mu.Unlock()
	for _, h := range hs {
		switch fn := h.(type) {
		case func(*discordgo.Session, *discordgo.Ready):
			if e, ok := event.(*discordgo.Ready); ok {
				fn(nil, e)
			}
		case func(*discordgo.Session, *discordgo.MessageCreate):
			if e, ok := event.(*discordgo.MessageCreate); ok {
				fn(nil, e)
			}
		case func(*discordgo.Session, *discordgo.Disconnect):
			if e, ok := event.(*discordgo.Disconnect); ok {
				fn(nil, e)
			}
		}
	}
}

func message(channel, author, global string, bot bool, content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ChannelID: channel,
		Content:   content,
		Author:    &discordgo.User{Username: author, GlobalName: global, Bot: bot},
	}}
}

func start(t *testing.T, f *fakeSession, acct chat.Account) (*Adapter, *chat.Bus, *string) {
	t.Helper()
	var token string
	a := New(0, acct, func(tok string) (session, error) {
		token = tok
		return f, nil
	}, quietLogger())
	bus := chat.NewBus()
	a.Subscribe(bus)
	a.Connect(context.Background())
	return a, bus, &token
}

func TestAdapterFiltersMessages(t *testing.T) {
	f := newFakeSession()
	a, bus, token := start(t, f, chat.Account{Channel: "123", Credential: "Bot s3cret"})
	<-f.opened
	assert.Equal(t, "s3cret", *token)

	f.dispatch(&discordgo.Ready{})
	require.Equal(t, chat.StateActive, a.State())

	f.dispatch(message("123", "alice", "Alice A", false, "hi"))
	f.dispatch(message("999", "bob", "", false, "other channel"))
	f.dispatch(message("123", "helper", "", true, "beep"))
	f.dispatch(message("123", "carol", "", false, ""))
	f.dispatch(message("123", "dave", "", false, "yo"))

	var lines []string
	for {
		m, ok := bus.TryTake()
		if !ok {
			break
		}
		lines = append(lines, m.String())
	}
	assert.Equal(t, []string{"[DC] <Alice A> hi", "[DC] <dave> yo"}, lines)

	require.NoError(t, a.Disconnect())
	require.NoError(t, a.Disconnect())
	time.Sleep(20 * time.Millisecond)
	f.mu.Lock()
	assert.Equal(t, 1, f.closes)
	f.mu.Unlock()
	assert.Equal(t, chat.StateDisconnected, a.State(), "close triggered by Disconnect must stay silent")
}

func TestAdapterGatewayDropFails(t *testing.T) {
	f := newFakeSession()
	a, _, _ := start(t, f, chat.Account{Channel: "123", Credential: "tok"})
	<-f.opened
	f.dispatch(&discordgo.Ready{})

	f.dispatch(&discordgo.Disconnect{})
	assert.Equal(t, chat.StateFailed, a.State())
}

func TestAdapterOpenErrorFails(t *testing.T) {
	f := newFakeSession()
	f.openErr = errors.New("websocket: bad handshake")
	a, _, _ := start(t, f, chat.Account{Channel: "123", Credential: "tok"})
	require.Eventually(t, func() bool { return a.State() == chat.StateFailed }, time.Second, 5*time.Millisecond)
}

func TestAdapterPlaceholderNeverDials(t *testing.T) {
	for _, acct := range []chat.Account{
		{Channel: "123", Credential: chat.PlaceholderBotToken},
		{Channel: "", Credential: "tok"},
	} {
		dialed := false
		a := New(0, acct, func(string) (session, error) { dialed = true; return newFakeSession(), nil }, quietLogger())
		a.Subscribe(chat.NewBus())
		a.Connect(context.Background())
		assert.Equal(t, chat.StateFailed, a.State())
		assert.False(t, dialed)
	}
}

// Package discordapi reads messages from one Discord text channel through a
// bot gateway session.
package discordapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/chatter/chat"
)

// session is the subset of *discordgo.Session the adapter uses.
type session interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
}

// Dialer builds a gateway session for a bot token.
type Dialer func(token string) (session, error)

// DefaultDialer builds a discordgo session that reads guild messages and
// their content. Reconnects are disabled; a dropped gateway fails the adapter.
func DefaultDialer(token string) (session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent
	s.ShouldReconnectOnError = false
	return s, nil
}

// Adapter is the chat.Adapter for one Discord channel.
type Adapter struct {
	*chat.Base
	acct chat.Account
	dial Dialer

	mu        sync.Mutex
	sess      session
	closeOnce sync.Once
	closeErr  error
}

func New(slot int, acct chat.Account, dial Dialer, log *slog.Logger) *Adapter {
	if dial == nil {
		dial = DefaultDialer
	}
	return &Adapter{Base: chat.NewBase(chat.PlatformDiscord, slot, log), acct: acct, dial: dial}
}

// NewFactory returns the chat.Factory for Discord accounts. Channel is the
// text channel id and Credential the bot token.
func NewFactory(dial Dialer) chat.Factory {
	return func(slot int, acct chat.Account, log *slog.Logger) (chat.Adapter, error) {
		return New(slot, acct, dial, log), nil
	}
}

func (a *Adapter) token() string {
	return strings.TrimPrefix(strings.TrimSpace(a.acct.Credential), "Bot ")
}

func (a *Adapter) Connect(ctx context.Context) {
	a.Start(ctx, func() error {
		if err := chat.RequireValue("bot token", a.token()); err != nil {
			return err
		}
		return chat.RequireValue("channel id", a.acct.Channel)
	}, a.run)
}

func (a *Adapter) run(ctx context.Context) {
	s, err := a.dial(a.token())
	if err != nil {
		a.Fail(fmt.Errorf("%w: discord session: %w", chat.ErrConfiguration, err))
		return
	}
	channelID := strings.TrimSpace(a.acct.Channel)

	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		if a.Activate() {
			a.Log().Info("discord gateway ready", slog.String("channel", channelID))
		}
	})
	s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		a.onMessage(channelID, m)
	})
	s.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		if ctx.Err() == nil {
			a.Fail(fmt.Errorf("%w: discord gateway closed", chat.ErrTransientRequest))
		}
	})

	a.mu.Lock()
	a.sess = s
	a.mu.Unlock()
	go func() {
		<-ctx.Done()
		_ = a.close()
	}()

	if err := s.Open(); err != nil && ctx.Err() == nil {
		a.Fail(fmt.Errorf("%w: discord open: %w", chat.ErrTransientRequest, err))
	}
}

func (a *Adapter) onMessage(channelID string, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil {
		return
	}
	if m.ChannelID != channelID || m.Author.Bot {
		return
	}
	if m.Content == "" {
		return
	}
	a.Emit(m.Author.DisplayName(), m.Content)
}

func (a *Adapter) close() error {
	a.mu.Lock()
	s := a.sess
	a.mu.Unlock()
	if s == nil {
		return nil
	}
	a.closeOnce.Do(func() {
		if err := s.Close(); err != nil && !errors.Is(err, discordgo.ErrWSNotFound) {
			a.closeErr = fmt.Errorf("%w: discord gateway: %w", chat.ErrResourceRelease, err)
		}
	})
	return a.closeErr
}

func (a *Adapter) Disconnect() error {
	if !a.Release() {
		return nil
	}
	return a.close()
}

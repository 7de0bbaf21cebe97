// Package twitchapi reads Twitch chat over IRC with go-twitch-irc.
package twitchapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/chatter/chat"
)

// ircClient is the subset of *twitch.Client the adapter uses.
type ircClient interface {
	OnConnect(func())
	OnPrivateMessage(func(twitch.PrivateMessage))
	Join(channels ...string)
	Connect() error
	Disconnect() error
}

// Dialer builds an IRC client for login authenticated with an "oauth:" token.
type Dialer func(login, token string) ircClient

// NewDialer returns a Dialer for real Twitch IRC. addr overrides the server
// address when set.
func NewDialer(addr string) Dialer {
	return func(login, token string) ircClient {
		c := twitch.NewClient(login, token)
		if addr != "" {
			c.IrcAddress = addr
			c.TLS = !strings.HasPrefix(addr, "localhost:") && !strings.HasPrefix(addr, "127.0.0.1:")
		}
		return c
	}
}

// Adapter is the chat.Adapter for one Twitch channel.
type Adapter struct {
	*chat.Base
	acct chat.Account
	dial Dialer

	mu        sync.Mutex
	client    ircClient
	closeOnce sync.Once
	closeErr  error
}

func New(slot int, acct chat.Account, dial Dialer, log *slog.Logger) *Adapter {
	return &Adapter{Base: chat.NewBase(chat.PlatformTwitch, slot, log), acct: acct, dial: dial}
}

// NewFactory returns the chat.Factory for Twitch accounts. Channel is the
// channel login, Credential the OAuth token and Username the bot login.
func NewFactory(dial Dialer) chat.Factory {
	return func(slot int, acct chat.Account, log *slog.Logger) (chat.Adapter, error) {
		return New(slot, acct, dial, log), nil
	}
}

func (a *Adapter) channel() string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(a.acct.Channel), "#"))
}

func (a *Adapter) login() string {
	if u := strings.TrimSpace(a.acct.Username); u != "" && !chat.IsPlaceholder(u) {
		return strings.ToLower(u)
	}
	return a.channel()
}

func token(cred string) string {
	cred = strings.TrimSpace(cred)
	if strings.HasPrefix(cred, "oauth:") {
		return cred
	}
	return "oauth:" + cred
}

func (a *Adapter) Connect(ctx context.Context) {
	a.Start(ctx, func() error {
		if err := chat.RequireValue("oauth token", strings.TrimPrefix(a.acct.Credential, "oauth:")); err != nil {
			return err
		}
		return chat.RequireValue("channel", a.acct.Channel)
	}, a.run)
}

func (a *Adapter) run(ctx context.Context) {
	c := a.dial(a.login(), token(a.acct.Credential))
	c.OnConnect(func() {
		if !a.Activate() {
			// stopped while the handshake was in flight
			_ = c.Disconnect()
			return
		}
		a.Log().Info("joined twitch chat", slog.String("channel", a.channel()))
	})
	c.OnPrivateMessage(func(m twitch.PrivateMessage) {
		author := m.User.DisplayName
		if author == "" {
			author = m.User.Name
		}
		a.Emit(author, m.Message)
	})
	c.Join(a.channel())

	a.mu.Lock()
	a.client = c
	a.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = a.close()
	}()

	err := c.Connect()
	if ctx.Err() != nil || errors.Is(err, twitch.ErrClientDisconnected) {
		return
	}
	if err == nil {
		err = errors.New("connection closed")
	}
	a.Fail(fmt.Errorf("%w: twitch irc: %w", chat.ErrTransientRequest, err))
}

// close disconnects the IRC client once.
func (a *Adapter) close() error {
	a.mu.Lock()
	c := a.client
	a.mu.Unlock()
	if c == nil {
		return nil
	}
	a.closeOnce.Do(func() {
		if err := c.Disconnect(); err != nil && !errors.Is(err, twitch.ErrConnectionIsNotOpen) {
			a.closeErr = fmt.Errorf("%w: twitch irc: %w", chat.ErrResourceRelease, err)
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

// Package kickapi reads Kick chat. The channel slug is resolved to a chatroom
// id over the public REST API; messages then arrive over Kick's Pusher
// websocket on the chatrooms.{id}.v2 channel.
package kickapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/onnwee/chatter/chat"
)

const (
	DefaultAPIURL    = "https://kick.com"
	DefaultPusherURL = "wss://ws-us2.pusher.com/app/32cbd69e4b950bf97679?protocol=7&client=js&version=8.4.0-rc2&flash=false"

	eventConnected    = "pusher:connection_established"
	eventSubscribed   = "pusher_internal:subscription_succeeded"
	eventPing         = "pusher:ping"
	eventError        = "pusher:error"
	eventChatMessage  = `App\Events\ChatMessageEvent`
	writeWait         = 5 * time.Second
	defaultDialWindow = 10 * time.Second
)

// Config holds the endpoints shared by every Kick adapter.
type Config struct {
	APIURL    string
	PusherURL string
	Timeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.PusherURL == "" {
		c.PusherURL = DefaultPusherURL
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultDialWindow
	}
	return c
}

// Adapter is the chat.Adapter for one Kick channel.
type Adapter struct {
	*chat.Base
	acct chat.Account
	cfg  Config
	api  *resty.Client

	mu        sync.Mutex
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func New(slot int, acct chat.Account, cfg Config, log *slog.Logger) *Adapter {
	cfg = cfg.withDefaults()
	api := resty.New().
		SetBaseURL(strings.TrimRight(cfg.APIURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	return &Adapter{Base: chat.NewBase(chat.PlatformKick, slot, log), acct: acct, cfg: cfg, api: api}
}

// NewFactory returns the chat.Factory for Kick accounts. Channel is the
// channel slug; no credential is needed to read public chat.
func NewFactory(cfg Config) chat.Factory {
	return func(slot int, acct chat.Account, log *slog.Logger) (chat.Adapter, error) {
		return New(slot, acct, cfg, log), nil
	}
}

func (a *Adapter) slug() string {
	return strings.ToLower(strings.TrimSpace(a.acct.Channel))
}

func (a *Adapter) Connect(ctx context.Context) {
	a.Start(ctx, func() error {
		return chat.RequireValue("channel slug", a.acct.Channel)
	}, a.run)
}

// ChatroomID looks up the chatroom id of the channel slug.
func (a *Adapter) ChatroomID(ctx context.Context) (int64, error) {
	resp, err := a.api.R().
		SetContext(ctx).
		SetPathParam("slug", a.slug()).
		Get("/api/v2/channels/{slug}")
	if err != nil {
		return 0, fmt.Errorf("%w: kick channel lookup: %w", chat.ErrTransientRequest, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return 0, fmt.Errorf("%w: kick channel %q does not exist", chat.ErrConfiguration, a.slug())
	}
	if !resp.IsSuccess() {
		return 0, fmt.Errorf("%w: kick channel lookup: status %s", chat.ErrTransientRequest, resp.Status())
	}
	id := gjson.GetBytes(resp.Body(), "chatroom.id")
	if !id.Exists() || id.Int() == 0 {
		return 0, fmt.Errorf("%w: kick channel lookup: malformed response: no chatroom id", chat.ErrTransientRequest)
	}
	return id.Int(), nil
}

func (a *Adapter) run(ctx context.Context) {
	if err := a.session(ctx); err != nil && ctx.Err() == nil {
		a.Fail(err)
	}
}

func (a *Adapter) session(ctx context.Context) error {
	lookupCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	roomID, err := a.ChatroomID(lookupCtx)
	cancel()
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, a.cfg.PusherURL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: kick pusher dial: %w", chat.ErrTransientRequest, err)
	}

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
	go func() {
		<-ctx.Done()
		_ = a.close()
	}()

	channel := fmt.Sprintf("chatrooms.%d.v2", roomID)
	if err := a.send(map[string]any{
		"event": "pusher:subscribe",
		"data":  map[string]string{"auth": "", "channel": channel},
	}); err != nil {
		return fmt.Errorf("%w: kick subscribe: %w", chat.ErrTransientRequest, err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: kick pusher read: %w", chat.ErrTransientRequest, err)
		}
		if err := a.handle(data, channel); err != nil {
			return err
		}
	}
}

// handle processes one Pusher frame.
func (a *Adapter) handle(frame []byte, channel string) error {
	event := gjson.GetBytes(frame, "event").String()
	switch event {
	case eventConnected:
		a.Log().Debug("kick pusher connected")
	case eventSubscribed:
		if a.Activate() {
			a.Log().Info("subscribed to kick chat", slog.String("channel", channel))
		}
	case eventPing:
		if err := a.send(map[string]any{"event": "pusher:pong", "data": map[string]any{}}); err != nil {
			return fmt.Errorf("%w: kick pong: %w", chat.ErrTransientRequest, err)
		}
	case eventError:
		return fmt.Errorf("%w: kick pusher error: %s", chat.ErrTransientRequest, payload(frame).Get("message").String())
	case eventChatMessage:
		p := payload(frame)
		author := p.Get("sender.username").String()
		body := p.Get("content").String()
		if author == "" && body == "" {
			a.Log().Debug("kick chat event without sender or content")
			return nil
		}
		a.Emit(author, body)
	}
	return nil
}

// payload returns the frame's data field. Pusher encodes it as a JSON string
// on most events.
func payload(frame []byte) gjson.Result {
	d := gjson.GetBytes(frame, "data")
	if d.Type == gjson.String {
		return gjson.Parse(d.String())
	}
	return d
}

func (a *Adapter) send(v any) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return net.ErrClosed
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (a *Adapter) close() error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return nil
	}
	a.closeOnce.Do(func() {
		a.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		a.writeMu.Unlock()
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			a.closeErr = fmt.Errorf("%w: kick websocket: %w", chat.ErrResourceRelease, err)
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

// Package poll drives request/response chat APIs: resolve the live session
// once, then fetch pages on a fixed interval, threading the continuation
// token from each page into the next request.
package poll

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/chatter/chat"
	"github.com/onnwee/chatter/telemetry"
)

const (
	DefaultInterval = 10 * time.Second
	DefaultTimeout  = 10 * time.Second
	DefaultPageSize = 200
)

// Item is one entry of a page. Only items whose Kind matches the engine's
// text kind become messages.
type Item struct {
	Kind   string
	Author string
	Body   string
}

// Page is one response from the chat API.
type Page struct {
	NextToken string
	Items     []Item
}

// Request is one page request. An empty Token means the first page; sources
// omit the parameter in that case.
type Request struct {
	SessionID string
	Token     string
	PageSize  int
}

// Source is a platform's request/response chat API.
type Source interface {
	// ResolveSession returns the id of the current live chat session, or an
	// error wrapping chat.ErrNoActiveSession when the account is not live.
	ResolveSession(ctx context.Context) (string, error)
	FetchPage(ctx context.Context, req Request) (Page, error)
}

// Requirement is a value that must be set (and not a placeholder) before the
// engine touches the network.
type Requirement struct {
	Name  string
	Value string
}

type Config struct {
	Require  []Requirement
	TextKind string
	Interval time.Duration
	Timeout  time.Duration
	PageSize int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	return c
}

// Engine is a chat.Adapter over a Source. It stops on the first failed
// request and never retries; a reload builds a fresh engine.
type Engine struct {
	*chat.Base
	src Source
	cfg Config

	// owned by the run goroutine
	token string
}

func New(p chat.Platform, slot int, src Source, cfg Config, log *slog.Logger) *Engine {
	return &Engine{Base: chat.NewBase(p, slot, log), src: src, cfg: cfg.withDefaults()}
}

func (e *Engine) Connect(ctx context.Context) {
	e.Start(ctx, e.check, e.run)
}

// Disconnect stops polling. An in-flight request is cancelled and its result
// dropped. Nothing needs releasing, so it never errors.
func (e *Engine) Disconnect() error {
	e.Release()
	return nil
}

func (e *Engine) check() error {
	for _, r := range e.cfg.Require {
		if err := chat.RequireValue(r.Name, r.Value); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) run(ctx context.Context) {
	sessionID, err := e.resolve(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.Fail(err)
		}
		return
	}
	if !e.Activate() {
		return
	}
	e.Log().Info("live chat session resolved", slog.String("session", sessionID), slog.Duration("interval", e.cfg.Interval))

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	for {
		if err := e.poll(ctx, sessionID); err != nil {
			if ctx.Err() == nil {
				e.Fail(err)
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (e *Engine) resolve(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, "poll", "poll.resolve_session",
		telemetry.PlatformAttr(string(e.Platform())), telemetry.AccountAttr(e.Key()))
	defer span.End()

	id, err := e.src.ResolveSession(ctx)
	if err == nil && strings.TrimSpace(id) == "" {
		err = fmt.Errorf("empty session id: %w", chat.ErrNoActiveSession)
	}
	telemetry.RecordError(span, err)
	return id, err
}

func (e *Engine) poll(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, "poll", "poll.fetch_page",
		telemetry.PlatformAttr(string(e.Platform())), telemetry.AccountAttr(e.Key()))
	defer span.End()

	var (
		page Page
		err  error
	)
	telemetry.TimeFunc(telemetry.PollDuration, func() {
		page, err = e.src.FetchPage(ctx, Request{SessionID: sessionID, Token: e.token, PageSize: e.cfg.PageSize})
	})
	telemetry.CountPoll(string(e.Platform()), err != nil)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	e.token = page.NextToken
	emitted := 0
	for _, it := range page.Items {
		if it.Kind != e.cfg.TextKind {
			continue
		}
		if e.Emit(it.Author, it.Body) {
			emitted++
		}
	}
	if emitted > 0 {
		e.Log().Debug("page polled", slog.Int("items", len(page.Items)), slog.Int("messages", emitted))
	}
	return nil
}

// Package relay polls a generic chat relay over HTTP+JSON:
//
//	GET {endpoint}/sessions?account={channel}            -> {"sessions":["s1", ...]}
//	GET {endpoint}/sessions/{id}/messages?continuationToken=&pageSize=
//	    -> {"continuationToken":"abc","items":[{"kind":"text","author":"alice","body":"hi"}]}
//
// The bearer token is the account credential.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/onnwee/chatter/chat"
	"github.com/onnwee/chatter/poll"
)

// TextKind is the item kind that becomes a chat message.
const TextKind = "text"

type sessionsResponse struct {
	Sessions []string `json:"sessions"`
}

type item struct {
	Kind   string `json:"kind"`
	Author string `json:"author"`
	Body   string `json:"body"`
}

type messagesResponse struct {
	ContinuationToken string  `json:"continuationToken"`
	Items             *[]item `json:"items"`
}

// Source implements poll.Source against one relay account.
type Source struct {
	client  *resty.Client
	account string
}

func NewSource(acct chat.Account, timeout time.Duration) *Source {
	c := resty.New().
		SetBaseURL(strings.TrimRight(acct.Endpoint, "/")).
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	if !chat.IsPlaceholder(acct.Credential) {
		c.SetAuthToken(acct.Credential)
	}
	return &Source{client: c, account: acct.Channel}
}

// ResolveSession returns the first listed session. A malformed listing or a
// blank first id reports chat.ErrNoActiveSession.
func (s *Source) ResolveSession(ctx context.Context) (string, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("account", s.account).
		Get("/sessions")
	if err != nil {
		return "", fmt.Errorf("%w: list sessions: %w", chat.ErrTransientRequest, err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("%w: list sessions: status %s", chat.ErrTransientRequest, resp.Status())
	}
	// An unreadable listing means the account cannot be shown to be live.
	var out sessionsResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("account %s: malformed sessions response: %w", s.account, chat.ErrNoActiveSession)
	}
	if len(out.Sessions) == 0 || strings.TrimSpace(out.Sessions[0]) == "" {
		return "", fmt.Errorf("account %s: %w", s.account, chat.ErrNoActiveSession)
	}
	return strings.TrimSpace(out.Sessions[0]), nil
}

// FetchPage requests one page. A response without an items array is
// malformed.
func (s *Source) FetchPage(ctx context.Context, req poll.Request) (poll.Page, error) {
	r := s.client.R().
		SetContext(ctx).
		SetPathParam("session", req.SessionID).
		SetQueryParam("pageSize", strconv.Itoa(req.PageSize))
	if req.Token != "" {
		r.SetQueryParam("continuationToken", req.Token)
	}
	resp, err := r.Get("/sessions/{session}/messages")
	if err != nil {
		return poll.Page{}, fmt.Errorf("%w: fetch messages: %w", chat.ErrTransientRequest, err)
	}
	if !resp.IsSuccess() {
		return poll.Page{}, fmt.Errorf("%w: fetch messages: status %s", chat.ErrTransientRequest, resp.Status())
	}
	var out messagesResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return poll.Page{}, fmt.Errorf("%w: fetch messages: malformed response: %w", chat.ErrTransientRequest, err)
	}
	if out.Items == nil {
		return poll.Page{}, fmt.Errorf("%w: fetch messages: malformed response: missing items", chat.ErrTransientRequest)
	}

	page := poll.Page{NextToken: out.ContinuationToken, Items: make([]poll.Item, 0, len(*out.Items))}
	for _, it := range *out.Items {
		page.Items = append(page.Items, poll.Item{Kind: it.Kind, Author: it.Author, Body: it.Body})
	}
	return page, nil
}

// NewFactory returns the chat.Factory for relay accounts. Channel is the
// relay account id, Credential the bearer token and Endpoint the base URL.
func NewFactory(deps chat.Deps) chat.Factory {
	return func(slot int, acct chat.Account, log *slog.Logger) (chat.Adapter, error) {
		interval := deps.PollInterval
		if acct.PollInterval > 0 {
			interval = time.Duration(acct.PollInterval)
		}
		return poll.New(chat.PlatformRelay, slot, NewSource(acct, deps.RequestTimeout), poll.Config{
			Require: []poll.Requirement{
				{Name: "bearer token", Value: acct.Credential},
				{Name: "account id", Value: acct.Channel},
				{Name: "endpoint", Value: acct.Endpoint},
			},
			TextKind: TextKind,
			Interval: interval,
			Timeout:  deps.RequestTimeout,
			PageSize: deps.PageSize,
		}, log), nil
	}
}

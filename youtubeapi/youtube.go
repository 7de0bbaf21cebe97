// Package youtubeapi reads YouTube live chat through the YouTube Data API v3.
// The live chat id is found by searching the channel for a live broadcast and
// reading its liveStreamingDetails, unless the account pins one explicitly.
package youtubeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/chatter/chat"
	"github.com/onnwee/chatter/poll"
)

// TextMessageEvent is the snippet type of a plain chat message.
const TextMessageEvent = "textMessageEvent"

// Source implements poll.Source for one YouTube channel.
type Source struct {
	svc        *yt.Service
	channelID  string
	liveChatID string
}

// NewSource builds a Source for acct. endpoint overrides the API base URL and
// may be empty.
func NewSource(ctx context.Context, acct chat.Account, endpoint string) (*Source, error) {
	opts := []option.ClientOption{option.WithAPIKey(acct.Credential)}
	if chat.IsPlaceholder(acct.Credential) {
		// the engine refuses to poll; avoid a default credentials lookup
		opts = []option.ClientOption{option.WithoutAuthentication()}
	}
	if endpoint != "" {
		if !strings.HasSuffix(endpoint, "/") {
			endpoint += "/"
		}
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	s := &Source{svc: svc, channelID: acct.Channel}
	if !chat.IsPlaceholder(acct.LiveChatID) {
		s.liveChatID = strings.TrimSpace(acct.LiveChatID)
	}
	return s, nil
}

// ResolveSession returns the active live chat id of the channel's current
// broadcast. With several live broadcasts the first search result wins.
func (s *Source) ResolveSession(ctx context.Context) (string, error) {
	if s.liveChatID != "" {
		return s.liveChatID, nil
	}

	search, err := s.svc.Search.List([]string{"id"}).
		ChannelId(s.channelID).
		EventType("live").
		Type("video").
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", wrapResolveErr("search live broadcast", err)
	}
	if len(search.Items) == 0 || search.Items[0].Id == nil || search.Items[0].Id.VideoId == "" {
		return "", fmt.Errorf("channel %s: %w", s.channelID, chat.ErrNoActiveSession)
	}
	videoID := search.Items[0].Id.VideoId

	videos, err := s.svc.Videos.List([]string{"liveStreamingDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return "", wrapResolveErr("video details", err)
	}
	if len(videos.Items) == 0 || videos.Items[0].LiveStreamingDetails == nil || videos.Items[0].LiveStreamingDetails.ActiveLiveChatId == "" {
		return "", fmt.Errorf("video %s has no active live chat: %w", videoID, chat.ErrNoActiveSession)
	}
	return videos.Items[0].LiveStreamingDetails.ActiveLiveChatId, nil
}

// FetchPage lists one page of live chat messages.
func (s *Source) FetchPage(ctx context.Context, req poll.Request) (poll.Page, error) {
	call := s.svc.LiveChatMessages.List(req.SessionID, []string{"snippet", "authorDetails"}).
		MaxResults(int64(req.PageSize)).
		Context(ctx)
	if req.Token != "" {
		call = call.PageToken(req.Token)
	}
	resp, err := call.Do()
	if err != nil {
		return poll.Page{}, wrapErr("list live chat messages", err)
	}

	page := poll.Page{NextToken: resp.NextPageToken, Items: make([]poll.Item, 0, len(resp.Items))}
	for _, m := range resp.Items {
		if m == nil || m.Snippet == nil {
			continue
		}
		it := poll.Item{Kind: m.Snippet.Type, Body: m.Snippet.DisplayMessage}
		if m.Snippet.TextMessageDetails != nil {
			it.Body = m.Snippet.TextMessageDetails.MessageText
		}
		if m.AuthorDetails != nil {
			it.Author = m.AuthorDetails.DisplayName
		}
		page.Items = append(page.Items, it)
	}
	return page, nil
}

// wrapResolveErr treats an undecodable lookup reply like an empty one: the
// channel is not known to be live.
func wrapResolveErr(op string, err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("%s: malformed response (%v): %w", op, err, chat.ErrNoActiveSession)
	}
	return wrapErr(op, err)
}

func wrapErr(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return fmt.Errorf("%w: %s: status %d: %s", chat.ErrTransientRequest, op, gerr.Code, gerr.Message)
	}
	return fmt.Errorf("%w: %s: %w", chat.ErrTransientRequest, op, err)
}

// NewFactory returns the chat.Factory for YouTube accounts. The account's
// Credential is the API key and Channel the channel id; LiveChatID, when
// set, skips the live broadcast lookup.
func NewFactory(ctx context.Context, deps chat.Deps, endpoint string) chat.Factory {
	return func(slot int, acct chat.Account, log *slog.Logger) (chat.Adapter, error) {
		src, err := NewSource(ctx, acct, endpoint)
		if err != nil {
			return nil, err
		}
		require := []poll.Requirement{{Name: "api key", Value: acct.Credential}}
		if src.liveChatID == "" {
			require = append(require, poll.Requirement{Name: "channel id", Value: acct.Channel})
		}
		interval := deps.PollInterval
		if acct.PollInterval > 0 {
			interval = time.Duration(acct.PollInterval)
		}
		return poll.New(chat.PlatformYouTube, slot, src, poll.Config{
			Require:  require,
			TextKind: TextMessageEvent,
			Interval: interval,
			Timeout:  deps.RequestTimeout,
			PageSize: deps.PageSize,
		}, log), nil
	}
}

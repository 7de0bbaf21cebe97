package youtubeapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/onnwee/chatter/chat"
	"github.com/onnwee/chatter/poll"
	"github.com/onnwee/chatter/testutil"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newSource(t *testing.T, m *testutil.MockYouTubeServer, acct chat.Account) *Source {
	t.Helper()
	src, err := NewSource(context.Background(), acct, m.Endpoint())
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	return src
}

func TestResolveSession(t *testing.T) {
	m := testutil.NewMockYouTubeServer(t)
	m.MockLiveSearch("vid1", "vid2")
	m.MockLiveChatID("chat-abc")
	src := newSource(t, m, chat.Account{Channel: "UC123", Credential: "key"})

	id, err := src.ResolveSession(context.Background())
	if err != nil {
		t.Fatalf("ResolveSession: %v", err)
	}
	if id != "chat-abc" {
		t.Fatalf("id = %q, want chat-abc", id)
	}

	search := m.RequestsTo(testutil.YouTubeSearchPath)
	if len(search) != 1 {
		t.Fatalf("search requests = %d", len(search))
	}
	q := search[0].Query()
	if q.Get("channelId") != "UC123" || q.Get("eventType") != "live" || q.Get("type") != "video" || q.Get("key") != "key" {
		t.Errorf("unexpected search query: %s", search[0].RawQuery)
	}
	videos := m.RequestsTo(testutil.YouTubeVideosPath)
	if len(videos) != 1 || videos[0].Query().Get("id") != "vid1" {
		t.Errorf("expected first search result to be looked up, got %v", videos)
	}
}

func TestResolveSessionNotLive(t *testing.T) {
	m := testutil.NewMockYouTubeServer(t)
	m.MockLiveSearch()
	src := newSource(t, m, chat.Account{Channel: "UC123", Credential: "key"})

	_, err := src.ResolveSession(context.Background())
	if !errors.Is(err, chat.ErrNoActiveSession) {
		t.Fatalf("err = %v, want ErrNoActiveSession", err)
	}
	if n := len(m.RequestsTo(testutil.YouTubeVideosPath)); n != 0 {
		t.Errorf("videos requests = %d, want 0", n)
	}
}

func TestResolveSessionMalformedIsNotLive(t *testing.T) {
	m := testutil.NewMockYouTubeServer(t)
	m.Handle(testutil.YouTubeSearchPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("not json"))
	})
	src := newSource(t, m, chat.Account{Channel: "UC123", Credential: "key"})

	_, err := src.ResolveSession(context.Background())
	if !errors.Is(err, chat.ErrNoActiveSession) {
		t.Fatalf("err = %v, want ErrNoActiveSession", err)
	}
	if errors.Is(err, chat.ErrTransientRequest) {
		t.Errorf("malformed lookup classified as transient: %v", err)
	}
}

func TestResolveSessionOverride(t *testing.T) {
	m := testutil.NewMockYouTubeServer(t)
	src := newSource(t, m, chat.Account{Channel: chat.PlaceholderChannelID, Credential: "key", LiveChatID: "pinned"})

	id, err := src.ResolveSession(context.Background())
	if err != nil || id != "pinned" {
		t.Fatalf("got %q, %v", id, err)
	}
	if n := len(m.Requests()); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestFetchPage(t *testing.T) {
	m := testutil.NewMockYouTubeServer(t)
	m.MockChatPages(testutil.YouTubeChatPage{
		NextToken: "abc",
		Messages: []testutil.YouTubeChatMessage{
			{Type: TextMessageEvent, Author: "alice", Text: "hi"},
			{Type: "superChatEvent", Author: "bob", Text: "$5.00"},
		},
	})
	src := newSource(t, m, chat.Account{Channel: "UC123", Credential: "key"})

	page, err := src.FetchPage(context.Background(), poll.Request{SessionID: "chat-abc", PageSize: 200})
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if page.NextToken != "abc" || len(page.Items) != 2 {
		t.Fatalf("page = %+v", page)
	}
	if page.Items[0] != (poll.Item{Kind: TextMessageEvent, Author: "alice", Body: "hi"}) {
		t.Errorf("item 0 = %+v", page.Items[0])
	}

	reqs := m.RequestsTo(testutil.YouTubeMessagesPath)
	q := reqs[0].Query()
	if q.Get("liveChatId") != "chat-abc" || q.Get("maxResults") != "200" {
		t.Errorf("unexpected query: %s", reqs[0].RawQuery)
	}
	if q.Has("pageToken") {
		t.Errorf("first request carries pageToken: %s", reqs[0].RawQuery)
	}
}

func TestFetchPageErrorStatus(t *testing.T) {
	m := testutil.NewMockYouTubeServer(t)
	m.MockChatPages(testutil.YouTubeChatPage{Status: http.StatusForbidden})
	src := newSource(t, m, chat.Account{Channel: "UC123", Credential: "key"})

	_, err := src.FetchPage(context.Background(), poll.Request{SessionID: "c", PageSize: 200})
	if !errors.Is(err, chat.ErrTransientRequest) {
		t.Fatalf("err = %v, want ErrTransientRequest", err)
	}
}

func TestAdapterEndToEnd(t *testing.T) {
	m := testutil.NewMockYouTubeServer(t)
	m.MockLiveSearch("vid1")
	m.MockLiveChatID("chat-abc")
	m.MockChatPages(
		testutil.YouTubeChatPage{NextToken: "p2", Messages: []testutil.YouTubeChatMessage{{Type: TextMessageEvent, Author: "alice", Text: "hi"}}},
		testutil.YouTubeChatPage{NextToken: "p3", Messages: []testutil.YouTubeChatMessage{{Type: TextMessageEvent, Author: "bob", Text: "yo"}}},
		testutil.YouTubeChatPage{Status: http.StatusInternalServerError},
	)

	factory := NewFactory(context.Background(), chat.Deps{PollInterval: 5 * time.Millisecond, RequestTimeout: time.Second}, m.Endpoint())
	ad, err := factory(0, chat.Account{Channel: "UC123", Credential: "key"}, quietLogger())
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	bus := chat.NewBus()
	ad.Subscribe(bus)
	ad.Connect(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for ad.State() != chat.StateFailed {
		if time.Now().After(deadline) {
			t.Fatalf("adapter state = %v, want failed", ad.State())
		}
		time.Sleep(5 * time.Millisecond)
	}

	var lines []string
	for {
		msg, ok := bus.TryTake()
		if !ok {
			break
		}
		lines = append(lines, msg.String())
	}
	if len(lines) != 2 || lines[0] != "[YT] <alice> hi" || lines[1] != "[YT] <bob> yo" {
		t.Fatalf("lines = %q", lines)
	}

	reqs := m.RequestsTo(testutil.YouTubeMessagesPath)
	if len(reqs) != 3 {
		t.Fatalf("message requests = %d, want 3", len(reqs))
	}
	if reqs[1].Query().Get("pageToken") != "p2" || reqs[2].Query().Get("pageToken") != "p3" {
		t.Errorf("tokens not threaded: %s | %s", reqs[1].RawQuery, reqs[2].RawQuery)
	}
}

func TestAdapterPlaceholderMakesNoCalls(t *testing.T) {
	m := testutil.NewMockYouTubeServer(t)
	factory := NewFactory(context.Background(), chat.Deps{}, m.Endpoint())

	for _, acct := range []chat.Account{
		{Channel: "UC123", Credential: chat.PlaceholderAPIKey},
		{Channel: chat.PlaceholderChannelID, Credential: "key"},
	} {
		ad, err := factory(0, acct, quietLogger())
		if err != nil {
			t.Fatalf("factory: %v", err)
		}
		ad.Subscribe(chat.NewBus())
		ad.Connect(context.Background())
		if ad.State() != chat.StateFailed {
			t.Errorf("%+v: state = %v, want failed", acct, ad.State())
		}
	}
	time.Sleep(20 * time.Millisecond)
	if n := len(m.Requests()); n != 0 {
		t.Fatalf("requests = %d, want 0", n)
	}
}

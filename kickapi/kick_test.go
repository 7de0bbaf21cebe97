package kickapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/chatter/chat"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// pusherMock serves the channel lookup and a Pusher-like websocket.
type pusherMock struct {
	*httptest.Server

	mu        sync.Mutex
	lookups   int
	subscribe []string
	pongs     int
	conns     chan *websocket.Conn
}

func newPusherMock(t *testing.T, roomID int) *pusherMock {
	t.Helper()
	m := &pusherMock{conns: make(chan *websocket.Conn, 1)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/channels/", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.lookups++
		m.mu.Unlock()
		if strings.TrimPrefix(r.URL.Path, "/api/v2/channels/") != "streamer" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":1,"slug":"streamer","chatroom":{"id":`+itoa(roomID)+`}}`)
	})
	mux.HandleFunc("/app/test", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"pusher:connection_established","data":"{\"socket_id\":\"1.2\",\"activity_timeout\":120}"}`))
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame struct {
				Event string          `json:"event"`
				Data  json.RawMessage `json:"data"`
			}
			_ = json.Unmarshal(data, &frame)
			switch frame.Event {
			case "pusher:subscribe":
				var d struct {
					Channel string `json:"channel"`
				}
				_ = json.Unmarshal(frame.Data, &d)
				m.mu.Lock()
				m.subscribe = append(m.subscribe, d.Channel)
				m.mu.Unlock()
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"pusher_internal:subscription_succeeded","data":"{}","channel":"`+d.Channel+`"}`))
				m.conns <- conn
			case "pusher:pong":
				m.mu.Lock()
				m.pongs++
				m.mu.Unlock()
			}
		}
	})
	m.Server = httptest.NewServer(mux)
	t.Cleanup(m.Close)
	return m
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func (m *pusherMock) config() Config {
	return Config{
		APIURL:    m.URL,
		PusherURL: "ws" + strings.TrimPrefix(m.URL, "http") + "/app/test",
		Timeout:   time.Second,
	}
}

func chatFrame(author, content string) []byte {
	inner, _ := json.Marshal(map[string]any{
		"id":      "m1",
		"content": content,
		"type":    "message",
		"sender":  map[string]any{"id": 7, "username": author, "slug": strings.ToLower(author)},
	})
	outer, _ := json.Marshal(map[string]any{
		"event":   `App\Events\ChatMessageEvent`,
		"data":    string(inner),
		"channel": "chatrooms.42.v2",
	})
	return outer
}

func TestAdapterStreamsChat(t *testing.T) {
	m := newPusherMock(t, 42)
	a := New(0, chat.Account{Channel: "Streamer"}, m.config(), quietLogger())
	bus := chat.NewBus()
	a.Subscribe(bus)
	a.Connect(context.Background())

	var server *websocket.Conn
	select {
	case server = <-m.conns:
	case <-time.After(2 * time.Second):
		t.Fatal("adapter never subscribed")
	}
	require.Eventually(t, func() bool { return a.State() == chat.StateActive }, time.Second, 5*time.Millisecond)

	m.mu.Lock()
	assert.Equal(t, []string{"chatrooms.42.v2"}, m.subscribe)
	m.mu.Unlock()

	require.NoError(t, server.WriteMessage(websocket.TextMessage, chatFrame("alice", "hi")))
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`{"event":"pusher:ping","data":{}}`)))
	require.NoError(t, server.WriteMessage(websocket.TextMessage, chatFrame("bob", "yo")))

	require.Eventually(t, func() bool { return bus.Len() == 2 }, time.Second, 5*time.Millisecond)
	first, _ := bus.TryTake()
	second, _ := bus.TryTake()
	assert.Equal(t, "[KK] <alice> hi", first.String())
	assert.Equal(t, "[KK] <bob> yo", second.String())
	require.Eventually(t, func() bool { m.mu.Lock(); defer m.mu.Unlock(); return m.pongs == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, a.Disconnect())
	require.NoError(t, a.Disconnect())
	assert.Equal(t, chat.StateDisconnected, a.State())
}

func TestAdapterServerCloseFails(t *testing.T) {
	m := newPusherMock(t, 42)
	a := New(0, chat.Account{Channel: "streamer"}, m.config(), quietLogger())
	a.Subscribe(chat.NewBus())
	a.Connect(context.Background())

	server := <-m.conns
	require.Eventually(t, func() bool { return a.State() == chat.StateActive }, time.Second, 5*time.Millisecond)
	_ = server.Close()

	require.Eventually(t, func() bool { return a.State() == chat.StateFailed }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, a.Reason(), "pusher read")
}

func TestAdapterUnknownChannel(t *testing.T) {
	m := newPusherMock(t, 42)
	a := New(0, chat.Account{Channel: "nobody"}, m.config(), quietLogger())
	a.Subscribe(chat.NewBus())
	a.Connect(context.Background())

	require.Eventually(t, func() bool { return a.State() == chat.StateFailed }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, a.Reason(), "does not exist")
}

func TestAdapterPlaceholderMakesNoCalls(t *testing.T) {
	m := newPusherMock(t, 42)
	a := New(0, chat.Account{Channel: chat.PlaceholderChannel}, m.config(), quietLogger())
	a.Subscribe(chat.NewBus())
	a.Connect(context.Background())

	assert.Equal(t, chat.StateFailed, a.State())
	time.Sleep(20 * time.Millisecond)
	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Zero(t, m.lookups)
}

func TestPayloadAcceptsObjectData(t *testing.T) {
	p := payload([]byte(`{"event":"x","data":{"content":"raw"}}`))
	assert.Equal(t, "raw", p.Get("content").String())
	p = payload([]byte(`{"event":"x","data":"{\"content\":\"encoded\"}"}`))
	assert.Equal(t, "encoded", p.Get("content").String())
}

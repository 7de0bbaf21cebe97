package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// eventLog records adapter lifecycle calls across adapters in call order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// fakeAdapter goes active right away and records every call in events.
type fakeAdapter struct {
	*Base
	acct     Account
	events   *eventLog
	started  chan struct{}
	closeErr error
}

func newFake(p Platform, slot int, acct Account, events *eventLog) *fakeAdapter {
	if events != nil {
		events.add("build %s", Key(p, slot))
	}
	return &fakeAdapter{Base: NewBase(p, slot, quietLogger()), acct: acct, events: events, started: make(chan struct{})}
}

func (f *fakeAdapter) Connect(ctx context.Context) {
	f.Start(ctx, func() error {
		return RequireValue("credential", f.acct.Credential)
	}, func(ctx context.Context) {
		f.Activate()
		close(f.started)
	})
}

func (f *fakeAdapter) Disconnect() error {
	if !f.Release() {
		return nil
	}
	if f.events != nil {
		f.events.add("disconnect %s", f.Key())
	}
	if f.closeErr != nil {
		return fmt.Errorf("%w: %v", ErrResourceRelease, f.closeErr)
	}
	return nil
}

func TestBaseLifecycle(t *testing.T) {
	bus := NewBus()
	f := newFake(PlatformRelay, 0, Account{Credential: "secret"}, nil)
	assert.Equal(t, StateCreated, f.State())

	// Emit before active is dropped
	assert.False(t, f.Emit("alice", "early"))

	f.Subscribe(bus)
	f.Connect(context.Background())
	<-f.started
	assert.Equal(t, StateActive, f.State())
	assert.True(t, f.Emit("alice", "hi"))

	require.NoError(t, f.Disconnect())
	assert.Equal(t, StateDisconnected, f.State())
	assert.False(t, f.Emit("alice", "late"))

	m, ok := bus.TryTake()
	require.True(t, ok)
	assert.Equal(t, Message{Author: "alice", Body: "hi", Platform: PlatformRelay}, m)
	_, ok = bus.TryTake()
	assert.False(t, ok)
}

func TestBaseDoubleDisconnectIsHarmless(t *testing.T) {
	events := &eventLog{}
	f := newFake(PlatformKick, 2, Account{Credential: "x"}, events)
	f.closeErr = errors.New("socket already closed")

	// before any connect
	err := f.Disconnect()
	assert.ErrorIs(t, err, ErrResourceRelease)
	assert.Equal(t, ErrorClassRelease, Classify(err))
	assert.NoError(t, f.Disconnect())
	assert.NoError(t, f.Disconnect())

	assert.Equal(t, []string{"build kick/2", "disconnect kick/2"}, events.snapshot())

	// a disconnected adapter never starts
	f.Subscribe(NewBus())
	f.Connect(context.Background())
	assert.Equal(t, StateDisconnected, f.State())
}

func TestBasePlaceholderCredentialFails(t *testing.T) {
	for _, cred := range []string{"", "  ", PlaceholderAPIKey, PlaceholderOAuthToken, "your_bot_token_here"} {
		t.Run(fmt.Sprintf("%q", cred), func(t *testing.T) {
			f := newFake(PlatformYouTube, 0, Account{Credential: cred}, nil)
			f.Subscribe(NewBus())
			f.Connect(context.Background())

			assert.Equal(t, StateFailed, f.State())
			assert.Contains(t, f.Reason(), "configuration")
			select {
			case <-f.started:
				t.Fatal("run goroutine started with placeholder credential")
			default:
			}
		})
	}
}

func TestBaseConnectWithoutSinkFails(t *testing.T) {
	f := newFake(PlatformDiscord, 0, Account{Credential: "tok"}, nil)
	f.Connect(context.Background())
	assert.Equal(t, StateFailed, f.State())
}

func TestBaseFailClassifiesNoSession(t *testing.T) {
	f := newFake(PlatformYouTube, 0, Account{Credential: "k"}, nil)
	f.Fail(fmt.Errorf("lookup: %w", ErrNoActiveSession))
	assert.Equal(t, StateDisconnected, f.State())
	assert.Equal(t, "no active session", f.Reason())

	// terminal states stick
	f.Fail(errors.New("boom"))
	assert.Equal(t, StateDisconnected, f.State())
	assert.False(t, f.Activate())
}

func TestBaseFailCancelsRunContext(t *testing.T) {
	b := NewBase(PlatformRelay, 0, quietLogger())
	b.Subscribe(NewBus())
	ctxCh := make(chan context.Context, 1)
	b.Start(context.Background(), nil, func(ctx context.Context) { ctxCh <- ctx })
	ctx := <-ctxCh
	assert.Equal(t, StateConnecting, b.State())

	b.Fail(fmt.Errorf("%w: status 500", ErrTransientRequest))
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("run context not cancelled")
	}
	assert.Equal(t, StateFailed, b.State())
	assert.Equal(t, "request failed: status 500", b.Reason())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorClass
	}{
		{nil, ErrorClassUnknown},
		{fmt.Errorf("x: %w", ErrConfiguration), ErrorClassConfiguration},
		{fmt.Errorf("x: %w", ErrTransientRequest), ErrorClassTransient},
		{ErrNoActiveSession, ErrorClassNoSession},
		{fmt.Errorf("close: %w", ErrResourceRelease), ErrorClassRelease},
		{context.DeadlineExceeded, ErrorClassTransient},
		{errors.New("read tcp: connection reset by peer"), ErrorClassTransient},
		{errors.New("something odd"), ErrorClassUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
}

package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/chatter/telemetry"
)

// State is the lifecycle state of an adapter.
type State int

const (
	StateCreated State = iota
	StateConnecting
	StateActive
	StateDisconnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateDisconnected || s == StateFailed
}

// Sink receives messages from adapters. Push must not block.
type Sink interface {
	Push(Message)
}

// Renderer displays messages taken off the bus.
type Renderer interface {
	Render(Message)
}

// Adapter is one connection to one account on one platform.
type Adapter interface {
	Platform() Platform
	Key() string
	// Subscribe sets the sink messages are pushed to. Call before Connect.
	Subscribe(Sink)
	// Connect starts the adapter in the background and returns immediately.
	Connect(ctx context.Context)
	// Disconnect stops the adapter. It is idempotent and safe before Connect.
	Disconnect() error
	State() State
	Reason() string
}

// Deps carries process-wide settings platform factories need.
type Deps struct {
	RequestTimeout time.Duration
	PollInterval   time.Duration
	PageSize       int
}

// Factory builds the adapter for the account in slot.
type Factory func(slot int, acct Account, log *slog.Logger) (Adapter, error)

// Registry maps each platform to its adapter factory.
type Registry map[Platform]Factory

// Base implements the lifecycle shared by every adapter. Concrete adapters
// embed *Base and call Start, Activate, Fail, Emit and Release.
type Base struct {
	platform Platform
	slot     int
	log      *slog.Logger

	mu       sync.Mutex
	state    State
	reason   string
	sink     Sink
	cancel   context.CancelFunc
	released bool
}

// NewBase returns a Base in StateCreated.
func NewBase(p Platform, slot int, log *slog.Logger) *Base {
	if log == nil {
		log = slog.Default()
	}
	telemetry.MoveAdapterState(string(p), "", StateCreated.String())
	return &Base{platform: p, slot: slot, log: log, state: StateCreated}
}

func (b *Base) Platform() Platform { return b.platform }
func (b *Base) Slot() int          { return b.slot }
func (b *Base) Key() string        { return Key(b.platform, b.slot) }
func (b *Base) Log() *slog.Logger  { return b.log }

func (b *Base) Subscribe(s Sink) {
	b.mu.Lock()
	b.sink = s
	b.mu.Unlock()
}

func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Base) Reason() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reason
}

// setLocked moves to next. Callers hold mu and have checked the current
// state is not terminal.
func (b *Base) setLocked(next State, reason string) {
	prev := b.state
	b.state = next
	b.reason = reason
	telemetry.MoveAdapterState(string(b.platform), prev.String(), next.String())
}

// Start runs check, moves to StateConnecting and runs fn on a new goroutine
// with a context that is cancelled when the adapter stops. A check error
// fails the adapter before fn is ever called. Start on an adapter that is
// not in StateCreated does nothing.
func (b *Base) Start(parent context.Context, check func() error, fn func(ctx context.Context)) {
	b.mu.Lock()
	state, sink := b.state, b.sink
	b.mu.Unlock()
	if state != StateCreated {
		b.log.Debug("connect ignored", slog.String("state", state.String()))
		return
	}
	if sink == nil {
		b.Fail(fmt.Errorf("%w: no sink subscribed", ErrConfiguration))
		return
	}
	if check != nil {
		if err := check(); err != nil {
			b.Fail(err)
			return
		}
	}

	ctx, cancel := context.WithCancel(parent)
	b.mu.Lock()
	if b.state != StateCreated {
		b.mu.Unlock()
		cancel()
		return
	}
	b.cancel = cancel
	b.setLocked(StateConnecting, "")
	b.mu.Unlock()

	b.log.Info("connecting")
	go fn(ctx)
}

// Activate moves a connecting adapter to StateActive. It returns false if the
// adapter already stopped.
func (b *Base) Activate() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state.Terminal() {
		return false
	}
	if b.state != StateActive {
		b.setLocked(StateActive, "")
		b.log.Info("adapter active")
	}
	return true
}

// Fail stops the adapter because of err. ErrNoActiveSession ends in
// StateDisconnected and is logged at info; everything else ends in
// StateFailed. Fail on a stopped adapter is a no-op, so errors raised by a
// close during Disconnect stay silent.
func (b *Base) Fail(err error) {
	if err == nil {
		return
	}
	b.mu.Lock()
	if b.state.Terminal() {
		b.mu.Unlock()
		return
	}
	class := Classify(err)
	if class == ErrorClassNoSession {
		b.setLocked(StateDisconnected, "no active session")
	} else {
		b.setLocked(StateFailed, err.Error())
	}
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if class == ErrorClassNoSession {
		b.log.Info("no active session, adapter idle")
		return
	}
	b.log.Error("adapter stopped", slog.String("class", class.String()), slog.Any("err", err))
}

// Release marks the adapter disconnected and cancels its context. It returns
// true exactly once; the caller then frees its connection. Later calls
// return false and log nothing.
func (b *Base) Release() bool {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return false
	}
	b.released = true
	if !b.state.Terminal() {
		b.setLocked(StateDisconnected, "disconnected")
	}
	final := b.state
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	telemetry.MoveAdapterState(string(b.platform), final.String(), "")
	b.log.Info("adapter disconnected")
	return true
}

// Emit pushes a message to the sink while the adapter is active. The state
// lock is held during the push so nothing is pushed once Release returns.
func (b *Base) Emit(author, body string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateActive || b.sink == nil {
		return false
	}
	b.sink.Push(Message{Author: author, Body: body, Platform: b.platform})
	telemetry.CountMessage(string(b.platform))
	return true
}

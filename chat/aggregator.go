package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/onnwee/chatter/telemetry"
)

// AdapterStatus is a point-in-time view of one adapter.
type AdapterStatus struct {
	Key      string   `json:"key"`
	Platform Platform `json:"platform"`
	State    string   `json:"state"`
	Reason   string   `json:"reason,omitempty"`
}

// Aggregator owns the set of live adapters. Loads are serialized; during a
// load every previous adapter is disconnected before the first new one is
// built, so a (platform, slot) never has two adapters at once.
type Aggregator struct {
	root     context.Context
	bus      *Bus
	registry Registry
	log      *slog.Logger

	mu       sync.Mutex
	active   []Adapter
	snapshot Snapshot
	loaded   bool
}

// NewAggregator returns an Aggregator whose adapters run under ctx and push
// into bus.
func NewAggregator(ctx context.Context, bus *Bus, registry Registry, log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{root: ctx, bus: bus, registry: registry, log: log}
}

// LoadAndConnect replaces all adapters with ones built from snap.
func (a *Aggregator) LoadAndConnect(snap Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loadLocked(snap)
}

// Reload loads a fresh snapshot from src and applies it. If loading fails
// the current adapters keep running and the error is returned.
func (a *Aggregator) Reload(ctx context.Context, src SnapshotSource) error {
	ctx, span := telemetry.StartSpan(ctx, "chat", "aggregator.reload")
	defer span.End()

	snap, err := src.Load(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		a.log.Error("reload failed, keeping current adapters", slog.Any("err", err))
		return fmt.Errorf("load accounts: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.loadLocked(snap)
	telemetry.SetSpanSuccess(span)
	return nil
}

func (a *Aggregator) loadLocked(snap Snapshot) {
	telemetry.CountReload()
	a.disconnectAllLocked()

	for p, accts := range snap {
		if !p.Valid() && len(accts) > 0 {
			a.log.Warn("unknown platform in accounts, skipping", slog.String("platform", string(p)))
		}
	}

	built := 0
	for _, p := range Platforms {
		accts := snap[p]
		if len(accts) == 0 {
			continue
		}
		factory, ok := a.registry[p]
		if !ok {
			a.log.Warn("no adapter registered for platform, skipping", slog.String("platform", string(p)), slog.Int("accounts", len(accts)))
			continue
		}
		for slot, acct := range accts {
			log := a.log.With(slog.String("platform", string(p)), slog.String("account", Key(p, slot)))
			ad, err := factory(slot, acct, log)
			if err != nil {
				log.Error("build adapter", slog.Any("err", err))
				continue
			}
			ad.Subscribe(a.bus)
			a.active = append(a.active, ad)
			ad.Connect(a.root)
			built++
		}
	}

	a.snapshot = snap.Clone()
	a.loaded = true
	a.log.Info("accounts loaded", slog.Int("adapters", built))
}

func (a *Aggregator) disconnectAllLocked() {
	for _, ad := range a.active {
		if err := ad.Disconnect(); err != nil {
			a.log.Warn("disconnect adapter", slog.String("account", ad.Key()), slog.Any("err", err))
		}
	}
	a.active = nil
}

// Status lists every adapter from the most recent load in connect order.
func (a *Aggregator) Status() []AdapterStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AdapterStatus, 0, len(a.active))
	for _, ad := range a.active {
		out = append(out, AdapterStatus{
			Key:      ad.Key(),
			Platform: ad.Platform(),
			State:    ad.State().String(),
			Reason:   ad.Reason(),
		})
	}
	return out
}

// Loaded reports whether at least one load has completed.
func (a *Aggregator) Loaded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loaded
}

// Snapshot returns a copy of the snapshot of the most recent load.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.snapshot == nil {
		return Snapshot{}
	}
	return a.snapshot.Clone()
}

// Close disconnects every adapter.
func (a *Aggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disconnectAllLocked()
}

// Package watch keeps a live view of the auction: a fixed-interval contract
// refetch and a once-per-second clock tick each re-run the pure phase
// resolution, and observers get an event whenever the phase crosses a
// boundary. Phase computation itself never does I/O; the two timers only
// decide when to recompute.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/veilbid/veilbid-client/internal/auction"
)

var ErrInvalidConfig = errors.New("watch: invalid config")

type EventType int

const (
	// EventTransition: the resolved phase changed.
	EventTransition EventType = iota
	// EventDegraded: state refetches have failed consecutively past the cap;
	// the view may be stale.
	EventDegraded
	// EventRecovered: a refetch succeeded after a degraded report.
	EventRecovered
)

func (t EventType) String() string {
	switch t {
	case EventTransition:
		return "transition"
	case EventDegraded:
		return "degraded"
	case EventRecovered:
		return "recovered"
	default:
		return "unknown"
	}
}

type Event struct {
	Type  EventType
	From  auction.Phase
	To    auction.Phase
	State auction.State
	At    time.Time
}

// StateFetcher is the read side of the contract binding.
type StateFetcher interface {
	FetchState(ctx context.Context) (auction.State, error)
}

type Config struct {
	// RefetchInterval is how often contract state is re-read. Defaults to
	// 10s, matching the read layer's historical polling cadence.
	RefetchInterval time.Duration
	// TickInterval drives clock-only recomputation. Defaults to 1s.
	TickInterval time.Duration
	// DegradedAfter is the consecutive refetch-failure cap before a
	// degraded event is emitted. Defaults to 6 (about a minute).
	DegradedAfter int
	// Now defaults to time.Now.
	Now func() time.Time
	// Buffer is the event channel capacity. Defaults to 16.
	Buffer int
}

type Watcher struct {
	cfg     Config
	fetcher StateFetcher
	log     *slog.Logger

	mu       sync.Mutex
	state    auction.State
	phase    auction.Phase
	failures int
	degraded bool

	events chan Event
}

func New(cfg Config, fetcher StateFetcher, log *slog.Logger) (*Watcher, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("%w: nil fetcher", ErrInvalidConfig)
	}
	if cfg.RefetchInterval == 0 {
		cfg.RefetchInterval = 10 * time.Second
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.RefetchInterval < 0 || cfg.TickInterval < 0 {
		return nil, fmt.Errorf("%w: intervals must be > 0", ErrInvalidConfig)
	}
	if cfg.DegradedAfter == 0 {
		cfg.DegradedAfter = 6
	}
	if cfg.DegradedAfter < 0 {
		return nil, fmt.Errorf("%w: DegradedAfter must be > 0", ErrInvalidConfig)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 16
	}
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		cfg:     cfg,
		fetcher: fetcher,
		log:     log,
		phase:   auction.PhaseLoading,
		events:  make(chan Event, cfg.Buffer),
	}, nil
}

// Events delivers phase transitions and degradation notices. Slow consumers
// drop events rather than stall the watch loop.
func (w *Watcher) Events() <-chan Event { return w.events }

// Phase returns the last resolved phase.
func (w *Watcher) Phase() auction.Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase
}

// State returns the last observed contract state.
func (w *Watcher) State() auction.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Refetch re-reads contract state and recomputes the phase. Run calls it on
// the refetch interval; it is exported so callers with their own scheduling
// (or tests) can drive the watcher directly.
func (w *Watcher) Refetch(ctx context.Context) {
	st, err := w.fetcher.FetchState(ctx)

	w.mu.Lock()
	if err != nil {
		// Keep the last good state; a failed poll supersedes nothing.
		w.failures++
		failures := w.failures
		nowDegraded := failures >= w.cfg.DegradedAfter && !w.degraded
		if nowDegraded {
			w.degraded = true
		}
		w.mu.Unlock()

		w.log.Warn("state refetch failed", "consecutive", failures, "err", err)
		if nowDegraded {
			w.emit(Event{Type: EventDegraded, At: w.cfg.Now()})
		}
		return
	}
	w.failures = 0
	recovered := w.degraded
	w.degraded = false
	w.state = st
	w.mu.Unlock()

	if recovered {
		w.emit(Event{Type: EventRecovered, State: st, At: w.cfg.Now()})
	}
	w.Tick(ctx)
}

// Tick recomputes the phase against the current clock without touching the
// network. A live countdown is just this, once per second.
func (w *Watcher) Tick(_ context.Context) {
	now := w.cfg.Now()

	w.mu.Lock()
	next := auction.ResolvePhase(w.state, now)
	prev := w.phase
	if next == prev {
		w.mu.Unlock()
		return
	}
	w.phase = next
	st := w.state
	w.mu.Unlock()

	w.log.Info("auction phase changed", "from", prev, "to", next)
	w.emit(Event{Type: EventTransition, From: prev, To: next, State: st, At: now})
}

func (w *Watcher) emit(ev Event) {
	select {
	case w.events <- ev:
	default:
		w.log.Warn("event dropped, slow consumer", "type", ev.Type)
	}
}

// Run drives Refetch and Tick until ctx ends. The first refetch happens
// immediately so consumers are not blind for a full interval.
func (w *Watcher) Run(ctx context.Context) error {
	w.Refetch(ctx)

	refetch := time.NewTicker(w.cfg.RefetchInterval)
	defer refetch.Stop()
	tick := time.NewTicker(w.cfg.TickInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			close(w.events)
			return ctx.Err()
		case <-refetch.C:
			w.Refetch(ctx)
		case <-tick.C:
			w.Tick(ctx)
		}
	}
}

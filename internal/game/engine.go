package game

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTickInterval is roughly 60 ticks per second
const DefaultTickInterval = 16 * time.Millisecond

// TickResult is handed to every listener after a tick
type TickResult struct {
	Snapshot Snapshot
	Outcome  Outcome
	Duration time.Duration // time spent inside the match lock
}

// TickListener receives tick results on the engine goroutine. Listeners
// must not block; publishing should hand off to buffered queues.
type TickListener func(TickResult)

// EngineStats is exposed through the stats endpoint
type EngineStats struct {
	Running      bool    `json:"running"`
	TickCount    uint64  `json:"tickCount"`
	TickInterval string  `json:"tickInterval"`
	Status       string  `json:"status"`
	LastTickMs   float64 `json:"lastTickMs"`
}

// Engine drives the match at a fixed interval and publishes a snapshot
// after every tick, whether or not anyone is connected.
type Engine struct {
	match    *Match
	interval time.Duration

	mu        sync.Mutex
	running   bool
	ticker    *time.Ticker
	stopChan  chan struct{}
	done      chan struct{}
	listeners []TickListener

	lastTickNs atomic.Int64
	events     *EventLog
}

// NewEngine wraps match in a tick loop. A non-positive interval falls back
// to DefaultTickInterval.
func NewEngine(match *Match, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Engine{
		match:    match,
		interval: interval,
		events:   match.events,
	}
}

// Match returns the session manager driven by this engine
func (e *Engine) Match() *Match {
	return e.match
}

// Subscribe registers fn to be called after every tick
func (e *Engine) Subscribe(fn TickListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Start begins the tick loop. Calling Start on a running engine does nothing.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return
	}
	e.running = true
	e.stopChan = make(chan struct{})
	e.done = make(chan struct{})
	e.ticker = time.NewTicker(e.interval)

	go e.loop(e.ticker, e.stopChan, e.done)
	log.Printf("🎮 Engine started, tick every %s", e.interval)
}

// Stop halts the tick loop and waits for the in-flight tick to finish
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.ticker.Stop()
	close(e.stopChan)
	done := e.done
	e.mu.Unlock()

	<-done
	log.Println("🛑 Engine stopped")
}

// Running reports whether the tick loop is active
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) loop(ticker *time.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ticker.C:
			e.Step()
		case <-stop:
			return
		}
	}
}

// Step runs exactly one tick and notifies listeners. The loop calls it on
// every timer fire; tests call it directly.
func (e *Engine) Step() TickResult {
	start := time.Now()
	snap, out := e.match.Tick()
	res := TickResult{Snapshot: snap, Outcome: out, Duration: time.Since(start)}
	e.lastTickNs.Store(int64(res.Duration))

	e.mu.Lock()
	listeners := make([]TickListener, len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(res)
	}
	return res
}

// Snapshot returns the current match snapshot
func (e *Engine) Snapshot() Snapshot {
	return e.match.Snapshot()
}

// Stats returns loop statistics
func (e *Engine) Stats() EngineStats {
	snap := e.match.Snapshot()
	return EngineStats{
		Running:      e.Running(),
		TickCount:    snap.Tick,
		TickInterval: e.interval.String(),
		Status:       snap.Status,
		LastTickMs:   float64(e.lastTickNs.Load()) / float64(time.Millisecond),
	}
}

// EventLogStats returns event log counters, or nil without an event log
func (e *Engine) EventLogStats() map[string]interface{} {
	if e.events == nil {
		return nil
	}
	return e.events.GetStats()
}

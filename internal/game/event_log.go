package game

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	EventBufferSize    = 1024
	MaxEventsPerSec    = 2000
	MaxEventsPerConn   = 20 // per connection, per second
	BatchFlushSize     = 64
	BatchFlushInterval = 250 * time.Millisecond
	ConnLimiterCleanup = 5 * time.Minute
)

// EventLog is a bounded, rate-limited trace of match events. Events land
// in a ring buffer and are optionally appended to a JSON-lines file by a
// background writer. Emit never blocks the caller.
type EventLog struct {
	buffer    [EventBufferSize]Event
	bufMu     sync.Mutex
	writeHead uint64
	readHead  uint64

	globalLimiter *rate.Limiter
	connLimiters  sync.Map // map[string]*connLimiterEntry

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	filePath string
	file     *os.File
	fileMu   sync.Mutex

	droppedCount uint64 // atomic
	totalCount   uint64 // atomic
}

type connLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64 // unix nano
}

// NewEventLog creates an idle event log; call Start to begin accepting events
func NewEventLog() *EventLog {
	return &EventLog{
		globalLimiter: rate.NewLimiter(MaxEventsPerSec, MaxEventsPerSec/10),
		stopChan:      make(chan struct{}),
	}
}

// Start opens filePath for append (if non-empty) and launches the writer.
// With an empty path events are kept in memory only.
func (el *EventLog) Start(filePath string) error {
	if el.running.Load() {
		return nil
	}

	if filePath != "" {
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open event log %s: %w", filePath, err)
		}
		el.filePath = filePath
		el.file = file
	}

	el.running.Store(true)
	el.writerWg.Add(2)
	go el.writerLoop()
	go el.cleanupLoop()
	return nil
}

// Stop flushes pending events and closes the file
func (el *EventLog) Stop() {
	if !el.running.Load() {
		return
	}
	el.stopOnce.Do(func() {
		el.running.Store(false)
		close(el.stopChan)
		el.writerWg.Wait()

		el.fileMu.Lock()
		if el.file != nil {
			el.file.Close()
			el.file = nil
		}
		el.fileMu.Unlock()
	})
}

// Emit records an event. It returns false when the log is stopped or the
// event was rate limited.
func (el *EventLog) Emit(event Event) bool {
	if el == nil || !el.running.Load() {
		return false
	}

	if !el.globalLimiter.Allow() {
		atomic.AddUint64(&el.droppedCount, 1)
		return false
	}
	if event.ConnID != "" && !el.connLimiter(event.ConnID).Allow() {
		atomic.AddUint64(&el.droppedCount, 1)
		return false
	}

	el.bufMu.Lock()
	el.writeHead++
	if el.writeHead-el.readHead > EventBufferSize {
		// Oldest entry is overwritten.
		el.readHead++
		atomic.AddUint64(&el.droppedCount, 1)
	}
	event.Sequence = el.writeHead
	el.buffer[el.writeHead%EventBufferSize] = event
	el.bufMu.Unlock()

	atomic.AddUint64(&el.totalCount, 1)
	return true
}

// EmitSimple builds and records an event in one call
func (el *EventLog) EmitSimple(eventType EventType, tickNum uint64, connID string, payload interface{}) bool {
	if el == nil {
		return false
	}
	return el.Emit(NewEvent(eventType, tickNum, connID, payload))
}

func (el *EventLog) connLimiter(connID string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := el.connLimiters.Load(connID); ok {
		e := v.(*connLimiterEntry)
		e.lastUsed.Store(now)
		return e.limiter
	}
	entry := &connLimiterEntry{limiter: rate.NewLimiter(MaxEventsPerConn, MaxEventsPerConn)}
	entry.lastUsed.Store(now)
	actual, _ := el.connLimiters.LoadOrStore(connID, entry)
	return actual.(*connLimiterEntry).limiter
}

func (el *EventLog) writerLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, BatchFlushSize)
	for {
		select {
		case <-el.stopChan:
			for {
				batch = el.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				el.flushBatch(batch)
			}
		case <-ticker.C:
			batch = el.collectBatch(batch[:0])
			if len(batch) > 0 {
				el.flushBatch(batch)
			}
		}
	}
}

func (el *EventLog) cleanupLoop() {
	defer el.writerWg.Done()

	ticker := time.NewTicker(ConnLimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-el.stopChan:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-ConnLimiterCleanup).UnixNano()
			el.connLimiters.Range(func(key, value interface{}) bool {
				if value.(*connLimiterEntry).lastUsed.Load() < cutoff {
					el.connLimiters.Delete(key)
				}
				return true
			})
		}
	}
}

// collectBatch moves up to BatchFlushSize pending events out of the ring
func (el *EventLog) collectBatch(batch []Event) []Event {
	el.bufMu.Lock()
	defer el.bufMu.Unlock()

	for el.readHead < el.writeHead && len(batch) < BatchFlushSize {
		el.readHead++
		batch = append(batch, el.buffer[el.readHead%EventBufferSize])
	}
	return batch
}

// flushBatch appends events as newline-delimited JSON
func (el *EventLog) flushBatch(batch []Event) {
	el.fileMu.Lock()
	defer el.fileMu.Unlock()

	if el.file == nil {
		return
	}
	for _, event := range batch {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		el.file.Write(append(data, '\n'))
	}
}

// Pending returns how many events are buffered but not yet flushed
func (el *EventLog) Pending() uint64 {
	el.bufMu.Lock()
	defer el.bufMu.Unlock()
	return el.writeHead - el.readHead
}

// GetStats returns counters for monitoring
func (el *EventLog) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"total":   atomic.LoadUint64(&el.totalCount),
		"dropped": atomic.LoadUint64(&el.droppedCount),
		"pending": el.Pending(),
		"running": el.running.Load(),
		"file":    el.filePath,
	}
}

// GetDroppedCount returns the number of dropped events
func (el *EventLog) GetDroppedCount() uint64 {
	return atomic.LoadUint64(&el.droppedCount)
}

// GetTotalCount returns the number of accepted events
func (el *EventLog) GetTotalCount() uint64 {
	return atomic.LoadUint64(&el.totalCount)
}

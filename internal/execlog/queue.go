package execlog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// QueueAppender buffers events in an in-process bounded channel. When the
// buffer is full the incoming event is dropped (drop-new) and Enqueue
// returns nil. A single background consumer drains the buffer on a fixed
// tick and flushes batches to the database.
type QueueAppender struct {
	db            *gorm.DB
	events        chan Event
	flushInterval time.Duration
	maxBatch      int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewQueueAppender constructs a stopped appender. Returns nil when db is
// nil or the sizing parameters are not positive.
func NewQueueAppender(db *gorm.DB, maxQueue int, flushInterval time.Duration, maxBatch int) *QueueAppender {
	if db == nil || maxQueue <= 0 || flushInterval <= 0 || maxBatch <= 0 {
		return nil
	}
	return &QueueAppender{
		db:            db,
		events:        make(chan Event, maxQueue),
		flushInterval: flushInterval,
		maxBatch:      maxBatch,
	}
}

// Enqueue buffers the event without blocking. Returns the event ID, or nil
// when the buffer is saturated and the event was dropped.
func (a *QueueAppender) Enqueue(params EnqueueParams) *uuid.UUID {
	evt := newEvent(params)
	select {
	case a.events <- evt:
		id := evt.ID
		return &id
	default:
		log.Warnf("execlog: buffer full, dropping event for function %s", evt.FunctionName)
		return nil
	}
}

// Start launches the background consumer. Calling Start on a running
// appender is a no-op.
func (a *QueueAppender) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return
	}
	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	a.running = true
	go a.run(a.stopCh, a.doneCh)
	log.Infof("execlog: queue appender started (capacity=%d, interval=%s, batch=%d)",
		cap(a.events), a.flushInterval, a.maxBatch)
}

// Stop signals the consumer to drain what it can and waits up to timeout.
// On timeout the consumer is abandoned; still-buffered events are lost.
func (a *QueueAppender) Stop(timeout time.Duration) {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	close(a.stopCh)
	done := a.doneCh
	a.running = false
	a.mu.Unlock()

	select {
	case <-done:
		log.Info("execlog: queue appender stopped")
	case <-time.After(timeout):
		log.Warn("execlog: queue appender stop timed out, abandoning consumer")
	}
}

func (a *QueueAppender) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			// Final drain so a clean shutdown loses nothing buffered.
			for a.flushOnce() {
			}
			return
		case <-ticker.C:
			a.flushOnce()
		}
	}
}

// flushOnce drains up to maxBatch buffered events and writes them. Reports
// whether any events were taken from the buffer; a failed batch is dropped
// after logging so the consumer never wedges on a bad write.
func (a *QueueAppender) flushOnce() bool {
	batch := make([]Event, 0, a.maxBatch)
drain:
	for len(batch) < a.maxBatch {
		select {
		case evt := <-a.events:
			batch = append(batch, evt)
		default:
			break drain
		}
	}
	if len(batch) == 0 {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if errFlush := flushBatch(ctx, a.db, batch); errFlush != nil {
		log.WithError(errFlush).Warnf("execlog: dropping batch of %d events", len(batch))
	}
	return true
}

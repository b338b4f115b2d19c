package execlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// redisOpTimeout bounds each Redis round trip so a slow broker cannot make
// Enqueue or the consumer loop blocking in practice.
const redisOpTimeout = time.Second

// wireEvent is the JSON shape stored on the Redis list. Optional fields are
// omitted so entries stay compact.
type wireEvent struct {
	ID                   string          `json:"id"`
	FunctionName         string          `json:"function_name"`
	AppName              string          `json:"app_name"`
	ProjectID            string          `json:"project_id"`
	Status               string          `json:"status"`
	ExecutionTime        int64           `json:"execution_time"`
	CreatedAt            time.Time       `json:"created_at"`
	LinkedAccountOwnerID *string         `json:"linked_account_owner_id,omitempty"`
	AppConfigurationID   *string         `json:"app_configuration_id,omitempty"`
	APIKeyName           *string         `json:"api_key_name,omitempty"`
	Request              json.RawMessage `json:"request,omitempty"`
	Response             json.RawMessage `json:"response,omitempty"`
}

func toWire(evt Event) wireEvent {
	w := wireEvent{
		ID:                   evt.ID.String(),
		FunctionName:         evt.FunctionName,
		AppName:              evt.AppName,
		ProjectID:            evt.ProjectID.String(),
		Status:               evt.Status,
		ExecutionTime:        evt.ExecutionTime,
		CreatedAt:            evt.CreatedAt,
		LinkedAccountOwnerID: evt.LinkedAccountOwnerID,
		APIKeyName:           evt.APIKeyName,
		Request:              json.RawMessage(evt.Request),
		Response:             json.RawMessage(evt.Response),
	}
	if evt.AppConfigurationID != nil {
		s := evt.AppConfigurationID.String()
		w.AppConfigurationID = &s
	}
	return w
}

// fromWire validates a list entry and rebuilds the Event. Entries that fail
// here are malformed and get skipped by the consumer.
func fromWire(data []byte) (Event, error) {
	var w wireEvent
	if errUnmarshal := json.Unmarshal(data, &w); errUnmarshal != nil {
		return Event{}, fmt.Errorf("decode entry: %w", errUnmarshal)
	}
	id, errID := uuid.Parse(w.ID)
	if errID != nil {
		return Event{}, fmt.Errorf("bad id %q: %w", w.ID, errID)
	}
	projectID, errProject := uuid.Parse(w.ProjectID)
	if errProject != nil {
		return Event{}, fmt.Errorf("bad project_id %q: %w", w.ProjectID, errProject)
	}
	evt := Event{
		ID:                   id,
		FunctionName:         w.FunctionName,
		AppName:              w.AppName,
		ProjectID:            projectID,
		Status:               w.Status,
		ExecutionTime:        w.ExecutionTime,
		CreatedAt:            w.CreatedAt,
		LinkedAccountOwnerID: w.LinkedAccountOwnerID,
		APIKeyName:           w.APIKeyName,
		Request:              datatypes.JSON(w.Request),
		Response:             datatypes.JSON(w.Response),
	}
	if w.AppConfigurationID != nil {
		appConfigID, errConfig := uuid.Parse(*w.AppConfigurationID)
		if errConfig != nil {
			return Event{}, fmt.Errorf("bad app_configuration_id %q: %w", *w.AppConfigurationID, errConfig)
		}
		evt.AppConfigurationID = &appConfigID
	}
	return evt, nil
}

// RedisAppender buffers events on a Redis list so they survive process
// restarts and can be shared by several producers. Events are pushed to the
// head; when the list grows past capacity the tail entry, the oldest, is
// popped and discarded (drop-oldest). A background consumer pops from the
// tail and flushes batches to the database.
type RedisAppender struct {
	db            *gorm.DB
	client        *redis.Client
	queueName     string
	maxQueue      int
	flushInterval time.Duration
	maxBatch      int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewRedisAppender constructs a stopped appender. Returns nil when db or
// client is nil or the sizing parameters are not positive.
func NewRedisAppender(db *gorm.DB, client *redis.Client, queueName string, maxQueue int, flushInterval time.Duration, maxBatch int) *RedisAppender {
	if db == nil || client == nil || queueName == "" || maxQueue <= 0 || flushInterval <= 0 || maxBatch <= 0 {
		return nil
	}
	return &RedisAppender{
		db:            db,
		client:        client,
		queueName:     queueName,
		maxQueue:      maxQueue,
		flushInterval: flushInterval,
		maxBatch:      maxBatch,
	}
}

// Enqueue serializes the event and pushes it onto the list head. Returns
// nil when serialization or the push fails, or when the push saturated the
// queue and triggered a drop. Transport failures are swallowed after a
// warning; recording must never fail the caller.
func (a *RedisAppender) Enqueue(params EnqueueParams) *uuid.UUID {
	evt := newEvent(params)
	payload, errMarshal := json.Marshal(toWire(evt))
	if errMarshal != nil {
		log.WithError(errMarshal).Warnf("execlog: cannot serialize event for function %s", evt.FunctionName)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	length, errPush := a.client.LPush(ctx, a.queueName, payload).Result()
	if errPush != nil {
		log.WithError(errPush).Warnf("execlog: push to %s failed, dropping event", a.queueName)
		return nil
	}
	if length > int64(a.maxQueue) {
		if errTrim := a.client.RPop(ctx, a.queueName).Err(); errTrim != nil && !errors.Is(errTrim, redis.Nil) {
			log.WithError(errTrim).Warnf("execlog: trim of %s failed", a.queueName)
		}
		log.Warnf("execlog: queue %s over capacity, discarded oldest entry", a.queueName)
		return nil
	}

	id := evt.ID
	return &id
}

// Start launches the background consumer. Calling Start on a running
// appender is a no-op.
func (a *RedisAppender) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return
	}
	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	a.running = true
	go a.run(a.stopCh, a.doneCh)
	log.Infof("execlog: redis appender started (queue=%s, capacity=%d, interval=%s, batch=%d)",
		a.queueName, a.maxQueue, a.flushInterval, a.maxBatch)
}

// Stop signals the consumer to finish its current batch and waits up to
// timeout. Unconsumed entries stay on the list for the next run.
func (a *RedisAppender) Stop(timeout time.Duration) {
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
		log.Info("execlog: redis appender stopped")
	case <-time.After(timeout):
		log.Warn("execlog: redis appender stop timed out, abandoning consumer")
	}
}

func (a *RedisAppender) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(a.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.flushOnce()
		}
	}
}

// flushOnce pops up to maxBatch entries from the list tail, skipping
// malformed ones, and writes the batch. Popped events that fail to flush
// are dropped after logging.
func (a *RedisAppender) flushOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	batch := make([]Event, 0, a.maxBatch)
	for len(batch) < a.maxBatch {
		data, errPop := a.client.RPop(ctx, a.queueName).Bytes()
		if errPop != nil {
			if !errors.Is(errPop, redis.Nil) {
				log.WithError(errPop).Warnf("execlog: pop from %s failed", a.queueName)
			}
			break
		}
		evt, errDecode := fromWire(data)
		if errDecode != nil {
			log.WithError(errDecode).Warnf("execlog: skipping malformed entry on %s", a.queueName)
			continue
		}
		batch = append(batch, evt)
	}
	if len(batch) == 0 {
		return
	}

	flushCtx, cancelFlush := context.WithTimeout(context.Background(), flushTimeout)
	defer cancelFlush()
	if errFlush := flushBatch(flushCtx, a.db, batch); errFlush != nil {
		log.WithError(errFlush).Warnf("execlog: dropping batch of %d events", len(batch))
	}
}

// Package execlog buffers function-execution outcomes and persists them in
// batches, keeping durable recording off the request hot path. Two appender
// implementations share one contract: an in-process bounded queue (drop-new
// on saturation) and a Redis list (drop-oldest), selected once at startup.
package execlog

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Execution statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// Event is the immutable record of one completed function execution.
type Event struct {
	ID                   uuid.UUID
	FunctionName         string
	AppName              string
	ProjectID            uuid.UUID
	Status               string
	ExecutionTime        int64 // milliseconds
	CreatedAt            time.Time
	LinkedAccountOwnerID *string
	AppConfigurationID   *uuid.UUID
	APIKeyName           *string
	Request              datatypes.JSON
	Response             datatypes.JSON
}

// hasDetail reports whether the event carries payloads that warrant a
// detail row.
func (e Event) hasDetail() bool {
	return len(e.Request) > 0 || len(e.Response) > 0
}

// EnqueueParams carries the caller-supplied fields for one event.
// ExecutionID and CreatedAt are optional; Enqueue fills them in.
type EnqueueParams struct {
	ExecutionID          *uuid.UUID
	FunctionName         string
	AppName              string
	ProjectID            uuid.UUID
	Status               string
	ExecutionTime        int64
	LinkedAccountOwnerID *string
	AppConfigurationID   *uuid.UUID
	APIKeyName           *string
	Request              datatypes.JSON
	Response             datatypes.JSON
	CreatedAt            time.Time
}

// Appender is the non-blocking sink for execution events.
//
// Enqueue attempts a non-blocking buffer insertion and returns the event ID,
// or nil when the event was dropped; it never blocks the caller and never
// fails observably. Start is idempotent. Stop signals the background
// consumer to finish its current batch and waits up to timeout before
// abandoning it.
type Appender interface {
	Enqueue(params EnqueueParams) *uuid.UUID
	Start()
	Stop(timeout time.Duration)
}

// newEvent materializes an Event from params, generating the ID and
// timestamp when absent.
func newEvent(params EnqueueParams) Event {
	id := uuid.New()
	if params.ExecutionID != nil {
		id = *params.ExecutionID
	}
	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return Event{
		ID:                   id,
		FunctionName:         params.FunctionName,
		AppName:              params.AppName,
		ProjectID:            params.ProjectID,
		Status:               params.Status,
		ExecutionTime:        params.ExecutionTime,
		CreatedAt:            createdAt,
		LinkedAccountOwnerID: params.LinkedAccountOwnerID,
		AppConfigurationID:   params.AppConfigurationID,
		APIKeyName:           params.APIKeyName,
		Request:              params.Request,
		Response:             params.Response,
	}
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ExecutionLog records the outcome of a single function execution.
type ExecutionLog struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"` // Execution identifier.

	FunctionName string    `gorm:"type:text;not null;index"` // Executed function name.
	AppName      string    `gorm:"type:text;not null;index"` // Owning app name.
	ProjectID    uuid.UUID `gorm:"type:uuid;not null;index"` // Charged project.

	Status        string `gorm:"type:text;not null"` // SUCCESS or FAILED.
	ExecutionTime int64  `gorm:"not null;default:0"` // Execution duration in milliseconds.

	LinkedAccountOwnerID *string    `gorm:"type:text"` // End-user account owner, when known.
	AppConfigurationID   *uuid.UUID `gorm:"type:uuid"` // App configuration used, when known.
	APIKeyName           *string    `gorm:"type:text"` // API key that made the call, when known.

	CreatedAt time.Time `gorm:"not null;index"` // Execution timestamp.
}

// ExecutionDetail holds the large request/response payloads for one
// execution. A row exists only when the event carried at least one payload,
// keyed 1:1 with ExecutionLog.ID.
type ExecutionDetail struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"` // Matching ExecutionLog ID.

	Request  datatypes.JSON `gorm:"type:jsonb"` // Request payload, may be null.
	Response datatypes.JSON `gorm:"type:jsonb"` // Response payload, may be null.
}

package execlog

import (
	"context"
	"fmt"
	"time"

	"github.com/aipolabs/metering/internal/models"

	"gorm.io/gorm"
)

// flushTimeout bounds a single batch write so a wedged database cannot
// stall the consumer loop forever.
const flushTimeout = 10 * time.Second

// flushBatch writes one batch in a single transaction: a summary row per
// event, plus a detail row for every event that carried payloads. The batch
// either lands whole or not at all.
func flushBatch(ctx context.Context, db *gorm.DB, batch []Event) error {
	if len(batch) == 0 {
		return nil
	}

	logs := make([]models.ExecutionLog, 0, len(batch))
	details := make([]models.ExecutionDetail, 0, len(batch))
	for _, evt := range batch {
		logs = append(logs, models.ExecutionLog{
			ID:                   evt.ID,
			FunctionName:         evt.FunctionName,
			AppName:              evt.AppName,
			ProjectID:            evt.ProjectID,
			Status:               evt.Status,
			ExecutionTime:        evt.ExecutionTime,
			LinkedAccountOwnerID: evt.LinkedAccountOwnerID,
			AppConfigurationID:   evt.AppConfigurationID,
			APIKeyName:           evt.APIKeyName,
			CreatedAt:            evt.CreatedAt,
		})
		if evt.hasDetail() {
			details = append(details, models.ExecutionDetail{
				ID:       evt.ID,
				Request:  evt.Request,
				Response: evt.Response,
			})
		}
	}

	errTx := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&logs).Error; errCreate != nil {
			return errCreate
		}
		if len(details) > 0 {
			if errCreate := tx.Create(&details).Error; errCreate != nil {
				return errCreate
			}
		}
		return nil
	})
	if errTx != nil {
		return fmt.Errorf("execlog: flush %d events: %w", len(batch), errTx)
	}
	return nil
}

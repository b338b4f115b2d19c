package execlog

import (
	"context"
	"time"

	"github.com/aipolabs/metering/internal/settings"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultRetentionInterval = 6 * time.Hour
	defaultDeleteBatchSize   = 5000
	maxDeleteBatchesPerRun   = 2000
)

// RetentionCleaner periodically deletes execution logs, and their detail
// rows, older than the configured retention window.
type RetentionCleaner struct {
	db        *gorm.DB
	days      int
	interval  time.Duration
	batchSize int
}

// NewRetentionCleaner constructs a cleaner. days is the configured
// retention in days; a runtime setting can override it per run, and a
// resolved value of zero or less disables cleanup.
func NewRetentionCleaner(db *gorm.DB, days int) *RetentionCleaner {
	if db == nil {
		return nil
	}
	return &RetentionCleaner{
		db:        db,
		days:      days,
		interval:  defaultRetentionInterval,
		batchSize: defaultDeleteBatchSize,
	}
}

// Start launches the cleanup loop in a background goroutine.
func (c *RetentionCleaner) Start(ctx context.Context) {
	if c == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go c.run(ctx)
	log.Infof("execlog: retention cleaner started (interval=%s)", c.interval)
}

func (c *RetentionCleaner) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.cleanupOnce(ctx)
		timer := time.NewTimer(c.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

func (c *RetentionCleaner) cleanupOnce(ctx context.Context) {
	days := c.days
	if override, ok := settings.IntValue(settings.ExecutionLogsRetentionDaysKey); ok && override >= 0 {
		days = override
	}
	if days <= 0 {
		return
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	deletedTotal := int64(0)
	for i := 0; i < maxDeleteBatchesPerRun; i++ {
		if ctx.Err() != nil {
			return
		}
		n, errDelete := c.deleteBatch(ctx, cutoff)
		if errDelete != nil {
			log.WithError(errDelete).Warn("execlog: retention delete batch failed")
			break
		}
		if n <= 0 {
			break
		}
		deletedTotal += n
	}

	if deletedTotal > 0 {
		log.Infof("execlog: retention cleaner deleted %d rows (cutoff=%s retention_days=%d)",
			deletedTotal, cutoff.Format(time.RFC3339), days)
	}
}

// deleteBatch removes one bounded slice of expired logs. Details go first,
// inside the same transaction, so a log row never outlives its payloads or
// vice versa. The limited subquery keeps transactions short.
func (c *RetentionCleaner) deleteBatch(ctx context.Context, cutoff time.Time) (int64, error) {
	limit := c.batchSize
	if limit <= 0 {
		limit = defaultDeleteBatchSize
	}

	var deleted int64
	errTx := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errDetails := tx.Exec(`
			DELETE FROM execution_details
			WHERE id IN (
				SELECT id FROM execution_logs
				WHERE created_at < ?
				ORDER BY created_at ASC
				LIMIT ?
			)
		`, cutoff, limit).Error; errDetails != nil {
			return errDetails
		}
		res := tx.Exec(`
			DELETE FROM execution_logs
			WHERE id IN (
				SELECT id FROM execution_logs
				WHERE created_at < ?
				ORDER BY created_at ASC
				LIMIT ?
			)
		`, cutoff, limit)
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if errTx != nil {
		return 0, errTx
	}
	return deleted, nil
}

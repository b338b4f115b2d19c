package execlog

import (
	"fmt"

	"github.com/aipolabs/metering/internal/config"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// New constructs the appender selected by cfg.Backend. The redis backend
// needs a non-nil client; config validation guarantees an address was
// configured when that backend is selected.
func New(cfg config.AppenderConfig, db *gorm.DB, client *redis.Client) (Appender, error) {
	switch cfg.Backend {
	case config.AppenderBackendQueue:
		appender := NewQueueAppender(db, cfg.MaxQueue, cfg.FlushInterval(), cfg.MaxBatch)
		if appender == nil {
			return nil, fmt.Errorf("execlog: invalid queue appender configuration")
		}
		return appender, nil
	case config.AppenderBackendRedis:
		appender := NewRedisAppender(db, client, cfg.QueueName, cfg.MaxQueue, cfg.FlushInterval(), cfg.MaxBatch)
		if appender == nil {
			return nil, fmt.Errorf("execlog: invalid redis appender configuration")
		}
		return appender, nil
	default:
		return nil, fmt.Errorf("execlog: unknown appender backend %q", cfg.Backend)
	}
}

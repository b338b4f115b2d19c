// Package app wires the subsystems together at startup. All construction is
// explicit and happens here; no package holds import-time singletons, so
// tests and alternate entrypoints can assemble their own instances.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aipolabs/metering/internal/cache"
	"github.com/aipolabs/metering/internal/config"
	"github.com/aipolabs/metering/internal/db"
	"github.com/aipolabs/metering/internal/execlog"
	"github.com/aipolabs/metering/internal/http/handlers"
	"github.com/aipolabs/metering/internal/quota"
	"github.com/aipolabs/metering/internal/settings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	appenderStopTimeout     = 10 * time.Second
	serverShutdownTimeout   = 10 * time.Second
	settingsRefreshInterval = time.Minute
)

// App holds the assembled subsystems for one process.
type App struct {
	cfg      *config.Config
	db       *gorm.DB
	redis    *redis.Client
	engine   *gin.Engine
	cleaner  *execlog.RetentionCleaner
	Ledger   *quota.Ledger
	Appender execlog.Appender
}

// Migrate opens the database and runs migrations, for one-shot use from the
// command line.
func Migrate(cfg *config.Config) error {
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// New assembles an App from configuration. The database is opened and
// migrated, the settings snapshot is primed, and the appender backend is
// constructed but not started.
func New(cfg *config.Config) (*App, error) {
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return nil, errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return nil, errMigrate
	}
	if errRefresh := settings.Refresh(context.Background(), conn); errRefresh != nil {
		// Settings only tune heuristics; the compiled defaults suffice.
		log.WithError(errRefresh).Warn("app: initial settings refresh failed")
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	loc := cfg.Location()
	ledger := quota.NewLedger(conn, cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB), loc, quota.Options{
		SoftWindowPercent:   cfg.Quota.SoftWindowPercent,
		WriteThroughPercent: cfg.Quota.WriteThroughPercent,
		CacheTTL:            time.Duration(cfg.Quota.CacheTTLSeconds) * time.Second,
	})
	appender, errAppender := execlog.New(cfg.Appender, conn, redisClient)
	if errAppender != nil {
		return nil, errAppender
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	registerRoutes(engine, conn, loc)

	return &App{
		cfg:      cfg,
		db:       conn,
		redis:    redisClient,
		engine:   engine,
		cleaner:  execlog.NewRetentionCleaner(conn, cfg.Appender.RetentionDays),
		Ledger:   ledger,
		Appender: appender,
	}, nil
}

func registerRoutes(engine *gin.Engine, conn *gorm.DB, loc *time.Location) {
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	logs := handlers.NewLogsHandler(conn)
	quotas := handlers.NewQuotasHandler(conn, loc)
	v1 := engine.Group("/v1")
	v1.GET("/execution-logs", logs.List)
	v1.GET("/execution-logs/:id", logs.Get)
	v1.GET("/projects/:id/quota", quotas.Status)
}

// Run starts the background workers and the HTTP server, then blocks until
// ctx is cancelled and everything has shut down.
func (a *App) Run(ctx context.Context) error {
	a.Appender.Start()
	a.cleaner.Start(ctx)
	go a.refreshSettingsLoop(ctx)

	srv := &http.Server{Addr: a.cfg.Server.Addr, Handler: a.engine}
	serveErr := make(chan error, 1)
	go func() {
		log.Infof("app: listening on %s", a.cfg.Server.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case errServe := <-serveErr:
		if errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			a.Appender.Stop(appenderStopTimeout)
			return errServe
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
		log.WithError(errShutdown).Warn("app: server shutdown failed")
	}

	// The appender drains last so in-flight requests can still record.
	a.Appender.Stop(appenderStopTimeout)
	if a.redis != nil {
		if errClose := a.redis.Close(); errClose != nil {
			log.WithError(errClose).Warn("app: redis close failed")
		}
	}
	log.Info("app: stopped")
	return nil
}

// refreshSettingsLoop keeps the runtime settings snapshot current.
func (a *App) refreshSettingsLoop(ctx context.Context) {
	for {
		timer := time.NewTimer(settingsRefreshInterval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
		if errRefresh := settings.Refresh(ctx, a.db); errRefresh != nil {
			log.WithError(errRefresh).Warn("app: settings refresh failed")
		}
	}
}

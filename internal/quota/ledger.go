// Package quota enforces per-project monthly usage quotas.
//
// Consume charges units through two tiers: an optimistic cache fast path
// that avoids the database under bursty traffic, and a single atomic UPDATE
// that is the enforcement boundary. The database row always wins; the cache
// may transiently overshoot by at most the soft window before the hard path
// reconciles it.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aipolabs/metering/internal/cache"
	"github.com/aipolabs/metering/internal/models"
	"github.com/aipolabs/metering/internal/month"
	"github.com/aipolabs/metering/internal/settings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	// ErrProjectNotFound means the project row does not exist; a
	// provisioning bug, fatal to the caller.
	ErrProjectNotFound = errors.New("quota: project not found")
	// ErrMonthlyQuotaExceeded is the expected rejection when a charge
	// would push monthly usage past the limit.
	ErrMonthlyQuotaExceeded = errors.New("quota: monthly quota exceeded")
)

const (
	defaultSoftWindowPercent   = 5
	defaultWriteThroughPercent = 10
	// softWindowFloor keeps the overshoot window usable for tiny limits.
	softWindowFloor = 10
)

// sqlConsume rolls the month if needed, computes the would-be new usage,
// applies it only when it stays within the limit, and bumps the all-time
// counter — all in one atomic statement. Zero rows means the cap was hit or
// the project is missing.
const sqlConsume = `
UPDATE projects
SET monthly_quota_month = ?,
    monthly_quota_used  = (CASE WHEN monthly_quota_month = ? THEN monthly_quota_used ELSE 0 END) + ?,
    total_quota_used    = total_quota_used + ?,
    updated_at          = ?
WHERE id = ?
  AND (CASE WHEN monthly_quota_month = ? THEN monthly_quota_used ELSE 0 END) + ? <= monthly_quota_limit
RETURNING monthly_quota_used, monthly_quota_limit`

// Options tunes the fast-path heuristics. Zero values fall back to the
// defaults (5% soft window, 10% write-through step).
type Options struct {
	SoftWindowPercent   int
	WriteThroughPercent int
	// CacheTTL caps cache entry lifetimes. Entries otherwise expire at the
	// month boundary.
	CacheTTL time.Duration
}

// Ledger charges monthly quota units against project rows.
type Ledger struct {
	db    *gorm.DB
	cache cache.Cache
	loc   *time.Location
	opts  Options

	// now is swappable for tests.
	now func() time.Time
}

// NewLedger constructs a Ledger. The cache is optional in the sense that a
// memory cache still bounds database load within one process; it must never
// be nil.
func NewLedger(db *gorm.DB, c cache.Cache, loc *time.Location, opts Options) *Ledger {
	if db == nil || c == nil {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{
		db:    db,
		cache: c,
		loc:   loc,
		opts:  opts,
		now:   time.Now,
	}
}

// Consume atomically charges count units to the project for the current
// month. count <= 0 is a no-op. Returns ErrProjectNotFound or
// ErrMonthlyQuotaExceeded; any other error is a database failure on the
// enforcement path and propagates unchanged.
func (l *Ledger) Consume(ctx context.Context, projectID uuid.UUID, count int64) error {
	if l == nil || l.db == nil {
		return errors.New("quota: nil ledger")
	}
	if count <= 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := l.now()
	monthStart := month.Start(now, l.loc)
	counterKey := cacheKey(projectID, month.Key(now, l.loc))
	limitKey := counterKey + ":limit"
	ttl := time.Duration(month.SecondsUntilEnd(now, l.loc)) * time.Second
	if l.opts.CacheTTL > 0 && l.opts.CacheTTL < ttl {
		ttl = l.opts.CacheTTL
	}

	limit, haveLimit := l.cache.Get(ctx, limitKey)
	if !haveLimit {
		fetched, errFetch := l.fetchLimit(ctx, projectID)
		if errFetch != nil {
			return errFetch
		}
		limit = fetched
		l.cache.Set(ctx, limitKey, limit, ttl)
	}

	if l.tryFastPath(ctx, counterKey, limit, count, ttl) {
		return nil
	}

	return l.consumeHard(ctx, projectID, monthStart, counterKey, limitKey, limit, count, ttl, now)
}

// tryFastPath speculatively increments the cache counter and reports whether
// the charge can be accepted without touching the database. The counter is
// advisory: it may overshoot by up to the soft window, and the periodic
// write-through checkpoint forces a database reconciliation to bound drift.
func (l *Ledger) tryFastPath(ctx context.Context, counterKey string, limit, count int64, ttl time.Duration) bool {
	current, ok := l.cache.Get(ctx, counterKey)
	after := current + count
	l.cache.Set(ctx, counterKey, after, ttl)
	if !ok {
		// First charge of the month, or the cache is unavailable. The
		// facade hides transport failures, so read the seed back: a
		// miss here means writes are not sticking and every charge
		// must take the hard path.
		if _, stored := l.cache.Get(ctx, counterKey); !stored {
			return false
		}
	}

	step := l.writeThroughStep(limit)
	writeThrough := step > 0 && after%step == 0
	return after <= limit+l.softWindow(limit) && !writeThrough
}

// consumeHard runs the atomic conditional UPDATE and resyncs the cache to
// the database-authoritative values.
func (l *Ledger) consumeHard(ctx context.Context, projectID uuid.UUID, monthStart time.Time, counterKey, limitKey string, limit, count int64, ttl time.Duration, now time.Time) error {
	var row struct {
		MonthlyQuotaUsed  int64
		MonthlyQuotaLimit int64
	}
	res := l.db.WithContext(ctx).
		Raw(sqlConsume, monthStart, monthStart, count, count, now.UTC(), projectID, monthStart, count).
		Scan(&row)
	if res.Error != nil {
		return fmt.Errorf("quota: consume project %s: %w", projectID, res.Error)
	}

	if res.RowsAffected == 0 {
		exists, errExists := l.projectExists(ctx, projectID)
		if errExists != nil {
			return errExists
		}
		if !exists {
			log.Errorf("quota: project %s not found during consume", projectID)
			return ErrProjectNotFound
		}
		// Clamp the counter to the limit so the fast path stops
		// accepting for the rest of the month.
		l.cache.Set(ctx, counterKey, limit, ttl)
		return ErrMonthlyQuotaExceeded
	}

	l.cache.Set(ctx, counterKey, row.MonthlyQuotaUsed, ttl)
	l.cache.Set(ctx, limitKey, row.MonthlyQuotaLimit, ttl)
	return nil
}

// fetchLimit reads the monthly limit for a project.
func (l *Ledger) fetchLimit(ctx context.Context, projectID uuid.UUID) (int64, error) {
	var row struct {
		MonthlyQuotaLimit int64
	}
	errTake := l.db.WithContext(ctx).
		Model(&models.Project{}).
		Select("monthly_quota_limit").
		Where("id = ?", projectID).
		Take(&row).Error
	if errTake != nil {
		if errors.Is(errTake, gorm.ErrRecordNotFound) {
			return 0, ErrProjectNotFound
		}
		return 0, fmt.Errorf("quota: fetch limit for project %s: %w", projectID, errTake)
	}
	return row.MonthlyQuotaLimit, nil
}

// projectExists checks whether the project row is present.
func (l *Ledger) projectExists(ctx context.Context, projectID uuid.UUID) (bool, error) {
	var count int64
	errCount := l.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ?", projectID).
		Count(&count).Error
	if errCount != nil {
		return false, fmt.Errorf("quota: existence check for project %s: %w", projectID, errCount)
	}
	return count > 0, nil
}

// softWindow returns the permissible optimistic overshoot for a limit.
func (l *Ledger) softWindow(limit int64) int64 {
	percent := l.opts.SoftWindowPercent
	if override, ok := settings.IntValue(settings.QuotaSoftWindowPercentKey); ok && override > 0 {
		percent = override
	}
	if percent <= 0 {
		percent = defaultSoftWindowPercent
	}
	window := limit * int64(percent) / 100
	if window < softWindowFloor {
		window = softWindowFloor
	}
	return window
}

// writeThroughStep returns the checkpoint interval in units, or 0 to
// disable checkpointing.
func (l *Ledger) writeThroughStep(limit int64) int64 {
	percent := l.opts.WriteThroughPercent
	if override, ok := settings.IntValue(settings.QuotaWriteThroughPercentKey); ok && override > 0 {
		percent = override
	}
	if percent <= 0 {
		percent = defaultWriteThroughPercent
	}
	step := limit * int64(percent) / 100
	if step < 1 {
		step = 1
	}
	return step
}

// cacheKey namespaces the per-month counter for a project.
func cacheKey(projectID uuid.UUID, monthKey string) string {
	return fmt.Sprintf("quota:%s:%s", projectID, monthKey)
}

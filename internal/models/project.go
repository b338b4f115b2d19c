package models

import (
	"time"

	"github.com/google/uuid"
)

// Project is the quota scope: one row owns one monthly usage counter.
//
// MonthlyQuotaMonth holds the first day of the month the counter applies to.
// The counter is never reset in place; the charge statement rolls it over and
// applies the charge in one atomic UPDATE, so MonthlyQuotaUsed never exceeds
// MonthlyQuotaLimit in any committed state.
type Project struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"` // Primary key.

	Name string `gorm:"type:text;not null"` // Display name.

	MonthlyQuotaMonth time.Time `gorm:"not null"`           // First day of the counted month.
	MonthlyQuotaUsed  int64     `gorm:"not null;default:0"` // Units consumed this month.
	MonthlyQuotaLimit int64     `gorm:"not null;default:0"` // Monthly ceiling from the tenant's plan.
	TotalQuotaUsed    int64     `gorm:"not null;default:0"` // All-time units, monotonically increasing.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

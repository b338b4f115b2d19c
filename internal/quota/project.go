package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aipolabs/metering/internal/models"
	"github.com/aipolabs/metering/internal/month"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProvisionProject creates a project row with the monthly counter
// initialized to the current calendar month and zero usage. The limit comes
// from the tenant's plan, resolved by the caller.
func ProvisionProject(ctx context.Context, db *gorm.DB, loc *time.Location, name string, monthlyLimit int64) (*models.Project, error) {
	if db == nil {
		return nil, errors.New("quota: nil db")
	}
	if loc == nil {
		loc = time.UTC
	}
	if monthlyLimit < 0 {
		return nil, fmt.Errorf("quota: negative monthly limit %d", monthlyLimit)
	}

	project := models.Project{
		ID:                uuid.New(),
		Name:              name,
		MonthlyQuotaMonth: month.Start(time.Now(), loc),
		MonthlyQuotaUsed:  0,
		MonthlyQuotaLimit: monthlyLimit,
		TotalQuotaUsed:    0,
	}
	if errCreate := db.WithContext(ctx).Create(&project).Error; errCreate != nil {
		return nil, fmt.Errorf("quota: provision project: %w", errCreate)
	}
	return &project, nil
}

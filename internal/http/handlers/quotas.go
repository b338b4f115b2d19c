package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/aipolabs/metering/internal/models"
	"github.com/aipolabs/metering/internal/month"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QuotasHandler handles project quota endpoints.
type QuotasHandler struct {
	db  *gorm.DB
	loc *time.Location
}

// NewQuotasHandler constructs a QuotasHandler.
func NewQuotasHandler(db *gorm.DB, loc *time.Location) *QuotasHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &QuotasHandler{db: db, loc: loc}
}

// Status returns the authoritative quota state for one project. A stored
// month older than the current one reports zero usage: the row rolls over
// lazily on the next charge.
func (h *QuotasHandler) Status(c *gin.Context) {
	projectID, errParse := uuid.Parse(c.Param("id"))
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	var project models.Project
	if errTake := h.db.WithContext(c.Request.Context()).
		Where("id = ?", projectID).
		Take(&project).Error; errTake != nil {
		if errors.Is(errTake, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query project failed"})
		return
	}

	currentMonth := month.Start(time.Now(), h.loc)
	used := project.MonthlyQuotaUsed
	if !project.MonthlyQuotaMonth.Equal(currentMonth) {
		used = 0
	}

	c.JSON(http.StatusOK, gin.H{
		"project_id":          project.ID.String(),
		"month":               currentMonth.Format("2006-01"),
		"monthly_quota_used":  used,
		"monthly_quota_limit": project.MonthlyQuotaLimit,
		"total_quota_used":    project.TotalQuotaUsed,
	})
}

// Package handlers exposes the read-side HTTP API: execution log listing
// and retrieval, and project quota status.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	dbutil "github.com/aipolabs/metering/internal/db"
	"github.com/aipolabs/metering/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LogsHandler handles execution log endpoints.
type LogsHandler struct {
	db *gorm.DB
}

// NewLogsHandler constructs a LogsHandler.
func NewLogsHandler(db *gorm.DB) *LogsHandler {
	return &LogsHandler{db: db}
}

// logsListQuery defines query parameters for listing execution logs.
type logsListQuery struct {
	Page         int    `form:"page,default=1"`
	Limit        int    `form:"limit,default=20"`
	AppName      string `form:"app_name"`
	FunctionName string `form:"function_name"`
	Status       string `form:"status"`
	Search       string `form:"search"`
	StartTime    string `form:"start_time"`
	EndTime      string `form:"end_time"`
}

// logEntry defines one execution log in list responses.
type logEntry struct {
	ID                   string    `json:"id"`
	FunctionName         string    `json:"function_name"`
	AppName              string    `json:"app_name"`
	Status               string    `json:"status"`
	ExecutionTime        int64     `json:"execution_time"`
	CreatedAt            time.Time `json:"created_at"`
	LinkedAccountOwnerID *string   `json:"linked_account_owner_id,omitempty"`
	APIKeyName           *string   `json:"api_key_name,omitempty"`
}

// projectIDParam resolves the authenticated project scope. Every log query
// is bounded to one project.
func projectIDParam(c *gin.Context) (uuid.UUID, bool) {
	raw := strings.TrimSpace(c.Query("project_id"))
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing project_id"})
		return uuid.Nil, false
	}
	id, errParse := uuid.Parse(raw)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project_id"})
		return uuid.Nil, false
	}
	return id, true
}

// List returns execution logs for a project, newest first.
func (h *LogsHandler) List(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}

	var q logsListQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 20
	}

	ctx := c.Request.Context()
	filter := func(query *gorm.DB) *gorm.DB {
		query = query.Where("project_id = ?", projectID)
		if q.AppName != "" {
			query = query.Where("app_name = ?", q.AppName)
		}
		if q.FunctionName != "" {
			query = query.Where("function_name = ?", q.FunctionName)
		}
		if q.Status != "" {
			query = query.Where("status = ?", strings.ToUpper(q.Status))
		}
		if q.Search != "" {
			query = query.Where(
				dbutil.CaseInsensitiveLikeExpr(h.db, "function_name"),
				dbutil.NormalizeLikePattern(h.db, "%"+q.Search+"%"),
			)
		}
		if q.StartTime != "" {
			if start, errParse := time.Parse(time.RFC3339, q.StartTime); errParse == nil {
				query = query.Where("created_at >= ?", start)
			}
		}
		if q.EndTime != "" {
			if end, errParse := time.Parse(time.RFC3339, q.EndTime); errParse == nil {
				query = query.Where("created_at < ?", end)
			}
		}
		return query
	}

	var total int64
	if errCount := filter(h.db.WithContext(ctx).Model(&models.ExecutionLog{})).Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query logs failed"})
		return
	}

	offset := (q.Page - 1) * q.Limit
	var rows []models.ExecutionLog
	if errFind := filter(h.db.WithContext(ctx).Model(&models.ExecutionLog{})).
		Order("created_at DESC").
		Offset(offset).Limit(q.Limit).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query logs failed"})
		return
	}

	logs := make([]logEntry, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, logEntry{
			ID:                   row.ID.String(),
			FunctionName:         row.FunctionName,
			AppName:              row.AppName,
			Status:               row.Status,
			ExecutionTime:        row.ExecutionTime,
			CreatedAt:            row.CreatedAt,
			LinkedAccountOwnerID: row.LinkedAccountOwnerID,
			APIKeyName:           row.APIKeyName,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":  logs,
		"total": total,
		"page":  q.Page,
		"limit": q.Limit,
	})
}

// Get returns one execution log with its request/response payloads when a
// detail row exists.
func (h *LogsHandler) Get(c *gin.Context) {
	projectID, ok := projectIDParam(c)
	if !ok {
		return
	}
	logID, errParse := uuid.Parse(c.Param("id"))
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid log id"})
		return
	}

	ctx := c.Request.Context()
	var row models.ExecutionLog
	if errTake := h.db.WithContext(ctx).
		Where("id = ? AND project_id = ?", logID, projectID).
		Take(&row).Error; errTake != nil {
		if errors.Is(errTake, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "log not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query log failed"})
		return
	}

	resp := gin.H{
		"id":             row.ID.String(),
		"function_name":  row.FunctionName,
		"app_name":       row.AppName,
		"status":         row.Status,
		"execution_time": row.ExecutionTime,
		"created_at":     row.CreatedAt,
	}
	if row.LinkedAccountOwnerID != nil {
		resp["linked_account_owner_id"] = *row.LinkedAccountOwnerID
	}
	if row.AppConfigurationID != nil {
		resp["app_configuration_id"] = row.AppConfigurationID.String()
	}
	if row.APIKeyName != nil {
		resp["api_key_name"] = *row.APIKeyName
	}

	var detail models.ExecutionDetail
	errDetail := h.db.WithContext(ctx).Where("id = ?", logID).Take(&detail).Error
	switch {
	case errDetail == nil:
		if len(detail.Request) > 0 {
			resp["request"] = json.RawMessage(detail.Request)
		}
		if len(detail.Response) > 0 {
			resp["response"] = json.RawMessage(detail.Response)
		}
	case errors.Is(errDetail, gorm.ErrRecordNotFound):
		// Summary-only event; no payloads to attach.
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query log detail failed"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	dbutil "github.com/aipolabs/metering/internal/db"
	"github.com/aipolabs/metering/internal/models"
	"github.com/aipolabs/metering/internal/month"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := dbutil.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func setupRouter(t *testing.T, conn *gorm.DB) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	loc, errLoad := time.LoadLocation("Asia/Bangkok")
	if errLoad != nil {
		t.Fatalf("load location: %v", errLoad)
	}

	router := gin.New()
	logs := NewLogsHandler(conn)
	quotas := NewQuotasHandler(conn, loc)
	router.GET("/v1/execution-logs", logs.List)
	router.GET("/v1/execution-logs/:id", logs.Get)
	router.GET("/v1/projects/:id/quota", quotas.Status)
	return router
}

func seedLog(t *testing.T, conn *gorm.DB, projectID uuid.UUID, appName, status string, createdAt time.Time) uuid.UUID {
	t.Helper()
	row := models.ExecutionLog{
		ID:           uuid.New(),
		FunctionName: appName + "__CALL",
		AppName:      appName,
		ProjectID:    projectID,
		Status:       status,
		CreatedAt:    createdAt,
	}
	if errCreate := conn.Create(&row).Error; errCreate != nil {
		t.Fatalf("seed log: %v", errCreate)
	}
	return row.ID
}

func doRequest(t *testing.T, router *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	body := map[string]json.RawMessage{}
	if rec.Body.Len() > 0 {
		if errDecode := json.Unmarshal(rec.Body.Bytes(), &body); errDecode != nil {
			t.Fatalf("decode body %q: %v", rec.Body.String(), errDecode)
		}
	}
	return rec, body
}

func TestLogsListFiltersAndPaginates(t *testing.T) {
	conn := setupDB(t)
	router := setupRouter(t, conn)

	projectID := uuid.New()
	now := time.Now().UTC()
	seedLog(t, conn, projectID, "GMAIL", "SUCCESS", now.Add(-2*time.Hour))
	seedLog(t, conn, projectID, "GMAIL", "FAILED", now.Add(-time.Hour))
	seedLog(t, conn, projectID, "SLACK", "SUCCESS", now)
	// A different project's log never shows up.
	seedLog(t, conn, uuid.New(), "GMAIL", "SUCCESS", now)

	rec, body := doRequest(t, router, "/v1/execution-logs?project_id="+projectID.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var total int64
	if errDecode := json.Unmarshal(body["total"], &total); errDecode != nil || total != 3 {
		t.Fatalf("total = %s, want 3", body["total"])
	}

	rec, body = doRequest(t, router, "/v1/execution-logs?project_id="+projectID.String()+"&app_name=GMAIL&status=failed")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var logs []logEntry
	if errDecode := json.Unmarshal(body["logs"], &logs); errDecode != nil {
		t.Fatalf("decode logs: %v", errDecode)
	}
	if len(logs) != 1 || logs[0].Status != "FAILED" || logs[0].AppName != "GMAIL" {
		t.Fatalf("filtered logs = %+v", logs)
	}

	rec, body = doRequest(t, router, "/v1/execution-logs?project_id="+projectID.String()+"&search=slack__")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if errDecode := json.Unmarshal(body["logs"], &logs); errDecode != nil {
		t.Fatalf("decode logs: %v", errDecode)
	}
	if len(logs) != 1 || logs[0].FunctionName != "SLACK__CALL" {
		t.Fatalf("search logs = %+v", logs)
	}

	rec, _ = doRequest(t, router, "/v1/execution-logs")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing project_id: status = %d, want 400", rec.Code)
	}
}

func TestLogsGetJoinsDetail(t *testing.T) {
	conn := setupDB(t)
	router := setupRouter(t, conn)

	projectID := uuid.New()
	logID := seedLog(t, conn, projectID, "GMAIL", "SUCCESS", time.Now().UTC())
	detail := models.ExecutionDetail{ID: logID, Request: datatypes.JSON(`{"to":"a@b.c"}`)}
	if errCreate := conn.Create(&detail).Error; errCreate != nil {
		t.Fatalf("seed detail: %v", errCreate)
	}

	rec, body := doRequest(t, router, "/v1/execution-logs/"+logID.String()+"?project_id="+projectID.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if string(body["request"]) != `{"to":"a@b.c"}` {
		t.Fatalf("request = %s", body["request"])
	}
	if _, ok := body["response"]; ok {
		t.Fatal("empty response payload was attached")
	}

	rec, _ = doRequest(t, router, "/v1/execution-logs/"+uuid.NewString()+"?project_id="+projectID.String())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown log: status = %d, want 404", rec.Code)
	}
}

func TestQuotaStatusReportsCurrentMonth(t *testing.T) {
	conn := setupDB(t)
	router := setupRouter(t, conn)
	loc, _ := time.LoadLocation("Asia/Bangkok")

	project := models.Project{
		ID:                uuid.New(),
		Name:              "p",
		MonthlyQuotaMonth: month.Start(time.Now(), loc),
		MonthlyQuotaUsed:  7,
		MonthlyQuotaLimit: 100,
		TotalQuotaUsed:    42,
	}
	if errCreate := conn.Create(&project).Error; errCreate != nil {
		t.Fatalf("seed project: %v", errCreate)
	}

	rec, body := doRequest(t, router, "/v1/projects/"+project.ID.String()+"/quota")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if string(body["monthly_quota_used"]) != "7" || string(body["monthly_quota_limit"]) != "100" {
		t.Fatalf("quota body = %s", rec.Body.String())
	}

	rec, _ = doRequest(t, router, "/v1/projects/"+uuid.NewString()+"/quota")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown project: status = %d, want 404", rec.Code)
	}
}

func TestQuotaStatusStaleMonthReadsAsZero(t *testing.T) {
	conn := setupDB(t)
	router := setupRouter(t, conn)
	loc, _ := time.LoadLocation("Asia/Bangkok")

	project := models.Project{
		ID:                uuid.New(),
		Name:              "p",
		MonthlyQuotaMonth: month.Start(time.Now(), loc).AddDate(0, -1, 0),
		MonthlyQuotaUsed:  88,
		MonthlyQuotaLimit: 100,
		TotalQuotaUsed:    88,
	}
	if errCreate := conn.Create(&project).Error; errCreate != nil {
		t.Fatalf("seed project: %v", errCreate)
	}

	rec, body := doRequest(t, router, "/v1/projects/"+project.ID.String()+"/quota")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if string(body["monthly_quota_used"]) != "0" {
		t.Fatalf("stale month used = %s, want 0", body["monthly_quota_used"])
	}
}

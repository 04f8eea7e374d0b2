package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"valentinequest/internal/api/middleware"
	"valentinequest/internal/candidate"
	"valentinequest/internal/database"
	"valentinequest/internal/tasks"
)

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type downloadLinker interface {
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
	GenerateDownloadURL(ctx context.Context, objectKey, filename string, duration time.Duration) (string, error)
}

// ExportHandler 管理后台全量导出任务：入队、查询状态、签发下载链接。
type ExportHandler struct {
	db      *gorm.DB
	queue   taskEnqueuer
	storage downloadLinker
	linkTTL time.Duration
}

// NewExportHandler 构造 ExportHandler。
func NewExportHandler(db *gorm.DB, queue taskEnqueuer, storage downloadLinker, linkTTL time.Duration) *ExportHandler {
	if linkTTL <= 0 {
		linkTTL = 15 * time.Minute
	}
	return &ExportHandler{db: db, queue: queue, storage: storage, linkTTL: linkTTL}
}

type createExportRequest struct {
	Search          string `json:"search"`
	Sort            string `json:"sort"`
	SpreadsheetSafe bool   `json:"spreadsheetSafe"`
}

type exportQuery struct {
	Search          string `json:"search"`
	Sort            string `json:"sort"`
	SpreadsheetSafe bool   `json:"spreadsheetSafe,omitempty"`
}

type exportResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RowCount    int    `json:"rowCount"`
	Error       string `json:"error,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
	Filename    string `json:"filename,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
}

// CreateExport 记录导出任务并投递到队列。
func (h *ExportHandler) CreateExport(c *gin.Context) {
	var req createExportRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(c, "invalid request body")
		return
	}

	adminID, ok := middleware.AdminIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	query := exportQuery{Search: req.Search, Sort: string(candidate.ParseSortOrder(req.Sort)), SpreadsheetSafe: req.SpreadsheetSafe}
	rawQuery, err := json.Marshal(query)
	if err != nil {
		logger.Error("marshal export query failed", slog.Any("error", err))
		Internal(c)
		return
	}

	job := database.ExportJob{
		PublicID:    uuid.NewString(),
		AdminUserID: adminID,
		Query:       datatypes.JSON(rawQuery),
		Status:      database.ExportStatusPending,
	}
	if err := h.db.WithContext(ctx).Create(&job).Error; err != nil {
		logger.Error("create export job failed", slog.Any("error", err))
		Internal(c)
		return
	}

	task, err := tasks.NewCandidateExportTask(tasks.CandidateExportPayload{
		ExportID:        job.PublicID,
		Search:          query.Search,
		Sort:            query.Sort,
		SpreadsheetSafe: query.SpreadsheetSafe,
		CorrelationID:   middleware.GetCorrelationID(c),
	})
	if err == nil {
		_, err = h.queue.EnqueueContext(ctx, task)
	}
	if err != nil {
		logger.Error("enqueue export task failed", slog.String("export_id", job.PublicID), slog.Any("error", err))
		h.db.WithContext(ctx).Model(&job).Updates(map[string]any{
			"status": database.ExportStatusFailed,
			"error":  "enqueue failed",
		})
		Internal(c)
		return
	}

	logger.Info("export job enqueued", slog.String("export_id", job.PublicID))
	Accepted(c, newExportResponse(job))
}

// GetExport 返回导出任务状态；完成后附带限时下载链接。
func (h *ExportHandler) GetExport(c *gin.Context) {
	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	var job database.ExportJob
	if err := h.db.WithContext(ctx).Where("public_id = ?", c.Param("id")).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "export not found")
			return
		}
		logger.Error("query export job failed", slog.Any("error", err))
		Internal(c)
		return
	}

	resp := newExportResponse(job)
	if job.Status == database.ExportStatusCompleted && job.ObjectKey != "" {
		exists, err := h.storage.ObjectExists(ctx, job.ObjectKey)
		if err != nil {
			logger.Error("stat export object failed", slog.Any("error", err))
			Internal(c)
			return
		}
		if !exists {
			Gone(c, "export file no longer available")
			return
		}
		url, err := h.storage.GenerateDownloadURL(ctx, job.ObjectKey, resp.Filename, h.linkTTL)
		if err != nil {
			logger.Error("generate export link failed", slog.Any("error", err))
			Internal(c)
			return
		}
		resp.DownloadURL = url
	}

	OK(c, resp)
}

func newExportResponse(job database.ExportJob) exportResponse {
	resp := exportResponse{
		ID:        job.PublicID,
		Status:    job.Status,
		RowCount:  job.RowCount,
		Error:     job.Error,
		CreatedAt: job.CreatedAt.UnixMilli(),
	}
	if job.Status == database.ExportStatusCompleted {
		resp.Filename = candidate.FullExportFilename(job.CreatedAt)
	}
	return resp
}

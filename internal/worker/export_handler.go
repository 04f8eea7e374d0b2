package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"gorm.io/gorm"

	"valentinequest/internal/candidate"
	"valentinequest/internal/database"
	"valentinequest/internal/errcode"
	"valentinequest/internal/events"
	"valentinequest/internal/metrics"
	"valentinequest/internal/storage"
	"valentinequest/internal/tasks"
)

type objectUploader interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
}

// ExportTaskHandler 消费全量导出任务：遍历游标链、生成 CSV、上传 MinIO 并通知后台。
type ExportTaskHandler struct {
	db        *gorm.DB
	store     candidate.Lister
	storage   objectUploader
	publisher events.Publisher
	logger    *slog.Logger
	pageSize  int
}

// NewExportTaskHandler 创建任务处理器。publisher 可以为 nil。
func NewExportTaskHandler(
	db *gorm.DB,
	store candidate.Lister,
	storage objectUploader,
	publisher events.Publisher,
	logger *slog.Logger,
	pageSize int,
) *ExportTaskHandler {
	return &ExportTaskHandler{
		db:        db,
		store:     store,
		storage:   storage,
		publisher: publisher,
		logger:    logger,
		pageSize:  pageSize,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *ExportTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	payload, err := tasks.ParseCandidateExportPayload(t)
	if err != nil {
		h.logger.Error("invalid export task payload", slog.Any("error", err))
		return err
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.String("export_id", payload.ExportID),
	)

	var job database.ExportJob
	if err := h.db.WithContext(ctx).Where("public_id = ?", payload.ExportID).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("export job not found, skipping task")
			return nil
		}
		log.Error("query export job failed", slog.Any("error", err))
		return err
	}
	if job.Status != database.ExportStatusPending {
		log.Info("export job already finished, skipping task", slog.String("status", job.Status))
		return nil
	}

	// 最后一次重试仍失败时才落库并通知，避免前端看到中间态失败。
	defer func() {
		if retErr == nil || !isFinalAttempt(ctx, retErr) {
			return
		}
		msg := strings.TrimSpace(retErr.Error())
		if err := h.finish(ctx, &job, database.ExportStatusFailed, "", 0, msg); err != nil {
			log.Error("mark export failed", slog.Any("error", err))
		}
		h.notify(ctx, log, ExportNotifyMessage{
			ExportID:      job.PublicID,
			Status:        database.ExportStatusFailed,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     errcode.SystemError,
			ErrorMessage:  msg,
		})
	}()

	all, err := candidate.ListAll(ctx, h.store, h.pageSize)
	if err != nil {
		log.Error("list candidates failed", slog.Any("error", err))
		return err
	}
	items := candidate.View(all, payload.Search, candidate.ParseSortOrder(payload.Sort))

	var buf bytes.Buffer
	if err := candidate.WriteCSV(&buf, items, candidate.SpreadsheetSafe(payload.SpreadsheetSafe)); err != nil {
		if !errors.Is(err, candidate.ErrNothingToExport) {
			log.Error("write csv failed", slog.Any("error", err))
			return err
		}
		log.Info("nothing to export")
		if err := h.finish(ctx, &job, database.ExportStatusEmpty, "", 0, ""); err != nil {
			return err
		}
		h.notify(ctx, log, ExportNotifyMessage{
			ExportID:      job.PublicID,
			Status:        database.ExportStatusEmpty,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     errcode.NothingToExport,
			ErrorMessage:  errcode.NothingToExport.Message(),
		})
		return nil
	}

	objectKey := storage.ExportObjectKey(job.PublicID)
	if _, err := h.storage.UploadFile(ctx, objectKey, bytes.NewReader(buf.Bytes()), int64(buf.Len()), candidate.ExportContentType); err != nil {
		log.Error("upload export to minio failed", slog.Any("error", err))
		return err
	}

	if err := h.finish(ctx, &job, database.ExportStatusCompleted, objectKey, len(items), ""); err != nil {
		log.Error("update export job failed", slog.Any("error", err))
		return err
	}
	metrics.ObserveExportedRows(len(items))

	h.notify(ctx, log, ExportNotifyMessage{
		ExportID:      job.PublicID,
		Status:        database.ExportStatusCompleted,
		RowCount:      len(items),
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	})
	log.Info("export task completed", slog.Int("rows", len(items)))
	return nil
}

func (h *ExportTaskHandler) finish(ctx context.Context, job *database.ExportJob, status, objectKey string, rows int, message string) error {
	if err := h.db.WithContext(ctx).Model(job).Updates(map[string]any{
		"status":     status,
		"object_key": objectKey,
		"row_count":  rows,
		"error":      message,
	}).Error; err != nil {
		return fmt.Errorf("update export job %s: %w", job.PublicID, err)
	}
	return nil
}

func (h *ExportTaskHandler) notify(ctx context.Context, log *slog.Logger, msg ExportNotifyMessage) {
	if err := publishExportNotify(ctx, h.publisher, msg); err != nil {
		log.Warn("publish export notification failed", slog.Any("error", err))
	}
}

// isFinalAttempt 在 SkipRetry 或重试次数耗尽时返回 true。
func isFinalAttempt(ctx context.Context, err error) bool {
	if errors.Is(err, asynq.SkipRetry) {
		return true
	}
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return true
	}
	return retryCount >= maxRetry
}

package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// 任务类型与队列名，生产者与消费者共用。
const (
	TypeCandidateExport = "candidate:export"
	QueueExports        = "exports"
)

const exportTaskTimeout = 10 * time.Minute

// CandidateExportPayload 描述一次全量导出：导出任务 ID 与要套用的 search/sort。
type CandidateExportPayload struct {
	ExportID        string `json:"export_id"`
	Search          string `json:"search,omitempty"`
	Sort            string `json:"sort,omitempty"`
	SpreadsheetSafe bool   `json:"spreadsheet_safe,omitempty"`
	CorrelationID   string `json:"correlation_id,omitempty"`
}

// NewCandidateExportTask 构造导出任务。同一个导出 ID 在任务存活期间只会入队一次。
func NewCandidateExportTask(payload CandidateExportPayload) (*asynq.Task, error) {
	if payload.ExportID == "" {
		return nil, errors.New("export id is required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal export payload: %w", err)
	}
	return asynq.NewTask(TypeCandidateExport, raw,
		asynq.Queue(QueueExports),
		asynq.MaxRetry(3),
		asynq.Timeout(exportTaskTimeout),
		asynq.TaskID("export:"+payload.ExportID),
	), nil
}

// ParseCandidateExportPayload 解析任务载荷；格式错误包装 asynq.SkipRetry，不再重试。
func ParseCandidateExportPayload(task *asynq.Task) (CandidateExportPayload, error) {
	var payload CandidateExportPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode export payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.ExportID == "" {
		return payload, fmt.Errorf("export payload without id: %w", asynq.SkipRetry)
	}
	return payload, nil
}

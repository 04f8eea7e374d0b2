package worker

import (
	"context"

	"valentinequest/internal/errcode"
	"valentinequest/internal/events"
)

// ExportNotifyMessage 是 export.finished 事件的 data 部分，字段名与前端解析保持一致。
type ExportNotifyMessage struct {
	ExportID      string       `json:"export_id"`
	Status        string       `json:"status"`
	RowCount      int          `json:"row_count"`
	CorrelationID string       `json:"correlation_id"`
	ErrorCode     errcode.Code `json:"error_code"`
	ErrorMessage  string       `json:"error_message"`
}

func publishExportNotify(ctx context.Context, pub events.Publisher, msg ExportNotifyMessage) error {
	return events.Publish(ctx, pub, events.TypeExportFinished, msg)
}

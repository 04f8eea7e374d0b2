package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "valentine",
			Subsystem: "worker",
			Name:      "tasks_total",
			Help:      "后台任务处理次数，按结果区分（ok / retry / skip_retry）。",
		},
		[]string{"task_type", "outcome"},
	)

	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "valentine",
			Subsystem: "worker",
			Name:      "task_duration_seconds",
			Help:      "单次任务处理耗时。",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"task_type"},
	)

	tasksInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "valentine",
			Subsystem: "worker",
			Name:      "tasks_in_flight",
			Help:      "当前正在处理的任务数量。",
		},
		[]string{"task_type"},
	)
)

// Task outcomes.
const (
	TaskOutcomeOK        = "ok"
	TaskOutcomeRetry     = "retry"
	TaskOutcomeSkipRetry = "skip_retry"
)

// TaskOutcome 将 handler 返回值归类为指标标签。
func TaskOutcome(err error) string {
	switch {
	case err == nil:
		return TaskOutcomeOK
	case errors.Is(err, asynq.SkipRetry):
		return TaskOutcomeSkipRetry
	default:
		return TaskOutcomeRetry
	}
}

// AsynqMetricsMiddleware 记录每个任务的结果与耗时。
func AsynqMetricsMiddleware() asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			taskType := task.Type()
			inFlight := tasksInFlight.WithLabelValues(taskType)
			inFlight.Inc()
			defer inFlight.Dec()

			start := time.Now()
			err := next.ProcessTask(ctx, task)
			taskDuration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())
			tasksTotal.WithLabelValues(taskType, TaskOutcome(err)).Inc()
			return err
		})
	}
}

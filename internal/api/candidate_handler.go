package api

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"valentinequest/internal/api/middleware"
	"valentinequest/internal/candidate"
	"valentinequest/internal/events"
	"valentinequest/internal/metrics"
)

// CandidateHandler 负责公开提交入口与后台候选人列表/删除/导出。
type CandidateHandler struct {
	store        candidate.Store
	events       events.Publisher
	submitWindow fixedWindow
	defaultLimit int
	maxLimit     int
	now          func() time.Time
}

// CandidateHandlerOptions 汇总 CandidateHandler 的可调参数。
type CandidateHandlerOptions struct {
	DefaultLimit       int
	MaxLimit           int
	SubmitLimitPerHour int
}

// NewCandidateHandler 构造 CandidateHandler。events 与 limiter 可以为 nil。
func NewCandidateHandler(store candidate.Store, publisher events.Publisher, limiter redisRateCounter, opts CandidateHandlerOptions) *CandidateHandler {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 100
	}
	if opts.MaxLimit < opts.DefaultLimit {
		opts.MaxLimit = opts.DefaultLimit
	}
	return &CandidateHandler{
		store:        store,
		events:       publisher,
		submitWindow: fixedWindow{client: limiter, window: time.Hour, limit: opts.SubmitLimitPerHour},
		defaultLimit: opts.DefaultLimit,
		maxLimit:     opts.MaxLimit,
		now:          time.Now,
	}
}

type deleteCandidateResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// CreateCandidate 处理公开表单提交。
func (h *CandidateHandler) CreateCandidate(c *gin.Context) {
	ctx := c.Request.Context()
	logger := middleware.LoggerFromContext(c)

	if h.submitRateExceeded(c) {
		metrics.ObserveSubmission(metrics.OutcomeRateLimited)
		TooManyRequests(c, "rate limit exceeded")
		return
	}

	var in candidate.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		metrics.ObserveSubmission(metrics.OutcomeInvalid)
		BadRequest(c, "invalid request body")
		return
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		metrics.ObserveSubmission(metrics.OutcomeInvalid)
		BadRequest(c, err.Error())
		return
	}

	created, err := h.store.Create(ctx, in)
	if err != nil {
		metrics.ObserveSubmission(metrics.OutcomeError)
		logger.Error("create candidate failed", slog.Any("error", err))
		Internal(c)
		return
	}
	metrics.ObserveSubmission(metrics.OutcomeCreated)
	logger.Info("candidate submitted", slog.String("candidate_id", created.ID))

	if err := events.Publish(ctx, h.events, events.TypeCandidateCreated, created); err != nil {
		logger.Warn("publish candidate event failed", slog.Any("error", err))
	}

	OK(c, created)
}

// ListCandidates 返回一页候选人；search/sort 只作用于本页。
func (h *CandidateHandler) ListCandidates(c *gin.Context) {
	page, ok := h.fetchPage(c)
	if !ok {
		return
	}

	search := c.Query("search")
	sortParam := c.Query("sort")
	if search != "" || sortParam != "" {
		page.Items = candidate.View(page.Items, search, candidate.ParseSortOrder(sortParam))
	}

	OK(c, page)
}

// DeleteCandidate 删除指定候选人，重复删除返回 deleted=false。
func (h *CandidateHandler) DeleteCandidate(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	logger := middleware.LoggerFromContext(c).With(slog.String("candidate_id", id))

	deleted, err := h.store.Delete(ctx, id)
	if err != nil {
		logger.Error("delete candidate failed", slog.Any("error", err))
		Internal(c)
		return
	}
	metrics.ObserveDeletion(deleted)

	if deleted {
		logger.Info("candidate deleted")
		if err := events.Publish(ctx, h.events, events.TypeCandidateDeleted, gin.H{"id": id}); err != nil {
			logger.Warn("publish candidate event failed", slog.Any("error", err))
		}
	}

	OK(c, deleteCandidateResponse{ID: id, Deleted: deleted})
}

// ExportPage 以 CSV 下载当前页（已应用 search/sort 的可见记录）。
// 没有可见记录时返回 204，不生成空文件。
func (h *CandidateHandler) ExportPage(c *gin.Context) {
	page, ok := h.fetchPage(c)
	if !ok {
		return
	}

	items := candidate.View(page.Items, c.Query("search"), candidate.ParseSortOrder(c.Query("sort")))

	var buf bytes.Buffer
	safe, _ := strconv.ParseBool(c.Query("spreadsheetSafe"))
	if err := candidate.WriteCSV(&buf, items, candidate.SpreadsheetSafe(safe)); err != nil {
		if errors.Is(err, candidate.ErrNothingToExport) {
			c.Status(http.StatusNoContent)
			return
		}
		middleware.LoggerFromContext(c).Error("write csv failed", slog.Any("error", err))
		Internal(c)
		return
	}

	pageNumber, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		pageNumber = 1
	}
	filename := candidate.ExportFilename(h.now(), pageNumber)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, candidate.ExportContentType, buf.Bytes())
}

func (h *CandidateHandler) fetchPage(c *gin.Context) (candidate.Page, bool) {
	limit := h.parseLimit(c.Query("limit"))

	page, err := h.store.List(c.Request.Context(), c.Query("cursor"), limit)
	if err != nil {
		if errors.Is(err, candidate.ErrInvalidCursor) {
			BadRequest(c, "invalid cursor")
			return candidate.Page{}, false
		}
		middleware.LoggerFromContext(c).Error("list candidates failed", slog.Any("error", err))
		Internal(c)
		return candidate.Page{}, false
	}
	return page, true
}

// parseLimit 缺省或非数字时使用默认值，其余情况夹在 [1, maxLimit]。
func (h *CandidateHandler) parseLimit(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return h.defaultLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return h.defaultLimit
	}
	if limit < 1 {
		return 1
	}
	if limit > h.maxLimit {
		return h.maxLimit
	}
	return limit
}

// submitRateExceeded 按 IP 每小时计数；Redis 不可用时放行。
func (h *CandidateHandler) submitRateExceeded(c *gin.Context) bool {
	exceeded, err := h.submitWindow.exceeded(c.Request.Context(), h.now(), "submit", c.ClientIP())
	if err != nil {
		middleware.LoggerFromContext(c).Warn("submit rate counter unavailable", slog.Any("error", err))
		return false
	}
	return exceeded
}

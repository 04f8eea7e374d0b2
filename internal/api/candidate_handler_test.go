package api

import (
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"valentinequest/internal/candidate"
	"valentinequest/internal/config"
	"valentinequest/internal/events"
)

func TestSubmitThenListEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken(t, 1, false)

	w := env.do(t, http.MethodPost, "/api/candidates", map[string]string{
		"name":       "  Alice  ",
		"email":      "alice@example.com",
		"instagram":  "@alice",
		"motivation": "Picnics.",
		"dateIdea":   "Museum night",
	}, "")
	requireStatus(t, w, http.StatusOK)
	created := decodeData[candidate.Candidate](t, decodeEnvelope(t, w))
	if created.ID == "" || created.Name != "Alice" || created.CreatedAt == 0 {
		t.Fatalf("unexpected created record: %+v", created)
	}

	w = env.do(t, http.MethodGet, "/api/candidates", nil, token)
	requireStatus(t, w, http.StatusOK)
	page := decodeData[candidate.Page](t, decodeEnvelope(t, w))
	if len(page.Items) != 1 || page.Items[0].ID != created.ID {
		t.Fatalf("expected the created record, got %+v", page.Items)
	}
	if page.Next != nil {
		t.Fatalf("expected no next cursor, got %q", *page.Next)
	}

	if got := env.redis.publishedTypes(); len(got) != 1 || got[0] != events.TypeCandidateCreated {
		t.Fatalf("published events = %v", got)
	}
}

func TestSubmitRejectsBlankRequiredField(t *testing.T) {
	env := newTestEnv(t)

	body := candidateBody("bob")
	body["name"] = "   "
	w := env.do(t, http.MethodPost, "/api/candidates", body, "")
	requireStatus(t, w, http.StatusBadRequest)
	resp := decodeEnvelope(t, w)
	if resp.Success || resp.Error == "" {
		t.Fatalf("expected error envelope, got %+v", resp)
	}

	w = env.do(t, http.MethodGet, "/api/candidates", nil, env.adminToken(t, 1, false))
	page := decodeData[candidate.Page](t, decodeEnvelope(t, w))
	if len(page.Items) != 0 {
		t.Fatalf("rejected submission was stored: %+v", page.Items)
	}
}

func TestSubmitRateLimitedPerIP(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.Candidates.SubmitLimitPerHour = 1 })

	requireStatus(t, env.do(t, http.MethodPost, "/api/candidates", candidateBody("a"), ""), http.StatusOK)
	w := env.do(t, http.MethodPost, "/api/candidates", candidateBody("b"), "")
	requireStatus(t, w, http.StatusTooManyRequests)
	if decodeEnvelope(t, w).Success {
		t.Fatal("expected failure envelope")
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/candidates", nil, "")
	requireStatus(t, w, http.StatusUnauthorized)
	if resp := decodeEnvelope(t, w); resp.Success || resp.Error == "" {
		t.Fatalf("unexpected envelope %+v", resp)
	}

	w = env.do(t, http.MethodDelete, "/api/candidates/abc", nil, env.adminToken(t, 1, true))
	requireStatus(t, w, http.StatusForbidden)
}

func TestListPaginatesWithCursor(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken(t, 1, false)
	for _, name := range []string{"a", "b", "c"} {
		requireStatus(t, env.do(t, http.MethodPost, "/api/candidates", candidateBody(name), ""), http.StatusOK)
	}

	w := env.do(t, http.MethodGet, "/api/candidates?limit=2", nil, token)
	requireStatus(t, w, http.StatusOK)
	first := decodeData[candidate.Page](t, decodeEnvelope(t, w))
	if len(first.Items) != 2 || first.Next == nil {
		t.Fatalf("first page = %+v", first)
	}

	w = env.do(t, http.MethodGet, "/api/candidates?limit=2&cursor="+url.QueryEscape(*first.Next), nil, token)
	requireStatus(t, w, http.StatusOK)
	second := decodeData[candidate.Page](t, decodeEnvelope(t, w))
	if len(second.Items) != 1 || second.Items[0].Name != "c" || second.Next != nil {
		t.Fatalf("second page = %+v", second)
	}
}

func TestListRejectsInvalidCursor(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/candidates?cursor=not-a-cursor", nil, env.adminToken(t, 1, false))
	requireStatus(t, w, http.StatusBadRequest)
	if resp := decodeEnvelope(t, w); resp.Error != "invalid cursor" {
		t.Fatalf("error = %q", resp.Error)
	}
}

func TestListAppliesSearchAndSortToPage(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken(t, 1, false)
	for _, name := range []string{"alice", "bob", "alicia"} {
		requireStatus(t, env.do(t, http.MethodPost, "/api/candidates", candidateBody(name), ""), http.StatusOK)
	}

	w := env.do(t, http.MethodGet, "/api/candidates?search=ALI&sort=oldest", nil, token)
	requireStatus(t, w, http.StatusOK)
	page := decodeData[candidate.Page](t, decodeEnvelope(t, w))
	if len(page.Items) != 2 {
		t.Fatalf("items = %+v", page.Items)
	}
	// 同一毫秒内创建的记录按 id 排序，这里只校验过滤结果与时间顺序。
	got := map[string]bool{page.Items[0].Name: true, page.Items[1].Name: true}
	if !got["alice"] || !got["alicia"] || page.Items[0].CreatedAt > page.Items[1].CreatedAt {
		t.Fatalf("items = %+v", page.Items)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken(t, 1, false)

	w := env.do(t, http.MethodPost, "/api/candidates", candidateBody("dora"), "")
	created := decodeData[candidate.Candidate](t, decodeEnvelope(t, w))

	for i, want := range []bool{true, false} {
		w = env.do(t, http.MethodDelete, "/api/candidates/"+created.ID, nil, token)
		requireStatus(t, w, http.StatusOK)
		resp := decodeEnvelope(t, w)
		got := decodeData[deleteCandidateResponse](t, resp)
		if !resp.Success || got.ID != created.ID || got.Deleted != want {
			t.Fatalf("delete #%d = %+v", i+1, got)
		}
	}

	w = env.do(t, http.MethodGet, "/api/candidates", nil, token)
	if page := decodeData[candidate.Page](t, decodeEnvelope(t, w)); len(page.Items) != 0 {
		t.Fatalf("deleted record still listed: %+v", page.Items)
	}
}

func TestExportPage(t *testing.T) {
	env := newTestEnv(t)
	token := env.adminToken(t, 1, false)

	w := env.do(t, http.MethodGet, "/api/candidates/export", nil, token)
	requireStatus(t, w, http.StatusNoContent)
	if w.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", w.Body.String())
	}

	body := candidateBody("eve")
	body["motivation"] = `Says "hi", often`
	requireStatus(t, env.do(t, http.MethodPost, "/api/candidates", body, ""), http.StatusOK)

	w = env.do(t, http.MethodGet, "/api/candidates/export?page=2", nil, token)
	requireStatus(t, w, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "candidates-") || !strings.Contains(cd, "-page-2.csv") {
		t.Fatalf("content disposition = %q", cd)
	}

	records, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 2 || records[0][0] != "ID" || records[1][1] != "eve" || records[1][8] != `Says "hi", often` {
		t.Fatalf("records = %q", records)
	}

	if records[1][4] != "@eve" {
		t.Fatalf("instagram must be verbatim by default, got %q", records[1][4])
	}

	w = env.do(t, http.MethodGet, "/api/candidates/export?spreadsheetSafe=true", nil, token)
	requireStatus(t, w, http.StatusOK)
	records, err = csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if records[1][4] != "'@eve" || records[1][1] != "eve" {
		t.Fatalf("spreadsheet-safe row = %q", records[1])
	}

	w = env.do(t, http.MethodGet, "/api/candidates/export?search=nobody", nil, token)
	requireStatus(t, w, http.StatusNoContent)
}

func TestUnknownRouteReturnsEnvelope(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/does-not-exist", nil, "")
	requireStatus(t, w, http.StatusNotFound)
	if resp := decodeEnvelope(t, w); resp.Success || resp.Error != "Not Found" {
		t.Fatalf("unexpected envelope %+v", resp)
	}
}

func TestPanicReturnsGenericEnvelope(t *testing.T) {
	env := newTestEnv(t)
	env.router.GET("/api/boom", func(*gin.Context) { panic("secret detail") })

	w := env.do(t, http.MethodGet, "/api/boom", nil, "")
	requireStatus(t, w, http.StatusInternalServerError)
	if strings.Contains(w.Body.String(), "secret detail") {
		t.Fatalf("panic detail leaked: %s", w.Body.String())
	}
	if resp := decodeEnvelope(t, w); resp.Success || resp.Error != internalErrorMessage {
		t.Fatalf("unexpected envelope %+v", resp)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/health", nil, "")
	requireStatus(t, w, http.StatusOK)
	health := decodeData[map[string]string](t, decodeEnvelope(t, w))
	if health["status"] != "healthy" || health["timestamp"] == "" {
		t.Fatalf("health = %v", health)
	}

	requireStatus(t, env.do(t, http.MethodGet, "/internal/metrics", nil, ""), http.StatusUnauthorized)

	req := httptest.NewRequest(http.MethodGet, "/internal/metrics", nil)
	req.Header.Set("X-Internal-Secret", "s3cret")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	requireStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "valentine_http_in_flight_requests") {
		t.Fatalf("expected valentine metrics in exposition")
	}
}

package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"valentinequest/internal/auth"
	"valentinequest/internal/candidate"
	"valentinequest/internal/config"
	"valentinequest/internal/database"
)

// fakeRedis 在内存中实现路由用到的 Redis 命令。
type fakeRedis struct {
	mu        sync.Mutex
	counters  map[string]int64
	values    map[string]string
	ttls      map[string]time.Duration
	published []publishedMessage
}

type publishedMessage struct {
	Channel string
	Payload []byte
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		counters: map[string]int64{},
		values:   map[string]string{},
		ttls:     map[string]time.Duration{},
	}
}

func (r *fakeRedis) Incr(_ context.Context, key string) *redis.IntCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[key]++
	return redis.NewIntResult(r.counters[key], nil)
}

func (r *fakeRedis) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (r *fakeRedis) TTL(_ context.Context, key string) *redis.DurationCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.values[key]; ok {
		return redis.NewDurationResult(r.ttls[key], nil)
	}
	return redis.NewDurationResult(-2, nil)
}

func (r *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.values[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (r *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = fmt.Sprint(value)
	r.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (r *fakeRedis) SetNX(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	r.values[key] = fmt.Sprint(value)
	r.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (r *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, key := range keys {
		_, isValue := r.values[key]
		_, isCounter := r.counters[key]
		if isValue || isCounter {
			n++
		}
		delete(r.values, key)
		delete(r.counters, key)
		delete(r.ttls, key)
	}
	return redis.NewIntResult(n, nil)
}

func (r *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	payload, _ := message.([]byte)
	r.published = append(r.published, publishedMessage{Channel: channel, Payload: payload})
	return redis.NewIntResult(1, nil)
}

func (r *fakeRedis) Subscribe(context.Context, ...string) *redis.PubSub {
	return nil
}

func (r *fakeRedis) publishedTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.published))
	for _, m := range r.published {
		var evt struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(m.Payload, &evt)
		out = append(out, evt.Type)
	}
	return out
}

type fakeQueue struct {
	tasks []*asynq.Task
	err   error
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: fmt.Sprintf("task-%d", len(q.tasks))}, nil
}

type fakeStorage struct {
	objects map[string]bool
}

func (s *fakeStorage) ObjectExists(_ context.Context, objectKey string) (bool, error) {
	return s.objects[objectKey], nil
}

func (s *fakeStorage) GenerateDownloadURL(_ context.Context, objectKey, filename string, _ time.Duration) (string, error) {
	return "https://files.example.invalid/" + objectKey + "?filename=" + filename, nil
}

var (
	testKeysOnce sync.Once
	testPrivPEM  []byte
	testPubPEM   []byte
	testKeysErr  error
)

func newTestAuthService(t *testing.T) *auth.AuthService {
	t.Helper()
	testKeysOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			testKeysErr = err
			return
		}
		testPrivPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
		pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
		if err != nil {
			testKeysErr = err
			return
		}
		testPubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	})
	if testKeysErr != nil {
		t.Fatalf("generate test keys: %v", testKeysErr)
	}
	svc, err := auth.NewAuthService(testPrivPEM, testPubPEM, 15*time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	return svc
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "api.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type testEnv struct {
	router  *gin.Engine
	db      *gorm.DB
	redis   *fakeRedis
	queue   *fakeQueue
	storage *fakeStorage
	auth    *auth.AuthService
}

func newTestConfig() *config.Config {
	return &config.Config{
		API: config.APIConfig{InternalSecret: "s3cret"},
		Auth: config.AuthConfig{
			LoginRateLimitPerHour: 100,
			LoginLockThreshold:    3,
			LoginLockTTL:          time.Minute,
		},
		Candidates: config.CandidatesConfig{
			DefaultPageLimit: 100,
			MaxPageLimit:     500,
			ExportLinkTTL:    time.Minute,
		},
	}
}

func newTestEnv(t *testing.T, opts ...func(*config.Config)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := newTestConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	env := &testEnv{
		db:      newTestDB(t),
		redis:   newFakeRedis(),
		queue:   &fakeQueue{},
		storage: &fakeStorage{objects: map[string]bool{}},
		auth:    newTestAuthService(t),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.router = NewRouter(cfg, logger)
	RegisterRoutes(env.router, Deps{
		Config:      cfg,
		DB:          env.db,
		Store:       candidate.NewGormStore(env.db),
		Redis:       env.redis,
		Queue:       env.queue,
		Storage:     env.storage,
		AuthService: env.auth,
		Logger:      logger,
	})
	return env
}

func (e *testEnv) adminToken(t *testing.T, adminID uint, mustChangePassword bool) string {
	t.Helper()
	pair, err := e.auth.GenerateTokenPair(adminID, mustChangePassword)
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}
	return pair.AccessToken
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type testEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) testEnvelope {
	t.Helper()
	var env testEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope (status %d): %v; body=%s", w.Code, err, w.Body.String())
	}
	return env
}

func decodeData[T any](t *testing.T, env testEnvelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode data: %v; data=%s", err, string(env.Data))
	}
	return out
}

func candidateBody(name string) map[string]string {
	return map[string]string{
		"name":       name,
		"email":      name + "@example.com",
		"instagram":  "@" + name,
		"motivation": "Long walks and longer conversations.",
	}
}

func requireStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, want, w.Body.String())
	}
}

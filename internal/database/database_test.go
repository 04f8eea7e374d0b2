package database

import (
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
)

func TestOpenWithRetryBacksOffOnUnreachableHost(t *testing.T) {
	policy := connectPolicy{attempts: 3, base: 5 * time.Millisecond, timeout: 10 * time.Second}
	dsn := "host=127.0.0.1 port=1 user=valentine password=valentine dbname=valentine sslmode=disable connect_timeout=1"

	db, attempts, err := openWithRetry(postgres.Open(dsn), policy)
	if err == nil {
		t.Fatal("expected connection error")
	}
	if db != nil {
		t.Fatal("expected nil db on failure")
	}
	if attempts != policy.attempts {
		t.Fatalf("attempts = %d, want %d", attempts, policy.attempts)
	}
}

func TestOpenWithRetrySucceedsOnFirstPing(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "ping.db")
	db, attempts, err := openWithRetry(sqlite.Open(dsn), connectPolicy{attempts: 3, base: time.Millisecond, timeout: time.Second})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

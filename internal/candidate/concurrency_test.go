package candidate

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"valentinequest/internal/database"
	"valentinequest/internal/events"
)

type announcingStore struct {
	Store
	announce func(events.Event)
}

func (s *announcingStore) Create(ctx context.Context, in Input) (Candidate, error) {
	c, err := s.Store.Create(ctx, in)
	if err == nil {
		s.announce(events.Event{Type: events.TypeCandidateCreated})
	}
	return c, err
}

func (s *announcingStore) Delete(ctx context.Context, id string) (bool, error) {
	ok, err := s.Store.Delete(ctx, id)
	if err == nil && ok {
		s.announce(events.Event{Type: events.TypeCandidateDeleted})
	}
	return ok, err
}

// newSharedTestDB opens a sqlite file that several stores write concurrently.
// Immediate transactions make writers queue on the busy timeout instead of
// failing on lock upgrade.
func newSharedTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "shared.db") + "?_busy_timeout=10000&_txlock=immediate&_journal_mode=WAL"
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

// traverse walks every page once and checks what a single traversal promises.
func traverse(ctx context.Context, store Store, limit int) ([]Candidate, error) {
	var (
		out    []Candidate
		cursor string
		seen   = map[string]bool{}
	)
	for {
		page, err := store.List(ctx, cursor, limit)
		if err != nil {
			return nil, fmt.Errorf("list after %q: %w", cursor, err)
		}
		for _, c := range page.Items {
			if c.ID == "" || c.Name == "" || c.Email == "" || c.Instagram == "" || c.Motivation == "" || c.CreatedAt <= 0 {
				return nil, fmt.Errorf("partially populated record %+v", c)
			}
			if seen[c.ID] {
				return nil, fmt.Errorf("record %s listed twice", c.ID)
			}
			seen[c.ID] = true
			if n := len(out); n > 0 && c.CreatedAt < out[n-1].CreatedAt {
				return nil, fmt.Errorf("createdAt went backwards: %s=%d after %s=%d", c.ID, c.CreatedAt, out[n-1].ID, out[n-1].CreatedAt)
			}
			out = append(out, c)
		}
		if page.Next == nil {
			return out, nil
		}
		cursor = *page.Next
	}
}

func TestStoresStayConsistentUnderConcurrentUse(t *testing.T) {
	db := newSharedTestDB(t)
	ctx := context.Background()

	// two replicas share the database, one of them behind the page cache.
	// replicaB's mutations reach the cache the way the admin channel delivers them.
	cached, err := NewCachedStore(ctx, NewGormStore(db), 0, nil)
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}
	t.Cleanup(func() { _ = cached.Close() })
	replicaB := &announcingStore{Store: NewGormStore(db), announce: cached.HandleEvent}
	writers := []Store{cached, replicaB}

	const (
		workers   = 6
		perWorker = 12
	)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		kept      = map[string]bool{}
		deleted   = map[string]bool{}
		writersUp atomic.Int32
	)
	writersUp.Store(workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			defer writersUp.Add(-1)
			store := writers[w%len(writers)]
			for i := 0; i < perWorker; i++ {
				c, err := store.Create(ctx, sampleInput(fmt.Sprintf("w%d-%d", w, i)))
				if err != nil {
					t.Errorf("worker %d create: %v", w, err)
					return
				}
				if i%3 != 0 {
					mu.Lock()
					kept[c.ID] = true
					mu.Unlock()
					continue
				}
				ok, err := writers[(w+1)%len(writers)].Delete(ctx, c.ID)
				if err != nil || !ok {
					t.Errorf("worker %d delete %s: ok=%v err=%v", w, c.ID, ok, err)
					return
				}
				mu.Lock()
				deleted[c.ID] = true
				mu.Unlock()
			}
		}(w)
	}

	readers := []Store{cached, replicaB}
	for r, store := range readers {
		wg.Add(1)
		go func(r int, store Store) {
			defer wg.Done()
			for writersUp.Load() > 0 {
				if _, err := traverse(ctx, store, 4); err != nil {
					t.Errorf("reader %d: %v", r, err)
					return
				}
			}
		}(r, store)
	}

	wg.Wait()
	if t.Failed() {
		return
	}

	for _, store := range readers {
		all, err := traverse(ctx, store, 5)
		if err != nil {
			t.Fatalf("final traversal: %v", err)
		}
		if len(all) != len(kept) {
			t.Fatalf("listed %d records, want %d", len(all), len(kept))
		}
		for _, c := range all {
			if deleted[c.ID] || !kept[c.ID] {
				t.Fatalf("unexpected record %s in final listing", c.ID)
			}
		}
	}
}

func TestLockForCreateUsesAdvisoryLockOnPostgres(t *testing.T) {
	capture := func(t *testing.T, db *gorm.DB) []string {
		t.Helper()
		var statements []string
		if err := db.Callback().Raw().After("gorm:raw").Register("test:capture", func(tx *gorm.DB) {
			statements = append(statements, tx.Statement.SQL.String())
		}); err != nil {
			t.Fatalf("register callback: %v", err)
		}
		if err := lockForCreate(db.Session(&gorm.Session{DryRun: true})); err != nil {
			t.Fatalf("lockForCreate: %v", err)
		}
		return statements
	}

	pg, err := gorm.Open(postgres.Open("host=127.0.0.1 port=1 user=u password=p dbname=d sslmode=disable"), &gorm.Config{DisableAutomaticPing: true})
	if err != nil {
		t.Fatalf("open postgres dialector: %v", err)
	}
	got := capture(t, pg)
	if len(got) != 1 || got[0] != "SELECT pg_advisory_xact_lock($1)" {
		t.Fatalf("postgres statements = %q", got)
	}

	if got := capture(t, newTestDB(t)); len(got) != 0 {
		t.Fatalf("sqlite must not issue a lock statement, got %q", got)
	}
}

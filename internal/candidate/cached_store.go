package candidate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/allegro/bigcache/v3"

	"valentinequest/internal/events"
)

// CachedStore keeps recently served pages in memory. Every successful local
// mutation moves to a new generation, so a cached page is never older than the
// last create or delete handled by this process. Mutations made elsewhere reach
// it through HandleEvent; the ttl bounds staleness if such an event is lost.
type CachedStore struct {
	next       Store
	cache      *bigcache.BigCache
	generation atomic.Uint64
	logger     *slog.Logger
}

// NewCachedStore wraps next with a page cache whose entries live for ttl.
func NewCachedStore(ctx context.Context, next Store, ttl time.Duration, logger *slog.Logger) (*CachedStore, error) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg := bigcache.DefaultConfig(ttl)
	cfg.Shards = 16
	cfg.MaxEntriesInWindow = 1024
	cfg.MaxEntrySize = 4096
	cfg.HardMaxCacheSize = 64
	cfg.Verbose = false

	cache, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init page cache: %w", err)
	}

	return &CachedStore{next: next, cache: cache, logger: logger}, nil
}

// Create forwards to the wrapped store and invalidates cached pages.
func (s *CachedStore) Create(ctx context.Context, in Input) (Candidate, error) {
	created, err := s.next.Create(ctx, in)
	if err != nil {
		return Candidate{}, err
	}
	s.Invalidate()
	return created, nil
}

// List serves a cached page when the same cursor and limit were read since the
// last mutation.
func (s *CachedStore) List(ctx context.Context, cursor string, limit int) (Page, error) {
	key := s.key(cursor, limit)

	if raw, err := s.cache.Get(key); err == nil {
		var page Page
		if err := json.Unmarshal(raw, &page); err == nil {
			return page, nil
		}
		s.logger.Warn("discarding undecodable cached page", slog.String("key", key))
	} else if !errors.Is(err, bigcache.ErrEntryNotFound) {
		s.logger.Warn("page cache lookup failed", slog.Any("error", err))
	}

	page, err := s.next.List(ctx, cursor, limit)
	if err != nil {
		return Page{}, err
	}

	if raw, err := json.Marshal(page); err == nil {
		if err := s.cache.Set(key, raw); err != nil {
			s.logger.Warn("page cache store failed", slog.Any("error", err))
		}
	}
	return page, nil
}

// Delete forwards to the wrapped store and invalidates cached pages when a
// record was removed.
func (s *CachedStore) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := s.next.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		s.Invalidate()
	}
	return deleted, nil
}

// Close releases the cache's background cleaner.
func (s *CachedStore) Close() error {
	return s.cache.Close()
}

func (s *CachedStore) key(cursor string, limit int) string {
	return strconv.FormatUint(s.generation.Load(), 10) + "|" + strconv.Itoa(limit) + "|" + cursor
}

// HandleEvent drops cached pages when any process reports a candidate
// mutation on the admin channel. Pass it to events.Watch.
func (s *CachedStore) HandleEvent(evt events.Event) {
	if evt.IsCandidateMutation() {
		s.Invalidate()
	}
}

// Invalidate moves to a new generation and empties the cache.
func (s *CachedStore) Invalidate() {
	s.generation.Add(1)
	if err := s.cache.Reset(); err != nil {
		s.logger.Warn("page cache reset failed", slog.Any("error", err))
	}
}

package candidate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"valentinequest/internal/database"
)

// GormStore persists candidates through gorm. Cursor positions are the
// auto-increment seq column, so deletes never shift a pending page.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time

	// createMu serializes the read-max-then-insert in Create within this process;
	// lockForCreate does the same across processes.
	createMu sync.Mutex
}

// createLockKey identifies the PostgreSQL advisory lock held by Create.
const createLockKey int64 = 0x76616c656e74

// lockForCreate blocks other Create transactions until tx ends. On PostgreSQL
// it takes a transaction-scoped advisory lock. SQLite serializes writers by
// itself when transactions are opened with _txlock=immediate.
func lockForCreate(tx *gorm.DB) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", createLockKey).Error; err != nil {
		return fmt.Errorf("lock candidate inserts: %w", err)
	}
	return nil
}

// NewGormStore returns a GormStore backed by db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

// Create assigns an id and a createdAt no earlier than the newest record.
func (s *GormStore) Create(ctx context.Context, in Input) (Candidate, error) {
	s.createMu.Lock()
	defer s.createMu.Unlock()

	row := database.Candidate{
		ID:              uuid.NewString(),
		Name:            in.Name,
		Email:           in.Email,
		Phone:           in.Phone,
		Instagram:       in.Instagram,
		LinkedIn:        in.LinkedIn,
		ResumeURL:       in.ResumeURL,
		ExperienceLevel: in.ExperienceLevel,
		Motivation:      in.Motivation,
		DateIdea:        in.DateIdea,
		Availability:    in.Availability,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForCreate(tx); err != nil {
			return err
		}

		var latest int64
		if err := tx.Model(&database.Candidate{}).
			Select("COALESCE(MAX(created_at), 0)").
			Scan(&latest).Error; err != nil {
			return fmt.Errorf("query latest created_at: %w", err)
		}

		createdAt := s.now().UnixMilli()
		if createdAt < latest {
			createdAt = latest
		}
		row.CreatedAt = createdAt

		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert candidate: %w", err)
		}
		return nil
	})
	if err != nil {
		return Candidate{}, err
	}

	return fromModel(row), nil
}

// List returns up to limit records positioned after cursor.
func (s *GormStore) List(ctx context.Context, cursor string, limit int) (Page, error) {
	after, err := decodeCursor(cursor)
	if err != nil {
		return Page{}, err
	}
	if limit < 1 {
		limit = 1
	}

	var rows []database.Candidate
	if err := s.db.WithContext(ctx).
		Where("seq > ?", after).
		Order("seq ASC").
		Limit(limit + 1).
		Find(&rows).Error; err != nil {
		return Page{}, fmt.Errorf("list candidates: %w", err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	page := Page{Items: make([]Candidate, 0, len(rows))}
	for _, row := range rows {
		page.Items = append(page.Items, fromModel(row))
	}
	if hasMore {
		next := encodeCursor(rows[len(rows)-1].Seq)
		page.Next = &next
	}
	return page, nil
}

// Delete hard-deletes the record with id and reports whether one existed.
func (s *GormStore) Delete(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, nil
	}

	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&database.Candidate{})
	if res.Error != nil {
		return false, fmt.Errorf("delete candidate %q: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

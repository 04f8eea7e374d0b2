package candidate

import (
	"context"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidCursor is returned by List for tokens it did not issue.
var ErrInvalidCursor = errors.New("candidate: invalid cursor")

const cursorPrefix = "v1:"

// Page is one forward page of candidates in insertion order.
// Next is nil once no record follows the last item.
type Page struct {
	Items []Candidate `json:"items"`
	Next  *string     `json:"next"`
}

// Store is the candidate record store. Native order is ascending by insertion.
type Store interface {
	Create(ctx context.Context, in Input) (Candidate, error)
	List(ctx context.Context, cursor string, limit int) (Page, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// Lister is the read half of Store.
type Lister interface {
	List(ctx context.Context, cursor string, limit int) (Page, error)
}

// encodeCursor wraps an insertion position into an opaque token.
func encodeCursor(seq uint64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + strconv.FormatUint(seq, 10)))
}

// decodeCursor returns the position after which listing resumes; "" is the start.
func decodeCursor(token string) (uint64, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, ErrInvalidCursor
	}
	value, ok := strings.CutPrefix(string(raw), cursorPrefix)
	if !ok {
		return 0, ErrInvalidCursor
	}
	seq, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, ErrInvalidCursor
	}
	return seq, nil
}

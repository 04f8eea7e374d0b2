package candidate

import (
	"slices"
	"strings"
)

// SortOrder is the createdAt direction of the dashboard listing.
type SortOrder string

const (
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
)

// ParseSortOrder maps user input to a SortOrder; anything unknown is newest.
func ParseSortOrder(raw string) SortOrder {
	if SortOrder(strings.ToLower(strings.TrimSpace(raw))) == SortOldest {
		return SortOldest
	}
	return SortNewest
}

// Filter keeps records whose name, email, instagram, motivation or date idea
// contains query, ignoring case. Relative order is preserved.
func Filter(items []Candidate, query string) []Candidate {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]Candidate, 0, len(items))
	for _, c := range items {
		if query == "" || matches(c, query) {
			out = append(out, c)
		}
	}
	return out
}

func matches(c Candidate, query string) bool {
	for _, field := range []string{c.Name, c.Email, c.Instagram, c.Motivation, c.DateIdea} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

// Sort returns a copy of items ordered by createdAt. Equal timestamps are
// ordered by id ascending in both directions.
func Sort(items []Candidate, order SortOrder) []Candidate {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b Candidate) int {
		if a.CreatedAt != b.CreatedAt {
			if order == SortOldest {
				return cmpInt64(a.CreatedAt, b.CreatedAt)
			}
			return cmpInt64(b.CreatedAt, a.CreatedAt)
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// View applies Filter then Sort.
func View(items []Candidate, query string, order SortOrder) []Candidate {
	return Sort(Filter(items, query), order)
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

package candidate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// pageRetryDelay is the pause before the single retry of a failed page read.
var pageRetryDelay = 200 * time.Millisecond

// ListAll follows the cursor chain from the oldest record until Next is nil.
// A failed page read is retried once before giving up.
func ListAll(ctx context.Context, store Lister, pageSize int) ([]Candidate, error) {
	if pageSize < 1 {
		pageSize = 1
	}

	var (
		all    []Candidate
		cursor string
	)
	for {
		var page Page
		backoff := retry.WithMaxRetries(1, retry.NewConstant(pageRetryDelay))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			p, err := store.List(ctx, cursor, pageSize)
			if err != nil {
				if errors.Is(err, ErrInvalidCursor) {
					return err
				}
				return retry.RetryableError(err)
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("list candidates after %d records: %w", len(all), err)
		}

		all = append(all, page.Items...)
		if page.Next == nil {
			return all, nil
		}
		cursor = *page.Next
	}
}

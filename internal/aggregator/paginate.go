package aggregator

import (
	"context"
	"errors"
	"fmt"

	"github.com/jask/ledgersync/internal/logger"
)

// DefaultMaxPages bounds pagination against a provider that never clears HasMore.
const DefaultMaxPages = 50

// SyncBatch is the union of every page fetched in one pagination run.
type SyncBatch struct {
	Added      []RawTransaction
	Modified   []RawTransaction
	RemovedIDs []string
	NextCursor string
	Pages      int
	Truncated  bool // the page cap was hit before HasMore cleared
}

// SyncAll keeps calling SyncPage with each returned cursor while HasMore is set.
// A failing page discards everything fetched so far; callers never see partial runs.
func SyncAll(ctx context.Context, c Client, credential, cursor string, maxPages int) (SyncBatch, error) {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	log := logger.FromContext(ctx)

	batch := SyncBatch{NextCursor: cursor}
	next := cursor
	for {
		if err := ctx.Err(); err != nil {
			return SyncBatch{}, &AggregationError{Op: "sync", Err: err}
		}
		page, err := c.SyncPage(ctx, credential, next)
		if err != nil {
			return SyncBatch{}, classify(fmt.Sprintf("sync page %d", batch.Pages+1), err)
		}
		batch.Pages++
		batch.Added = append(batch.Added, page.Added...)
		batch.Modified = append(batch.Modified, page.Modified...)
		batch.RemovedIDs = append(batch.RemovedIDs, page.RemovedIDs...)
		if page.NextCursor != "" {
			next = page.NextCursor
		}
		batch.NextCursor = next

		log.Debug().
			Int("page", batch.Pages).
			Int("added", len(page.Added)).
			Int("modified", len(page.Modified)).
			Int("removed", len(page.RemovedIDs)).
			Bool("has_more", page.HasMore).
			Msg("fetched sync page")

		if !page.HasMore {
			return batch, nil
		}
		if batch.Pages >= maxPages {
			log.Warn().Int("pages", batch.Pages).Msg("pagination cap reached, stopping early")
			batch.Truncated = true
			return batch, nil
		}
	}
}

// classify keeps typed provider errors and wraps anything else as an AggregationError.
func classify(op string, err error) error {
	var ce *CredentialError
	if errors.As(err, &ce) {
		return err
	}
	var ae *AggregationError
	if errors.As(err, &ae) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &AggregationError{Op: op, Err: err}
}

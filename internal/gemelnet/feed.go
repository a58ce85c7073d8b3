package gemelnet

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/jetpo/fundsync/internal/domain"
)

// Page is one batch of raw records as returned by the feed.
type Page struct {
	Mode    domain.Mode
	Offset  int
	Total   int // -1 when the feed does not report a total
	Records []domain.RawRecord
}

// FetchError reports that the feed was unreachable or returned an unusable payload.
// It is fatal to the current invocation and safe to retry.
type FetchError struct {
	Mode   domain.Mode
	Offset int
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s feed at offset %d: %v", e.Mode, e.Offset, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Pages returns a lazy sequence of feed pages for mode. Each call starts again from offset 0.
// A positive limit caps the number of records fetched. The sequence ends at the first error.
func (c *Client) Pages(ctx context.Context, mode domain.Mode, limit int) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		resourceID := c.resources[mode]
		if resourceID == "" {
			yield(Page{}, &FetchError{Mode: mode, Err: errors.New("no resource id configured")})
			return
		}

		offset := 0
		for {
			size := c.pageSize
			if limit > 0 && limit-offset < size {
				size = limit - offset
			}

			page, err := c.fetchPage(ctx, mode, resourceID, offset, size)
			if err != nil {
				yield(Page{}, err)
				return
			}
			if len(page.Records) == 0 {
				return
			}
			if !yield(page, nil) {
				return
			}

			offset += len(page.Records)
			if limit > 0 && offset >= limit {
				return
			}
			if page.Total >= 0 && offset >= page.Total {
				return
			}
		}
	}
}

// Records flattens Pages into a lazy sequence of raw rows.
func (c *Client) Records(ctx context.Context, mode domain.Mode, limit int) iter.Seq2[domain.RawRecord, error] {
	return func(yield func(domain.RawRecord, error) bool) {
		for page, err := range c.Pages(ctx, mode, limit) {
			if err != nil {
				yield(nil, err)
				return
			}
			for _, rec := range page.Records {
				if !yield(rec, nil) {
					return
				}
			}
		}
	}
}

package kaggle

import (
	"context"
	"iter"
	"sync/atomic"
)

// Cursor tracks page progress of a listing. Pages are 1-based; Page reports
// the last page whose items were all handed to the consumer, which is the
// granularity a listing can be resumed at
type Cursor struct {
	start int
	done  atomic.Int64
}

// NewCursor starts a listing at page start (values below 1 mean 1)
func NewCursor(start int) *Cursor {
	if start < 1 {
		start = 1
	}
	c := &Cursor{start: start}
	c.done.Store(int64(start - 1))
	return c
}

// Page is the last fully consumed page, start-1 when nothing was consumed
func (c *Cursor) Page() int { return int(c.done.Load()) }

// Next is the page a resumed listing would request first
func (c *Cursor) Next() int { return c.Page() + 1 }

// pageFunc fetches one page; an empty slice ends the listing
type pageFunc[T any] func(ctx context.Context, page int) ([]T, error)

// paginate lazily walks pages from cur.Next() until an empty page. Errors are
// yielded once and end the sequence. Stopping mid-page leaves the cursor on the
// previous page
func paginate[T any](ctx context.Context, cur *Cursor, fetch pageFunc[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		for page := cur.Next(); ; page++ {
			if err := ctx.Err(); err != nil {
				yield(zero, canceled(err))
				return
			}
			items, err := fetch(ctx, page)
			if err != nil {
				yield(zero, err)
				return
			}
			if len(items) == 0 {
				return
			}
			for _, it := range items {
				if !yield(it, nil) {
					return
				}
			}
			cur.done.Store(int64(page))
		}
	}
}

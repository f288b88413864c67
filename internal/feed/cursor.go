package feed

import "sync/atomic"

// Cursor tracks the highest item id seen on a feed. It never decreases.
type Cursor struct {
	last atomic.Int64
}

// NewCursor creates a cursor starting at the highest id already rendered.
// Negative values start at 0.
func NewCursor(initial int64) *Cursor {
	c := &Cursor{}
	if initial > 0 {
		c.last.Store(initial)
	}
	return c
}

// Advance raises the cursor to the largest of its current value and ids,
// and returns the result. Non-positive ids are ignored.
func (c *Cursor) Advance(ids ...int64) int64 {
	for _, id := range ids {
		for {
			cur := c.last.Load()
			if id <= cur {
				break
			}
			if c.last.CompareAndSwap(cur, id) {
				break
			}
		}
	}
	return c.last.Load()
}

// LastSeen returns the current cursor value.
func (c *Cursor) LastSeen() int64 {
	return c.last.Load()
}

package ingest

import (
	"errors"
	"fmt"
)

// ErrIDRangeExhausted means a family ran into the next family's id range.
var ErrIDRangeExhausted = errors.New("sequence id range exhausted")

// Counter hands out sequence ids for one family in one run. Families are
// given disjoint ranges [offset, limit) so several of them can share a
// collection.
type Counter struct {
	next  uint64
	limit uint64
}

// NewCounter returns a counter whose first id is offset. A zero limit
// leaves the range open.
func NewCounter(offset, limit uint64) *Counter {
	return &Counter{next: offset, limit: limit}
}

// Next returns the current id and advances. It fails once the id would
// reach limit.
func (c *Counter) Next() (uint64, error) {
	if c.limit != 0 && c.next >= c.limit {
		return 0, fmt.Errorf("id %d reaches limit %d: %w", c.next, c.limit, ErrIDRangeExhausted)
	}
	id := c.next
	c.next++
	return id, nil
}

// Peek returns the id Next would hand out.
func (c *Counter) Peek() uint64 { return c.next }

// Limit returns the smallest of others above offset, or zero when none is.
// It is the ceiling of the family starting at offset.
func Limit(offset uint64, others ...uint64) uint64 {
	var limit uint64
	for _, o := range others {
		if o > offset && (limit == 0 || o < limit) {
			limit = o
		}
	}
	return limit
}

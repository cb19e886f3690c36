package fanout

import (
	"sync"

	"github.com/edusync/idnsync/pkg/schema"
)

// Change is one person's accumulated watched-attribute values bound for
// the shared tenant.
type Change struct {
	CN    string
	Attrs map[string]schema.Value
}

// Rename records a cn change seen in a non-shared tenant. The shared
// tenant emits no events for it, so the drain has to resync both names.
type Rename struct {
	OldCN string
	NewCN string
}

// Queue accumulates cross-tenant propagation work during a round. The
// scheduler hands one queue to every reconciler of the round and drains
// it afterwards; nothing here is global.
type Queue struct {
	mu      sync.Mutex
	order   []string
	changes map[string]map[string]schema.Value
	renames []Rename
}

// NewQueue creates an empty fan-out queue.
func NewQueue() *Queue {
	return &Queue{
		changes: make(map[string]map[string]schema.Value),
	}
}

// RecordChange merges watched-attribute values for one cn. A later value
// for the same attribute wins, matching source order within a round.
// Attributes outside the watched set are dropped here so callers do not
// have to pre-filter.
func (q *Queue) RecordChange(cn string, attrs map[string]schema.Value) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var dst map[string]schema.Value
	for name, value := range attrs {
		if !schema.FanoutAttrs[name] {
			continue
		}
		if dst == nil {
			dst = q.changes[cn]
			if dst == nil {
				dst = make(map[string]schema.Value)
				q.changes[cn] = dst
				q.order = append(q.order, cn)
			}
		}
		dst[name] = value
	}
}

// RecordRename remembers an old to new cn transition.
func (q *Queue) RecordRename(oldCN, newCN string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.renames = append(q.renames, Rename{OldCN: oldCN, NewCN: newCN})
}

// Len returns the number of queued changes plus renames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order) + len(q.renames)
}

// Drain returns all queued work in record order and empties the queue.
func (q *Queue) Drain() ([]Change, []Rename) {
	q.mu.Lock()
	defer q.mu.Unlock()

	changes := make([]Change, 0, len(q.order))
	for _, cn := range q.order {
		changes = append(changes, Change{CN: cn, Attrs: q.changes[cn]})
	}
	renames := q.renames

	q.order = nil
	q.changes = make(map[string]map[string]schema.Value)
	q.renames = nil

	return changes, renames
}

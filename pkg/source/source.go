package source

import (
	"context"
	"time"

	"github.com/edusync/idnsync/pkg/types"
)

// ChunkSize bounds how many uniqueid values one initial-load range covers.
const ChunkSize = 1000

// maxMessageLen is the width of the error_message column.
const maxMessageLen = 4000

// Row is one persons-view row as scanned from the database, keyed by
// column name. The schema package converts rows into directory attributes.
type Row = map[string]any

// EventUpdate is the writeback for one processed event.
type EventUpdate struct {
	RecordID int64
	Status   types.Status
	Attempt  float64
	Message  string
	ReadTime time.Time
}

// Gateway is the source database interface the sync runs against. The
// production implementation is DB; tests substitute fakes or sqlmock.
type Gateway interface {
	// PendingEvents returns up to limit unprocessed or retryable events in
	// record_id order.
	PendingEvents(ctx context.Context, limit int) ([]types.Event, error)

	// EventsSince returns up to limit events newer than the watermark, for
	// tenants whose event log must not be written.
	EventsSince(ctx context.Context, watermark time.Time, limit int) ([]types.Event, error)

	// PersonByUniqueID returns all view rows for one uniqueid. More than
	// one row is possible and handled as a semantic warning upstream.
	PersonByUniqueID(ctx context.Context, uid string) ([]Row, error)

	// PersonsByUsername returns all view rows whose username is in the
	// given set, for cross-tenant rename handling.
	PersonsByUsername(ctx context.Context, usernames ...string) ([]Row, error)

	// UniqueIDBounds returns the smallest and largest uniqueid in the
	// view, for range-chunked full scans. ok is false on an empty view.
	UniqueIDBounds(ctx context.Context) (lo, hi int64, ok bool, err error)

	// PersonRange returns all view rows with fromID <= uniqueid < toID.
	PersonRange(ctx context.Context, fromID, toID int64) ([]Row, error)

	// AllEvents returns event rows for export, optionally bounded below by
	// a timestamp.
	AllEvents(ctx context.Context, since *time.Time) ([]types.Event, error)

	// WriteBack persists processed-event updates in one transaction.
	WriteBack(ctx context.Context, updates []EventUpdate) error

	// Close releases the connection pool.
	Close() error
}

package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SourceView is the per-tenant database view all person data is read from.
// Event rows carrying any other table name are rejected as fatal.
const SourceView = "persons_dirsync_v"

// EventTable is the per-tenant change log filled by database triggers on
// the source view.
const EventTable = "person_eventlog"

// Status represents the processing state of an event-log row
type Status string

const (
	StatusNew     Status = "N" // unprocessed
	StatusError   Status = "E" // transient failure, will be retried
	StatusWarning Status = "W" // processed, semantic mismatch noted
	StatusSuccess Status = "S" // processed
	StatusFatal   Status = "F" // permanent failure, never retried
)

// Pending reports whether a row with this status is picked up by the
// consumer query.
func (s Status) Pending() bool {
	return s == StatusNew || s == StatusError
}

// EventType identifies the database operation that produced an event. The
// column is a floating-point number on the wire, carried through unchanged.
type EventType float64

const (
	EventTypeDelete EventType = 4
	EventTypeInsert EventType = 5
	EventTypeUpdate EventType = 6
)

// Valid reports whether the event type is one of the three trigger
// operations.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeDelete, EventTypeInsert, EventTypeUpdate:
		return true
	}
	return false
}

func (t EventType) String() string {
	switch t {
	case EventTypeDelete:
		return "delete"
	case EventTypeInsert:
		return "insert"
	case EventTypeUpdate:
		return "update"
	}
	return fmt.Sprintf("unknown(%g)", float64(t))
}

// Event is one row of the per-tenant event log. Numeric columns keep their
// wire type, double precision, even where the values are whole integers.
type Event struct {
	RecordID        int64      `db:"record_id"`
	TableKey        string     `db:"table_key"`
	Status          Status     `db:"status"`
	Type            EventType  `db:"event_type"`
	Time            time.Time  `db:"event_time"`
	Perpetrator     *string    `db:"perpetrator"`
	TableName       string     `db:"table_name"`
	ColumnName      *string    `db:"column_name"`
	OldValue        *string    `db:"old_value"`
	NewValue        *string    `db:"new_value"`
	SynchID         *float64   `db:"synch_id"`
	SynchOnlineFlag *string    `db:"synch_online_flag"`
	TransactionFlag *string    `db:"transaction_flag"`
	ReadTime        *time.Time `db:"read_time"`
	ErrorMessage    *string    `db:"error_message"`
	Attempt         float64    `db:"attempt"`
	AdminNotifyFlag *string    `db:"admin_notify_flag"`
}

// UniqueID extracts the person key from the table_key column, which the
// triggers write as "uniqueid=<n>". A fractional ".0" suffix is tolerated.
func (e *Event) UniqueID() (string, error) {
	key, value, found := strings.Cut(e.TableKey, "=")
	if !found || !strings.EqualFold(strings.TrimSpace(key), "uniqueid") {
		return "", fmt.Errorf("malformed table_key %q", e.TableKey)
	}

	value = strings.TrimSpace(value)
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return strconv.FormatInt(int64(f), 10), nil
	}
	return "", fmt.Errorf("malformed table_key %q", e.TableKey)
}

// Tenant describes one source database and its directory subtree
type Tenant struct {
	// Database is the database name, also used to derive the subtree
	// ("ou=<database>" below the directory base).
	Database string

	// Label is the human-readable name used in logs.
	Label string

	// BaseDN is the root of this tenant's person entries.
	BaseDN string

	// DSN is the full connection string, assembled from configuration.
	DSN string

	// ReadOnly marks tenants whose event log must not be written. Their
	// events are selected by time watermark instead of status.
	ReadOnly bool

	// Shared marks the tenant that receives cross-tenant fan-out writes.
	Shared bool
}

// String implements fmt.Stringer for log output.
func (t Tenant) String() string {
	if t.Label != "" {
		return t.Label
	}
	return t.Database
}

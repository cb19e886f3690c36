package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/edusync/idnsync/pkg/log"
	"github.com/edusync/idnsync/pkg/schema"
	"github.com/edusync/idnsync/pkg/types"
)

// eventColumns is the full event-log column list in trigger order.
var eventColumns = []string{
	"record_id", "table_key", "status", "event_type", "event_time",
	"perpetrator", "table_name", "column_name", "old_value", "new_value",
	"synch_id", "synch_online_flag", "transaction_flag", "read_time",
	"error_message", "attempt", "admin_notify_flag",
}

// EventColumns lists the event-log columns in trigger order, for exports.
func EventColumns() []string {
	cols := make([]string, len(eventColumns))
	copy(cols, eventColumns)
	return cols
}

// eventSelectList casts record_id, a double precision column holding whole
// numbers, to bigint so it scans into the int64 the rest of the code keys
// on. All other numeric columns keep their wire type.
func eventSelectList() string {
	cols := make([]string, len(eventColumns))
	copy(cols, eventColumns)
	cols[0] = "record_id::bigint AS record_id"
	return strings.Join(cols, ", ")
}

// DB is the production Gateway over one tenant database.
type DB struct {
	db  *sqlx.DB
	log zerolog.Logger
}

var _ Gateway = (*DB)(nil)

// Open connects to a tenant database and verifies the connection.
func Open(ctx context.Context, dsn, tenant string) (*DB, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database for %s: %w", tenant, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database for %s: %w", tenant, err)
	}

	return &DB{
		db:  db,
		log: log.WithComponent("source").With().Str("tenant", tenant).Logger(),
	}, nil
}

// PendingEvents returns up to limit events with status N or E, oldest
// record first.
func (d *DB) PendingEvents(ctx context.Context, limit int) ([]types.Event, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE status IN ('N', 'E') ORDER BY record_id LIMIT $1",
		eventSelectList(), types.EventTable,
	)

	var events []types.Event
	if err := d.db.SelectContext(ctx, &events, query, limit); err != nil {
		return nil, fmt.Errorf("select pending events: %w", err)
	}
	normalizeEvents(events)
	return events, nil
}

// EventsSince returns up to limit events newer than the watermark for
// read-only tenants, ordered so that same-person events stay in source
// order.
func (d *DB) EventsSince(ctx context.Context, watermark time.Time, limit int) ([]types.Event, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE event_time > $1 ORDER BY event_time, record_id LIMIT $2",
		eventSelectList(), types.EventTable,
	)

	var events []types.Event
	if err := d.db.SelectContext(ctx, &events, query, watermark, limit); err != nil {
		return nil, fmt.Errorf("select events since %s: %w", watermark, err)
	}
	normalizeEvents(events)
	return events, nil
}

// PersonByUniqueID returns all view rows for one uniqueid.
func (d *DB) PersonByUniqueID(ctx context.Context, uid string) ([]Row, error) {
	id, err := strconv.ParseInt(uid, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid uniqueid %q: %w", uid, err)
	}

	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE uniqueid = $1",
		strings.Join(schema.ColumnNames(), ", "), types.SourceView,
	)
	return d.selectRows(ctx, query, id)
}

// PersonsByUsername returns all view rows whose username matches any of
// the given names.
func (d *DB) PersonsByUsername(ctx context.Context, usernames ...string) ([]Row, error) {
	if len(usernames) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(
		fmt.Sprintf("SELECT %s FROM %s WHERE username IN (?)",
			strings.Join(schema.ColumnNames(), ", "), types.SourceView),
		usernames,
	)
	if err != nil {
		return nil, fmt.Errorf("build username query: %w", err)
	}
	return d.selectRows(ctx, d.db.Rebind(query), args...)
}

// UniqueIDBounds returns the smallest and largest uniqueid in the view.
func (d *DB) UniqueIDBounds(ctx context.Context) (lo, hi int64, ok bool, err error) {
	query := fmt.Sprintf("SELECT MIN(uniqueid), MAX(uniqueid) FROM %s", types.SourceView)

	var bounds struct {
		Min *float64 `db:"min"`
		Max *float64 `db:"max"`
	}
	if err := d.db.GetContext(ctx, &bounds, query); err != nil {
		return 0, 0, false, fmt.Errorf("select uniqueid bounds: %w", err)
	}
	if bounds.Min == nil || bounds.Max == nil {
		return 0, 0, false, nil
	}
	return int64(*bounds.Min), int64(*bounds.Max), true, nil
}

// PersonRange returns all view rows with fromID <= uniqueid < toID.
func (d *DB) PersonRange(ctx context.Context, fromID, toID int64) ([]Row, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE uniqueid >= $1 AND uniqueid < $2",
		strings.Join(schema.ColumnNames(), ", "), types.SourceView,
	)
	return d.selectRows(ctx, query, fromID, toID)
}

// AllEvents returns event rows for export, oldest first.
func (d *DB) AllEvents(ctx context.Context, since *time.Time) ([]types.Event, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s ORDER BY record_id",
		eventSelectList(), types.EventTable,
	)
	args := []any{}
	if since != nil {
		query = fmt.Sprintf(
			"SELECT %s FROM %s WHERE event_time > $1 ORDER BY record_id",
			eventSelectList(), types.EventTable,
		)
		args = append(args, *since)
	}

	var events []types.Event
	if err := d.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	normalizeEvents(events)
	return events, nil
}

// WriteBack persists processed-event updates in one transaction, so a
// round's status changes land together or not at all.
func (d *DB) WriteBack(ctx context.Context, updates []EventUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin writeback: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(
		"UPDATE %s SET status = $1, attempt = $2, error_message = $3, read_time = $4 WHERE record_id = $5",
		types.EventTable,
	)
	for _, u := range updates {
		var msg *string
		if u.Message != "" {
			m := truncate(u.Message, maxMessageLen)
			msg = &m
		}
		if _, err := tx.ExecContext(ctx, query, string(u.Status), u.Attempt, msg, u.ReadTime, u.RecordID); err != nil {
			return fmt.Errorf("write back record %d: %w", u.RecordID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit writeback: %w", err)
	}

	d.log.Debug().Int("count", len(updates)).Msg("event writeback committed")
	return nil
}

// Close releases the connection pool.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) selectRows(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := d.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select persons: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row := Row{}
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan person row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate person rows: %w", err)
	}
	return out, nil
}

// normalizeEvents trims char(n) padding off status and flag columns.
func normalizeEvents(events []types.Event) {
	for i := range events {
		events[i].Status = types.Status(strings.TrimSpace(string(events[i].Status)))
		events[i].TableName = strings.TrimSpace(events[i].TableName)
		trimPtr(events[i].SynchOnlineFlag)
		trimPtr(events[i].TransactionFlag)
		trimPtr(events[i].AdminNotifyFlag)
	}
}

func trimPtr(s *string) {
	if s != nil {
		*s = strings.TrimSpace(*s)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

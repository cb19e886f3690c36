package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/edusync/idnsync/pkg/log"
	"github.com/edusync/idnsync/pkg/schema"
	"github.com/edusync/idnsync/pkg/source"
	"github.com/edusync/idnsync/pkg/types"
)

// DefaultDelimiter separates fields in exported files unless overridden.
const DefaultDelimiter = ';'

// timeLayout renders timestamps the way the event triggers store them.
const timeLayout = "2006-01-02 15:04:05"

// Exporter dumps event-log and person rows from one tenant database as
// CSV. Files carry a header row; timestamps are formatted without zone.
type Exporter struct {
	src   source.Gateway
	delim rune
	log   zerolog.Logger
}

// NewExporter returns an Exporter over src. A zero delimiter selects
// DefaultDelimiter.
func NewExporter(src source.Gateway, delim rune) *Exporter {
	if delim == 0 {
		delim = DefaultDelimiter
	}
	return &Exporter{
		src:   src,
		delim: delim,
		log:   log.WithComponent("export"),
	}
}

// Events writes the event log to w, all rows or only those newer than
// since. It returns the uniqueids the written events reference, oldest
// first without duplicates, so callers can export the matching person
// rows alongside.
func (e *Exporter) Events(ctx context.Context, w io.Writer, since *time.Time) ([]string, error) {
	events, err := e.src.AllEvents(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("reading events: %w", err)
	}

	cw := csv.NewWriter(w)
	cw.Comma = e.delim
	if err := cw.Write(source.EventColumns()); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(events))
	seen := make(map[string]struct{}, len(events))
	for i := range events {
		ev := &events[i]
		if err := cw.Write(eventRecord(ev)); err != nil {
			return nil, err
		}

		uid, err := ev.UniqueID()
		if err != nil {
			e.log.Warn().Int64("record_id", ev.RecordID).Str("table_key", ev.TableKey).
				Msg("event key not parseable, person row skipped")
			continue
		}
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		ids = append(ids, uid)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	e.log.Info().Int("events", len(events)).Int("persons", len(ids)).Msg("event log exported")
	return ids, nil
}

// PersonsByID writes the view rows of the given uniqueids to w, in the
// order the ids are given. Ids without a view row are skipped silently;
// deleted persons legitimately have events but no row anymore.
func (e *Exporter) PersonsByID(ctx context.Context, w io.Writer, ids []string) error {
	cw := csv.NewWriter(w)
	cw.Comma = e.delim
	if err := cw.Write(schema.ColumnNames()); err != nil {
		return err
	}

	written := 0
	for _, id := range ids {
		rows, err := e.src.PersonByUniqueID(ctx, id)
		if err != nil {
			return fmt.Errorf("reading person %s: %w", id, err)
		}
		for _, row := range rows {
			if err := cw.Write(personRecord(row)); err != nil {
				return err
			}
			written++
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	e.log.Info().Int("rows", written).Msg("person rows exported")
	return nil
}

// Persons writes every view row to w, walking the uniqueid space in
// chunks so arbitrarily large views never load at once. It returns the
// number of rows written.
func (e *Exporter) Persons(ctx context.Context, w io.Writer) (int, error) {
	cw := csv.NewWriter(w)
	cw.Comma = e.delim
	if err := cw.Write(schema.ColumnNames()); err != nil {
		return 0, err
	}

	lo, hi, ok, err := e.src.UniqueIDBounds(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading uniqueid bounds: %w", err)
	}

	written := 0
	if ok {
		for from := lo; from <= hi; from += source.ChunkSize {
			to := from + source.ChunkSize
			rows, err := e.src.PersonRange(ctx, from, to)
			if err != nil {
				return written, fmt.Errorf("reading persons %d..%d: %w", from, to, err)
			}
			for _, row := range rows {
				if err := cw.Write(personRecord(row)); err != nil {
					return written, err
				}
				written++
			}
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return written, err
	}
	e.log.Info().Int("rows", written).Msg("persons view exported")
	return written, nil
}

// eventRecord renders one event in EventColumns order.
func eventRecord(ev *types.Event) []string {
	return []string{
		strconv.FormatInt(ev.RecordID, 10),
		ev.TableKey,
		string(ev.Status),
		formatFloat(float64(ev.Type)),
		ev.Time.Format(timeLayout),
		strPtr(ev.Perpetrator),
		ev.TableName,
		strPtr(ev.ColumnName),
		strPtr(ev.OldValue),
		strPtr(ev.NewValue),
		floatPtr(ev.SynchID),
		strPtr(ev.SynchOnlineFlag),
		strPtr(ev.TransactionFlag),
		timePtr(ev.ReadTime),
		strPtr(ev.ErrorMessage),
		formatFloat(ev.Attempt),
		strPtr(ev.AdminNotifyFlag),
	}
}

// personRecord renders one view row in ColumnNames order.
func personRecord(row source.Row) []string {
	cols := schema.ColumnNames()
	rec := make([]string, len(cols))
	for i, col := range cols {
		rec[i] = formatValue(row[col])
	}
	return rec
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(timeLayout)
	case float64:
		return formatFloat(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}

// formatFloat prints whole numbers without a fractional part, which is
// what the numeric event and person columns hold in practice.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func strPtr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func floatPtr(f *float64) string {
	if f == nil {
		return ""
	}
	return formatFloat(*f)
}

func timePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timeLayout)
}

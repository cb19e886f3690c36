package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edusync/idnsync/pkg/cipher"
	"github.com/edusync/idnsync/pkg/directory"
	"github.com/edusync/idnsync/pkg/fanout"
	"github.com/edusync/idnsync/pkg/log"
	"github.com/edusync/idnsync/pkg/source"
	"github.com/edusync/idnsync/pkg/types"
)

// maxAttempts is how often a transient failure is retried before the
// event is written off as fatal.
const maxAttempts = 10

// Config binds a reconciler to one tenant.
type Config struct {
	Tenant    types.Tenant
	Source    source.Gateway
	Directory directory.Gateway
	Cipher    *cipher.Cipher

	// Queue receives cross-tenant propagation work. Nil switches fan-out
	// recording off, as during initial load.
	Queue *fanout.Queue

	// RootDN is the top of the directory tree, the base for cross-tenant
	// cn searches on delete.
	RootDN string

	// SharedBase is the shared tenant's base DN. Empty disables all
	// shared-tenant handling.
	SharedBase string

	// FixedIV overrides the random IV on password encryption. Regression
	// tests only; production leaves it nil.
	FixedIV []byte

	// Now is the clock used for timestamps. Nil means time.Now.
	Now func() time.Time
}

// Reconciler converges the directory with the source, one event or one
// row at a time.
type Reconciler struct {
	cfg Config
	log zerolog.Logger
}

// New creates a reconciler for one tenant.
func New(cfg Config) *Reconciler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reconciler{
		cfg: cfg,
		log: log.WithComponent("reconciler").With().Str("tenant", cfg.Tenant.Database).Logger(),
	}
}

// permanentError marks failures no retry can fix. They write back F
// without touching the attempt counter.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

// IsPermanent reports whether err is a failure no retry can fix, such as
// an unconvertible row or a broken cipher configuration.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// ProcessEvent runs one event through validate, source load, classify
// and apply, and returns the writeback for it. The caller persists the
// returned update; for read-only tenants it is dropped.
func (r *Reconciler) ProcessEvent(ctx context.Context, ev types.Event) source.EventUpdate {
	upd := source.EventUpdate{
		RecordID: ev.RecordID,
		Attempt:  ev.Attempt,
		ReadTime: r.cfg.Now(),
	}

	uid, err := r.validate(ev)
	if err != nil {
		upd.Status = types.StatusFatal
		upd.Message = err.Error()
		r.log.Error().Err(err).Int64("record_id", ev.RecordID).Msg("event failed validation")
		return upd
	}

	rows, err := r.cfg.Source.PersonByUniqueID(ctx, uid)
	if err != nil {
		return r.fail(upd, fmt.Errorf("load source row %s: %w", uid, err))
	}

	warnings, err := r.applyEvent(ctx, ev.Type, uid, rows)
	if err != nil {
		return r.fail(upd, err)
	}

	if len(warnings) > 0 {
		upd.Status = types.StatusWarning
		upd.Message = strings.Join(warnings, "; ")
		r.log.Warn().Int64("record_id", ev.RecordID).Str("uniqueid", uid).
			Str("warnings", upd.Message).Msg("event processed with warnings")
		return upd
	}

	upd.Status = types.StatusSuccess
	return upd
}

// validate checks the event envelope against what the trigger writes.
func (r *Reconciler) validate(ev types.Event) (string, error) {
	if !ev.Type.Valid() {
		return "", fmt.Errorf("unknown event type %v", float64(ev.Type))
	}
	if !strings.EqualFold(ev.TableName, types.SourceView) {
		return "", fmt.Errorf("event for unexpected table %q", ev.TableName)
	}
	uid, err := ev.UniqueID()
	if err != nil {
		return "", err
	}
	return uid, nil
}

// applyEvent picks the write path from the event type and the number of
// source rows the uniqueid still has.
func (r *Reconciler) applyEvent(ctx context.Context, typ types.EventType, uid string, rows []source.Row) ([]string, error) {
	switch {
	case len(rows) == 0:
		var warnings []string
		switch typ {
		case types.EventTypeInsert:
			// The row vanished between trigger and processing. Removing
			// whatever the directory has matches the source.
			r.log.Warn().Str("uniqueid", uid).Msg("insert event without source row, removing from directory")
		case types.EventTypeUpdate:
			warnings = append(warnings, fmt.Sprintf("no source row for update of uniqueid %s, removed from directory", uid))
		}
		if err := r.DeleteByUniqueID(ctx, uid); err != nil {
			return nil, err
		}
		return warnings, nil

	case len(rows) == 1:
		var warnings []string
		if typ == types.EventTypeDelete {
			warnings = append(warnings, fmt.Sprintf("delete event but uniqueid %s still has a source row, syncing instead", uid))
		}
		w, err := r.Upsert(ctx, rows[0], typ == types.EventTypeInsert)
		if err != nil {
			return nil, err
		}
		return append(warnings, w...), nil

	default:
		warnings := []string{fmt.Sprintf("%d source rows share uniqueid %s", len(rows), uid)}
		for _, row := range rows {
			w, err := r.Upsert(ctx, row, typ == types.EventTypeInsert)
			if err != nil {
				return nil, err
			}
			warnings = append(warnings, w...)
		}
		return warnings, nil
	}
}

// fail turns an apply error into the writeback, deciding between retry
// and permanent failure.
func (r *Reconciler) fail(upd source.EventUpdate, err error) source.EventUpdate {
	upd.Message = err.Error()

	if IsPermanent(err) {
		upd.Status = types.StatusFatal
		r.log.Error().Err(err).Int64("record_id", upd.RecordID).Msg("event unprocessable")
		return upd
	}

	upd.Attempt++
	if upd.Attempt > maxAttempts {
		upd.Status = types.StatusFatal
		r.log.Error().Err(err).Int64("record_id", upd.RecordID).
			Float64("attempt", upd.Attempt).Msg("giving up on event")
	} else {
		upd.Status = types.StatusError
		r.log.Warn().Err(err).Int64("record_id", upd.RecordID).
			Float64("attempt", upd.Attempt).Msg("event failed, will retry")
	}
	return upd
}

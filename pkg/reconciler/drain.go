package reconciler

import (
	"context"
	"errors"

	"github.com/edusync/idnsync/pkg/directory"
	"github.com/edusync/idnsync/pkg/fanout"
	"github.com/edusync/idnsync/pkg/ldaptime"
	"github.com/edusync/idnsync/pkg/metrics"
	"github.com/edusync/idnsync/pkg/schema"
)

// DrainFanout empties the cross-tenant queue against the shared tenant.
// The receiver must be bound to the shared tenant. Individual failures
// are logged and skipped; there is no event row to park them on, and the
// next change to the same person queues the values again.
func (r *Reconciler) DrainFanout(ctx context.Context, q *fanout.Queue) error {
	changes, renames := q.Drain()
	if len(changes) == 0 && len(renames) == 0 {
		return nil
	}
	r.log.Info().Int("changes", len(changes)).Int("renames", len(renames)).
		Msg("draining cross-tenant queue")

	for _, ren := range renames {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.applyRename(ctx, ren)
	}
	for _, ch := range changes {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.applyChange(ch)
	}
	return nil
}

// applyRename resyncs the shared tenant's own rows for both cn values.
// The shared database emits no events when a person is renamed in a
// regular tenant, so the rename is driven from here.
func (r *Reconciler) applyRename(ctx context.Context, ren fanout.Rename) {
	rows, err := r.cfg.Source.PersonsByUsername(ctx, ren.OldCN, ren.NewCN)
	if err != nil {
		r.log.Error().Err(err).Str("old_cn", ren.OldCN).Str("new_cn", ren.NewCN).
			Msg("rename fan-out source lookup failed")
		return
	}
	if len(rows) == 0 {
		r.log.Debug().Str("old_cn", ren.OldCN).Str("new_cn", ren.NewCN).
			Msg("shared source has neither cn, rename fan-out skipped")
		return
	}
	if len(rows) > 1 {
		r.log.Warn().Int("rows", len(rows)).Str("old_cn", ren.OldCN).Str("new_cn", ren.NewCN).
			Msg("rename fan-out matches several shared rows")
	}

	for _, row := range rows {
		warnings, err := r.Upsert(ctx, row, false)
		if err != nil {
			r.log.Error().Err(err).Str("new_cn", ren.NewCN).Msg("rename fan-out upsert failed")
			continue
		}
		for _, w := range warnings {
			r.log.Warn().Str("new_cn", ren.NewCN).Msg(w)
		}
	}
	metrics.FanoutAppliedTotal.WithLabelValues("rename").Inc()
}

// applyChange replaces the watched attributes on the shared entry, when
// there is one. Watched attributes are never deleted in the shared
// tenant; only non-null values travel.
func (r *Reconciler) applyChange(ch fanout.Change) {
	dn := directory.PersonDN(ch.CN, r.cfg.Tenant.BaseDN)
	entry, err := r.cfg.Directory.GetEntry(dn, nil)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			r.log.Debug().Str("dn", dn).Msg("no shared entry for fan-out change")
		} else {
			r.log.Error().Err(err).Str("dn", dn).Msg("fan-out lookup failed")
		}
		return
	}

	replace := make(map[string][]string)
	var clearPassword string
	for name, v := range ch.Attrs {
		if v.IsNull() {
			continue
		}
		current := schema.FromAttribute(entry.Values(name))

		if name == schema.AttrPassword {
			clear := v.String()
			if !current.IsNull() {
				changed, err := r.passwordChanged(clear, current.String())
				if err != nil || !changed {
					continue
				}
			}
			enc, err := r.encryptFresh(clear)
			if err != nil {
				r.log.Error().Err(err).Str("dn", dn).Msg("fan-out password encryption failed")
				continue
			}
			replace[name] = []string{enc}
			clearPassword = clear
			continue
		}

		if !v.Equal(current) {
			replace[name] = v.Strings()
		}
	}

	if len(replace) == 0 {
		return
	}

	replace[schema.AttrETLTimestamp] = []string{ldaptime.Format(r.cfg.Now())}
	if err := r.cfg.Directory.Modify(dn, replace, nil); err != nil {
		r.log.Error().Err(err).Str("dn", dn).Msg("fan-out modify failed")
		return
	}
	if clearPassword != "" {
		if err := r.cfg.Directory.ModifyPassword(dn, clearPassword); err != nil {
			r.log.Error().Err(err).Str("dn", dn).Msg("fan-out password change failed")
			return
		}
	}

	metrics.FanoutAppliedTotal.WithLabelValues("change").Inc()
	r.log.Info().Str("dn", dn).Int("attributes", len(replace)-1).Msg("fan-out change applied")
}

package reconciler

import (
	"context"
	"fmt"
	"strings"

	"github.com/edusync/idnsync/pkg/directory"
	"github.com/edusync/idnsync/pkg/schema"
)

// DeleteByUniqueID removes every entry carrying the uniqueid below the
// tenant base. Historical duplicates make multiple matches possible; all
// of them go. For each removed entry the person's shared-tenant twin is
// considered as well.
func (r *Reconciler) DeleteByUniqueID(ctx context.Context, uid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := r.cfg.Directory.Search(r.cfg.Tenant.BaseDN, directory.ScopeSubtree,
		directory.Filter(schema.AttrUniqueID, uid), []string{schema.AttrCN})
	if err != nil {
		return fmt.Errorf("search uniqueid %s: %w", uid, err)
	}
	if len(entries) == 0 {
		r.log.Debug().Str("uniqueid", uid).Msg("no directory entry to delete")
		return nil
	}

	for _, entry := range entries {
		if err := r.cfg.Directory.Delete(entry.DN); err != nil {
			return fmt.Errorf("delete person entry: %w", err)
		}
		r.log.Info().Str("dn", entry.DN).Str("uniqueid", uid).Msg("person entry deleted")

		cn := firstValue(entry.Values(schema.AttrCN))
		if cn == "" {
			continue
		}
		if err := r.deleteSharedTwin(cn, entry.DN); err != nil {
			return err
		}
	}
	return nil
}

// deleteSharedTwin removes the person's shared-tenant entry when it is
// provably orphaned: after the tenant delete, the cn matches exactly one
// remaining entry, that entry lies below the shared base, and none of
// the account status attributes is set. Any other constellation is left
// alone, people legitimately exist in several tenants.
func (r *Reconciler) deleteSharedTwin(cn, deletedDN string) error {
	if r.cfg.SharedBase == "" || r.cfg.RootDN == "" || r.cfg.Tenant.Shared {
		return nil
	}

	matches, err := r.cfg.Directory.Search(r.cfg.RootDN, directory.ScopeSubtree,
		directory.Filter(schema.AttrCN, cn), schema.AccountStatusAttrs)
	if err != nil {
		return fmt.Errorf("cross-tenant search for cn %s: %w", cn, err)
	}

	// The server may still report the entry deleted a moment ago.
	remaining := matches[:0:0]
	for _, m := range matches {
		if m.DN == deletedDN {
			continue
		}
		remaining = append(remaining, m)
	}

	if len(remaining) != 1 {
		r.log.Debug().Str("cn", cn).Int("matches", len(remaining)).
			Msg("shared twin kept, cn match count is not one")
		return nil
	}

	twin := remaining[0]
	if !strings.HasSuffix(twin.DN, ","+r.cfg.SharedBase) {
		r.log.Debug().Str("cn", cn).Str("dn", twin.DN).
			Msg("shared twin kept, remaining match is outside the shared tenant")
		return nil
	}
	for _, attr := range schema.AccountStatusAttrs {
		if twin.HasAttr(attr) {
			r.log.Debug().Str("cn", cn).Str("dn", twin.DN).Str("attribute", attr).
				Msg("shared twin kept, account status still set")
			return nil
		}
	}

	if err := r.cfg.Directory.Delete(twin.DN); err != nil {
		return fmt.Errorf("delete shared twin: %w", err)
	}
	r.log.Info().Str("dn", twin.DN).Str("cn", cn).Msg("orphaned shared twin deleted")
	return nil
}

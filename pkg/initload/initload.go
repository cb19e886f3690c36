package initload

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edusync/idnsync/pkg/directory"
	"github.com/edusync/idnsync/pkg/log"
	"github.com/edusync/idnsync/pkg/metrics"
	"github.com/edusync/idnsync/pkg/reconciler"
	"github.com/edusync/idnsync/pkg/schema"
	"github.com/edusync/idnsync/pkg/source"
	"github.com/edusync/idnsync/pkg/types"
)

// defaultPageSize is the directory paging size for the full-tree scan.
const defaultPageSize = 500

// Config binds a loader to one tenant. The reconciler must be built
// without a fan-out queue; the initial load never propagates across
// tenants.
type Config struct {
	Tenant     types.Tenant
	Source     source.Gateway
	Directory  directory.Gateway
	Reconciler *reconciler.Reconciler

	// PageSize for the directory scan. Zero means defaultPageSize.
	PageSize uint32
}

// Loader rebuilds one tenant's subtree from the full source view.
type Loader struct {
	cfg Config
	log zerolog.Logger
}

// New creates a loader for one tenant.
func New(cfg Config) *Loader {
	if cfg.PageSize == 0 {
		cfg.PageSize = defaultPageSize
	}
	return &Loader{
		cfg: cfg,
		log: log.WithComponent("initload").With().Str("tenant", cfg.Tenant.Database).Logger(),
	}
}

// Run provisions the tree, upserts every source row and prunes entries
// the source no longer knows. A transient failure aborts the run before
// the prune phase; a partially built picture must never drive deletes.
func (l *Loader) Run(ctx context.Context) error {
	l.log.Info().Str("base_dn", l.cfg.Tenant.BaseDN).Msg("initial load starting")

	if err := l.EnsureTree(); err != nil {
		return err
	}

	uidmap, err := l.BuildUIDMap()
	if err != nil {
		return err
	}
	l.log.Info().Int("existing", len(uidmap)).Msg("directory scan complete")

	loaded, skipped, err := l.syncAll(ctx, uidmap)
	if err != nil {
		return err
	}

	removed, err := l.prune(ctx, uidmap)
	if err != nil {
		return err
	}

	l.log.Info().Int("loaded", loaded).Int("skipped", skipped).Int("removed", removed).
		Msg("initial load complete")
	return nil
}

// EnsureTree creates the missing levels of the tenant base DN, and of
// the ETD sibling chain for user subtrees.
func (l *Loader) EnsureTree() error {
	if err := l.ensureChain(l.cfg.Tenant.BaseDN); err != nil {
		return err
	}
	if sibling, ok := etdSibling(l.cfg.Tenant.BaseDN); ok {
		if err := l.ensureChain(sibling); err != nil {
			return err
		}
	}
	return nil
}

// etdSibling derives the deletion-tracking chain provisioned next to
// user subtrees.
func etdSibling(baseDN string) (string, bool) {
	rest, ok := strings.CutPrefix(baseDN, "ou=user,")
	if !ok {
		return "", false
	}
	return "ou=ETD,ou=idnSync," + rest, true
}

// ensureChain walks dn root-to-leaf and creates every missing level. The
// parent must exist before the child, hence the direction.
func (l *Loader) ensureChain(dn string) error {
	parts := strings.Split(dn, ",")
	current := ""
	for i := len(parts) - 1; i >= 0; i-- {
		rdn := strings.TrimSpace(parts[i])
		if current == "" {
			current = rdn
		} else {
			current = rdn + "," + current
		}

		attr, value, ok := strings.Cut(rdn, "=")
		if !ok {
			return fmt.Errorf("malformed dn level %q in %s", rdn, dn)
		}

		_, err := l.cfg.Directory.GetEntry(current, []string{attr})
		if err == nil {
			continue
		}
		if !errors.Is(err, directory.ErrNotFound) {
			return fmt.Errorf("probe %s: %w", current, err)
		}

		add := map[string][]string{attr: {value}}
		if strings.EqualFold(attr, "o") {
			add["objectClass"] = []string{"Organization"}
		} else {
			add["objectClass"] = []string{"organizationalUnit"}
		}
		if err := l.cfg.Directory.Add(current, add); err != nil {
			return fmt.Errorf("create %s: %w", current, err)
		}
		l.log.Info().Str("dn", current).Msg("tree level created")
	}
	return nil
}

// BuildUIDMap scans the tenant subtree and maps every uniqueid to its
// DN. Entries synced later drop out of the map; what remains afterwards
// is stale.
func (l *Loader) BuildUIDMap() (map[string]string, error) {
	entries, err := l.cfg.Directory.SearchPaged(l.cfg.Tenant.BaseDN,
		directory.PresenceFilter(schema.AttrUniqueID),
		[]string{schema.AttrUniqueID}, l.cfg.PageSize)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", l.cfg.Tenant.BaseDN, err)
	}

	uidmap := make(map[string]string, len(entries))
	for _, e := range entries {
		for _, uid := range e.Values(schema.AttrUniqueID) {
			if prev, dup := uidmap[uid]; dup {
				l.log.Warn().Str("uniqueid", uid).Str("dn", e.DN).Str("shadowed", prev).
					Msg("duplicate uniqueid in directory")
			}
			uidmap[uid] = e.DN
		}
	}
	return uidmap, nil
}

// syncAll streams the whole view in uniqueid ranges and upserts each
// row. Rows the reconciler rejects permanently are logged and skipped;
// their uniqueid still leaves the map so the prune cannot remove a
// person over a bad row.
func (l *Loader) syncAll(ctx context.Context, uidmap map[string]string) (loaded, skipped int, err error) {
	lo, hi, ok, err := l.cfg.Source.UniqueIDBounds(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("uniqueid bounds: %w", err)
	}
	if !ok {
		l.log.Warn().Msg("persons view is empty, every directory entry is stale")
		return 0, 0, nil
	}

	for from := lo; from <= hi; from += source.ChunkSize {
		to := from + source.ChunkSize
		rows, err := l.cfg.Source.PersonRange(ctx, from, to)
		if err != nil {
			return loaded, skipped, fmt.Errorf("load range [%d,%d): %w", from, to, err)
		}

		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				return loaded, skipped, err
			}
			if uid, ok := rowUID(row); ok {
				delete(uidmap, uid)
			}

			warnings, err := l.cfg.Reconciler.Upsert(ctx, row, true)
			if err != nil {
				if !reconciler.IsPermanent(err) {
					return loaded, skipped, err
				}
				l.log.Error().Err(err).Msg("row skipped")
				skipped++
				continue
			}
			for _, w := range warnings {
				l.log.Warn().Msg(w)
			}
			metrics.PersonsLoadedTotal.Inc()
			loaded++
		}
	}
	return loaded, skipped, nil
}

// rowUID renders the row's uniqueid the way the directory stores it.
func rowUID(row source.Row) (string, bool) {
	v, err := schema.Number(row["uniqueid"])
	if err != nil || v.IsNull() {
		return "", false
	}
	return v.String(), true
}

// prune deletes every entry the source scan did not visit. The shared
// twin handling of the event path does not apply here, the initial load
// reconstructs one tenant in isolation.
func (l *Loader) prune(ctx context.Context, uidmap map[string]string) (int, error) {
	removed := 0
	for uid, dn := range uidmap {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := l.cfg.Directory.Delete(dn); err != nil {
			return removed, fmt.Errorf("prune %s: %w", dn, err)
		}
		l.log.Info().Str("dn", dn).Str("uniqueid", uid).Msg("stale entry removed")
		metrics.PersonsRemovedTotal.Inc()
		removed++
	}
	return removed, nil
}

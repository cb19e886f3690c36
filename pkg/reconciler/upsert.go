package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/edusync/idnsync/pkg/cipher"
	"github.com/edusync/idnsync/pkg/directory"
	"github.com/edusync/idnsync/pkg/ldaptime"
	"github.com/edusync/idnsync/pkg/metrics"
	"github.com/edusync/idnsync/pkg/schema"
	"github.com/edusync/idnsync/pkg/source"
)

// Upsert converges the directory entry for one source row. isNew carries
// the event's claim that the person should not exist yet; a mismatch is
// warned about and processing continues on the found state. The returned
// warnings become the event's W message.
func (r *Reconciler) Upsert(ctx context.Context, row source.Row, isNew bool) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	attrs, err := schema.Attributes(row)
	if err != nil {
		return nil, permanent(err)
	}
	cn, uid, err := schema.Identity(attrs)
	if err != nil {
		return nil, permanent(err)
	}

	entry, err := r.locate(cn, uid)
	if err != nil {
		return nil, err
	}

	if entry == nil {
		return r.create(cn, uid, attrs, isNew)
	}
	return r.converge(entry, cn, uid, attrs, isNew)
}

// locate finds the person's entry, by exact RDN first and by uniqueid
// second. More than one uniqueid match cannot be resolved here and is a
// retryable error.
func (r *Reconciler) locate(cn, uid string) (*directory.Entry, error) {
	dn := directory.PersonDN(cn, r.cfg.Tenant.BaseDN)
	entry, err := r.cfg.Directory.GetEntry(dn, nil)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, directory.ErrNotFound) {
		return nil, fmt.Errorf("locate by rdn: %w", err)
	}

	entries, err := r.cfg.Directory.Search(r.cfg.Tenant.BaseDN, directory.ScopeSubtree,
		directory.Filter(schema.AttrUniqueID, uid), nil)
	if err != nil {
		return nil, fmt.Errorf("locate by uniqueid: %w", err)
	}
	switch len(entries) {
	case 0:
		return nil, nil
	case 1:
		return &entries[0], nil
	default:
		return nil, fmt.Errorf("%w: %d entries with uniqueid %s below %s",
			directory.ErrAmbiguous, len(entries), uid, r.cfg.Tenant.BaseDN)
	}
}

// create adds a fresh person entry from the converted attributes.
func (r *Reconciler) create(cn, uid string, attrs map[string]schema.Value, isNew bool) ([]string, error) {
	var warnings []string
	if !isNew {
		warnings = append(warnings,
			fmt.Sprintf("uniqueid %s has no directory entry although the event says it exists, creating it", uid))
	}

	dn := directory.PersonDN(cn, r.cfg.Tenant.BaseDN)
	add := make(map[string][]string, len(attrs)+2)
	var clearPassword string

	for name, v := range attrs {
		if v.IsNull() {
			continue
		}
		if name == schema.AttrPassword {
			clearPassword = v.String()
			enc, err := r.encryptFresh(clearPassword)
			if err != nil {
				return nil, permanent(fmt.Errorf("encrypt password: %w", err))
			}
			add[name] = []string{enc}
			continue
		}
		add[name] = v.Strings()
	}
	add["objectClass"] = append([]string(nil), schema.ObjectClasses...)
	add[schema.AttrETLTimestamp] = []string{ldaptime.Format(r.cfg.Now())}

	if err := r.cfg.Directory.Add(dn, add); err != nil {
		return nil, fmt.Errorf("create person entry: %w", err)
	}
	r.log.Info().Str("dn", dn).Str("uniqueid", uid).Msg("person entry created")

	// The native password can only be set once the entry exists.
	if clearPassword != "" {
		if err := r.cfg.Directory.ModifyPassword(dn, clearPassword); err != nil {
			return nil, fmt.Errorf("set native password: %w", err)
		}
	}

	r.sharedCreateHook(cn, uid)
	return warnings, nil
}

// sharedCreateHook is where a create in a regular tenant would be
// mirrored into the shared tenant. The path is deliberately dead: the
// shared tenant keeps its own uniqueid space, so a mirrored entry would
// collide with the shared tenant's genuine person records. Do not enable
// without a cross-space id mapping.
func (r *Reconciler) sharedCreateHook(cn, uid string) {}

// converge diffs the converted attributes against the found entry and
// issues at most one rename, one modify and one password change.
func (r *Reconciler) converge(entry *directory.Entry, cn, uid string, attrs map[string]schema.Value, isNew bool) ([]string, error) {
	var warnings []string
	if isNew {
		warnings = append(warnings,
			fmt.Sprintf("insert event but %s already exists, syncing the existing entry", entry.DN))
	}

	replace := make(map[string][]string)
	var remove []string
	var clearPassword string
	fanned := make(map[string]schema.Value)

	for _, name := range schema.AttributeNames() {
		v := attrs[name]
		current := schema.FromAttribute(entry.Values(name))

		if name == schema.AttrPassword {
			if v.IsNull() {
				if !current.IsNull() {
					remove = append(remove, name)
				}
				continue
			}
			clear := v.String()
			if !current.IsNull() {
				changed, err := r.passwordChanged(clear, current.String())
				if err != nil {
					return nil, permanent(fmt.Errorf("compare password: %w", err))
				}
				if !changed {
					continue
				}
			}
			enc, err := r.encryptFresh(clear)
			if err != nil {
				return nil, permanent(fmt.Errorf("encrypt password: %w", err))
			}
			replace[name] = []string{enc}
			clearPassword = clear
			fanned[name] = v
			continue
		}

		if v.Equal(current) {
			continue
		}
		if v.IsNull() {
			// uniqueid cannot land here, Identity rejects null ids.
			remove = append(remove, name)
			continue
		}
		if name == schema.AttrUniqueID && !current.IsNull() {
			warnings = append(warnings,
				fmt.Sprintf("entry %s changes uniqueid %s to %s", entry.DN, current.String(), uid))
		}
		replace[name] = v.Strings()
		if schema.FanoutAttrs[name] {
			fanned[name] = v
		}
	}

	dn := entry.DN
	if _, ok := replace[schema.AttrCN]; ok {
		oldCN := firstValue(entry.Values(schema.AttrCN))
		newRDN := directory.RDN(cn)
		if err := r.cfg.Directory.ModifyDN(dn, newRDN); err != nil {
			return nil, fmt.Errorf("rename person entry: %w", err)
		}
		// The rename moved cn, it must not appear in the modify too.
		delete(replace, schema.AttrCN)
		dn = newRDN + "," + parentDN(entry.DN)
		r.log.Info().Str("dn", entry.DN).Str("new_dn", dn).Msg("person entry renamed")
		r.recordRename(oldCN, cn)
	}

	if len(replace) > 0 || len(remove) > 0 {
		replace[schema.AttrETLTimestamp] = []string{ldaptime.Format(r.cfg.Now())}
		if err := r.cfg.Directory.Modify(dn, replace, remove); err != nil {
			return nil, fmt.Errorf("modify person entry: %w", err)
		}
		r.log.Debug().Str("dn", dn).Int("replaced", len(replace)).Int("removed", len(remove)).
			Msg("person entry modified")
	}

	if clearPassword != "" {
		if err := r.cfg.Directory.ModifyPassword(dn, clearPassword); err != nil {
			return nil, fmt.Errorf("set native password: %w", err)
		}
	}

	r.recordChange(cn, fanned)
	return warnings, nil
}

// passwordChanged reports whether clear differs from the stored
// ciphertext. The stored value's IV re-encrypts the clear text for the
// comparison, so an unchanged password reproduces the ciphertext
// byte for byte.
func (r *Reconciler) passwordChanged(clear, stored string) (bool, error) {
	iv, err := cipher.ExtractIV(stored)
	if err != nil {
		// Unreadable stored value, overwrite it.
		r.log.Debug().Err(err).Msg("stored password cipher unreadable")
		return true, nil
	}
	probe, err := r.cfg.Cipher.EncryptWithIV(clear, iv)
	if err != nil {
		return false, err
	}
	return probe != stored, nil
}

// encryptFresh encrypts for storage, with a random IV unless the
// configured override is set.
func (r *Reconciler) encryptFresh(clear string) (string, error) {
	if len(r.cfg.FixedIV) > 0 {
		return r.cfg.Cipher.EncryptWithIV(clear, r.cfg.FixedIV)
	}
	return r.cfg.Cipher.Encrypt(clear)
}

// recordChange queues watched attribute values for the shared tenant.
func (r *Reconciler) recordChange(cn string, changed map[string]schema.Value) {
	if r.cfg.Queue == nil || r.cfg.Tenant.Shared || len(changed) == 0 {
		return
	}
	r.cfg.Queue.RecordChange(cn, changed)
	metrics.FanoutQueuedTotal.WithLabelValues("change").Inc()
}

// recordRename queues a cn transition for the shared tenant.
func (r *Reconciler) recordRename(oldCN, newCN string) {
	if r.cfg.Queue == nil || r.cfg.Tenant.Shared || oldCN == "" || oldCN == newCN {
		return
	}
	r.cfg.Queue.RecordRename(oldCN, newCN)
	metrics.FanoutQueuedTotal.WithLabelValues("rename").Inc()
}

func parentDN(dn string) string {
	_, rest, ok := strings.Cut(dn, ",")
	if !ok {
		return ""
	}
	return rest
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

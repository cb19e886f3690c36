// Package reconciler converges directory entries with source rows. It is
// the heart of the sync: everything else fetches events, opens
// connections or schedules rounds so that this package can run one
// person through its state machine.
//
// # Event lifecycle
//
// ProcessEvent takes one event-log row and returns the writeback for it:
//
//	             ┌──────────┐ bad envelope ┌────────────┐
//	  event ───▶ │ validate │─────────────▶│ F, message │
//	             └────┬─────┘              └────────────┘
//	                  │
//	             ┌────▼─────┐ db error     ┌────────────┐
//	             │ load row │─────────────▶│ E, attempt+1│
//	             └────┬─────┘              └────────────┘
//	                  │
//	             ┌────▼─────┐
//	             │ classify │  event type × row count
//	             └────┬─────┘
//	                  │
//	        ┌─────────┼──────────┐
//	   ┌────▼───┐ ┌───▼────┐ ┌───▼────────┐
//	   │ upsert │ │ delete │ │ upsert each│
//	   └────┬───┘ └───┬────┘ └───┬────────┘
//	        │         │          │
//	        └─────────┼──────────┘
//	             ┌────▼────────────┐
//	             │ S, or W(message)│
//	             └─────────────────┘
//
// The classification trusts the source over the event: an event type that
// contradicts the current row count is warned about and the row count
// wins. A present row is synced, an absent row is deleted, no matter what
// the trigger believed when it fired.
//
// Failures split into two kinds. Permanent ones (broken envelope, row
// without identity, unconvertible column, cipher misconfiguration) write
// F immediately and leave the attempt counter alone, retrying cannot fix
// them. Everything else increments the attempt counter and writes E until
// the counter exceeds ten, then F.
//
// # Convergence
//
// Upsert locates the entry by its canonical DN first and by uniqueid
// second, so renames find the old entry. It then issues at most one
// rename, one modify and one native password change:
//
//   - a changed cn becomes a ModifyDN; the attribute is dropped from the
//     modify because the rename already moved it
//   - changed attributes become REPLACE, null source columns with a
//     directory value become DELETE
//   - etlTimestamp is stamped on every modify, and only then
//
// The stored password cipher is compared before writing: the stored IV
// re-encrypts the incoming clear text, and only a differing ciphertext
// triggers a fresh encryption with a random IV plus the native password
// change. An unchanged password therefore causes no write at all.
//
// # Cross-tenant fan-out
//
// Watched attribute changes and renames in regular tenants are recorded
// on a fanout.Queue during the tenant's round. DrainFanout later replays
// them against the shared tenant: renames resync the shared source rows
// for both cn values, changes replace watched attributes on existing
// shared entries. Nothing is ever created or deleted in the shared tenant
// from here, and per-item failures are logged and dropped; the next
// change to the same person queues fresh values.
//
// Deletes run the other cross-tenant rule: after removing a tenant entry,
// an orphaned shared twin with the same cn is removed too, but only when
// the cn matches exactly one remaining entry, that entry lies below the
// shared base and no account status attribute is set.
package reconciler

/*
Package state persists the sync's own progress in a local bbolt file.

Regular tenants carry their progress inside the event log itself, as the
status column of each row. Read-only tenants prohibit exactly that
write, so their progress is a per-tenant watermark, the highest
event_time consumed so far, and it has to live somewhere the sync may
write:

	┌─────────────────────────────────────────────┐
	│  <state file>  (bbolt, 0600)                │
	│                                             │
	│  watermarks bucket                          │
	│    "inst07" → "2024-05-14T09:30:00Z"        │
	│    "inst09" → "2024-05-02T18:04:11.5Z"      │
	└─────────────────────────────────────────────┘

Reads run in db.View, writes in db.Update; bbolt serializes writers and
fsyncs on commit, so a crash never leaves a half-written mark.

A missing file or missing key yields Epoch, and the watermark never
moves backwards. Both rules exist for the same reason: re-reading old
events must always be safe, so when in doubt the store errs towards
re-reading. The reconciler is idempotent, replayed events converge to
the same directory state.

Usage:

	st, err := state.Open("/var/lib/idnsync/state.db")
	if err != nil { ... }
	defer st.Close()

	mark, err := st.Watermark("inst07")
	// select events with event_time > mark ...
	err = st.AdvanceWatermark("inst07", maxSeen)
*/
package state

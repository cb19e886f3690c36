// Package fanout queues cross-tenant attribute propagation.
//
// # Why a queue
//
// One tenant subtree is shared between all institutions. When a person
// changes in a regular tenant, a small watched set of attributes (name,
// student email, password) must follow them into the shared subtree, but
// the shared tenant's own event log stays silent for those changes. The
// reconciler therefore records watched changes while processing regular
// tenants, and the scheduler drains the queue against the shared tenant
// once per round.
//
//	tenant round                       end of round
//	┌──────────────┐                  ┌─────────────────────┐
//	│ reconcile    │  RecordChange    │ Drain               │
//	│ ou=inst07... │ ───────────────▶ │  renames  → resync  │
//	│              │  RecordRename    │  changes  → REPLACE │
//	└──────────────┘                  │             ou=shared│
//	                                  └─────────────────────┘
//
// Changes merge per cn, so several events for the same person in one
// round produce a single shared-tenant write. Renames are kept separate
// because they are resolved through the shared tenant's source database,
// not by a direct directory write.
//
// The queue is handed around explicitly. During initial load no queue is
// wired up and nothing is recorded.
package fanout

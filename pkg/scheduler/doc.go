/*
Package scheduler runs the endless round-robin that drives the sync.

One process serves many tenants, but never concurrently. A round visits
every tenant in configuration order, gives each a bounded turn, then
applies whatever cross-tenant work the turns queued:

	┌──────────────────────────────────────────────────────────┐
	│                        Round                             │
	│                                                          │
	│  touch liveness file                                     │
	│                                                          │
	│  for each tenant:                                        │
	│     open database                                        │
	│     fetch up to max_records events                       │
	│     reconcile each event, collect writebacks             │
	│     write statuses back (or advance the watermark)       │
	│     close database                                       │
	│                                                          │
	│  drain fan-out queue into the shared tenant              │
	└──────────────────────────────────────────────────────────┘
	                          │
	          any tenant hit max_records?
	              no → sleep, yes → next round immediately

Database connections live for exactly one turn. With dozens of tenant
databases on the same server, holding a pool per tenant between rounds
would pin resources that sit idle most of the day.

# Pacing

The sleep between rounds is the normal pace. A tenant that returns a
full batch signals a backlog (typically a trigger burst after a
semester import), and the sleep is skipped until every tenant comes
back under the limit. One busy tenant therefore delays the others by at
most one turn, not by the sleep interval.

# Failure containment

Nothing a single tenant does ends the loop. A database that is down, a
query that fails or a writeback that cannot commit is logged and the
tenant is skipped for the round; its events keep their pending status
and are retried on the next visit. The loop itself only returns when
its context is cancelled.

The directory connection is the one shared resource. After a turn that
produced transient failures the scheduler probes the directory once and
rebinds if the connection is gone, so one broken socket does not turn
into a full round of failed events per tenant.

# Read-only tenants

Tenants marked read-only get their events by time instead of by status:
everything newer than a per-tenant watermark, which starts at the epoch
and advances to the newest event time seen. No statuses are written.
The watermark is kept in memory and, when a state store is configured,
persisted so a restart resumes instead of re-reading years of history.
Re-reading is always safe, just slow; the reconciler is idempotent.

# Fan-out

Tenant turns record cross-tenant changes into the fan-out queue; the
round ends by draining that queue into the shared tenant. The queue is
only emptied once the shared tenant's database connection is up, so a
down shared tenant keeps the work queued across rounds instead of
losing it.
*/
package scheduler

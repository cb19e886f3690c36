/*
Package types defines the core data structures shared across idnsync.

This package contains the domain model for the event-driven person sync:
event-log rows, their status lifecycle, and tenant descriptors. It has no
dependencies on other idnsync packages, allowing all packages to share these
types without circular imports.

# Event Lifecycle

Database triggers append one row per change to the person_eventlog table.
The consumer picks rows up by status and moves them through a small state
machine:

	        ┌─────┐   transient error    ┌─────┐
	 insert │  N  │ ───────────────────► │  E  │◄──┐
	 by     └──┬──┘                      └──┬──┘   │ retry
	 trigger   │ processed                  │      │ (attempt+1)
	           ▼                            ├──────┘
	   ┌───────┴───────┐                    │ attempt > 10
	   ▼               ▼                    ▼
	┌─────┐         ┌─────┐              ┌─────┐
	│  S  │         │  W  │              │  F  │
	└─────┘         └─────┘              └─────┘
	 success         warning              fatal

  - N: written by the trigger, not yet processed
  - E: transient failure (directory unavailable); re-selected next round
  - W: processed, but the event disagreed with the source state
  - S: processed cleanly
  - F: permanent failure; requires manual intervention

Read-only tenants never receive status updates; their events are selected
by an event_time watermark instead.

# Wire Types

The event table is written by pre-existing database triggers, so column
types are fixed. Two quirks are carried through deliberately:

  - event_type and attempt are double precision columns holding integer
    values. EventType is float64-based and Attempt stays float64 so that
    writebacks reproduce the exact wire type.
  - table_key is the string "uniqueid=<n>", sometimes with a trailing
    ".0". Event.UniqueID normalizes both spellings.

# Tenants

A Tenant couples one source database with one directory subtree:

	Tenant{
		Database: "ph08",
		Label:    "ph08",
		BaseDN:   "ou=user,ou=ph08,o=example",
		DSN:      "postgres://...",
	}

Two flags alter processing: ReadOnly tenants are consumed without event
writebacks, and the single Shared tenant is the target of cross-tenant
fan-out writes.
*/
package types

// Package source reads person data and change events from a tenant
// database and writes processing results back.
//
// # Architecture
//
// Every tenant database carries the same two objects: a view with the
// person rows and an event log filled by triggers whenever a person row
// changes. The sync never touches the underlying tables, only the view
// and the log.
//
//	┌─────────────────────────────────────────────────┐
//	│                tenant database                  │
//	│                                                 │
//	│   persons_dirsync_v          person_eventlog    │
//	│   (read only)                (read + writeback) │
//	└─────────┬──────────────────────────┬────────────┘
//	          │                          │
//	          │  PersonByUniqueID        │  PendingEvents
//	          │  PersonsByUsername       │  EventsSince
//	          │  PersonRange             │  AllEvents
//	          │  UniqueIDBounds          │  WriteBack
//	          ▼                          ▼
//	     ┌─────────────────────────────────────┐
//	     │            source.Gateway           │
//	     └─────────────────────────────────────┘
//
// The Gateway interface is what the reconciler, initial load and export
// are written against. DB is the pgx-backed production implementation,
// opened per tenant for one round and closed afterwards so idle rounds
// hold no connections.
//
// # Wire types
//
// The trigger schema predates this program and stores numbers as double
// precision and status flags as space-padded char columns. The gateway
// hides both: record_id is cast to bigint in the select list and char
// padding is trimmed during scan normalization, so the rest of the code
// only ever sees clean values.
//
// Person rows are returned as Row maps rather than structs because the
// view's column set is owned by the schema package and the consumer
// treats rows as attribute dictionaries anyway.
//
// # Writeback
//
// Event updates for one round are committed in a single transaction.
// Error messages are truncated to the event log's column width before
// the update, never after a failed one.
package source

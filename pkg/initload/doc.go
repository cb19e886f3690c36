// Package initload rebuilds a tenant's directory subtree from the full
// persons view. It runs instead of the event loop, never alongside it,
// and is the only part of the sync that deletes entries without an event
// telling it to.
//
// A run has four phases:
//
//	tree      ensure every level of the base DN exists, root to leaf;
//	          user subtrees get the ou=ETD,ou=idnSync sibling chain too
//	scan      page through the subtree once and map uniqueId → DN
//	sync      stream all source rows in uniqueid ranges of 1000 and
//	          upsert each; every visited uniqueid leaves the map
//	prune     delete the DNs still mapped, nothing visited them
//
// The phase order is the safety argument: the prune only runs after the
// source was streamed completely. Any transient failure aborts the run
// first, because deleting from a half-built picture would remove valid
// people. Rows the reconciler rejects permanently are logged and
// skipped, and their entry survives the prune for the same reason.
//
// Fan-out is off during the initial load; the loader's reconciler is
// built without a queue. Cross-tenant consistency comes from running the
// load per tenant.
package initload

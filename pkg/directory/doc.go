/*
Package directory is the LDAP gateway for idnsync.

It wraps a single LDAP connection behind the Gateway interface: searches,
entry reads, adds, modifies, renames, deletes and the password-modify
extended operation. The gateway is deliberately attribute-agnostic; it moves
opaque string sets in and out of the directory, and all schema knowledge
(field map, diff rules, identity attributes) stays with the reconciler.

# Architecture

	┌────────────────── DIRECTORY GATEWAY ──────────────────┐
	│                                                       │
	│   reconciler / initload / scheduler                   │
	│                  │                                    │
	│                  ▼                                    │
	│   ┌─────────────────────────────┐                     │
	│   │        Gateway              │  interface          │
	│   │  Search / GetEntry / Add    │                     │
	│   │  Modify / ModifyDN / Delete │                     │
	│   │  ModifyPassword             │                     │
	│   └──────────────┬──────────────┘                     │
	│                  │                                    │
	│   ┌──────────────▼──────────────┐                     │
	│   │        Client               │  go-ldap/v3         │
	│   │  - single bound connection  │                     │
	│   │  - constant-pause rebind    │                     │
	│   │  - paged subtree scans      │                     │
	│   └─────────────────────────────┘                     │
	└───────────────────────────────────────────────────────┘

# Connection handling

Connect binds with a constant pause between attempts (5 seconds by
default) and no attempt limit; a directory that is down at startup or
during a maintenance window is routine, and the process simply waits.
The same loop backs Rebind, which the scheduler calls when an operation
fails with a connection-level error (IsUnavailable).

Operation errors are returned to the caller; the reconciler maps them to
the transient event status so the event is retried on a later round. Only
bind-level waiting lives here.

# Errors

Two sentinel errors support the reconciler's control flow:

  - ErrNotFound: a DN read or single-entry lookup matched nothing
  - ErrAmbiguous: a lookup that must identify one person matched several
    entries (returned by callers composing searches, not by Client itself)

Searching below a nonexistent base returns an empty result instead of an
error, because tenant subtrees exist only after the initial load has run.

# Usage

	client, err := directory.Connect(ctx, directory.Config{
		URI:      "ldaps://ldap.example.org",
		BindDN:   "cn=sync,o=example",
		Password: secret,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	entries, err := client.Search(base, directory.ScopeSubtree,
		directory.Filter("uniqueId", "4711"), []string{"cn", "uniqueId"})
*/
package directory

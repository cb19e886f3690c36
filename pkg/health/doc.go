/*
Package health provides liveness marking and health checks for the
sync daemon.

# Architecture

The daemon's primary health signal is a liveness file: the scheduler
touches it at the start of every round, and an orchestrator (or the
healthz endpoint) judges the process by the file's age. A process that
is alive but wedged inside a round stops touching the file and is
detected without any in-process cooperation.

	scheduler round start ──▶ Marker.Touch()
	                              │
	                              ▼
	                      /run/idnsync/alive  (mtime)
	                              ▲
	    FileChecker ──────────────┘
	         │
	         ▼
	  GET /healthz  ◀── orchestrator probe

Checkers implement a common interface:

	type Checker interface {
	        Check(ctx context.Context) Result
	        Type() CheckType
	        Name() string
	}

Two checkers exist:

  - FileChecker: liveness file freshness against a maximum age,
    normally 2x the configured sleep time.
  - TCPChecker: upstream reachability (directory server, databases).

# Ops Server

Server bundles the checkers with the Prometheus handler:

	GET /healthz   aggregated checker results, 503 when any fails
	GET /livez     process-alive only
	GET /metrics   Prometheus exposition

The server is optional; with no ops address configured the daemon runs
headless and only the liveness file remains.
*/
package health

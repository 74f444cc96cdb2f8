// Package jobstate persists the singleton render job status record.
//
// Exactly one row exists. The runner that holds the job lock is the only
// writer; any process may read. Each Write is a single UPDATE so readers
// always observe a consistent snapshot.
//
// Tracker wraps a Backend with best-effort semantics: write failures are
// logged and swallowed, and reads fall back to an in-process copy of the last
// known state (flagged Degraded) when the backend is unreachable.
package jobstate

// Package joblock provides the process-spanning, non-blocking mutex that caps
// the system at one active render job.
//
// Two implementations share the Locker contract. FileLocker uses an advisory
// flock on a file in the state directory and suits workers on one host.
// PgLocker takes a session-level Postgres advisory lock on a connection that
// is hijacked out of the pool for the lease lifetime, so workers on different
// hosts exclude each other. In both cases the operating system or the
// database server drops the lock when the holding process dies.
package joblock

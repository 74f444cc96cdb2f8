// Package database opens the storage backends shared by the job status store
// and the entity store.
//
// SQLite databases are opened in WAL mode with a busy timeout and wrapped in
// a small retry helper for SQLITE_BUSY. Postgres pools follow the pgxpool
// configuration used across the daemon: bounded size, an application name,
// and a dial timeout on the initial connect.
package database

// Package app builds the avatarforge component graph from configuration.
//
// The database driver decides where the job lock, job status and entity
// markers live: sqlite pairs a flock lock file with a local database, while
// postgres uses a session advisory lock and the shared application database.
// The CLI and the HTTP server both start from Build.
package app

// Package main implements the avatarforge command line.
//
// The CLI works directly against the configured database, so render, status
// and cancel cooperate with a running `avatarforge serve` through the shared
// job lock and status record rather than through the daemon's HTTP API.
package main

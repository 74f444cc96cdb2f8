// Package workflow owns the render slot.
//
// Manager admits at most one render job at a time across every process that
// shares the job lock, runs it on a background goroutine through the render
// pipeline, and always finishes with the same epilogue: terminal status,
// reset to idle, lock release. Status reads heal a record left active by a
// runner that died before its epilogue, and cancel requests are written to
// the durable status record so the runner sees them from any process.
package workflow

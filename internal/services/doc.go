// Package services defines shared utilities consumed by the render pipeline,
// the job runner and the admission surfaces.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified into terminal job states (error vs cancelled) and rendered
//     into status messages.
package services

// Package staging owns the per-run workspaces and artifact promotion.
//
// Durable artifacts live at {results}/{scope}/{id}/{slot}.mp4. Each run works
// in {results}/{scope}/{id}/_tmp/{run}, on the same filesystem, so promotion
// is a rename. Workspaces are removed when the run ends; CleanStale sweeps
// the ones left behind by a crashed process.
package staging

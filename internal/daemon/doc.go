// Package daemon runs the long-lived avatarforge process.
//
// It wires the component graph from internal/app, sweeps crash leftovers
// from the staging area, logs a preflight summary and serves the HTTP
// admission surface: render admission, status, cancel, health and Prometheus
// metrics. Several daemons may share one postgres database; the job lock keeps
// renders exclusive across all of them.
//
// Keep HTTP and lifecycle concerns here. Job semantics belong to
// internal/workflow.
package daemon

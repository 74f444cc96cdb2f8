// Package preflight provides readiness checks for the filesystem paths,
// external tools, model files and database avatarforge depends on.
//
// These checks run in two contexts:
//   - "avatarforge serve" runs RunAll at startup and logs failures, so a
//     misconfigured host is visible before the first render is admitted.
//   - "avatarforge doctor" prints every Result as a table and exits non-zero
//     when a required check fails.
//
// Optional dependencies (the enhancer weights) never fail the run.
package preflight

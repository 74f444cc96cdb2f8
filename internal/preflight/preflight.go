package preflight

import (
	"context"

	"avatarforge/internal/config"
	"avatarforge/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Results directory", cfg.Paths.ResultsDir),
		CheckDirectoryReadable("Avatar directory", cfg.Paths.AvatarDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
	if cfg.Video.Workdir != "" {
		results = append(results, CheckDirectoryReadable("SadTalker workdir", cfg.Video.Workdir))
	}
	for _, status := range CheckSystemDeps(cfg) {
		results = append(results, fromStatus(status))
	}
	results = append(results, CheckDatabase(ctx, cfg), CheckJobLock(ctx, cfg))
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}

func fromStatus(status deps.Status) Result {
	detail := status.Detail
	if status.Available {
		detail = status.Command
	}
	return Result{
		Name:     status.Name,
		Passed:   status.Available,
		Optional: status.Optional,
		Detail:   detail,
	}
}

package preflight

import (
	"context"

	"afterlive/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every applicable check for cfg.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Recorder directory", cfg.Paths.RecorderDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
	if cfg.Processing.MinFreeGiB > 0 {
		results = append(results, CheckFreeSpace("Work directory space", cfg.Paths.WorkDir, cfg.Processing.MinFreeGiB))
	}
	if cfg.Upload.Enabled {
		results = append(results,
			CheckReadableFile("Upload credentials", cfg.Upload.CredentialFile, false),
			CheckReadableFile("Category catalog", cfg.Upload.CatalogFile, true),
		)
	}
	if err := ctx.Err(); err != nil {
		results = append(results, Result{Name: "Preflight", Detail: err.Error()})
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

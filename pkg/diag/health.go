package diag

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Health is the body of GET /api/health.
type Health struct {
	Status    string `json:"status"`
	PM2       string `json:"pm2"`
	GitRecent string `json:"git_recent"`
}

// HealthChecker reports process manager state and recent project commits.
type HealthChecker struct {
	runner      *Runner
	processArgv []string
	projectRepo string
}

func NewHealthChecker(runner *Runner, processArgv []string, projectRepo string) *HealthChecker {
	return &HealthChecker{runner: runner, processArgv: processArgv, projectRepo: projectRepo}
}

// Check runs both commands concurrently. Status is always "ok"; command
// failures only show up in the individual fields.
func (h *HealthChecker) Check(ctx context.Context) Health {
	health := Health{Status: "ok"}

	var g errgroup.Group
	g.Go(func() error {
		health.PM2 = h.runner.Run(ctx, h.processArgv...)
		return nil
	})
	g.Go(func() error {
		health.GitRecent = h.runner.Run(ctx, "git", "-C", h.projectRepo, "log", "--oneline", "-5")
		return nil
	})
	_ = g.Wait()

	return health
}

package runner

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/thesipincafe/site-e2e/e2e/framework/artifacts"
	"github.com/thesipincafe/site-e2e/e2e/framework/config"
	"github.com/thesipincafe/site-e2e/e2e/framework/results"
	"github.com/thesipincafe/site-e2e/e2e/framework/steps"
	"github.com/thesipincafe/site-e2e/e2e/framework/viewport"
)

func (r *Runner) shouldCollect(status results.Status) bool {
	switch strings.ToLower(strings.TrimSpace(r.cfg.ArtifactCollection)) {
	case config.CollectAlways:
		return true
	case config.CollectNever:
		return false
	default:
		return status == results.StatusFailed || status == results.StatusErrored
	}
}

// captureViewport takes the end-of-sweep screenshot for one profile when the policy asks for it.
func (r *Runner) captureViewport(exec *steps.Context, result *results.ScenarioResult, p viewport.Profile, failed bool) {
	status := results.StatusPassed
	name := "viewport"
	if failed {
		status = results.StatusFailed
		name = "failure"
	}
	if !r.shouldCollect(status) {
		return
	}
	r.capture(exec, result, name)
}

func (r *Runner) capture(exec *steps.Context, result *results.ScenarioResult, name string) {
	path, err := steps.CaptureScreenshot(exec, name, true)
	if err != nil {
		result.Metadata["screenshot_error"] = err.Error()
		exec.Logger.Debug("screenshot failed", zap.String("viewport", exec.Viewport.Name), zap.Error(err))
		return
	}
	key := "screenshot"
	if exec.Viewport.Name != "" {
		key += "_" + exec.Viewport.Name
	}
	if name == "errored" {
		key = "screenshot_errored"
	}
	result.Artifacts[key] = path
}

// writeConsoleLog stores the drained console entries next to the scenario's screenshots.
func (r *Runner) writeConsoleLog(exec *steps.Context, result *results.ScenarioResult) {
	if len(result.Console) == 0 {
		return
	}
	var sb strings.Builder
	for _, entry := range result.Console {
		fmt.Fprintf(&sb, "%s [%s] %s\n", entry.Time.UTC().Format("2006-01-02T15:04:05.000Z07:00"), entry.Type, entry.Text)
	}
	path, err := r.artifacts.WriteText(artifacts.ScenarioPath(result.Name, "console.log"), sb.String())
	if err != nil {
		exec.Logger.Warn("write console log failed", zap.Error(err))
		return
	}
	result.Artifacts["console"] = path
}

func joinNames(names []string) string {
	return strings.Join(names, ",")
}

func parseFloat(value string) (float64, bool) {
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

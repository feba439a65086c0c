package steps

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/thesipincafe/site-e2e/e2e/framework/browser"
	"github.com/thesipincafe/site-e2e/e2e/framework/fault"
	"github.com/thesipincafe/site-e2e/e2e/framework/locator"
	"github.com/thesipincafe/site-e2e/e2e/framework/navigate"
	"github.com/thesipincafe/site-e2e/e2e/framework/spec"
)

// RegisterNavigationHandlers registers page load and readiness steps.
func RegisterNavigationHandlers(reg *Registry) {
	reg.Register("navigate", handleNavigate)
	reg.Register("wait.ready", handleWaitReady)
	reg.Register("wait.visible", handleWaitVisible)
	reg.Register("wait.hidden", handleWaitHidden)
}

func handleNavigate(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	if exec.Session == nil {
		return nil, fmt.Errorf("navigate requires a browser session")
	}
	target := expandVars(getString(step.With, "url", getString(step.With, "path", "")), exec.Vars)
	if target == "" {
		return nil, fmt.Errorf("navigate requires url or path")
	}
	resolved, err := exec.ResolveURL(target)
	if err != nil {
		return nil, err
	}
	commit := getDuration(step.With, "commitTimeout", exec.commitTimeout())
	if err := exec.Waiter.NavigateTo(ctx, exec.Session, resolved, commit); err != nil {
		return nil, err
	}
	metadata, err := waitReady(ctx, exec, step)
	if err != nil {
		return nil, err
	}
	metadata["url"] = resolved
	return metadata, nil
}

func handleWaitReady(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	return waitReady(ctx, exec, step)
}

func waitReady(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	page, err := exec.Page()
	if err != nil {
		return nil, err
	}
	readiness, err := readinessFor(exec, step)
	if err != nil {
		return nil, err
	}
	report, err := exec.Waiter.WaitReady(ctx, page, readiness)
	if err != nil {
		return nil, err
	}
	metadata := map[string]string{
		"signal":     string(report.Signal),
		"page_ready": strconv.FormatBool(report.PageReady),
		"ready_ms":   strconv.FormatInt(report.Duration.Milliseconds(), 10),
	}
	if len(report.ReadyFrames) > 0 {
		metadata["ready_frames"] = strings.Join(report.ReadyFrames, ",")
	}
	if len(report.SkippedFrames) > 0 {
		metadata["skipped_frames"] = strings.Join(report.SkippedFrames, ",")
	}
	if report.Timeout != nil {
		metadata["readiness_timeout"] = "true"
		exec.Logger.Info("continuing after readiness timeout",
			zap.String("scenario", exec.ScenarioName),
			zap.String("step", step.Name),
			zap.String("target", report.Timeout.Target),
		)
	}
	return metadata, nil
}

func readinessFor(exec *Context, step spec.StepSpec) (navigate.Readiness, error) {
	var params map[string]string
	if exec.Scenario != nil {
		params = exec.Scenario.Params
	}
	signal, err := navigate.ParseSignal(getStringFallback(step.With, params, "readiness", exec.readinessSignal()))
	if err != nil {
		return navigate.Readiness{}, err
	}
	readiness := navigate.Readiness{
		Signal:  signal,
		Timeout: getDuration(step.With, "readyTimeout", exec.readyTimeout()),
	}
	if signal == navigate.SignalSelectorVisible {
		readiness.Selector, err = getLocator(step.With, "selector", exec.Vars)
		if err != nil {
			return navigate.Readiness{}, fmt.Errorf("selector-visible readiness: %w", err)
		}
	}
	return readiness, nil
}

func handleWaitVisible(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	return waitForState(ctx, exec, step, browser.ElementVisible)
}

func handleWaitHidden(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	return waitForState(ctx, exec, step, browser.ElementHidden)
}

func waitForState(ctx context.Context, exec *Context, step spec.StepSpec, state browser.ElementState) (map[string]string, error) {
	page, err := exec.Page()
	if err != nil {
		return nil, err
	}
	target, err := getLocator(step.With, "locator", exec.Vars)
	if err != nil {
		return nil, err
	}
	timeout := getDuration(step.With, "timeout", exec.actionTimeout())
	el := locator.Resolve(page, target)
	if target.Nth == nil {
		el = el.First()
	}
	if err := el.WaitFor(state, timeout); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if browser.IsClosed(err) {
			return nil, fault.Infrastructure("wait for "+target.String(), err)
		}
		return nil, &fault.LocatorTimeoutError{Locator: target.String(), Action: "wait." + string(state), Timeout: timeout, LastState: "not " + string(state), Err: err}
	}
	return map[string]string{"locator": target.String(), "state": string(state)}, nil
}

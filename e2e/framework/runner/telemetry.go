package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/thesipincafe/site-e2e/e2e/framework/results"
	"github.com/thesipincafe/site-e2e/e2e/framework/spec"
	"github.com/thesipincafe/site-e2e/e2e/framework/steps"
)

func (r *Runner) tracing() bool {
	return r.telemetry != nil && r.telemetry.Enabled()
}

func (r *Runner) startRunSpan(ctx context.Context, scenarios []spec.Scenario) (context.Context, trace.Span) {
	if !r.tracing() {
		return ctx, nil
	}
	attrs := map[string]string{
		"e2e.run_id":         r.cfg.RunID,
		"e2e.parallelism":    fmt.Sprintf("%d", r.cfg.Parallelism),
		"e2e.scenario_count": fmt.Sprintf("%d", len(scenarios)),
		"site.base_url":      r.cfg.BaseURL,
		"browser.engine":     r.cfg.Browser,
	}
	return r.telemetry.StartSpan(ctx, "e2e.run", attrs)
}

func (r *Runner) finishRunSpan(span trace.Span, run *results.RunResult, runErr error) {
	if span == nil || !r.tracing() {
		return
	}
	summary := Summarize(run)
	attrs := map[string]string{
		"e2e.run_id":      run.RunID,
		"e2e.duration_ms": fmt.Sprintf("%d", run.Duration.Milliseconds()),
		"e2e.total":       fmt.Sprintf("%d", summary.Total),
		"e2e.passed":      fmt.Sprintf("%d", summary.Passed),
		"e2e.failed":      fmt.Sprintf("%d", summary.Failed),
		"e2e.errored":     fmt.Sprintf("%d", summary.Errored),
		"e2e.skipped":     fmt.Sprintf("%d", summary.Skipped),
	}
	status := summary.Verdict()
	err := runErr
	if err == nil && status != results.StatusPassed && status != results.StatusSkipped {
		err = errors.New("run " + string(status))
	}
	r.telemetry.MarkSpan(span, string(status), err, attrs)
}

func (r *Runner) startScenarioSpan(ctx context.Context, scenario spec.Scenario) (context.Context, trace.Span) {
	if !r.tracing() {
		return ctx, nil
	}
	spanName := "e2e.scenario"
	if scenario.Metadata.Name != "" {
		spanName = "e2e.scenario:" + scenario.Metadata.Name
	}
	return r.telemetry.StartSpan(ctx, spanName, r.baseScenarioAttributes(scenario))
}

func (r *Runner) finishScenarioSpan(span trace.Span, result *results.ScenarioResult) {
	if span == nil || !r.tracing() {
		return
	}
	attrs := map[string]string{
		"e2e.scenario":    result.Name,
		"e2e.status":      string(result.Status),
		"e2e.duration_ms": fmt.Sprintf("%d", result.Duration.Milliseconds()),
		"e2e.viewports":   joinNames(result.Viewports),
		"e2e.failures":    fmt.Sprintf("%d", len(result.Failures())),
		"e2e.session_id":  result.SessionID,
		"e2e.timeout":     result.Metadata["timeout"],
	}
	r.telemetry.MarkSpan(span, string(result.Status), scenarioFailureError(*result), mergeAttrs(attrs))
}

func (r *Runner) startStepSpan(ctx context.Context, exec *steps.Context, step spec.StepSpec) (context.Context, trace.Span) {
	if !r.tracing() {
		return ctx, nil
	}
	spanName := "e2e.step"
	if step.Action != "" {
		spanName = "e2e.step:" + step.Action
	} else if step.Name != "" {
		spanName = "e2e.step:" + step.Name
	}
	return r.telemetry.StartSpan(ctx, spanName, r.baseStepAttributes(exec, step))
}

func (r *Runner) finishStepSpan(span trace.Span, exec *steps.Context, step spec.StepSpec, result results.StepResult, stepErr error) {
	if span == nil || !r.tracing() {
		return
	}
	attrs := mergeAttrs(r.baseStepAttributes(exec, step), map[string]string{
		"e2e.status":      string(result.Status),
		"e2e.duration_ms": fmt.Sprintf("%d", result.Duration.Milliseconds()),
		"e2e.error_kind":  result.ErrorKind,
	})
	r.telemetry.MarkSpan(span, string(result.Status), stepErr, attrs)
}

func (r *Runner) recordScenarioTelemetry(scenario spec.Scenario, result results.ScenarioResult) {
	if !r.tracing() {
		return
	}
	attrs := mergeAttrs(map[string]string{
		"scenario":  result.Name,
		"browser":   r.cfg.Browser,
		"component": scenario.Metadata.Component,
	})
	r.telemetry.RecordScenario(string(result.Status), result.Duration, attrs)
}

func (r *Runner) recordStepTelemetry(exec *steps.Context, step spec.StepSpec, result results.StepResult) {
	if !r.tracing() {
		return
	}
	attrs := mergeAttrs(map[string]string{
		"scenario": exec.ScenarioName,
		"action":   step.Action,
		"viewport": result.Viewport,
	})
	r.telemetry.RecordStep(string(result.Status), result.Duration, attrs)
}

func (r *Runner) baseScenarioAttributes(scenario spec.Scenario) map[string]string {
	attrs := map[string]string{
		"e2e.run_id":     r.cfg.RunID,
		"e2e.scenario":   scenario.Metadata.Name,
		"e2e.owner":      scenario.Metadata.Owner,
		"e2e.component":  scenario.Metadata.Component,
		"e2e.tags":       strings.Join(scenario.Metadata.Tags, ","),
		"e2e.viewports":  strings.Join(scenario.Viewports, ","),
		"browser.engine": r.cfg.Browser,
		"site.base_url":  r.cfg.BaseURL,
	}
	if scenario.BaseURL != "" {
		attrs["site.base_url"] = scenario.BaseURL
	}
	return mergeAttrs(attrs)
}

func (r *Runner) baseStepAttributes(exec *steps.Context, step spec.StepSpec) map[string]string {
	attrs := map[string]string{
		"e2e.run_id": r.cfg.RunID,
		"e2e.step":   step.Name,
		"e2e.action": step.Action,
	}
	if exec != nil {
		attrs["e2e.scenario"] = exec.ScenarioName
		attrs["e2e.viewport"] = exec.Viewport.Name
	}
	return mergeAttrs(attrs)
}

// scenarioFailureError picks the most telling error for a scenario span.
func scenarioFailureError(result results.ScenarioResult) error {
	switch result.Status {
	case results.StatusPassed, results.StatusSkipped:
		return nil
	}
	if msg := strings.TrimSpace(result.Metadata["timeout_error"]); msg != "" {
		return errors.New(msg)
	}
	if result.Error != "" {
		return errors.New(result.Error)
	}
	for _, a := range result.Assertions {
		if !a.Passed {
			return fmt.Errorf("%s: expected %s, got %s", a.Description, a.Expected, a.Actual)
		}
	}
	return errors.New("scenario " + string(result.Status))
}

func mergeAttrs(values ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, attrs := range values {
		for key, value := range attrs {
			if value == "" {
				continue
			}
			out[key] = value
		}
	}
	return out
}

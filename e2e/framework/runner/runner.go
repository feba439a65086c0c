// Package runner sequences scenarios: it owns the browser session of each scenario,
// replays steps across viewport profiles and folds recorded results into a verdict.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thesipincafe/site-e2e/e2e/framework/artifacts"
	"github.com/thesipincafe/site-e2e/e2e/framework/assertions"
	"github.com/thesipincafe/site-e2e/e2e/framework/browser"
	"github.com/thesipincafe/site-e2e/e2e/framework/config"
	"github.com/thesipincafe/site-e2e/e2e/framework/fault"
	"github.com/thesipincafe/site-e2e/e2e/framework/fixtures"
	"github.com/thesipincafe/site-e2e/e2e/framework/metrics"
	"github.com/thesipincafe/site-e2e/e2e/framework/results"
	"github.com/thesipincafe/site-e2e/e2e/framework/session"
	"github.com/thesipincafe/site-e2e/e2e/framework/spec"
	"github.com/thesipincafe/site-e2e/e2e/framework/steps"
	"github.com/thesipincafe/site-e2e/e2e/framework/telemetry"
	"github.com/thesipincafe/site-e2e/e2e/framework/viewport"
)

// Runner executes scenarios.
type Runner struct {
	cfg       *config.Config
	logger    *zap.Logger
	registry  *steps.Registry
	artifacts *artifacts.Writer
	sessions  *session.Manager
	fixtures  *fixtures.Registry
	metrics   *metrics.Collector
	telemetry *telemetry.Telemetry
}

// NewRunner constructs a Runner. start launches one automation driver per scenario.
func NewRunner(cfg *config.Config, logger *zap.Logger, registry *steps.Registry, fixtureRegistry *fixtures.Registry, start browser.Starter, telemetryClient *telemetry.Telemetry) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if telemetryClient == nil {
		telemetryClient = telemetry.Disabled()
	}
	writer, err := artifacts.NewWriter(cfg.ArtifactDir)
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		artifacts: writer,
		sessions:  session.NewManager(start, logger),
		fixtures:  fixtureRegistry,
		metrics:   metrics.NewCollector(),
		telemetry: telemetryClient,
	}, nil
}

// Sessions exposes the session manager, mainly so callers can check for leaks.
func (r *Runner) Sessions() *session.Manager { return r.sessions }

// Metrics returns the prometheus collector fed by this runner.
func (r *Runner) Metrics() *metrics.Collector { return r.metrics }

// RunAll executes all scenarios, at most cfg.Parallelism at a time, and returns
// their results in input order.
func (r *Runner) RunAll(ctx context.Context, scenarios []spec.Scenario) (*results.RunResult, error) {
	runCtx, runSpan := r.startRunSpan(ctx, scenarios)
	run := &results.RunResult{RunID: r.cfg.RunID, StartTime: time.Now().UTC()}
	out := make([]results.ScenarioResult, len(scenarios))

	limit := r.cfg.Parallelism
	if limit <= 0 {
		limit = 1
	}
	var group errgroup.Group
	group.SetLimit(limit)
	for i := range scenarios {
		scenario := scenarios[i]
		if !scenario.MatchesTags(r.cfg.IncludeTags, r.cfg.ExcludeTags) {
			out[i] = r.skipResult(scenario, "tag filtered")
			r.observeScenario(scenario, out[i])
			continue
		}
		group.Go(func() error {
			out[i] = r.RunScenario(runCtx, scenario)
			return nil
		})
	}
	_ = group.Wait()

	run.Scenarios = out
	run.EndTime = time.Now().UTC()
	run.Duration = run.EndTime.Sub(run.StartTime)
	err := ctx.Err()
	r.finishRunSpan(runSpan, run, err)
	return run, err
}

// phaseOrder keeps the phase trace monotonic when steps repeat across viewports.
var phaseOrder = map[results.Phase]int{
	results.PhaseInit:            0,
	results.PhaseSessionAcquired: 1,
	results.PhaseNavigated:       2,
	results.PhaseStep:            3,
	results.PhaseAsserted:        4,
	results.PhaseTeardown:        5,
	results.PhasePassed:          6,
	results.PhaseFailed:          6,
	results.PhaseErrored:         6,
}

func advance(result *results.ScenarioResult, phase results.Phase) {
	if n := len(result.Phases); n > 0 && phaseOrder[result.Phases[n-1]] >= phaseOrder[phase] {
		return
	}
	result.EnterPhase(phase)
}

// RunScenario runs one scenario on its own session. The session is released exactly
// once whatever happens; only infrastructure faults and the scenario deadline make
// the verdict Errored.
func (r *Runner) RunScenario(ctx context.Context, scenario spec.Scenario) results.ScenarioResult {
	result := results.ScenarioResult{
		Name:        scenario.Metadata.Name,
		Description: scenario.Metadata.Description,
		Tags:        scenario.Metadata.Tags,
		StartTime:   time.Now().UTC(),
		Artifacts:   map[string]string{},
		Metadata: map[string]string{
			"browser":  r.cfg.Browser,
			"headless": fmt.Sprintf("%t", r.cfg.Headless),
		},
	}
	advance(&result, results.PhaseInit)
	logger := r.logger.With(zap.String("scenario", result.Name))

	timeout, err := scenario.TimeoutOr(r.cfg.DefaultTimeout)
	if err != nil {
		logger.Warn("invalid scenario timeout, using default", zap.String("timeout", scenario.Timeout), zap.Error(err))
		timeout = r.cfg.DefaultTimeout
	}
	scenarioCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	scenarioCtx, span := r.startScenarioSpan(scenarioCtx, scenario)

	exec := steps.NewContext(r.cfg.RunID, &scenario, logger, r.artifacts, r.fixtures, r.cfg)
	exec.Collector = assertions.NewCollector(assertions.Options{
		FailFast:  scenario.FailFastOr(r.cfg.FailFast),
		Timeout:   r.cfg.ActionTimeout,
		AxeScript: r.cfg.AxeScriptPath,
	}, logger)
	result.BaseURL = exec.BaseURL

	fatal := r.execute(scenarioCtx, exec, &scenario, &result)

	result.Assertions = exec.Collector.Results()
	result.Status = results.Verdict(result.Assertions, fatal != nil)
	if fatal != nil {
		result.Error = fatal.Error()
		result.Metadata["error_kind"] = string(fault.KindOf(fatal))
		if errors.Is(scenarioCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			result.Metadata["timeout"] = "true"
			result.Metadata["timeout_error"] = scenarioCtx.Err().Error()
		}
	}
	advance(&result, results.TerminalPhase(result.Status))
	result.EndTime = time.Now().UTC()
	result.Duration = result.EndTime.Sub(result.StartTime)

	r.finishScenarioSpan(span, &result)
	r.observeScenario(scenario, result)
	logger.Info("scenario finished",
		zap.String("status", string(result.Status)),
		zap.Duration("duration", result.Duration),
		zap.Int("assertions", len(result.Assertions)),
		zap.Int("failures", len(result.Failures())),
	)
	return result
}

// execute acquires the session and runs every viewport sweep. The deferred teardown
// is the only place the session is released.
func (r *Runner) execute(ctx context.Context, exec *steps.Context, scenario *spec.Scenario, result *results.ScenarioResult) (fatal error) {
	defer func() {
		r.teardown(exec, result, fatal)
	}()

	names := scenario.Viewports
	if len(names) == 0 {
		names = r.cfg.Viewports
	}
	profiles, err := exec.Profiles.Select(names, viewport.Desktop)
	if err != nil {
		return fault.Infrastructure("select viewports", err)
	}

	sess, err := r.sessions.Acquire(ctx, session.Config{
		Launch: browser.LaunchOptions{
			Engine:   r.cfg.Browser,
			Headless: r.cfg.Headless,
			Args:     r.cfg.LaunchArgs,
			SlowMo:   r.cfg.SlowMo,
		},
		Viewport:       profiles[0].Size(),
		DefaultTimeout: r.cfg.ContextTimeout,
		ConsoleLimit:   r.cfg.ConsoleLimit,
	})
	if err != nil {
		return err
	}
	exec.Session = sess
	result.SessionID = sess.ID
	advance(result, results.PhaseSessionAcquired)

	total := 0
	for _, p := range profiles {
		for _, step := range scenario.Steps {
			if step.AppliesTo(p.Name) {
				total++
			}
		}
		total += len(scenario.Assertions)
	}
	var timeout time.Duration
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	progress := steps.NewProgress(total)
	stop := steps.StartProgressLogger(ctx, exec, progress, timeout)
	defer stop()

	return exec.Viewports.ForEachViewport(ctx, sess.Page(), profiles, func(ctx context.Context, p viewport.Profile) error {
		exec.SetViewport(p)
		result.Viewports = append(result.Viewports, p.Name)
		if exec.Collector.ShouldStop() {
			result.Metadata["fail_fast"] = "true"
			return nil
		}
		before := exec.Collector.Len()
		err := r.runBlock(ctx, exec, scenario.Steps, p, result, progress)
		if err == nil {
			err = r.runBlock(ctx, exec, scenario.Assertions, p, result, progress)
			if err == nil && !exec.Collector.ShouldStop() {
				advance(result, results.PhaseAsserted)
			}
		}
		r.captureViewport(exec, result, p, exec.Collector.FailedSince(before))
		return err
	})
}

// runBlock runs a list of steps under profile p and returns the first fatal error.
func (r *Runner) runBlock(ctx context.Context, exec *steps.Context, block []spec.StepSpec, p viewport.Profile, result *results.ScenarioResult, progress *steps.Progress) error {
	for _, step := range block {
		if !step.AppliesTo(p.Name) {
			continue
		}
		if exec.Collector.ShouldStop() {
			result.Metadata["fail_fast"] = "true"
			return nil
		}
		stepResult, err := r.runStep(ctx, exec, step, p, progress)
		result.Steps = append(result.Steps, stepResult)
		if err != nil {
			return err
		}
		if stepResult.Action == "navigate" && stepResult.Status == results.StatusPassed {
			advance(result, results.PhaseNavigated)
		}
		advance(result, results.PhaseStep)
	}
	return nil
}

// runStep executes one step. Non-fatal step errors become one failed assertion
// attributed to the step; only fatal errors are returned.
func (r *Runner) runStep(ctx context.Context, exec *steps.Context, step spec.StepSpec, p viewport.Profile, progress *steps.Progress) (results.StepResult, error) {
	exec.Collector.Scope(step.Name, p.Name)
	progress.Begin(step.Name, p.Name)
	defer progress.Done()

	before := exec.Collector.Len()
	start := time.Now().UTC()
	stepCtx, span := r.startStepSpan(ctx, exec, step)
	metadata, err := r.registry.Execute(stepCtx, exec, step)
	end := time.Now().UTC()
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	stepResult := results.StepResult{
		Name:      step.Name,
		Action:    step.Action,
		Viewport:  p.Name,
		Status:    results.StatusPassed,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Metadata:  metadata,
	}
	var fatal error
	switch {
	case err != nil && (fault.IsFatal(err) || ctx.Err() != nil):
		fatal = err
		stepResult.Status = results.StatusErrored
		stepResult.Error = err.Error()
		stepResult.ErrorKind = string(fault.KindOf(err))
		if ctx.Err() != nil {
			stepResult.ErrorKind = string(fault.KindDeadline)
		}
	case err != nil:
		stepResult.Status = results.StatusFailed
		stepResult.Error = err.Error()
		stepResult.ErrorKind = string(fault.KindOf(err))
		exec.Collector.RecordError(step.Name, step.Action+" succeeds", err)
		exec.Logger.Info("step failed, continuing",
			zap.String("step", step.Name),
			zap.String("viewport", p.Name),
			zap.String("kind", stepResult.ErrorKind),
			zap.Error(err),
		)
	case exec.Collector.FailedSince(before):
		stepResult.Status = results.StatusFailed
	}

	r.finishStepSpan(span, exec, step, stepResult, err)
	r.observeStep(exec, step, stepResult)
	return stepResult, fatal
}

// teardown drains the console buffer and releases the session. It runs exactly once
// per scenario, including when acquisition failed.
func (r *Runner) teardown(exec *steps.Context, result *results.ScenarioResult, fatal error) {
	advance(result, results.PhaseTeardown)
	if exec.Session == nil {
		return
	}
	if fatal != nil && r.shouldCollect(results.StatusErrored) {
		r.capture(exec, result, "errored")
	}
	console := exec.Session.Console()
	result.Console = console.Drain()
	if dropped := console.Dropped(); dropped > 0 {
		result.Metadata["console_dropped"] = fmt.Sprintf("%d", dropped)
	}
	r.writeConsoleLog(exec, result)

	if err := r.sessions.Release(exec.Session); err != nil {
		result.Metadata["teardown_error"] = err.Error()
		exec.Logger.Warn("session teardown failed", zap.Error(err))
	}
}

func (r *Runner) skipResult(scenario spec.Scenario, reason string) results.ScenarioResult {
	now := time.Now().UTC()
	return results.ScenarioResult{
		Name:        scenario.Metadata.Name,
		Description: scenario.Metadata.Description,
		Tags:        scenario.Metadata.Tags,
		Status:      results.StatusSkipped,
		StartTime:   now,
		EndTime:     now,
		Metadata: map[string]string{
			"skip_reason": reason,
		},
	}
}

func (r *Runner) observeScenario(scenario spec.Scenario, result results.ScenarioResult) {
	r.metrics.ObserveScenario(result.Name, string(result.Status), result.Duration)
	r.metrics.ObserveScenarioInfo(metrics.ScenarioInfo{
		Scenario:  result.Name,
		Status:    string(result.Status),
		Browser:   r.cfg.Browser,
		BaseURL:   result.BaseURL,
		Viewports: joinNames(result.Viewports),
		Component: scenario.Metadata.Component,
	})
	for _, a := range result.Assertions {
		r.metrics.ObserveAssertion(a.Kind, a.Viewport, a.Passed)
		r.telemetry.RecordAssertion(a.Passed, map[string]string{
			"e2e.scenario": result.Name,
			"e2e.viewport": a.Viewport,
			"e2e.kind":     a.Kind,
		})
	}
	r.recordScenarioTelemetry(scenario, result)
}

func (r *Runner) observeStep(exec *steps.Context, step spec.StepSpec, result results.StepResult) {
	r.metrics.ObserveStep(exec.ScenarioName, step.Action, result.Viewport, string(result.Status), result.Duration)
	for key, metric := range webVitals {
		if value, ok := parseFloat(result.Metadata[key]); ok {
			r.metrics.ObserveWebVital(exec.ScenarioName, result.Viewport, metric, value)
		}
	}
	r.recordStepTelemetry(exec, step, result)
}

// webVitals maps performance step metadata keys onto metric labels.
var webVitals = map[string]string{
	"lcp_ms":  "lcp_ms",
	"cls":     "cls",
	"load_ms": "load_ms",
	"fid_ms":  "fid_ms",
}

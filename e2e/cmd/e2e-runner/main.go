package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/thesipincafe/site-e2e/e2e/framework/assets"
	"github.com/thesipincafe/site-e2e/e2e/framework/browser"
	"github.com/thesipincafe/site-e2e/e2e/framework/config"
	"github.com/thesipincafe/site-e2e/e2e/framework/fixtures"
	"github.com/thesipincafe/site-e2e/e2e/framework/logging"
	"github.com/thesipincafe/site-e2e/e2e/framework/results"
	"github.com/thesipincafe/site-e2e/e2e/framework/runner"
	"github.com/thesipincafe/site-e2e/e2e/framework/spec"
	"github.com/thesipincafe/site-e2e/e2e/framework/steps"
	"github.com/thesipincafe/site-e2e/e2e/framework/telemetry"
)

// Exit codes: 0 passed or skipped, 1 failed, 2 errored, 3 setup failure.
const (
	exitFailed  = 1
	exitErrored = 2
	exitSetup   = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return exitSetup
	}
	logger, err := logging.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		return exitSetup
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetryClient, shutdownTelemetry, err := telemetry.Init(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize telemetry", zap.Error(err))
		return exitSetup
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("failed to shutdown telemetry", zap.Error(err))
		}
	}()

	var fixtureRegistry *fixtures.Registry
	if cfg.FixturesPath != "" {
		fixtureRegistry, err = fixtures.LoadRegistry(cfg.FixturesPath)
		if err != nil {
			logger.Error("failed to load fixtures", zap.String("path", cfg.FixturesPath), zap.Error(err))
			return exitSetup
		}
	}

	if err := assets.Localize(ctx, cfg, logger); err != nil {
		logger.Error("failed to fetch axe-core script", zap.String("ref", cfg.AxeScriptPath), zap.Error(err))
		return exitSetup
	}

	stepRegistry := steps.NewRegistry()
	steps.RegisterDefaults(stepRegistry)

	scenarios, err := spec.LoadScenarios(cfg.SpecDir)
	if err != nil {
		logger.Error("failed to load scenarios", zap.String("dir", cfg.SpecDir), zap.Error(err))
		return exitSetup
	}
	for i := range scenarios {
		if err := stepRegistry.Validate(&scenarios[i]); err != nil {
			logger.Error("invalid scenario", zap.String("source", scenarios[i].Source), zap.Error(err))
			return exitSetup
		}
	}

	start := browser.Playwright(browser.PlaywrightOptions{
		Install: cfg.InstallBrowsers,
		Verbose: cfg.LogLevel == "debug",
	})
	r, err := runner.NewRunner(cfg, logger, stepRegistry, fixtureRegistry, start, telemetryClient)
	if err != nil {
		logger.Error("failed to initialize runner", zap.Error(err))
		return exitSetup
	}

	logger.Info("run starting",
		zap.String("run_id", cfg.RunID),
		zap.String("base_url", cfg.BaseURL),
		zap.String("browser", cfg.Browser),
		zap.Int("scenarios", len(scenarios)),
		zap.Int("parallelism", cfg.Parallelism),
	)
	began := time.Now()
	result, runErr := r.RunAll(ctx, scenarios)
	if runErr != nil {
		logger.Warn("run interrupted", zap.Error(runErr))
	}
	if err := r.FlushArtifacts(context.Background(), result); err != nil {
		logger.Error("failed to write artifacts", zap.Error(err))
	}

	summary := runner.Summarize(result)
	logger.Info("run complete",
		zap.Any("summary", summary),
		zap.Duration("duration", time.Since(began)),
		zap.String("artifacts", cfg.ArtifactDir),
	)
	printSummary(summary, cfg.ArtifactDir)

	switch summary.Verdict() {
	case results.StatusErrored:
		return exitErrored
	case results.StatusFailed:
		return exitFailed
	}
	if runErr != nil {
		return exitErrored
	}
	return 0
}

func printSummary(summary runner.Summary, artifactDir string) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	for _, f := range summary.Failures {
		where := f.Scenario
		if f.Viewport != "" {
			where += " [" + f.Viewport + "]"
		}
		if f.Step != "" {
			where += " " + f.Step
		}
		fmt.Printf("%s %s: %s", red("✗"), where, f.Description)
		if f.Expected != "" || f.Actual != "" {
			fmt.Printf(" (expected %s, got %s)", f.Expected, f.Actual)
		}
		fmt.Println()
	}

	verdict := summary.Verdict()
	label := green(string(verdict))
	switch verdict {
	case results.StatusFailed, results.StatusErrored:
		label = red(string(verdict))
	case results.StatusSkipped:
		label = yellow(string(verdict))
	}
	fmt.Printf("%s %s  scenarios: %d passed=%s failed=%s errored=%s skipped=%s  (%s)\n",
		bold("run"), label, summary.Total,
		green(summary.Passed), red(summary.Failed), red(summary.Errored), yellow(summary.Skipped),
		summary.Duration,
	)
	fmt.Printf("artifacts: %s\n", artifactDir)
}

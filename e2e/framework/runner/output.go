package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/thesipincafe/site-e2e/e2e/framework/artifacts"
	"github.com/thesipincafe/site-e2e/e2e/framework/graph"
	"github.com/thesipincafe/site-e2e/e2e/framework/objectstore"
	"github.com/thesipincafe/site-e2e/e2e/framework/results"
)

// Summary is the run-level tally written to summary.json.
type Summary struct {
	RunID    string           `json:"run_id"`
	Total    int              `json:"total"`
	Passed   int              `json:"passed"`
	Failed   int              `json:"failed"`
	Errored  int              `json:"errored"`
	Skipped  int              `json:"skipped"`
	Duration string           `json:"duration"`
	Failures []FailureSummary `json:"failures,omitempty"`
}

// FailureSummary names one failed check and where it happened.
type FailureSummary struct {
	Scenario    string `json:"scenario"`
	Viewport    string `json:"viewport,omitempty"`
	Step        string `json:"step,omitempty"`
	Description string `json:"description"`
	Expected    string `json:"expected,omitempty"`
	Actual      string `json:"actual,omitempty"`
}

// Summarize tallies scenario verdicts and lists every failed assertion.
func Summarize(run *results.RunResult) Summary {
	if run == nil {
		return Summary{}
	}
	summary := Summary{RunID: run.RunID, Total: len(run.Scenarios), Duration: run.Duration.String()}
	for _, sc := range run.Scenarios {
		switch sc.Status {
		case results.StatusPassed:
			summary.Passed++
		case results.StatusFailed:
			summary.Failed++
		case results.StatusErrored:
			summary.Errored++
		case results.StatusSkipped:
			summary.Skipped++
		}
		if sc.Status == results.StatusErrored && sc.Error != "" {
			summary.Failures = append(summary.Failures, FailureSummary{Scenario: sc.Name, Description: "scenario errored", Actual: sc.Error})
		}
		for _, a := range sc.Failures() {
			summary.Failures = append(summary.Failures, FailureSummary{
				Scenario:    sc.Name,
				Viewport:    a.Viewport,
				Step:        a.Step,
				Description: a.Description,
				Expected:    a.Expected,
				Actual:      a.Actual,
			})
		}
	}
	return summary
}

// Verdict is the run verdict: errored beats failed beats passed; an all-skipped run is skipped.
func (s Summary) Verdict() results.Status {
	switch {
	case s.Errored > 0:
		return results.StatusErrored
	case s.Failed > 0:
		return results.StatusFailed
	case s.Passed == 0 && s.Skipped > 0:
		return results.StatusSkipped
	default:
		return results.StatusPassed
	}
}

// FlushArtifacts writes results, summary, graph and metrics to the run directory, then
// exports the graph to Neo4j and publishes the directory when those are configured.
func (r *Runner) FlushArtifacts(ctx context.Context, run *results.RunResult) error {
	if _, err := r.artifacts.WriteJSON("results.json", run); err != nil {
		return err
	}
	if _, err := r.artifacts.WriteJSON("summary.json", Summarize(run)); err != nil {
		return err
	}

	var g *graph.Graph
	if r.cfg.GraphEnabled || r.cfg.Neo4jEnabled {
		g = graph.FromRun(run, graph.RunInfo{Browser: r.cfg.Browser, BaseURL: r.cfg.BaseURL, Headless: r.cfg.Headless})
	}
	if r.cfg.GraphEnabled {
		if _, err := r.artifacts.WriteJSON("graph.json", g); err != nil {
			return err
		}
		if err := r.writeDiagrams(run); err != nil {
			return err
		}
	}
	if r.cfg.MetricsEnabled {
		path := r.cfg.MetricsPath
		if path == "" {
			path = filepath.Join(r.artifacts.RunDir, "metrics.prom")
		}
		if err := r.metrics.Write(path); err != nil {
			return err
		}
	}

	var errs []error
	if r.cfg.Neo4jEnabled {
		exportCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		err := graph.ExportToNeo4j(exportCtx, graph.Neo4jConfig{
			URI:      r.cfg.Neo4jURI,
			User:     r.cfg.Neo4jUser,
			Password: r.cfg.Neo4jPassword,
			Database: r.cfg.Neo4jDatabase,
		}, g, r.logger)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("neo4j export: %w", err))
		}
	}
	if store := objectstore.FromConfig(r.cfg); store.Enabled() {
		if err := r.publish(ctx, store); err != nil {
			errs = append(errs, fmt.Errorf("publish artifacts: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) writeDiagrams(run *results.RunResult) error {
	gen := graph.NewPlantUMLGenerator(run)
	if _, err := r.artifacts.WriteText("summary.puml", gen.GenerateRunSummaryDiagram()); err != nil {
		return err
	}
	for _, sc := range run.Scenarios {
		if sc.Status == results.StatusSkipped {
			continue
		}
		if _, err := r.artifacts.WriteText(artifacts.ScenarioPath(sc.Name, "sequence.puml"), gen.GenerateScenarioSequenceDiagram(sc.Name)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) publish(ctx context.Context, cfg objectstore.Config) error {
	files, err := r.artifacts.Files()
	if err != nil {
		return err
	}
	provider, err := objectstore.NewProvider(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := provider.Close(); err != nil {
			r.logger.Warn("objectstore close failed", zap.Error(err))
		}
	}()
	uploaded, err := objectstore.Publish(ctx, provider, r.artifacts.RunDir, r.cfg.RunID, files, r.logger)
	if err != nil {
		return err
	}
	r.logger.Info("artifacts published",
		zap.String("provider", cfg.Provider),
		zap.String("bucket", cfg.Bucket),
		zap.String("prefix", objectstore.ResolveKey(cfg.Prefix, r.cfg.RunID)),
		zap.Int("files", len(uploaded)),
	)
	return nil
}

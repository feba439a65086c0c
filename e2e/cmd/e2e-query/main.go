package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/thesipincafe/site-e2e/e2e/framework/graph"
)

var (
	neo4jURI      string
	neo4jUser     string
	neo4jPassword string
	neo4jDatabase string
	outputJSON    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "e2e-query",
		Short: "Query the site E2E results graph",
		Long:  `Answers failure, flakiness, success-rate and timing questions from runs exported to Neo4j.`,
	}

	rootCmd.PersistentFlags().StringVar(&neo4jURI, "neo4j-uri", os.Getenv("E2E_NEO4J_URI"), "Neo4j connection URI")
	rootCmd.PersistentFlags().StringVar(&neo4jUser, "neo4j-user", os.Getenv("E2E_NEO4J_USER"), "Neo4j username")
	rootCmd.PersistentFlags().StringVar(&neo4jPassword, "neo4j-password", os.Getenv("E2E_NEO4J_PASSWORD"), "Neo4j password")
	rootCmd.PersistentFlags().StringVar(&neo4jDatabase, "neo4j-database", getEnvOrDefault("E2E_NEO4J_DATABASE", "neo4j"), "Neo4j database name")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Print results as JSON")

	rootCmd.AddCommand(
		newFailuresCmd(),
		newSuccessRateCmd(),
		newFlakyCmd(),
		newSlowestStepsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withQuery opens a query interface for one command invocation.
func withQuery(fn func(ctx context.Context, qi *graph.QueryInterface) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	qi, err := graph.NewQueryInterface(neo4jURI, neo4jUser, neo4jPassword, neo4jDatabase)
	if err != nil {
		return fmt.Errorf("failed to connect to Neo4j: %w", err)
	}
	defer qi.Close(ctx)
	return fn(ctx, qi)
}

func printJSON(cmd *cobra.Command, value interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func newFailuresCmd() *cobra.Command {
	var category string
	var limit int

	cmd := &cobra.Command{
		Use:   "failures",
		Short: "List recent failed checks, optionally by category",
		Long:  `Categories: LocatorTimeout, ReadinessTimeout, AccessibilityViolation, PerformanceBudget, RouteProbe, Assertion, StepError, ScenarioDeadline, Infrastructure.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQuery(func(ctx context.Context, qi *graph.QueryInterface) error {
				failures, err := qi.FindFailures(ctx, category, limit)
				if err != nil {
					return fmt.Errorf("query failed: %w", err)
				}
				if outputJSON {
					return printJSON(cmd, failures)
				}
				if len(failures) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No failures found")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SCENARIO\tVIEWPORT\tSTEP\tCATEGORY\tRUN\tACTUAL")
				for _, f := range failures {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", f.Scenario, f.Viewport, f.Step, f.Category, f.RunID, f.Actual)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Failure category")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of results")
	return cmd
}

func newSuccessRateCmd() *cobra.Command {
	var scenario, browser, tag string

	cmd := &cobra.Command{
		Use:   "success-rate",
		Short: "Calculate the scenario pass rate by filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			filters := map[string]string{}
			if scenario != "" {
				filters["scenario"] = scenario
			}
			if browser != "" {
				filters["browser"] = browser
			}
			if tag != "" {
				filters["tag"] = tag
			}
			return withQuery(func(ctx context.Context, qi *graph.QueryInterface) error {
				stats, err := qi.GetSuccessRate(ctx, filters)
				if err != nil {
					return fmt.Errorf("query failed: %w", err)
				}
				if outputJSON {
					return printJSON(cmd, stats)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "\n=== Scenario Success Rate ===")
				fmt.Fprintf(out, "Total:        %d\n", stats.Total)
				statuses := make([]string, 0, len(stats.ByStatus))
				for status := range stats.ByStatus {
					statuses = append(statuses, status)
				}
				sort.Strings(statuses)
				for _, status := range statuses {
					fmt.Fprintf(out, "%-13s %d\n", status+":", stats.ByStatus[status])
				}
				fmt.Fprintf(out, "Success Rate: %.2f%%\n", stats.Rate)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&scenario, "scenario", "", "Filter by scenario name")
	cmd.Flags().StringVar(&browser, "browser", "", "Filter by browser engine (chromium, firefox, webkit)")
	cmd.Flags().StringVar(&tag, "tag", "", "Filter by scenario tag")
	return cmd
}

func newFlakyCmd() *cobra.Command {
	var threshold float64
	var minRuns int

	cmd := &cobra.Command{
		Use:   "flaky",
		Short: "Find scenarios whose verdict changes between runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQuery(func(ctx context.Context, qi *graph.QueryInterface) error {
				flaky, err := qi.FindFlakyScenarios(ctx, threshold, minRuns)
				if err != nil {
					return fmt.Errorf("query failed: %w", err)
				}
				if outputJSON {
					return printJSON(cmd, flaky)
				}
				if len(flaky) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No flaky scenarios found")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SCENARIO\tPASSED\tFAILED\tTOTAL\tPASS RATE")
				for _, f := range flaky {
					fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.2f%%\n", f.Scenario, f.Passed, f.Failed, f.Total, f.PassRate*100)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().Float64Var(&threshold, "threshold", 0.2, "Minimum failure share for a scenario to count as flaky (0.2 = 20%)")
	cmd.Flags().IntVar(&minRuns, "min-runs", 3, "Ignore scenarios with fewer runs")
	return cmd
}

func newSlowestStepsCmd() *cobra.Command {
	var scenario string
	var limit int

	cmd := &cobra.Command{
		Use:   "slowest-steps",
		Short: "List actions with the highest average duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQuery(func(ctx context.Context, qi *graph.QueryInterface) error {
				timings, err := qi.GetSlowestSteps(ctx, scenario, limit)
				if err != nil {
					return fmt.Errorf("query failed: %w", err)
				}
				if outputJSON {
					return printJSON(cmd, timings)
				}
				if len(timings) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No step timings found")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ACTION\tVIEWPORT\tAVG (ms)\tMAX (ms)\tSAMPLES")
				for _, st := range timings {
					fmt.Fprintf(w, "%s\t%s\t%.0f\t%.0f\t%d\n", st.Action, st.Viewport, st.AvgMs, st.MaxMs, st.Samples)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&scenario, "scenario", "", "Restrict to one scenario")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of results")
	return cmd
}

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// QueryInterface answers questions about past runs stored in Neo4j.
type QueryInterface struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewQueryInterface creates a new query interface
func NewQueryInterface(uri, user, password, database string) (*QueryInterface, error) {
	auth := neo4j.NoAuth()
	if user != "" || password != "" {
		auth = neo4j.BasicAuth(user, password, "")
	}

	driver, err := neo4j.NewDriverWithContext(uri, auth)
	if err != nil {
		return nil, err
	}

	if database == "" {
		database = "neo4j"
	}

	return &QueryInterface{
		driver:   driver,
		database: database,
	}, nil
}

// Close closes the driver connection
func (qi *QueryInterface) Close(ctx context.Context) error {
	return qi.driver.Close(ctx)
}

// FailureInfo is one failed assertion found in the graph.
type FailureInfo struct {
	Scenario    string `json:"scenario"`
	RunID       string `json:"run_id"`
	Viewport    string `json:"viewport,omitempty"`
	Step        string `json:"step,omitempty"`
	Description string `json:"description"`
	Expected    string `json:"expected,omitempty"`
	Actual      string `json:"actual,omitempty"`
	Category    string `json:"category"`
}

// FlakyScenario summarises a scenario whose verdict changes between runs.
type FlakyScenario struct {
	Scenario string  `json:"scenario"`
	Passed   int64   `json:"passed"`
	Failed   int64   `json:"failed"`
	Total    int64   `json:"total"`
	PassRate float64 `json:"pass_rate"`
}

// SuccessRate counts scenario verdicts matching a filter.
type SuccessRate struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
	Rate     float64          `json:"success_rate"`
}

// StepTiming is the average duration of an action.
type StepTiming struct {
	Action   string  `json:"action"`
	Viewport string  `json:"viewport,omitempty"`
	AvgMs    float64 `json:"avg_ms"`
	MaxMs    float64 `json:"max_ms"`
	Samples  int64   `json:"samples"`
}

func (qi *QueryInterface) read(ctx context.Context) neo4j.SessionWithContext {
	return qi.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: qi.database,
		AccessMode:   neo4j.AccessModeRead,
	})
}

// FindFailures lists failed assertions, optionally restricted to one failure category.
func (qi *QueryInterface) FindFailures(ctx context.Context, category string, limit int) ([]FailureInfo, error) {
	session := qi.read(ctx)
	defer session.Close(ctx)

	where := ""
	params := map[string]any{"limit": limit}
	if category != "" {
		where = "WHERE f.label = $category"
		params["category"] = category
	}
	query := fmt.Sprintf(`
		MATCH (a:E2E {type: 'assertion'})-[:FAILED_WITH]->(f:E2E {type: 'failure'})
		%s
		MATCH (r:E2E {type: 'run'})-[:HAS_SCENARIO]->(s:E2E {type: 'scenario'})
		WHERE a.id STARTS WITH s.id + '/'
		RETURN s.label AS scenario,
		       r.label AS run_id,
		       a.label AS description,
		       a.attrs AS attrs,
		       f.label AS category
		ORDER BY r.label DESC
		LIMIT $limit
	`, where)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}

	var failures []FailureInfo
	for result.Next(ctx) {
		record := result.Record()
		attrs := decodeAttributes(getStringValue(record, "attrs"))
		failures = append(failures, FailureInfo{
			Scenario:    getStringValue(record, "scenario"),
			RunID:       getStringValue(record, "run_id"),
			Viewport:    attrs["viewport"],
			Step:        attrs["step"],
			Description: getStringValue(record, "description"),
			Expected:    attrs["expected"],
			Actual:      attrs["actual"],
			Category:    getStringValue(record, "category"),
		})
	}

	return failures, result.Err()
}

// GetSuccessRate counts scenario verdicts. Filters may name scenario, browser or tag.
func (qi *QueryInterface) GetSuccessRate(ctx context.Context, filters map[string]string) (SuccessRate, error) {
	session := qi.read(ctx)
	defer session.Close(ctx)

	match := []string{"MATCH (s:E2E {type: 'scenario'})"}
	whereClause := []string{}
	params := make(map[string]any)

	if scenario, ok := filters["scenario"]; ok {
		whereClause = append(whereClause, "s.label = $scenario")
		params["scenario"] = scenario
	}
	if browser, ok := filters["browser"]; ok {
		match = append(match, "MATCH (r:E2E {type: 'run'})-[:HAS_SCENARIO]->(s), (r)-[:USES_BROWSER]->(b:E2E {type: 'browser'})")
		whereClause = append(whereClause, "b.label = $browser")
		params["browser"] = browser
	}
	if tag, ok := filters["tag"]; ok {
		match = append(match, "MATCH (s)-[:TAGGED]->(t:E2E {type: 'tag'})")
		whereClause = append(whereClause, "t.label = $tag")
		params["tag"] = tag
	}

	where := ""
	if len(whereClause) > 0 {
		where = "WHERE " + strings.Join(whereClause, " AND ")
	}

	query := fmt.Sprintf(`
		%s
		%s
		WITH s.status AS status, count(DISTINCT s) AS count
		RETURN status, count
	`, strings.Join(match, "\n\t\t"), where)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return SuccessRate{}, err
	}

	stats := SuccessRate{ByStatus: map[string]int64{}}
	for result.Next(ctx) {
		record := result.Record()
		count := getInt64Value(record, "count")
		stats.ByStatus[getStringValue(record, "status")] = count
		stats.Total += count
	}
	if stats.Total > 0 {
		stats.Rate = float64(stats.ByStatus["passed"]) / float64(stats.Total) * 100
	}

	return stats, result.Err()
}

// FindFlakyScenarios lists scenarios with a pass rate strictly between threshold and 1-threshold.
func (qi *QueryInterface) FindFlakyScenarios(ctx context.Context, threshold float64, minRuns int) ([]FlakyScenario, error) {
	session := qi.read(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (s:E2E {type: 'scenario'})-[:RUN_OF]->(t:E2E {type: 'test'})
		WITH t.label AS scenario,
		     sum(CASE WHEN s.status = 'passed' THEN 1 ELSE 0 END) AS passed,
		     sum(CASE WHEN s.status <> 'passed' THEN 1 ELSE 0 END) AS failed,
		     count(*) AS total
		WHERE total >= $minRuns AND passed > 0 AND failed > 0
		WITH scenario, passed, failed, total,
		     toFloat(passed) / toFloat(total) AS pass_rate
		WHERE pass_rate > $threshold AND pass_rate < (1 - $threshold)
		RETURN scenario, passed, failed, total, pass_rate
		ORDER BY pass_rate ASC
	`

	result, err := session.Run(ctx, query, map[string]any{
		"threshold": threshold,
		"minRuns":   minRuns,
	})
	if err != nil {
		return nil, err
	}

	var flaky []FlakyScenario
	for result.Next(ctx) {
		record := result.Record()
		flaky = append(flaky, FlakyScenario{
			Scenario: getStringValue(record, "scenario"),
			Passed:   getInt64Value(record, "passed"),
			Failed:   getInt64Value(record, "failed"),
			Total:    getInt64Value(record, "total"),
			PassRate: getFloat64Value(record, "pass_rate"),
		})
	}

	return flaky, result.Err()
}

// GetSlowestSteps returns average step durations by action and viewport, slowest first.
func (qi *QueryInterface) GetSlowestSteps(ctx context.Context, scenario string, limit int) ([]StepTiming, error) {
	session := qi.read(ctx)
	defer session.Close(ctx)

	where := ""
	params := map[string]any{"limit": limit}
	if scenario != "" {
		where = "WHERE s.label = $scenario"
		params["scenario"] = scenario
	}
	query := fmt.Sprintf(`
		MATCH (s:E2E {type: 'scenario'})
		%s
		MATCH (st:E2E {type: 'step'})
		WHERE st.id STARTS WITH s.id + '/' AND st.status = 'passed'
		WITH st.action AS action, st.viewport AS viewport, st.duration_ms AS ms
		RETURN action, viewport, avg(toFloat(ms)) AS avg_ms, max(toFloat(ms)) AS max_ms, count(*) AS samples
		ORDER BY avg_ms DESC
		LIMIT $limit
	`, where)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}

	var timings []StepTiming
	for result.Next(ctx) {
		record := result.Record()
		timings = append(timings, StepTiming{
			Action:   getStringValue(record, "action"),
			Viewport: getStringValue(record, "viewport"),
			AvgMs:    getFloat64Value(record, "avg_ms"),
			MaxMs:    getFloat64Value(record, "max_ms"),
			Samples:  getInt64Value(record, "samples"),
		})
	}

	return timings, result.Err()
}

// Helper functions to safely extract values from records
func getStringValue(record *neo4j.Record, key string) string {
	if val, ok := record.Get(key); ok && val != nil {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getInt64Value(record *neo4j.Record, key string) int64 {
	if val, ok := record.Get(key); ok && val != nil {
		if num, ok := val.(int64); ok {
			return num
		}
	}
	return 0
}

func getFloat64Value(record *neo4j.Record, key string) float64 {
	if val, ok := record.Get(key); ok && val != nil {
		if num, ok := val.(float64); ok {
			return num
		}
		if num, ok := val.(int64); ok {
			return float64(num)
		}
	}
	return 0.0
}

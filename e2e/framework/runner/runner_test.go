package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/thesipincafe/site-e2e/e2e/framework/browser/browsertest"
	"github.com/thesipincafe/site-e2e/e2e/framework/config"
	"github.com/thesipincafe/site-e2e/e2e/framework/fault"
	"github.com/thesipincafe/site-e2e/e2e/framework/results"
	"github.com/thesipincafe/site-e2e/e2e/framework/spec"
	"github.com/thesipincafe/site-e2e/e2e/framework/steps"
)

func homeDOM() *browsertest.DOM {
	return browsertest.NewDOM().
		Add("css:h1", &browsertest.Node{Text: "The Sip-In Cafe"}).
		Add("css:input[name=email]", &browsertest.Node{}).
		Add("role:button:Subscribe", &browsertest.Node{})
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.RunID = "run-test"
	cfg.ArtifactDir = dir
	cfg.BaseURL = "http://site.test"
	cfg.ActionTimeout = 100 * time.Millisecond
	cfg.ReadyTimeout = 50 * time.Millisecond
	cfg.ProgressInterval = 0
	cfg.DefaultTimeout = 10 * time.Second
	cfg.MetricsEnabled = true
	cfg.MetricsPath = filepath.Join(dir, "metrics.prom")
	cfg.ArtifactCollection = config.CollectNever
	return cfg
}

func newTestRunner(t *testing.T, cfg *config.Config, driver *browsertest.Driver) *Runner {
	t.Helper()
	reg := steps.NewRegistry()
	steps.RegisterDefaults(reg)
	r, err := NewRunner(cfg, zap.NewNop(), reg, nil, driver.Starter(), nil)
	require.NoError(t, err)
	return r
}

func scenario(name string, viewports []string, stepList []spec.StepSpec, checks []spec.StepSpec) spec.Scenario {
	return spec.Scenario{
		Metadata:   spec.Metadata{Name: name},
		Viewports:  viewports,
		Steps:      stepList,
		Assertions: checks,
	}
}

func step(name, action string, with map[string]interface{}) spec.StepSpec {
	return spec.StepSpec{Name: name, Action: action, With: with}
}

func assertTornDownOnce(t *testing.T, r *Runner, driver *browsertest.Driver) {
	t.Helper()
	for _, event := range []string{"context.close", "browser.close", "driver.stop"} {
		assert.Equal(t, 1, driver.Rec.Count(event), event)
	}
	assert.Zero(t, r.Sessions().Active())
}

func TestRunScenarioPassesAndTearsDownOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	driver := browsertest.NewDriver(browsertest.NewPage(homeDOM()))
	r := newTestRunner(t, testConfig(t), driver)

	result := r.RunScenario(context.Background(), scenario("TC001-home", []string{"desktop"},
		[]spec.StepSpec{
			step("open home", "navigate", map[string]interface{}{"path": "/"}),
			step("type email", "fill", map[string]interface{}{"locator": "input[name=email]", "value": "hello@thesipincafe.co.uk"}),
		},
		[]spec.StepSpec{
			step("hero heading", "assert.text", map[string]interface{}{"locator": "h1", "expected": "The Sip-In Cafe"}),
		},
	))

	assert.Equal(t, results.StatusPassed, result.Status)
	assert.Empty(t, result.Error)
	assert.Equal(t, []string{"desktop"}, result.Viewports)
	require.Len(t, result.Steps, 3)
	assert.Equal(t, []results.Phase{
		results.PhaseInit,
		results.PhaseSessionAcquired,
		results.PhaseNavigated,
		results.PhaseStep,
		results.PhaseAsserted,
		results.PhaseTeardown,
		results.PhasePassed,
	}, result.Phases)
	assert.Equal(t, 1, driver.Rec.Count("page.goto http://site.test/"))
	assertTornDownOnce(t, r, driver)
}

func TestLocatorsResolveAgainstEachViewport(t *testing.T) {
	defer goleak.VerifyNone(t)

	dom := homeDOM().AddAt(375, "css:button.menu-toggle", &browsertest.Node{})
	page := browsertest.NewPage(dom)
	driver := browsertest.NewDriver(page)
	r := newTestRunner(t, testConfig(t), driver)

	result := r.RunScenario(context.Background(), scenario("TC004-responsive-nav", []string{"mobile", "desktop"},
		[]spec.StepSpec{step("open home", "navigate", map[string]interface{}{"path": "/"})},
		[]spec.StepSpec{step("menu toggle", "assert.visible", map[string]interface{}{"locator": "button.menu-toggle"})},
	))

	assert.Equal(t, results.StatusFailed, result.Status)
	assert.Equal(t, []string{"mobile", "desktop"}, result.Viewports)

	byViewport := map[string]bool{}
	for _, a := range result.Assertions {
		if a.Step == "menu toggle" {
			byViewport[a.Viewport] = a.Passed
		}
	}
	assert.Equal(t, map[string]bool{"mobile": true, "desktop": false}, byViewport)
	assert.GreaterOrEqual(t, page.Resolutions("css:button.menu-toggle"), 2)
	assert.Equal(t, 1, driver.Rec.Count("page.viewport 375x667"))
	assertTornDownOnce(t, r, driver)
}

func TestNotFoundPageScenario(t *testing.T) {
	defer goleak.VerifyNone(t)

	home := homeDOM().Add("css:main", &browsertest.Node{Text: "The Sip-In Cafe. Coffee, cake and company."})
	page := browsertest.NewPage(homeDOM()).Route("/", home)
	page.NotFound = browsertest.NewDOM().
		Add("css:h1", &browsertest.Node{Text: "Page not found"}).
		Add("css:main", &browsertest.Node{Text: "404 Page not found"}).
		Add("css:a[href='/']", &browsertest.Node{Text: "Back to home", Attrs: map[string]string{"href": "/"}, Navigates: "/"})
	driver := browsertest.NewDriver(page)
	r := newTestRunner(t, testConfig(t), driver)

	result := r.RunScenario(context.Background(), scenario("TC009-not-found", []string{"desktop"},
		[]spec.StepSpec{
			step("open missing page", "navigate", map[string]interface{}{"path": "/no-such-page"}),
			step("not found heading", "assert.text", map[string]interface{}{"locator": "h1", "expected": "Page not found"}),
			step("home link", "assert.attribute", map[string]interface{}{"locator": "a[href='/']", "name": "href", "value": "/"}),
			step("follow recovery link", "click", map[string]interface{}{"locator": "a[href='/']"}),
		},
		[]spec.StepSpec{
			step("landed on home", "assert.url", map[string]interface{}{"match": "path", "expected": []interface{}{"/", "/posts"}}),
			step("recovery target is a normal page", "assert.text", map[string]interface{}{
				"locator": "main", "expected": []interface{}{"404", "not found"}, "mode": "case-insensitive-contains", "negate": true,
			}),
		},
	))

	assert.Equal(t, results.StatusPassed, result.Status, result.Failures())
	require.Len(t, result.Assertions, 4)
	assert.Equal(t, 1, driver.Rec.Count("page.goto http://site.test/no-such-page"))
	assertTornDownOnce(t, r, driver)
}

func TestLocatorTimeoutFailsStepAndContinues(t *testing.T) {
	defer goleak.VerifyNone(t)

	dom := homeDOM()
	driver := browsertest.NewDriver(browsertest.NewPage(dom))
	r := newTestRunner(t, testConfig(t), driver)

	result := r.RunScenario(context.Background(), scenario("TC010-newsletter", []string{"desktop"},
		[]spec.StepSpec{
			step("open home", "navigate", map[string]interface{}{"path": "/"}),
			step("close modal", "click", map[string]interface{}{"locator": "#newsletter-modal .close"}),
			step("subscribe", "click", map[string]interface{}{"locator": map[string]interface{}{"role": "button", "name": "Subscribe"}}),
		},
		nil,
	))

	assert.Equal(t, results.StatusFailed, result.Status)
	assert.Empty(t, result.Error)
	require.Len(t, result.Steps, 3)
	assert.Equal(t, results.StatusFailed, result.Steps[1].Status)
	assert.Equal(t, string(fault.KindLocatorTimeout), result.Steps[1].ErrorKind)
	assert.Equal(t, results.StatusPassed, result.Steps[2].Status)
	assert.Equal(t, 1, dom.Elements["role:button:Subscribe"][0].Clicks)

	failures := result.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "close modal", failures[0].Step)
	assert.Equal(t, string(fault.KindLocatorTimeout), failures[0].Kind)
	assertTornDownOnce(t, r, driver)
}

func TestLaunchFailureIsErrored(t *testing.T) {
	defer goleak.VerifyNone(t)

	driver := browsertest.NewDriver(browsertest.NewPage(homeDOM()))
	driver.LaunchErr = errors.New("chromium executable not found")
	r := newTestRunner(t, testConfig(t), driver)

	result := r.RunScenario(context.Background(), scenario("TC001-home", nil,
		[]spec.StepSpec{step("open home", "navigate", map[string]interface{}{"path": "/"})}, nil))

	assert.Equal(t, results.StatusErrored, result.Status)
	assert.Contains(t, result.Error, "chromium executable not found")
	assert.Equal(t, string(fault.KindInfrastructure), result.Metadata["error_kind"])
	assert.Empty(t, result.Steps)
	assert.Equal(t, []results.Phase{results.PhaseInit, results.PhaseTeardown, results.PhaseErrored}, result.Phases)
	assert.Zero(t, driver.Rec.Count("page.goto http://site.test/"))
	assert.Zero(t, r.Sessions().Active())
}

func TestScenarioDeadlineIsErrored(t *testing.T) {
	defer goleak.VerifyNone(t)

	driver := browsertest.NewDriver(browsertest.NewPage(homeDOM()))
	r := newTestRunner(t, testConfig(t), driver)

	sc := scenario("TC014-slow", []string{"desktop"},
		[]spec.StepSpec{
			step("open home", "navigate", map[string]interface{}{"path": "/"}),
			step("wait forever", "sleep", map[string]interface{}{"duration": 5000}),
			step("never runs", "click", map[string]interface{}{"locator": "h1"}),
		}, nil)
	sc.Timeout = "150ms"

	start := time.Now()
	result := r.RunScenario(context.Background(), sc)

	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, results.StatusErrored, result.Status)
	assert.Equal(t, "true", result.Metadata["timeout"])
	assert.NotEmpty(t, result.Metadata["timeout_error"])
	require.Len(t, result.Steps, 2)
	assert.Equal(t, string(fault.KindDeadline), result.Steps[1].ErrorKind)
	assertTornDownOnce(t, r, driver)
}

func TestFailFastSkipsRemainingSteps(t *testing.T) {
	defer goleak.VerifyNone(t)

	driver := browsertest.NewDriver(browsertest.NewPage(homeDOM()))
	r := newTestRunner(t, testConfig(t), driver)

	failFast := true
	sc := scenario("TC003-contact", []string{"mobile", "desktop"},
		[]spec.StepSpec{
			step("open home", "navigate", map[string]interface{}{"path": "/"}),
			step("wrong heading", "assert.text", map[string]interface{}{"locator": "h1", "expected": "Closed"}),
			step("type email", "fill", map[string]interface{}{"locator": "input[name=email]", "value": "a@b.c"}),
		}, nil)
	sc.FailFast = &failFast

	result := r.RunScenario(context.Background(), sc)

	assert.Equal(t, results.StatusFailed, result.Status)
	assert.Equal(t, "true", result.Metadata["fail_fast"])
	assert.Len(t, result.Steps, 2)
	assertTornDownOnce(t, r, driver)
}

func TestRunAllKeepsOrderAndSkipsFilteredTags(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig(t)
	cfg.Parallelism = 3
	cfg.ExcludeTags = []string{"slow"}
	cfg.GraphEnabled = true
	driver := browsertest.NewDriver(browsertest.NewPage(homeDOM()))
	r := newTestRunner(t, cfg, driver)

	open := []spec.StepSpec{step("open home", "navigate", map[string]interface{}{"path": "/"})}
	heading := []spec.StepSpec{step("hero heading", "assert.text", map[string]interface{}{"locator": "h1", "expected": "The Sip-In Cafe"})}
	broken := []spec.StepSpec{step("hero heading", "assert.text", map[string]interface{}{"locator": "h1", "expected": "Closed"})}

	slow := scenario("TC014-perf", []string{"desktop"}, open, nil)
	slow.Metadata.Tags = []string{"slow"}
	scenarios := []spec.Scenario{
		scenario("TC001-home", []string{"desktop"}, open, heading),
		slow,
		scenario("TC002-menu", []string{"desktop"}, open, broken),
	}

	run, err := r.RunAll(context.Background(), scenarios)
	require.NoError(t, err)
	require.Len(t, run.Scenarios, 3)
	assert.Equal(t, "TC001-home", run.Scenarios[0].Name)
	assert.Equal(t, results.StatusPassed, run.Scenarios[0].Status)
	assert.Equal(t, results.StatusSkipped, run.Scenarios[1].Status)
	assert.Equal(t, "tag filtered", run.Scenarios[1].Metadata["skip_reason"])
	assert.Equal(t, results.StatusFailed, run.Scenarios[2].Status)
	assert.Zero(t, r.Sessions().Active())

	summary := Summarize(run)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Skipped)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "TC002-menu", summary.Failures[0].Scenario)
	assert.Equal(t, results.StatusFailed, summary.Verdict())

	require.NoError(t, r.FlushArtifacts(context.Background(), run))
	for _, name := range []string{"results.json", "summary.json", "graph.json", "summary.puml", "metrics.prom"} {
		_, statErr := os.Stat(filepath.Join(cfg.ArtifactDir, name))
		assert.NoError(t, statErr, name)
	}
}

func TestSummaryVerdict(t *testing.T) {
	cases := []struct {
		name    string
		summary Summary
		want    results.Status
	}{
		{"errored wins", Summary{Passed: 1, Failed: 1, Errored: 1}, results.StatusErrored},
		{"failed", Summary{Passed: 2, Failed: 1}, results.StatusFailed},
		{"all skipped", Summary{Skipped: 2}, results.StatusSkipped},
		{"passed with skips", Summary{Passed: 1, Skipped: 1}, results.StatusPassed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.summary.Verdict())
		})
	}
}

func TestShouldCollect(t *testing.T) {
	r := &Runner{cfg: &config.Config{}}
	assert.True(t, r.shouldCollect(results.StatusFailed))
	assert.False(t, r.shouldCollect(results.StatusPassed))

	r.cfg.ArtifactCollection = config.CollectAlways
	assert.True(t, r.shouldCollect(results.StatusPassed))

	r.cfg.ArtifactCollection = config.CollectNever
	assert.False(t, r.shouldCollect(results.StatusErrored))
}

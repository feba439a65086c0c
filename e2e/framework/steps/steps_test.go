package steps

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thesipincafe/site-e2e/e2e/framework/artifacts"
	"github.com/thesipincafe/site-e2e/e2e/framework/assertions"
	"github.com/thesipincafe/site-e2e/e2e/framework/browser"
	"github.com/thesipincafe/site-e2e/e2e/framework/browser/browsertest"
	"github.com/thesipincafe/site-e2e/e2e/framework/config"
	"github.com/thesipincafe/site-e2e/e2e/framework/fault"
	"github.com/thesipincafe/site-e2e/e2e/framework/fixtures"
	"github.com/thesipincafe/site-e2e/e2e/framework/session"
	"github.com/thesipincafe/site-e2e/e2e/framework/spec"
)

func homeDOM() *browsertest.DOM {
	return browsertest.NewDOM().
		Add("css:h1", &browsertest.Node{Text: " The Sip-In Cafe "}).
		Add("css:input[name=email]", &browsertest.Node{}).
		Add("role:button:Subscribe", &browsertest.Node{}).
		Add("css:footer a[href^='tel:']", &browsertest.Node{Text: "0116 123 4567", Attrs: map[string]string{"href": "tel:01161234567"}})
}

func newExec(t *testing.T, page *browsertest.Page, registry *fixtures.Registry) *Context {
	t.Helper()
	driver := browsertest.NewDriver(page)
	mgr := session.NewManager(driver.Starter(), nil)
	s, err := mgr.Acquire(context.Background(), session.Config{Viewport: browser.Size{Width: 1280, Height: 800}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Release(s) })

	cfg := config.Default()
	cfg.BaseURL = "http://site.test"
	cfg.ActionTimeout = time.Second
	cfg.ReadyTimeout = 50 * time.Millisecond

	writer, err := artifacts.NewWriter(t.TempDir())
	require.NoError(t, err)
	scenario := &spec.Scenario{Metadata: spec.Metadata{Name: "TC001 home"}, Params: map[string]string{"hero": "The Sip-In Cafe"}}
	exec := NewContext("run-1", scenario, zap.NewNop(), writer, registry, cfg)
	exec.Session = s
	exec.Collector = assertions.NewCollector(assertions.Options{Timeout: 50 * time.Millisecond, PollInterval: 5 * time.Millisecond}, nil)
	return exec
}

func run(t *testing.T, exec *Context, action string, with map[string]interface{}) (map[string]string, error) {
	t.Helper()
	reg := NewRegistry()
	RegisterDefaults(reg)
	return reg.Execute(context.Background(), exec, spec.StepSpec{Name: action, Action: action, With: with})
}

func TestRegistryDefaults(t *testing.T) {
	reg := NewRegistry()
	RegisterDefaults(reg)
	for _, action := range []string{
		"navigate", "wait.ready", "wait.visible", "wait.hidden", "click", "fill", "hover", "press",
		"scroll.by", "scroll.viewport", "viewport.set", "screenshot", "probe.route", "sleep",
		"wait.animations",
		"assert.text", "assert.visible", "assert.hidden", "assert.count", "assert.enabled",
		"assert.attribute", "assert.url", "assert.console_clean", "assert.performance", "assert.accessibility",
	} {
		assert.True(t, reg.Has(action), action)
	}
	assert.True(t, reg.Has(" Navigate "))
	assert.Len(t, reg.Actions(), 25)

	err := reg.Validate(&spec.Scenario{
		Metadata: spec.Metadata{Name: "broken"},
		Steps:    []spec.StepSpec{{Name: "go", Action: "navigate"}, {Name: "drag", Action: "drag.drop"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drag (drag.drop)")

	_, err = reg.Execute(context.Background(), &Context{}, spec.StepSpec{Action: "teleport"})
	assert.Error(t, err)
}

func TestNavigateResolvesAgainstBaseURL(t *testing.T) {
	page := browsertest.NewPage(browsertest.NewDOM()).Route("/menu", homeDOM())
	page.IFrames = []*browsertest.Frame{{FrameName: "map"}, {FrameName: "ads", LoadErr: errors.New("blocked")}}
	exec := newExec(t, page, nil)

	metadata, err := run(t, exec, "navigate", map[string]interface{}{"path": "/menu"})
	require.NoError(t, err)
	assert.Equal(t, "http://site.test/menu", metadata["url"])
	assert.Equal(t, "true", metadata["page_ready"])
	assert.Equal(t, "map", metadata["ready_frames"])
	assert.Equal(t, "ads", metadata["skipped_frames"])
	assert.Equal(t, 1, page.Recorder().Count("page.goto http://site.test/menu"))
}

func TestNavigateContinuesAfterReadinessTimeout(t *testing.T) {
	page := browsertest.NewPage(homeDOM())
	page.LoadErr[browser.LoadStateNetworkIdle] = fmt.Errorf("idle: %w", browser.ErrTimeout)
	exec := newExec(t, page, nil)

	metadata, err := run(t, exec, "navigate", map[string]interface{}{"url": "https://other.test/", "readiness": "networkidle"})
	require.NoError(t, err)
	assert.Equal(t, "false", metadata["page_ready"])
	assert.Equal(t, "true", metadata["readiness_timeout"])
	assert.Equal(t, "https://other.test/", metadata["url"])
}

func TestNavigateCommitFailureIsInfrastructure(t *testing.T) {
	page := browsertest.NewPage(homeDOM())
	page.GotoErr = errors.New("net::ERR_CONNECTION_REFUSED")
	exec := newExec(t, page, nil)

	_, err := run(t, exec, "navigate", map[string]interface{}{"path": "/"})
	require.Error(t, err)
	assert.True(t, fault.IsFatal(err))
}

func TestWaitVisibleTimesOutAsLocatorTimeout(t *testing.T) {
	exec := newExec(t, browsertest.NewPage(homeDOM()), nil)

	_, err := run(t, exec, "wait.visible", map[string]interface{}{"locator": "#newsletter-modal", "timeout": 20})
	var timeout *fault.LocatorTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.False(t, fault.IsFatal(err))

	_, err = run(t, exec, "wait.visible", map[string]interface{}{"locator": "h1"})
	assert.NoError(t, err)
}

func TestFillAndClickExpandFixtures(t *testing.T) {
	registry, err := fixtures.Parse([]byte("values:\n  email: hello@thesipincafe.co.uk\n"))
	require.NoError(t, err)
	dom := homeDOM()
	page := browsertest.NewPage(dom)
	exec := newExec(t, page, registry)

	_, err = run(t, exec, "fill", map[string]interface{}{"locator": "input[name=email]", "value": "${fixture.email}"})
	require.NoError(t, err)
	assert.Equal(t, "hello@thesipincafe.co.uk", dom.Elements["css:input[name=email]"][0].Value)

	_, err = run(t, exec, "click", map[string]interface{}{"locator": map[string]interface{}{"role": "button", "name": "Subscribe"}})
	require.NoError(t, err)
	assert.Equal(t, 1, dom.Elements["role:button:Subscribe"][0].Clicks)

	_, err = run(t, exec, "fill", map[string]interface{}{"locator": "input[name=email]"})
	assert.Error(t, err, "value is required")
}

func TestViewportSetThenScrollUsesNewHeight(t *testing.T) {
	page := browsertest.NewPage(homeDOM())
	exec := newExec(t, page, nil)

	metadata, err := run(t, exec, "viewport.set", map[string]interface{}{"name": "mobile"})
	require.NoError(t, err)
	assert.Equal(t, "mobile", metadata["viewport"])
	assert.Equal(t, "mobile", exec.Vars["viewport"])

	metadata, err = run(t, exec, "scroll.viewport", map[string]interface{}{"pages": 2})
	require.NoError(t, err)
	assert.Equal(t, "1334", metadata["dy"])
	_, dy := page.Scroll()
	assert.Equal(t, 1334.0, dy)

	_, err = run(t, exec, "viewport.set", map[string]interface{}{"name": "watch"})
	assert.Error(t, err)
	_, err = run(t, exec, "scroll.by", nil)
	assert.Error(t, err)
}

func TestAssertionHandlersRecordResults(t *testing.T) {
	page := browsertest.NewPage(browsertest.NewDOM()).Route("/", homeDOM())
	exec := newExec(t, page, nil)
	_, err := run(t, exec, "navigate", map[string]interface{}{"path": "/"})
	require.NoError(t, err)

	metadata, err := run(t, exec, "assert.text", map[string]interface{}{"locator": "h1", "expected": "${hero}"})
	require.NoError(t, err)
	assert.Equal(t, "true", metadata["passed"])

	metadata, err = run(t, exec, "assert.text", map[string]interface{}{"locator": "h1", "expected": "Page not found", "negate": true})
	require.NoError(t, err)
	assert.Equal(t, "true", metadata["passed"])

	metadata, err = run(t, exec, "assert.attribute", map[string]interface{}{
		"locator": "footer a[href^='tel:']", "name": "href", "values": []interface{}{"tel:01161234567", "tel:+441161234567"},
	})
	require.NoError(t, err)
	assert.Equal(t, "true", metadata["passed"])

	metadata, err = run(t, exec, "assert.count", map[string]interface{}{"locator": "h1", "op": "at-least", "count": 2})
	require.NoError(t, err)
	assert.Equal(t, "false", metadata["passed"])

	metadata, err = run(t, exec, "assert.url", map[string]interface{}{"expected": "/"})
	require.NoError(t, err)
	assert.Equal(t, "true", metadata["passed"])

	exec.Session.Console().Append("error", "Uncaught TypeError")
	metadata, err = run(t, exec, "assert.console_clean", nil)
	require.NoError(t, err)
	assert.Equal(t, "false", metadata["passed"])

	recorded := exec.Collector.Results()
	require.Len(t, recorded, 6)
	assert.False(t, recorded[3].Passed)
	assert.False(t, recorded[5].Passed)

	_, err = run(t, exec, "assert.text", map[string]interface{}{"locator": "h1"})
	assert.Error(t, err, "expected is required")

	metadata, err = run(t, exec, "assert.text", map[string]interface{}{
		"locator": "h1", "expected": []interface{}{"404", "Sip-In"}, "mode": "contains", "negate": true,
	})
	require.NoError(t, err)
	assert.Equal(t, "false", metadata["passed"])
	require.Len(t, exec.Collector.Results(), 7, "a negated step records one result for all its values")
	_, err = run(t, exec, "assert.url", map[string]interface{}{"match": "regex", "expected": "/"})
	assert.Error(t, err)
}

func TestAssertPerformanceUsesScenarioBudgets(t *testing.T) {
	page := browsertest.NewPage(homeDOM())
	page.EvalFunc = func(expression string, args ...any) (any, error) {
		return `{"lcp":1800,"cls":0.02,"load":2600,"fid":null,"images":3,"chunks":5}`, nil
	}
	exec := newExec(t, page, nil)
	load := 2000.0
	exec.Scenario.Budgets = spec.Budgets{LoadMs: &load}

	metadata, err := run(t, exec, "assert.performance", nil)
	require.NoError(t, err)
	assert.Equal(t, "false", metadata["passed"])
	assert.Equal(t, "3", metadata["optimized_images"])

	recorded := exec.Collector.Results()
	require.Len(t, recorded, 4)
	var failed []string
	for _, r := range recorded {
		if !r.Passed {
			failed = append(failed, r.Description)
		}
	}
	assert.Equal(t, []string{"page load time within budget"}, failed)
}

func TestScenarioZeroBudgetIsKept(t *testing.T) {
	zero := 0.0
	exec := newExec(t, browsertest.NewPage(homeDOM()), nil)
	exec.Scenario.Budgets = spec.Budgets{CLS: &zero}

	budgets := exec.budgets()
	assert.Equal(t, 0.0, budgets.CLS)
	assert.Equal(t, assertions.DefaultLCPBudgetMs, budgets.LCPMs)
}

func TestProbeRouteRecordsExpectation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `<html><body><main><h1>404</h1><p>Page not found</p></main></body></html>`)
	}))
	defer srv.Close()
	exec := newExec(t, browsertest.NewPage(homeDOM()), nil)
	exec.BaseURL = srv.URL

	metadata, err := run(t, exec, "probe.route", map[string]interface{}{"path": "/this-page-does-not-exist", "expect": "not-found", "contains": "page not found"})
	require.NoError(t, err)
	assert.Equal(t, "404", metadata["status"])
	assert.Equal(t, "true", metadata["passed"])

	_, err = run(t, exec, "probe.route", map[string]interface{}{"path": "/", "expect": "teapot"})
	assert.Error(t, err)
}

func TestRouteCheckFollowsCurrentPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/posts" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `<html><body><main><h1>404</h1></main></body></html>`)
			return
		}
		fmt.Fprint(w, `<html><head><title>Posts</title></head><body><main><h1>Latest from The Sip-In Cafe</h1></main></body></html>`)
	}))
	defer srv.Close()

	page := browsertest.NewPage(homeDOM())
	exec := newExec(t, page, nil)
	exec.BaseURL = srv.URL
	require.NoError(t, page.Goto(srv.URL+"/posts", "commit", time.Second))

	metadata, err := run(t, exec, "probe.route", map[string]interface{}{"current": true, "expect": "ok", "contains": "sip-in cafe"})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/posts", metadata["url"])
	assert.Equal(t, "200", metadata["status"])
	assert.Equal(t, "true", metadata["passed"])

	require.NoError(t, page.Goto(srv.URL+"/blog", "commit", time.Second))
	metadata, err = run(t, exec, "probe.route", map[string]interface{}{"current": true, "expect": "ok"})
	require.NoError(t, err)
	assert.Equal(t, "false", metadata["passed"])
}

func TestScreenshotWritesUnderScenario(t *testing.T) {
	exec := newExec(t, browsertest.NewPage(homeDOM()), nil)
	profile, ok := exec.Profiles.Get("tablet")
	require.True(t, ok)
	exec.SetViewport(profile)

	metadata, err := run(t, exec, "screenshot", map[string]interface{}{"name": "Hero"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(exec.Artifacts.RunDir, artifacts.ScenarioPath("TC001 home", "hero-tablet.png")), metadata["path"])
	data, err := os.ReadFile(metadata["path"])
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestSleepHonoursContext(t *testing.T) {
	reg := NewRegistry()
	RegisterMiscHandlers(reg)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := reg.Execute(ctx, &Context{}, spec.StepSpec{Action: "sleep", With: map[string]interface{}{"duration": "1h"}})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = reg.Execute(context.Background(), &Context{}, spec.StepSpec{Action: "sleep", With: map[string]interface{}{"duration": "soon"}})
	assert.EqualError(t, err, `invalid sleep duration "soon"`)
}

func TestWaitAnimationsSettles(t *testing.T) {
	page := browsertest.NewPage(homeDOM())
	remaining := 3
	page.EvalFunc = func(expression string, args ...any) (any, error) {
		if remaining > 0 {
			remaining--
		}
		return float64(remaining), nil
	}
	exec := newExec(t, page, nil)

	metadata, err := run(t, exec, "wait.animations", map[string]interface{}{"timeout": "1s"})
	require.NoError(t, err)
	assert.Equal(t, "0", metadata["running"])
}

func TestWaitAnimationsTimeoutIsSoft(t *testing.T) {
	page := browsertest.NewPage(homeDOM())
	page.EvalFunc = func(string, ...any) (any, error) { return float64(1), nil }
	exec := newExec(t, page, nil)

	metadata, err := run(t, exec, "wait.animations", map[string]interface{}{"timeout": 120})
	require.NoError(t, err)
	assert.Equal(t, "false", metadata["settled"])
	assert.Equal(t, "1", metadata["running"])
	assert.Equal(t, "true", metadata["readiness_timeout"])

	page.EvalFunc = func(string, ...any) (any, error) { return nil, errors.New("execution context destroyed") }
	_, err = run(t, exec, "wait.animations", map[string]interface{}{"timeout": 120})
	assert.ErrorContains(t, err, "execution context destroyed")
}

func TestResolveURL(t *testing.T) {
	exec := &Context{BaseURL: "http://localhost:3000/"}
	got, err := exec.ResolveURL("/contact")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/contact", got)

	got, err = exec.ResolveURL("https://maps.google.com/?q=cafe")
	require.NoError(t, err)
	assert.Equal(t, "https://maps.google.com/?q=cafe", got)

	_, err = (&Context{}).ResolveURL("/menu")
	assert.Error(t, err)
}

func TestScenarioCatalogueIsValid(t *testing.T) {
	scenarios, err := spec.LoadScenarios(filepath.Join("..", "..", "specs"))
	require.NoError(t, err)
	require.Len(t, scenarios, 10)

	reg := NewRegistry()
	RegisterDefaults(reg)
	names := map[string]bool{}
	for i := range scenarios {
		assert.NoError(t, reg.Validate(&scenarios[i]), scenarios[i].Source)
		assert.False(t, names[scenarios[i].Metadata.Name], "duplicate %s", scenarios[i].Metadata.Name)
		names[scenarios[i].Metadata.Name] = true
	}

	registry, err := fixtures.LoadRegistry(filepath.Join("..", "..", "fixtures", "site.yaml"))
	require.NoError(t, err)
	name, ok := registry.Get("name")
	require.True(t, ok)
	assert.Equal(t, "The Sip-In Cafe", name)
	route, ok := registry.Route("missing")
	require.True(t, ok)
	assert.Equal(t, "/non-existent-random-url-12345", route)
}

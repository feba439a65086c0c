package steps

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/thesipincafe/site-e2e/e2e/framework/artifacts"
	"github.com/thesipincafe/site-e2e/e2e/framework/assertions"
	"github.com/thesipincafe/site-e2e/e2e/framework/browser"
	"github.com/thesipincafe/site-e2e/e2e/framework/config"
	"github.com/thesipincafe/site-e2e/e2e/framework/fixtures"
	"github.com/thesipincafe/site-e2e/e2e/framework/interact"
	"github.com/thesipincafe/site-e2e/e2e/framework/navigate"
	"github.com/thesipincafe/site-e2e/e2e/framework/probe"
	"github.com/thesipincafe/site-e2e/e2e/framework/session"
	"github.com/thesipincafe/site-e2e/e2e/framework/spec"
	"github.com/thesipincafe/site-e2e/e2e/framework/viewport"
)

// Context holds shared state for step execution within one scenario.
type Context struct {
	RunID        string
	ScenarioName string
	Logger       *zap.Logger
	Artifacts    *artifacts.Writer
	Fixtures     *fixtures.Registry
	Config       *config.Config
	Scenario     *spec.Scenario

	Session   *session.Session
	Waiter    *navigate.Waiter
	Driver    *interact.Driver
	Collector *assertions.Collector
	Prober    *probe.Prober
	Profiles  *viewport.Set
	Viewports *viewport.Runner

	// Viewport is the profile currently applied to the page.
	Viewport viewport.Profile
	BaseURL  string
	Vars     map[string]string
}

// NewContext creates a new execution context for a scenario.
func NewContext(runID string, scenario *spec.Scenario, logger *zap.Logger, writer *artifacts.Writer, registry *fixtures.Registry, cfg *config.Config) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	exec := &Context{
		RunID:     runID,
		Logger:    logger,
		Artifacts: writer,
		Fixtures:  registry,
		Config:    cfg,
		Scenario:  scenario,
		Waiter:    navigate.NewWaiter(logger),
		Prober:    probe.New(nil, logger),
		Profiles:  viewport.Standard(),
	}
	if cfg != nil {
		exec.BaseURL = cfg.BaseURL
	}
	if scenario != nil {
		exec.ScenarioName = scenario.Metadata.Name
		if scenario.BaseURL != "" {
			exec.BaseURL = scenario.BaseURL
		}
	}
	exec.Driver = interact.New(interact.Options{ActionTimeout: exec.actionTimeout()}, logger)
	exec.Viewports = viewport.NewRunner(viewport.Desktop, logger)

	vars := registry.Vars()
	vars["run_id"] = runID
	vars["base_url"] = strings.TrimRight(exec.BaseURL, "/")
	vars["scenario"] = exec.ScenarioName
	if scenario != nil {
		for key, value := range scenario.Params {
			vars[key] = value
		}
	}
	exec.Vars = vars
	return exec
}

// Page returns the page of the acquired session.
func (c *Context) Page() (browser.Page, error) {
	if c == nil || c.Session == nil || c.Session.Page() == nil {
		return nil, fmt.Errorf("no browser session acquired")
	}
	return c.Session.Page(), nil
}

// SetViewport records the applied profile and exposes it to step templates.
func (c *Context) SetViewport(p viewport.Profile) {
	c.Viewport = p
	c.Vars["viewport"] = p.Name
}

// ResolveURL joins a site path onto the base URL. Absolute URLs pass through.
func (c *Context) ResolveURL(target string) (string, error) {
	target = strings.TrimSpace(target)
	parsed, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", target, err)
	}
	if parsed.IsAbs() {
		return target, nil
	}
	if c.BaseURL == "" {
		return "", fmt.Errorf("relative url %q needs a base url", target)
	}
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", c.BaseURL, err)
	}
	return base.ResolveReference(parsed).String(), nil
}

func (c *Context) actionTimeout() time.Duration {
	if c.Config != nil && c.Config.ActionTimeout > 0 {
		return c.Config.ActionTimeout
	}
	return interact.DefaultActionTimeout
}

func (c *Context) commitTimeout() time.Duration {
	if c.Config != nil && c.Config.CommitTimeout > 0 {
		return c.Config.CommitTimeout
	}
	return navigate.DefaultCommitTimeout
}

func (c *Context) readyTimeout() time.Duration {
	if c.Config != nil && c.Config.ReadyTimeout > 0 {
		return c.Config.ReadyTimeout
	}
	return navigate.DefaultReadyTimeout
}

func (c *Context) readinessSignal() string {
	if c.Config != nil && c.Config.ReadinessSignal != "" {
		return c.Config.ReadinessSignal
	}
	return string(navigate.SignalDOMContentLoaded)
}

func (c *Context) budgets() assertions.Budgets {
	if c.Scenario == nil {
		return assertions.DefaultBudgets()
	}
	b := c.Scenario.Budgets
	return assertions.DefaultBudgets().Apply(assertions.Overrides{LCPMs: b.LCPMs, CLS: b.CLS, LoadMs: b.LoadMs, FIDMs: b.FIDMs})
}

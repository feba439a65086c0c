package assertions

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/thesipincafe/site-e2e/e2e/framework/browser"
	"github.com/thesipincafe/site-e2e/e2e/framework/fault"
	"github.com/thesipincafe/site-e2e/e2e/framework/locator"
	"github.com/thesipincafe/site-e2e/e2e/framework/results"
)

// Mode selects how text is compared.
type Mode string

const (
	ModeExactTrim               Mode = "exact-trim"
	ModeContains                Mode = "contains"
	ModeCaseInsensitiveContains Mode = "case-insensitive-contains"
)

// ParseMode accepts mode names as written in scenario files.
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "exact-trim", "exact":
		return ModeExactTrim, nil
	case "contains":
		return ModeContains, nil
	case "case-insensitive-contains", "icontains":
		return ModeCaseInsensitiveContains, nil
	default:
		return "", fmt.Errorf("unknown text mode %q", value)
	}
}

// Match compares actual against expected under mode.
func Match(mode Mode, actual, expected string) bool {
	switch mode {
	case ModeContains:
		return strings.Contains(actual, expected)
	case ModeCaseInsensitiveContains:
		return strings.Contains(strings.ToLower(actual), strings.ToLower(expected))
	default:
		return strings.TrimSpace(actual) == expected
	}
}

// CountOp compares a match count with a bound.
type CountOp string

const (
	CountEquals  CountOp = "equals"
	CountAtLeast CountOp = "at-least"
	CountAtMost  CountOp = "at-most"
)

// ParseCountOp accepts count operators as written in scenario files.
func ParseCountOp(value string) (CountOp, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "equals", "eq", "==":
		return CountEquals, nil
	case "at-least", "min", "gte", ">=":
		return CountAtLeast, nil
	case "at-most", "max", "lte", "<=":
		return CountAtMost, nil
	default:
		return "", fmt.Errorf("unknown count operator %q", value)
	}
}

func (op CountOp) holds(count, bound int) bool {
	switch op {
	case CountAtLeast:
		return count >= bound
	case CountAtMost:
		return count <= bound
	default:
		return count == bound
	}
}

// URLMatch selects how the current URL is compared.
type URLMatch string

const (
	URLPath     URLMatch = "path"
	URLContains URLMatch = "contains"
	URLSuffix   URLMatch = "suffix"
)

const DefaultTimeout = 5 * time.Second

// Options tunes the collector.
type Options struct {
	FailFast bool
	// Timeout bounds how long a check waits for its target to settle.
	Timeout      time.Duration
	PollInterval time.Duration
	// AxeScript is injected when the page does not already expose axe.
	AxeScript string
}

// Collector records assertion results for one scenario. Each Assert call records exactly one
// result and never returns an error; failures are data.
type Collector struct {
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	results  []results.AssertionResult
	step     string
	viewport string
}

// NewCollector returns an empty collector.
func NewCollector(opts Options, logger *zap.Logger) *Collector {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{opts: opts, logger: logger, now: time.Now}
}

// Scope attributes subsequent results to step and viewport.
func (c *Collector) Scope(step, viewport string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = step
	c.viewport = viewport
}

// Record stamps r with the current scope and appends a copy.
func (c *Collector) Record(r results.AssertionResult) results.AssertionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r.Step == "" {
		r.Step = c.step
	}
	if r.Viewport == "" {
		r.Viewport = c.viewport
	}
	if r.Kind == "" && !r.Passed {
		r.Kind = string(fault.KindAssertion)
	}
	r.RecordedAt = c.now()
	c.results = append(c.results, r)
	if !r.Passed {
		c.logger.Info("assertion failed",
			zap.String("step", r.Step),
			zap.String("viewport", r.Viewport),
			zap.String("description", r.Description),
			zap.String("expected", r.Expected),
			zap.String("actual", r.Actual),
		)
	}
	return r
}

// RecordError turns a non-assertion failure (locator timeout, step error) into one failed result.
func (c *Collector) RecordError(description string, expected string, err error) results.AssertionResult {
	actual := err.Error()
	var lt *fault.LocatorTimeoutError
	if errors.As(err, &lt) {
		actual = lt.Error()
	}
	return c.Record(results.AssertionResult{
		Description: description,
		Expected:    expected,
		Actual:      actual,
		Passed:      false,
		Kind:        string(fault.KindOf(err)),
	})
}

// Results returns a copy of everything recorded so far.
func (c *Collector) Results() []results.AssertionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]results.AssertionResult(nil), c.results...)
}

// Len reports how many results were recorded.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

// FailedSince reports whether any result at index >= from failed.
func (c *Collector) FailedSince(from int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := from; i < len(c.results); i++ {
		if !c.results[i].Passed {
			return true
		}
	}
	return false
}

// ShouldStop is true once a failure is recorded under fail-fast.
func (c *Collector) ShouldStop() bool {
	return c.opts.FailFast && c.FailedSince(0)
}

func (c *Collector) timeout(ctx context.Context) time.Duration {
	timeout := c.opts.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	return timeout
}

func target(page browser.Page, spec locator.Spec) browser.Element {
	el := locator.Resolve(page, spec)
	if spec.Nth == nil {
		el = el.First()
	}
	return el
}

// readText waits for spec to attach and returns its rendered text.
func (c *Collector) readText(ctx context.Context, page browser.Page, spec locator.Spec) (string, error) {
	el := target(page, spec)
	if err := el.WaitFor(browser.ElementAttached, c.timeout(ctx)); err != nil {
		return "", err
	}
	text, err := el.InnerText()
	if err != nil {
		return el.TextContent()
	}
	return text, nil
}

// AssertText checks the text of spec against expected.
func (c *Collector) AssertText(ctx context.Context, page browser.Page, spec locator.Spec, expected string, mode Mode) results.AssertionResult {
	return c.AssertTextAny(ctx, page, spec, []string{expected}, mode)
}

// AssertTextAny passes when the text of spec matches at least one of expected.
func (c *Collector) AssertTextAny(ctx context.Context, page browser.Page, spec locator.Spec, expected []string, mode Mode) results.AssertionResult {
	start := time.Now()
	description := fmt.Sprintf("text of %s (%s)", spec, mode)
	want := strings.Join(expected, " | ")
	actual, err := c.readText(ctx, page, spec)
	if err != nil {
		return c.Record(results.AssertionResult{
			Description: description,
			Expected:    want,
			Actual:      "not found: " + err.Error(),
			Duration:    time.Since(start),
		})
	}
	passed := false
	for _, candidate := range expected {
		if Match(mode, actual, candidate) {
			passed = true
			break
		}
	}
	return c.Record(results.AssertionResult{
		Description: description,
		Expected:    want,
		Actual:      strings.TrimSpace(actual),
		Passed:      passed,
		Duration:    time.Since(start),
	})
}

// AssertNoText passes when spec is absent or its text matches none of unexpected.
func (c *Collector) AssertNoText(ctx context.Context, page browser.Page, spec locator.Spec, unexpected []string, mode Mode) results.AssertionResult {
	start := time.Now()
	result := results.AssertionResult{
		Description: fmt.Sprintf("text of %s excludes (%s)", spec, mode),
		Expected:    "none of " + strings.Join(unexpected, " | "),
		Actual:      "absent",
		Passed:      true,
	}
	if count, err := locator.Resolve(page, spec).Count(); err == nil && count > 0 {
		el := target(page, spec)
		actual, err := el.InnerText()
		if err != nil {
			actual, _ = el.TextContent()
		}
		result.Actual = truncate(strings.TrimSpace(actual), 200)
		for _, value := range unexpected {
			if Match(mode, actual, value) {
				result.Passed = false
				break
			}
		}
	}
	result.Duration = time.Since(start)
	return c.Record(result)
}

// AssertVisible passes when spec becomes visible within the collector timeout.
func (c *Collector) AssertVisible(ctx context.Context, page browser.Page, spec locator.Spec) results.AssertionResult {
	return c.assertState(ctx, page, spec, browser.ElementVisible)
}

// AssertHidden passes when spec is hidden or detached within the collector timeout.
func (c *Collector) AssertHidden(ctx context.Context, page browser.Page, spec locator.Spec) results.AssertionResult {
	return c.assertState(ctx, page, spec, browser.ElementHidden)
}

func (c *Collector) assertState(ctx context.Context, page browser.Page, spec locator.Spec, state browser.ElementState) results.AssertionResult {
	start := time.Now()
	err := target(page, spec).WaitFor(state, c.timeout(ctx))
	actual := string(state)
	if err != nil {
		actual = "not " + string(state) + ": " + err.Error()
	}
	return c.Record(results.AssertionResult{
		Description: fmt.Sprintf("%s is %s", spec, state),
		Expected:    string(state),
		Actual:      actual,
		Passed:      err == nil,
		Duration:    time.Since(start),
	})
}

// AssertCount compares the number of matches of spec with bound, waiting for it to hold.
func (c *Collector) AssertCount(ctx context.Context, page browser.Page, spec locator.Spec, op CountOp, bound int) results.AssertionResult {
	start := time.Now()
	count := -1
	err := wait.PollUntilContextTimeout(ctx, c.opts.PollInterval, c.timeout(ctx), true, func(ctx context.Context) (bool, error) {
		n, err := locator.Resolve(page, spec).Count()
		if err != nil {
			return false, nil
		}
		count = n
		return op.holds(n, bound), nil
	})
	actual := strconv.Itoa(count)
	if count < 0 && err != nil {
		actual = "unresolved: " + err.Error()
	}
	return c.Record(results.AssertionResult{
		Description: fmt.Sprintf("count of %s", spec),
		Expected:    fmt.Sprintf("%s %d", op, bound),
		Actual:      actual,
		Passed:      err == nil,
		Duration:    time.Since(start),
	})
}

// AssertEnabled passes when spec is attached and enabled.
func (c *Collector) AssertEnabled(ctx context.Context, page browser.Page, spec locator.Spec) results.AssertionResult {
	start := time.Now()
	el := target(page, spec)
	actual := "enabled"
	passed := false
	if err := el.WaitFor(browser.ElementAttached, c.timeout(ctx)); err != nil {
		actual = "not found: " + err.Error()
	} else if enabled, err := el.IsEnabled(); err != nil {
		actual = err.Error()
	} else if !enabled {
		actual = "disabled"
	} else {
		passed = true
	}
	return c.Record(results.AssertionResult{
		Description: fmt.Sprintf("%s is enabled", spec),
		Expected:    "enabled",
		Actual:      actual,
		Passed:      passed,
		Duration:    time.Since(start),
	})
}

// AssertAttribute passes when spec carries name and, if allowed is non-empty, its value is one of allowed.
func (c *Collector) AssertAttribute(ctx context.Context, page browser.Page, spec locator.Spec, name string, allowed []string) results.AssertionResult {
	start := time.Now()
	el := target(page, spec)
	expected := "present"
	if len(allowed) > 0 {
		expected = strings.Join(allowed, " | ")
	}
	result := results.AssertionResult{
		Description: fmt.Sprintf("attribute %s of %s", name, spec),
		Expected:    expected,
	}
	if err := el.WaitFor(browser.ElementAttached, c.timeout(ctx)); err != nil {
		result.Actual = "not found: " + err.Error()
	} else if value, ok, err := el.GetAttribute(name); err != nil {
		result.Actual = err.Error()
	} else if !ok {
		result.Actual = "absent"
	} else {
		result.Actual = value
		result.Passed = len(allowed) == 0 || contains(allowed, value)
	}
	result.Duration = time.Since(start)
	return c.Record(result)
}

// AssertURL waits until the page URL matches any of expected. Client-side routing
// updates the URL after the click that triggered it resolves.
func (c *Collector) AssertURL(ctx context.Context, page browser.Page, match URLMatch, expected []string) results.AssertionResult {
	start := time.Now()
	current := page.URL()
	err := wait.PollUntilContextTimeout(ctx, c.opts.PollInterval, c.timeout(ctx), true, func(context.Context) (bool, error) {
		current = page.URL()
		return urlMatches(match, current, expected), nil
	})
	return c.Record(results.AssertionResult{
		Description: fmt.Sprintf("url %s", match),
		Expected:    strings.Join(expected, " | "),
		Actual:      current,
		Passed:      err == nil,
		Duration:    time.Since(start),
	})
}

func urlMatches(match URLMatch, current string, expected []string) bool {
	subject := current
	if match == URLPath {
		subject = "/"
		if parsed, err := url.Parse(current); err == nil && parsed.Path != "" {
			subject = parsed.Path
		}
	}
	for _, want := range expected {
		switch match {
		case URLContains:
			if strings.Contains(subject, want) {
				return true
			}
		case URLSuffix:
			if strings.HasSuffix(subject, want) {
				return true
			}
		default:
			if subject == want {
				return true
			}
		}
	}
	return false
}

// AssertConsoleClean passes when entries hold no console errors or page errors.
func (c *Collector) AssertConsoleClean(entries []results.ConsoleEntry) results.AssertionResult {
	var errs []string
	for _, entry := range entries {
		if entry.Type == "error" || entry.Type == "pageerror" {
			errs = append(errs, entry.Text)
		}
	}
	actual := "no errors"
	if len(errs) > 0 {
		shown := errs
		if len(shown) > 3 {
			shown = shown[:3]
		}
		actual = fmt.Sprintf("%d errors: %s", len(errs), strings.Join(shown, "; "))
	}
	return c.Record(results.AssertionResult{
		Description: "console has no errors",
		Expected:    "no errors",
		Actual:      truncate(actual, 500),
		Passed:      len(errs) == 0,
	})
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max] + "..."
}

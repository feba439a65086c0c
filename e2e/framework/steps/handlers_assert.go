package steps

import (
	"context"
	"fmt"
	"strconv"

	"github.com/thesipincafe/site-e2e/e2e/framework/assertions"
	"github.com/thesipincafe/site-e2e/e2e/framework/browser"
	"github.com/thesipincafe/site-e2e/e2e/framework/locator"
	"github.com/thesipincafe/site-e2e/e2e/framework/results"
	"github.com/thesipincafe/site-e2e/e2e/framework/spec"
)

// RegisterAssertionHandlers registers assertion steps. Assertion handlers record their
// outcome on the collector and only return an error when the step itself is malformed
// or the page cannot be reached.
func RegisterAssertionHandlers(reg *Registry) {
	reg.Register("assert.text", handleAssertText)
	reg.Register("assert.visible", handleAssertVisible)
	reg.Register("assert.hidden", handleAssertHidden)
	reg.Register("assert.count", handleAssertCount)
	reg.Register("assert.enabled", handleAssertEnabled)
	reg.Register("assert.attribute", handleAssertAttribute)
	reg.Register("assert.url", handleAssertURL)
	reg.Register("assert.console_clean", handleAssertConsoleClean)
	reg.Register("assert.performance", handleAssertPerformance)
	reg.Register("assert.accessibility", handleAssertAccessibility)
}

// assertTarget returns the page, the collector and the step's locator.
func assertTarget(exec *Context, step spec.StepSpec) (browser.Page, *assertions.Collector, locator.Spec, error) {
	page, collector, err := assertPage(exec)
	if err != nil {
		return nil, nil, locator.Spec{}, err
	}
	target, err := getLocator(step.With, "locator", exec.Vars)
	if err != nil {
		return nil, nil, locator.Spec{}, err
	}
	return page, collector, target, nil
}

func assertPage(exec *Context) (browser.Page, *assertions.Collector, error) {
	if exec.Collector == nil {
		return nil, nil, fmt.Errorf("no assertion collector configured")
	}
	page, err := exec.Page()
	if err != nil {
		return nil, nil, err
	}
	return page, exec.Collector, nil
}

func outcome(result results.AssertionResult) map[string]string {
	return map[string]string{"passed": strconv.FormatBool(result.Passed), "actual": result.Actual}
}

func handleAssertText(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	page, collector, target, err := assertTarget(exec, step)
	if err != nil {
		return nil, err
	}
	mode, err := assertions.ParseMode(getString(step.With, "mode", ""))
	if err != nil {
		return nil, err
	}
	expected := expandStringSlice(getStringList(step.With, "expected"), exec.Vars)
	if len(expected) == 0 {
		return nil, fmt.Errorf("assert.text requires expected")
	}
	if getBool(step.With, "negate", false) {
		return outcome(collector.AssertNoText(ctx, page, target, expected, mode)), nil
	}
	return outcome(collector.AssertTextAny(ctx, page, target, expected, mode)), nil
}

func handleAssertVisible(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	page, collector, target, err := assertTarget(exec, step)
	if err != nil {
		return nil, err
	}
	return outcome(collector.AssertVisible(ctx, page, target)), nil
}

func handleAssertHidden(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	page, collector, target, err := assertTarget(exec, step)
	if err != nil {
		return nil, err
	}
	return outcome(collector.AssertHidden(ctx, page, target)), nil
}

func handleAssertCount(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	page, collector, target, err := assertTarget(exec, step)
	if err != nil {
		return nil, err
	}
	op, err := assertions.ParseCountOp(getString(step.With, "op", ""))
	if err != nil {
		return nil, err
	}
	bound := getInt(step.With, "count", -1)
	if bound < 0 {
		return nil, fmt.Errorf("assert.count requires a non-negative count")
	}
	return outcome(collector.AssertCount(ctx, page, target, op, bound)), nil
}

func handleAssertEnabled(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	page, collector, target, err := assertTarget(exec, step)
	if err != nil {
		return nil, err
	}
	return outcome(collector.AssertEnabled(ctx, page, target)), nil
}

func handleAssertAttribute(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	page, collector, target, err := assertTarget(exec, step)
	if err != nil {
		return nil, err
	}
	name := getString(step.With, "name", "")
	if name == "" {
		return nil, fmt.Errorf("assert.attribute requires name")
	}
	allowed := expandStringSlice(getStringList(step.With, "values"), exec.Vars)
	if len(allowed) == 0 {
		allowed = expandStringSlice(getStringList(step.With, "value"), exec.Vars)
	}
	return outcome(collector.AssertAttribute(ctx, page, target, name, allowed)), nil
}

func handleAssertURL(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	page, collector, err := assertPage(exec)
	if err != nil {
		return nil, err
	}
	match := assertions.URLMatch(getString(step.With, "match", string(assertions.URLPath)))
	switch match {
	case assertions.URLPath, assertions.URLContains, assertions.URLSuffix:
	default:
		return nil, fmt.Errorf("unknown url match %q", match)
	}
	expected := expandStringSlice(getStringList(step.With, "expected"), exec.Vars)
	if len(expected) == 0 {
		return nil, fmt.Errorf("assert.url requires expected")
	}
	return outcome(collector.AssertURL(ctx, page, match, expected)), nil
}

func handleAssertConsoleClean(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	if exec.Collector == nil || exec.Session == nil {
		return nil, fmt.Errorf("assert.console_clean requires a browser session")
	}
	return outcome(exec.Collector.AssertConsoleClean(exec.Session.Console().Errors())), nil
}

func handleAssertPerformance(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	page, collector, err := assertPage(exec)
	if err != nil {
		return nil, err
	}
	snap, err := collector.CollectPerformance(page)
	if err != nil {
		return nil, err
	}
	budgets := exec.budgets()
	budgets.LCPMs = getFloat(step.With, "lcpMs", budgets.LCPMs)
	budgets.CLS = getFloat(step.With, "cls", budgets.CLS)
	budgets.LoadMs = getFloat(step.With, "loadMs", budgets.LoadMs)
	budgets.FIDMs = getFloat(step.With, "fidMs", budgets.FIDMs)

	metadata := snap.Metadata()
	passed := true
	for _, result := range collector.AssertPerformance(snap, budgets) {
		passed = passed && result.Passed
	}
	metadata["passed"] = strconv.FormatBool(passed)
	return metadata, nil
}

func handleAssertAccessibility(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	page, collector, err := assertPage(exec)
	if err != nil {
		return nil, err
	}
	return outcome(collector.AssertNoCriticalViolations(page)), nil
}

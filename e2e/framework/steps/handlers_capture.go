package steps

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/thesipincafe/site-e2e/e2e/framework/artifacts"
	"github.com/thesipincafe/site-e2e/e2e/framework/fault"
	"github.com/thesipincafe/site-e2e/e2e/framework/results"
	"github.com/thesipincafe/site-e2e/e2e/framework/spec"
	"github.com/thesipincafe/site-e2e/e2e/framework/viewport"
)

// RegisterCaptureHandlers registers viewport, screenshot and route probe steps.
func RegisterCaptureHandlers(reg *Registry) {
	reg.Register("viewport.set", handleViewportSet)
	reg.Register("screenshot", handleScreenshot)
	reg.Register("probe.route", handleProbeRoute)
}

func handleViewportSet(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	page, err := exec.Page()
	if err != nil {
		return nil, err
	}
	profile := viewport.Profile{
		Name:   getString(step.With, "name", ""),
		Width:  getInt(step.With, "width", 0),
		Height: getInt(step.With, "height", 0),
	}
	if profile.Width == 0 && profile.Height == 0 {
		known, ok := exec.Profiles.Get(profile.Name)
		if !ok {
			return nil, fmt.Errorf("unknown viewport profile %q", profile.Name)
		}
		profile = known
	}
	if profile.Width <= 0 || profile.Height <= 0 {
		return nil, fmt.Errorf("viewport.set requires a profile name or positive width and height")
	}
	if profile.Name == "" {
		profile.Name = fmt.Sprintf("%dx%d", profile.Width, profile.Height)
	}
	if err := exec.Viewports.Apply(page, profile); err != nil {
		return nil, err
	}
	exec.SetViewport(profile)
	return map[string]string{"viewport": profile.Name, "size": profile.Size().String()}, nil
}

func handleScreenshot(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	if exec.Artifacts == nil {
		return map[string]string{"skipped": "no artifact directory"}, nil
	}
	name := expandVars(getString(step.With, "name", step.Name), exec.Vars)
	path, err := CaptureScreenshot(exec, name, getBool(step.With, "fullPage", true))
	if err != nil {
		return nil, err
	}
	return map[string]string{"path": path}, nil
}

// CaptureScreenshot writes a PNG of the page under the scenario's artifact directory.
func CaptureScreenshot(exec *Context, name string, fullPage bool) (string, error) {
	page, err := exec.Page()
	if err != nil {
		return "", err
	}
	data, err := page.Screenshot(fullPage)
	if err != nil {
		return "", fault.Infrastructure("screenshot", err)
	}
	file := artifacts.Slug(name)
	if exec.Viewport.Name != "" {
		file += "-" + artifacts.Slug(exec.Viewport.Name)
	}
	return exec.Artifacts.WriteBytes(artifacts.ScenarioPath(exec.ScenarioName, file+".png"), data)
}

func handleProbeRoute(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	target := expandVars(getString(step.With, "url", getString(step.With, "path", "")), exec.Vars)
	if getBool(step.With, "current", false) {
		// The route the browser actually reached, e.g. after following a link.
		page, err := exec.Page()
		if err != nil {
			return nil, err
		}
		target = page.URL()
	}
	if target == "" {
		return nil, fmt.Errorf("probe.route requires url, path or current")
	}
	resolved, err := exec.ResolveURL(target)
	if err != nil {
		return nil, err
	}
	result, err := exec.Prober.Probe(ctx, resolved, getString(step.With, "selector", ""))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fault.Infrastructure("probe "+resolved, err)
	}
	metadata := map[string]string{
		"url":    resolved,
		"status": strconv.Itoa(result.Status),
		"title":  result.Title,
		"links":  strconv.Itoa(len(result.Links)),
	}

	expect := strings.ToLower(getString(step.With, "expect", ""))
	if expect == "" || exec.Collector == nil {
		return metadata, nil
	}
	actual := fmt.Sprintf("status %d", result.Status)
	var passed bool
	switch expect {
	case "ok":
		passed = result.OK()
	case "not-found":
		passed = result.NotFound()
	default:
		return nil, fmt.Errorf("probe.route expect must be ok or not-found, got %q", expect)
	}
	if contains := expandVars(getString(step.With, "contains", ""), exec.Vars); contains != "" {
		passed = passed && strings.Contains(strings.ToLower(result.Text), strings.ToLower(contains))
		actual += fmt.Sprintf(", text %q", truncateText(result.Text, 120))
	}
	exec.Collector.Record(results.AssertionResult{
		Description: fmt.Sprintf("route %s is %s", target, expect),
		Expected:    expect,
		Actual:      actual,
		Passed:      passed,
		Kind:        "probe",
		Duration:    result.Duration,
	})
	metadata["passed"] = strconv.FormatBool(passed)
	return metadata, nil
}

func truncateText(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max] + "..."
}

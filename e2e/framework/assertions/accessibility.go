package assertions

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/thesipincafe/site-e2e/e2e/framework/browser"
	"github.com/thesipincafe/site-e2e/e2e/framework/fault"
	"github.com/thesipincafe/site-e2e/e2e/framework/results"
)

// ImpactCritical is the only impact level reported.
const ImpactCritical = "critical"

// ErrRulesetUnavailable is returned when the page exposes no accessibility ruleset.
var ErrRulesetUnavailable = errors.New("accessibility ruleset unavailable")

const axePresentScript = `() => typeof window.axe !== 'undefined'`

const axeRunScript = `() => window.axe.run(document).then((r) => JSON.stringify(r.violations.map((v) => ({
  id: v.id, impact: v.impact, description: v.description, help: v.help, nodes: v.nodes.length,
}))))`

// CollectAccessibilityViolations runs the in-page ruleset and returns critical violations only.
func (c *Collector) CollectAccessibilityViolations(page browser.Page) ([]fault.AccessibilityViolation, error) {
	if err := c.ensureAxe(page); err != nil {
		return nil, err
	}
	raw, err := page.Evaluate(axeRunScript)
	if err != nil {
		return nil, fmt.Errorf("run accessibility ruleset: %w", err)
	}
	payload, ok := raw.(string)
	if !ok || !gjson.Valid(payload) {
		return nil, fmt.Errorf("accessibility payload has unexpected shape %T", raw)
	}
	return ParseViolations(payload), nil
}

// ParseViolations decodes a JSON violation list and keeps critical-impact entries.
func ParseViolations(payload string) []fault.AccessibilityViolation {
	var out []fault.AccessibilityViolation
	gjson.Parse(payload).ForEach(func(_, v gjson.Result) bool {
		if !strings.EqualFold(v.Get("impact").String(), ImpactCritical) {
			return true
		}
		out = append(out, fault.AccessibilityViolation{
			ID:          v.Get("id").String(),
			Impact:      ImpactCritical,
			Description: v.Get("description").String(),
			Help:        v.Get("help").String(),
			Nodes:       int(v.Get("nodes").Int()),
		})
		return true
	})
	return out
}

func (c *Collector) ensureAxe(page browser.Page) error {
	present, err := page.Evaluate(axePresentScript)
	if err == nil {
		if ok, _ := present.(bool); ok {
			return nil
		}
	}
	if c.opts.AxeScript == "" {
		return ErrRulesetUnavailable
	}
	if err := page.AddScriptTag(c.opts.AxeScript); err != nil {
		return fmt.Errorf("%w: inject %s: %v", ErrRulesetUnavailable, c.opts.AxeScript, err)
	}
	present, err = page.Evaluate(axePresentScript)
	if ok, _ := present.(bool); err != nil || !ok {
		return ErrRulesetUnavailable
	}
	return nil
}

// AssertNoCriticalViolations collects violations and records one result.
func (c *Collector) AssertNoCriticalViolations(page browser.Page) results.AssertionResult {
	violations, err := c.CollectAccessibilityViolations(page)
	result := results.AssertionResult{
		Description: "no critical accessibility violations",
		Expected:    "0 critical",
		Kind:        string(fault.KindAccessibility),
	}
	switch {
	case err != nil:
		result.Actual = err.Error()
	case len(violations) == 0:
		result.Actual = "0 critical"
		result.Passed = true
	default:
		ids := make([]string, 0, len(violations))
		for _, v := range violations {
			ids = append(ids, v.Error())
		}
		result.Actual = fmt.Sprintf("%d critical: %s", len(violations), truncate(strings.Join(ids, "; "), 500))
	}
	return c.Record(result)
}

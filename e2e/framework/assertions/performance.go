package assertions

import (
	"fmt"
	"math"
	"strconv"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/thesipincafe/site-e2e/e2e/framework/browser"
	"github.com/thesipincafe/site-e2e/e2e/framework/results"
)

// Default performance budgets.
const (
	DefaultLCPBudgetMs  = 2500.0
	DefaultCLSBudget    = 0.1
	DefaultLoadBudgetMs = 3000.0
	DefaultFIDBudgetMs  = 100.0
)

// Budgets are upper bounds; a metric passes when it is strictly below its budget.
type Budgets struct {
	LCPMs  float64 `json:"lcpMs,omitempty" yaml:"lcpMs,omitempty"`
	CLS    float64 `json:"cls,omitempty" yaml:"cls,omitempty"`
	LoadMs float64 `json:"loadMs,omitempty" yaml:"loadMs,omitempty"`
	FIDMs  float64 `json:"fidMs,omitempty" yaml:"fidMs,omitempty"`
}

// DefaultBudgets returns the standard thresholds.
func DefaultBudgets() Budgets {
	return Budgets{LCPMs: DefaultLCPBudgetMs, CLS: DefaultCLSBudget, LoadMs: DefaultLoadBudgetMs, FIDMs: DefaultFIDBudgetMs}
}

// Overrides replaces individual budgets. Nil keeps the current value; zero is a real,
// strict budget.
type Overrides struct {
	LCPMs  *float64
	CLS    *float64
	LoadMs *float64
	FIDMs  *float64
}

// Apply returns b with every set override in place.
func (b Budgets) Apply(o Overrides) Budgets {
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&b.LCPMs, o.LCPMs)
	set(&b.CLS, o.CLS)
	set(&b.LoadMs, o.LoadMs)
	set(&b.FIDMs, o.FIDMs)
	return b
}

// Snapshot is one reading of page performance. Nil fields were not observed.
type Snapshot struct {
	LCPMs  *float64 `json:"lcpMs,omitempty"`
	CLS    *float64 `json:"cls,omitempty"`
	LoadMs *float64 `json:"loadMs,omitempty"`
	FIDMs  *float64 `json:"fidMs,omitempty"`
	// OptimizedImages counts images served through the framework image optimizer.
	OptimizedImages int `json:"optimizedImages"`
	// Chunks counts code-split script chunks.
	Chunks int `json:"chunks"`
}

// Metadata flattens the snapshot for step metadata.
func (s Snapshot) Metadata() map[string]string {
	out := map[string]string{
		"optimized_images": strconv.Itoa(s.OptimizedImages),
		"chunks":           strconv.Itoa(s.Chunks),
	}
	put := func(key string, v *float64) {
		if v != nil {
			out[key] = strconv.FormatFloat(*v, 'f', -1, 64)
		}
	}
	put("lcp_ms", s.LCPMs)
	put("cls", s.CLS)
	put("load_ms", s.LoadMs)
	put("fid_ms", s.FIDMs)
	return out
}

// performanceScript observes buffered entries briefly and returns a JSON string.
const performanceScript = `() => new Promise((resolve) => {
  const out = { lcp: null, cls: null, load: null, fid: null, images: 0, chunks: 0 };
  const observe = (type, fn) => {
    try { new PerformanceObserver((list) => list.getEntries().forEach(fn)).observe({ type, buffered: true }); } catch (e) {}
  };
  observe('largest-contentful-paint', (e) => { out.lcp = e.startTime; });
  observe('layout-shift', (e) => { if (!e.hadRecentInput) { out.cls = (out.cls || 0) + e.value; } });
  observe('first-input', (e) => { out.fid = e.processingStart - e.startTime; });
  setTimeout(() => {
    const nav = performance.getEntriesByType('navigation')[0];
    if (nav && nav.loadEventEnd > 0) { out.load = nav.loadEventEnd - nav.startTime; }
    else if (performance.timing && performance.timing.loadEventEnd > 0) {
      out.load = performance.timing.loadEventEnd - performance.timing.navigationStart;
    }
    if (out.cls === null && PerformanceObserver.supportedEntryTypes.includes('layout-shift')) { out.cls = 0; }
    out.images = document.querySelectorAll('img[src*="_next/image"]').length;
    out.chunks = Array.from(document.scripts).filter((s) => s.src.includes('chunk')).length;
    resolve(JSON.stringify(out));
  }, 250);
})`

// CollectPerformance reads a performance snapshot from the page.
func (c *Collector) CollectPerformance(page browser.Page) (Snapshot, error) {
	raw, err := page.Evaluate(performanceScript)
	if err != nil {
		return Snapshot{}, fmt.Errorf("collect performance: %w", err)
	}
	return ParseSnapshot(raw)
}

// ParseSnapshot decodes the evaluate result, which is a JSON string or an already decoded map.
func ParseSnapshot(raw any) (Snapshot, error) {
	var doc gjson.Result
	switch v := raw.(type) {
	case string:
		if !gjson.Valid(v) {
			return Snapshot{}, fmt.Errorf("performance payload is not JSON")
		}
		doc = gjson.Parse(v)
	case map[string]any:
		return snapshotFromMap(v), nil
	default:
		return Snapshot{}, fmt.Errorf("performance payload has unexpected type %T", raw)
	}
	number := func(key string) *float64 {
		field := doc.Get(key)
		if !field.Exists() || field.Type != gjson.Number {
			return nil
		}
		f := field.Float()
		return &f
	}
	return Snapshot{
		LCPMs:           number("lcp"),
		CLS:             number("cls"),
		LoadMs:          number("load"),
		FIDMs:           number("fid"),
		OptimizedImages: int(doc.Get("images").Int()),
		Chunks:          int(doc.Get("chunks").Int()),
	}, nil
}

func snapshotFromMap(m map[string]any) Snapshot {
	number := func(key string) *float64 {
		switch v := m[key].(type) {
		case float64:
			return &v
		case int:
			f := float64(v)
			return &f
		}
		return nil
	}
	count := func(key string) int {
		if v := number(key); v != nil {
			return int(*v)
		}
		return 0
	}
	return Snapshot{
		LCPMs:           number("lcp"),
		CLS:             number("cls"),
		LoadMs:          number("load"),
		FIDMs:           number("fid"),
		OptimizedImages: count("images"),
		Chunks:          count("chunks"),
	}
}

// AssertPerformance records one result per budget, using budgets as given. A metric the page did not report passes
// with actual "not observed", since first-input delay only exists after real user input.
func (c *Collector) AssertPerformance(snap Snapshot, budgets Budgets) []results.AssertionResult {
	checks := []struct {
		name   string
		value  *float64
		budget float64
		unit   string
	}{
		{"largest contentful paint", snap.LCPMs, budgets.LCPMs, "ms"},
		{"cumulative layout shift", snap.CLS, budgets.CLS, ""},
		{"page load time", snap.LoadMs, budgets.LoadMs, "ms"},
		{"first input delay", snap.FIDMs, budgets.FIDMs, "ms"},
	}
	out := make([]results.AssertionResult, 0, len(checks))
	for _, check := range checks {
		result := results.AssertionResult{
			Description: check.name + " within budget",
			Expected:    "< " + formatMetric(check.budget, check.unit),
			Kind:        "performance",
		}
		if check.value == nil || math.IsNaN(*check.value) {
			result.Actual = "not observed"
			result.Passed = true
		} else {
			result.Actual = formatMetric(*check.value, check.unit)
			result.Passed = *check.value < check.budget
		}
		out = append(out, c.Record(result))
	}
	c.logger.Debug("performance snapshot", zap.Any("snapshot", snap.Metadata()))
	return out
}

func formatMetric(v float64, unit string) string {
	if unit == "" {
		return strconv.FormatFloat(v, 'f', 3, 64)
	}
	return strconv.FormatFloat(v, 'f', 0, 64) + unit
}

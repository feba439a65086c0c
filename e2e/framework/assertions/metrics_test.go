package assertions

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesipincafe/site-e2e/e2e/framework/browser/browsertest"
	"github.com/thesipincafe/site-e2e/e2e/framework/fault"
)

func TestAssertPerformanceBudgets(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantFailed []string
	}{
		{
			name:    "healthy page",
			payload: `{"lcp":1200,"cls":0.01,"load":1800,"fid":12,"images":4,"chunks":9}`,
		},
		{
			name:       "slow paint only",
			payload:    `{"lcp":3100,"cls":0.02,"load":1800,"fid":10,"images":4,"chunks":9}`,
			wantFailed: []string{"largest contentful paint within budget"},
		},
		{
			name:       "layout shift at budget fails",
			payload:    `{"lcp":900,"cls":0.1,"load":1000,"fid":5,"images":0,"chunks":3}`,
			wantFailed: []string{"cumulative layout shift within budget"},
		},
		{
			name:       "slow load and input",
			payload:    `{"lcp":900,"cls":0,"load":4500,"fid":250,"images":0,"chunks":3}`,
			wantFailed: []string{"page load time within budget", "first input delay within budget"},
		},
		{
			name:    "unobserved input delay passes",
			payload: `{"lcp":900,"cls":0,"load":1000,"fid":null,"images":0,"chunks":3}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := ParseSnapshot(tt.payload)
			require.NoError(t, err)

			c := newCollector(Options{})
			got := c.AssertPerformance(snap, DefaultBudgets())
			require.Len(t, got, 4)

			var failed []string
			for _, r := range got {
				if !r.Passed {
					failed = append(failed, r.Description)
				}
			}
			if diff := cmp.Diff(tt.wantFailed, failed); diff != "" {
				t.Errorf("failed budgets mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAssertPerformanceCustomBudget(t *testing.T) {
	snap, err := ParseSnapshot(`{"lcp":1800,"cls":0,"load":1000,"fid":0}`)
	require.NoError(t, err)

	c := newCollector(Options{})
	lcp := 1500.0
	got := c.AssertPerformance(snap, DefaultBudgets().Apply(Overrides{LCPMs: &lcp}))
	assert.False(t, got[0].Passed)
	assert.Equal(t, "< 1500ms", got[0].Expected)
	assert.Equal(t, "1800ms", got[0].Actual)
	assert.True(t, got[1].Passed)
}

func TestZeroBudgetIsStrict(t *testing.T) {
	snap, err := ParseSnapshot(`{"lcp":900,"cls":0.05,"load":1000,"fid":4}`)
	require.NoError(t, err)

	zero := 0.0
	budgets := DefaultBudgets().Apply(Overrides{CLS: &zero})
	assert.Equal(t, 0.0, budgets.CLS)
	assert.Equal(t, DefaultLCPBudgetMs, budgets.LCPMs)

	got := newCollector(Options{}).AssertPerformance(snap, budgets)
	require.Len(t, got, 4)
	assert.False(t, got[1].Passed)
	assert.Equal(t, "< 0.000", got[1].Expected)
	assert.Equal(t, "0.050", got[1].Actual)
}

func TestCollectPerformanceFromPage(t *testing.T) {
	page := homePage()
	page.EvalFunc = func(expression string, args ...any) (any, error) {
		return `{"lcp":1000.5,"cls":0.03,"load":2100,"fid":null,"images":6,"chunks":11}`, nil
	}
	c := newCollector(Options{})
	snap, err := c.CollectPerformance(page)
	require.NoError(t, err)
	require.NotNil(t, snap.LCPMs)
	assert.InDelta(t, 1000.5, *snap.LCPMs, 0.001)
	assert.Nil(t, snap.FIDMs)
	assert.Equal(t, 6, snap.OptimizedImages)
	assert.Equal(t, "11", snap.Metadata()["chunks"])

	_, err = ParseSnapshot(42)
	assert.Error(t, err)
}

const axePayload = `[
  {"id":"image-alt","impact":"critical","description":"Images must have alternate text","help":"Images need alt","nodes":2},
  {"id":"color-contrast","impact":"serious","description":"Contrast","help":"Contrast too low","nodes":5},
  {"id":"region","impact":"moderate","description":"Landmarks","help":"Use landmarks","nodes":1}
]`

func TestParseViolationsKeepsCriticalOnly(t *testing.T) {
	got := ParseViolations(axePayload)
	want := []fault.AccessibilityViolation{{
		ID:          "image-alt",
		Impact:      ImpactCritical,
		Description: "Images must have alternate text",
		Help:        "Images need alt",
		Nodes:       2,
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("violations mismatch (-want +got):\n%s", diff)
	}
}

func axePage(present bool, payload string) *browsertest.Page {
	page := homePage()
	page.ScriptFunc = func(path string) error {
		present = true
		return nil
	}
	page.EvalFunc = func(expression string, args ...any) (any, error) {
		if expression == axePresentScript {
			return present, nil
		}
		if !present {
			return nil, errors.New("axe is not defined")
		}
		return payload, nil
	}
	return page
}

func TestAccessibilityInjectsRuleset(t *testing.T) {
	page := axePage(false, `[]`)
	c := newCollector(Options{AxeScript: "testdata/axe.min.js"})

	got := c.AssertNoCriticalViolations(page)
	assert.True(t, got.Passed, got.Actual)
	assert.Equal(t, 1, page.Recorder().Count("page.script testdata/axe.min.js"))
}

func TestAccessibilityCriticalViolationFails(t *testing.T) {
	page := axePage(true, axePayload)
	c := newCollector(Options{})

	got := c.AssertNoCriticalViolations(page)
	assert.False(t, got.Passed)
	assert.Equal(t, string(fault.KindAccessibility), got.Kind)
	assert.Contains(t, got.Actual, "image-alt")
	assert.NotContains(t, got.Actual, "color-contrast")
	assert.Equal(t, 1, c.Len())
}

func TestAccessibilityUnavailableRuleset(t *testing.T) {
	page := axePage(false, `[]`)
	c := newCollector(Options{})

	_, err := c.CollectAccessibilityViolations(page)
	assert.ErrorIs(t, err, ErrRulesetUnavailable)

	got := c.AssertNoCriticalViolations(page)
	assert.False(t, got.Passed)
	assert.Contains(t, got.Actual, "unavailable")
}

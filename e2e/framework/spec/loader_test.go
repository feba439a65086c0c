package spec

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const menuScenario = `
apiVersion: e2e.sipincafe/v1
kind: Scenario
metadata:
  name: menu-responsive
  tags: [menu, responsive]
baseUrl: http://localhost:3000
viewports: [mobile, desktop]
timeout: 90s
steps:
  - name: open menu
    action: navigate
    with: {path: /menu}
  - name: heading
    action: assert.text
    with:
      locator: {css: h1}
      expected: Our Menu
variants:
  - nameSuffix: tablet
    viewports: [tablet]
    tags: [tablet]
    stepOverrides:
      - name: heading
        with: {expected: Menu}
  - name: menu-staging
    baseUrl: https://staging.thesipincafe.co.uk
    params: {env: staging}
---
metadata:
  name: footer
steps:
  - name: open
    action: navigate
`

func TestDecodeExpandsVariants(t *testing.T) {
	scenarios, err := Decode([]byte(menuScenario))
	require.NoError(t, err)
	require.Len(t, scenarios, 3)

	tablet := scenarios[0]
	assert.Equal(t, "menu-responsive-tablet", tablet.Metadata.Name)
	assert.Equal(t, []string{"tablet"}, tablet.Viewports)
	assert.Equal(t, []string{"menu", "responsive", "tablet"}, tablet.Metadata.Tags)
	assert.Equal(t, "Menu", tablet.Steps[1].With["expected"])
	assert.NotNil(t, tablet.Steps[1].With["locator"], "override merges rather than replaces")

	staging := scenarios[1]
	assert.Equal(t, "menu-staging", staging.Metadata.Name)
	assert.Equal(t, "https://staging.thesipincafe.co.uk", staging.BaseURL)
	assert.Equal(t, "staging", staging.Params["env"])
	assert.Equal(t, []string{"mobile", "desktop"}, staging.Viewports)
	assert.Equal(t, "Our Menu", staging.Steps[1].With["expected"], "variants do not share step maps")

	assert.Equal(t, "footer", scenarios[2].Metadata.Name)
}

func TestLoadScenariosFromDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "menu.yaml"), []byte(menuScenario), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "home.yml"), []byte("steps:\n  - name: open\n    action: navigate\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# ignored"), 0o644))

	scenarios, err := LoadScenarios(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 4)

	names := make([]string, 0, len(scenarios))
	for _, s := range scenarios {
		names = append(names, s.Metadata.Name)
	}
	assert.Equal(t, []string{"footer", "home", "menu-responsive-tablet", "menu-staging"}, names)
	assert.Equal(t, filepath.Join(dir, "home.yml"), scenarios[1].Source)
}

func TestScenarioValidate(t *testing.T) {
	negative := -0.1
	tests := []struct {
		name     string
		scenario Scenario
		wantErr  string
	}{
		{
			name:     "valid",
			scenario: Scenario{Metadata: Metadata{Name: "ok"}, Steps: []StepSpec{{Name: "a", Action: "navigate"}}},
		},
		{
			name:     "no steps",
			scenario: Scenario{Metadata: Metadata{Name: "empty"}},
			wantErr:  "at least one step",
		},
		{
			name:     "missing action",
			scenario: Scenario{Metadata: Metadata{Name: "x"}, Steps: []StepSpec{{Name: "a"}}},
			wantErr:  "action is required",
		},
		{
			name:     "bad timeout",
			scenario: Scenario{Metadata: Metadata{Name: "x"}, Timeout: "soon", Steps: []StepSpec{{Name: "a", Action: "sleep"}}},
			wantErr:  "invalid timeout",
		},
		{
			name:     "negative budget",
			scenario: Scenario{Metadata: Metadata{Name: "x"}, Budgets: Budgets{CLS: &negative}, Steps: []StepSpec{{Name: "a", Action: "sleep"}}},
			wantErr:  "budgets.cls must not be negative",
		},
		{
			name:     "wrong kind",
			scenario: Scenario{Kind: "TestSpec", Metadata: Metadata{Name: "x"}, Steps: []StepSpec{{Name: "a", Action: "sleep"}}},
			wantErr:  "unsupported kind",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.scenario.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestDecodeKeepsZeroBudget(t *testing.T) {
	scenarios, err := Decode([]byte(`
metadata: {name: strict-layout}
budgets: {cls: 0, lcpMs: 2000}
steps:
  - name: open
    action: navigate
`))
	require.NoError(t, err)
	require.Len(t, scenarios, 1)
	b := scenarios[0].Budgets
	require.NotNil(t, b.CLS)
	assert.Equal(t, 0.0, *b.CLS)
	require.NotNil(t, b.LCPMs)
	assert.Equal(t, 2000.0, *b.LCPMs)
	assert.Nil(t, b.LoadMs)
}

func TestScenarioHelpers(t *testing.T) {
	s := Scenario{Metadata: Metadata{Tags: []string{"smoke", "Menu"}}, Timeout: "2m"}
	assert.True(t, s.MatchesTags([]string{"menu"}, nil))
	assert.False(t, s.MatchesTags(nil, []string{"SMOKE"}))
	assert.False(t, s.MatchesTags([]string{"a11y"}, nil))

	d, err := s.TimeoutOr(time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, d)

	yes := true
	assert.False(t, s.FailFastOr(false))
	s.FailFast = &yes
	assert.True(t, s.FailFastOr(false))

	step := StepSpec{Viewports: []string{"mobile"}}
	assert.True(t, step.AppliesTo("Mobile"))
	assert.False(t, step.AppliesTo("desktop"))
	assert.True(t, StepSpec{}.AppliesTo("desktop"))
}

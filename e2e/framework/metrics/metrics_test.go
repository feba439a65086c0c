package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCountsAndWrites(t *testing.T) {
	c := NewCollector()
	c.ObserveScenario("TC001 home", "passed", 2*time.Second)
	c.ObserveScenario("TC009 404", "failed", time.Second)
	c.ObserveStep("TC001 home", "navigate", "desktop", "passed", 300*time.Millisecond)
	c.ObserveAssertion("", "mobile", true)
	c.ObserveAssertion("performance", "mobile", false)
	c.ObserveWebVital("TC001 home", "desktop", "lcp_ms", 1830)
	c.ObserveScenarioInfo(ScenarioInfo{Scenario: "TC001 home", Status: "passed", Browser: "chromium"})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.scenariosTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.assertionsTotal.WithLabelValues("assertion", "mobile", "true")))
	assert.Equal(t, 1830.0, testutil.ToFloat64(c.webVitals.WithLabelValues("TC001 home", "desktop", "lcp_ms")))

	path := filepath.Join(t.TempDir(), "nested", "metrics.prom")
	require.NoError(t, c.Write(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, `site_e2e_scenarios_total{status="passed"} 1`), text)
	assert.Contains(t, text, "site_e2e_step_duration_seconds_bucket")
}

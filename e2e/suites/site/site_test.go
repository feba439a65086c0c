package sitetest

import (
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/thesipincafe/site-e2e/e2e/framework/results"
)

func describeFailures(result results.ScenarioResult) string {
	var sb strings.Builder
	if result.Error != "" {
		fmt.Fprintf(&sb, "error: %s\n", result.Error)
	}
	for _, f := range result.Failures() {
		fmt.Fprintf(&sb, "[%s] %s: %s (expected %s, got %s)\n", f.Viewport, f.Step, f.Description, f.Expected, f.Actual)
	}
	return sb.String()
}

var _ = Describe("Site scenarios", func() {
	for _, sc := range catalogue {
		sc := sc
		It(sc.Metadata.Name+": "+sc.Metadata.Description, Label(sc.Metadata.Tags...), func(ctx SpecContext) {
			if !sc.MatchesTags(cfg.IncludeTags, cfg.ExcludeTags) {
				Skip("filtered by tags")
			}
			result := siteRun.RunScenario(ctx, sc)
			collected = append(collected, result)

			Expect(result.Phases).To(ContainElement(results.PhaseTeardown))
			Expect(result.Status).To(Equal(results.StatusPassed), describeFailures(result))
		})
	}
})

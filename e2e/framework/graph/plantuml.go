package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/thesipincafe/site-e2e/e2e/framework/results"
)

const (
	colourPassed = "#90EE90"
	colourFailed = "#FFB6C6"
	colourError  = "#FFD27F"
)

// PlantUMLGenerator renders run results as PlantUML diagrams.
type PlantUMLGenerator struct {
	run *results.RunResult
}

// NewPlantUMLGenerator creates a new PlantUML generator
func NewPlantUMLGenerator(run *results.RunResult) *PlantUMLGenerator {
	return &PlantUMLGenerator{run: run}
}

// GenerateScenarioSequenceDiagram renders the steps of one scenario, grouped per viewport.
func (p *PlantUMLGenerator) GenerateScenarioSequenceDiagram(name string) string {
	var sc *results.ScenarioResult
	for i := range p.run.Scenarios {
		if p.run.Scenarios[i].Name == name {
			sc = &p.run.Scenarios[i]
			break
		}
	}
	if sc == nil {
		return fmt.Sprintf("@startuml\ntitle Scenario Not Found: %s\n@enduml\n", name)
	}

	var sb strings.Builder
	sb.WriteString("@startuml\n")
	sb.WriteString("skinparam sequenceMessageAlign center\n")
	sb.WriteString("skinparam responseMessageBelowArrow true\n\n")
	fmt.Fprintf(&sb, "title Scenario: %s\n\n", sc.Name)

	fmt.Fprintf(&sb, "participant \"Runner\" as Runner %s\n", statusColour(sc.Status))
	sb.WriteString("participant \"Browser\" as Browser\n")
	sb.WriteString("participant \"Site\" as Site\n\n")

	sb.WriteString("note over Runner\n")
	fmt.Fprintf(&sb, "  **Status**: %s\n", sc.Status)
	fmt.Fprintf(&sb, "  **Duration**: %.2fs\n", sc.Duration.Seconds())
	if sc.Error != "" {
		fmt.Fprintf(&sb, "  **Error**: %s\n", truncate(sc.Error, 60))
	}
	sb.WriteString("end note\n\n")

	failuresByStep := map[string]int{}
	for _, a := range sc.Failures() {
		failuresByStep[a.Viewport+"\x00"+a.Step]++
	}

	current := "\x00"
	for i, step := range sc.Steps {
		if step.Viewport != current {
			if current != "\x00" {
				sb.WriteString("end\n\n")
			}
			fmt.Fprintf(&sb, "group viewport %s\n", orDefault(step.Viewport, "default"))
			current = step.Viewport
		}
		colour := ""
		if step.Status != results.StatusPassed {
			colour = " " + statusColour(step.Status)
		}
		duration := fmt.Sprintf("(%.1fs)", step.Duration.Seconds())
		switch {
		case step.Action == "navigate" || step.Action == "probe.route":
			fmt.Fprintf(&sb, "Runner -> Browser%s: %d. %s %s %s\n", colour, i+1, step.Action, step.Metadata["url"], duration)
			sb.WriteString("Browser -> Site: GET\n")
			sb.WriteString("Site --> Browser: document\n")
		default:
			fmt.Fprintf(&sb, "Runner -> Browser%s: %d. %s %s\n", colour, i+1, step.Action, duration)
		}
		if n := failuresByStep[step.Viewport+"\x00"+step.Name]; n > 0 {
			fmt.Fprintf(&sb, "note right of Browser %s\n  %d failed assertion(s) in %q\nend note\n", colourFailed, n, step.Name)
		}
		if step.Error != "" {
			fmt.Fprintf(&sb, "note right of Runner %s\n  %s\nend note\n", colourError, truncate(step.Error, 60))
		}
	}
	if current != "\x00" {
		sb.WriteString("end\n")
	}

	sb.WriteString("@enduml\n")
	return sb.String()
}

// GenerateRunSummaryDiagram renders run totals and the failing scenarios.
func (p *PlantUMLGenerator) GenerateRunSummaryDiagram() string {
	var sb strings.Builder
	sb.WriteString("@startuml\n")
	sb.WriteString("skinparam defaultTextAlignment center\n\n")
	sb.WriteString("title Run Summary\n\n")

	counts := map[results.Status]int{}
	failing := []results.ScenarioResult{}
	for _, sc := range p.run.Scenarios {
		counts[sc.Status]++
		if sc.Status == results.StatusFailed || sc.Status == results.StatusErrored {
			failing = append(failing, sc)
		}
	}
	total := len(p.run.Scenarios)
	passRate := 0.0
	if total > 0 {
		passRate = float64(counts[results.StatusPassed]) / float64(total) * 100
	}

	fmt.Fprintf(&sb, "rectangle \"Run %s\" #LightBlue {\n", p.run.RunID)
	fmt.Fprintf(&sb, "  rectangle \"**Total**: %d scenarios\" as total\n", total)
	fmt.Fprintf(&sb, "  rectangle \"**Passed**: %d (%.1f%%)\" as pass %s\n", counts[results.StatusPassed], passRate, colourPassed)
	fmt.Fprintf(&sb, "  rectangle \"**Failed**: %d\" as fail %s\n", counts[results.StatusFailed], colourFailed)
	fmt.Fprintf(&sb, "  rectangle \"**Errored**: %d\" as errored %s\n", counts[results.StatusErrored], colourError)
	fmt.Fprintf(&sb, "  rectangle \"**Skipped**: %d\" as skipped\n", counts[results.StatusSkipped])
	fmt.Fprintf(&sb, "  rectangle \"**Duration**: %.1fs\" as dur\n", p.run.Duration.Seconds())
	sb.WriteString("}\n\n")

	if len(failing) > 0 {
		sort.Slice(failing, func(i, j int) bool { return failing[i].Name < failing[j].Name })
		sb.WriteString("rectangle \"Failing Scenarios\" {\n")
		for i, sc := range failing {
			fmt.Fprintf(&sb, "  rectangle \"%s\\n%s, %d failed check(s)\" as f%d %s\n",
				sc.Name, sc.Status, len(sc.Failures()), i, statusColour(sc.Status))
		}
		sb.WriteString("}\n")
	}

	sb.WriteString("@enduml\n")
	return sb.String()
}

func statusColour(status results.Status) string {
	switch status {
	case results.StatusPassed:
		return colourPassed
	case results.StatusErrored:
		return colourError
	default:
		return colourFailed
	}
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

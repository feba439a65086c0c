// Package matrix expands scenario templates across browser engines, viewport sets
// and target environments into runnable scenario specs.
package matrix

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/thesipincafe/site-e2e/e2e/framework/spec"
)

// Matrix defines the dimensions and templates of a generated suite.
type Matrix struct {
	Name         string        `yaml:"name" json:"name"`
	Description  string        `yaml:"description,omitempty" json:"description,omitempty"`
	Browsers     []string      `yaml:"browsers,omitempty" json:"browsers,omitempty"`
	ViewportSets []ViewportSet `yaml:"viewportSets,omitempty" json:"viewportSets,omitempty"`
	Targets      []Target      `yaml:"targets,omitempty" json:"targets,omitempty"`
	Scenarios    []Scenario    `yaml:"scenarios" json:"scenarios"`
	Constraints  []Constraint  `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	Tags         []string      `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// ViewportSet is a named list of viewport profile names.
type ViewportSet struct {
	Name      string   `yaml:"name" json:"name"`
	Viewports []string `yaml:"viewports" json:"viewports"`
}

// Target is a deployed copy of the site.
type Target struct {
	Name    string `yaml:"name" json:"name"`
	BaseURL string `yaml:"baseUrl" json:"baseUrl"`
}

// Scenario is a template expanded once per combination.
type Scenario struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Component   string            `yaml:"component,omitempty" json:"component,omitempty"`
	Tags        []string          `yaml:"tags,omitempty" json:"tags,omitempty"`
	Timeout     string            `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Params      map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
	Steps       []spec.StepSpec   `yaml:"steps" json:"steps"`
	Assertions  []spec.StepSpec   `yaml:"assertions,omitempty" json:"assertions,omitempty"`
}

// Constraint filters combinations. Type is "exclude" or "require".
type Constraint struct {
	Type      string                 `yaml:"type" json:"type"`
	Condition map[string]interface{} `yaml:"condition" json:"condition"`
	Reason    string                 `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// Combination is one point of the matrix.
type Combination struct {
	Browser     string
	ViewportSet ViewportSet
	Target      Target
	Scenario    Scenario
}

// Generator expands a Matrix.
type Generator struct {
	matrix *Matrix
}

// NewGenerator creates a generator for m.
func NewGenerator(m *Matrix) *Generator {
	return &Generator{matrix: m}
}

// Validate checks that the matrix can be expanded.
func (m *Matrix) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("matrix name is required")
	}
	if len(m.Scenarios) == 0 {
		return errors.New("at least one scenario is required")
	}
	seen := map[string]bool{}
	for i, sc := range m.Scenarios {
		if sc.Name == "" {
			return fmt.Errorf("scenario %d: name is required", i)
		}
		if seen[sc.Name] {
			return fmt.Errorf("scenario %s: duplicate name", sc.Name)
		}
		seen[sc.Name] = true
		if len(sc.Steps) == 0 {
			return fmt.Errorf("scenario %s: at least one step is required", sc.Name)
		}
	}
	for i, set := range m.ViewportSets {
		if set.Name == "" || len(set.Viewports) == 0 {
			return fmt.Errorf("viewport set %d: name and viewports are required", i)
		}
	}
	for i, target := range m.Targets {
		if target.Name == "" || target.BaseURL == "" {
			return fmt.Errorf("target %d: name and baseUrl are required", i)
		}
	}
	for i, c := range m.Constraints {
		if c.Type != "exclude" && c.Type != "require" {
			return fmt.Errorf("constraint %d: unknown type %q", i, c.Type)
		}
	}
	return nil
}

// Generate returns one scenario spec per combination that survives the constraints.
func (g *Generator) Generate() ([]spec.Scenario, error) {
	if err := g.matrix.Validate(); err != nil {
		return nil, err
	}
	var out []spec.Scenario
	for _, combo := range g.Combinations() {
		out = append(out, g.createScenario(combo))
	}
	return out, nil
}

// Combinations returns the filtered cartesian product.
func (g *Generator) Combinations() []Combination {
	var filtered []Combination
	for _, combo := range g.allCombinations() {
		if g.shouldInclude(combo) {
			filtered = append(filtered, combo)
		}
	}
	return filtered
}

func (g *Generator) allCombinations() []Combination {
	browsers := g.matrix.Browsers
	if len(browsers) == 0 {
		browsers = []string{"chromium"}
	}
	sets := g.matrix.ViewportSets
	if len(sets) == 0 {
		sets = []ViewportSet{{Name: "default"}}
	}
	targets := g.matrix.Targets
	if len(targets) == 0 {
		targets = []Target{{Name: "local"}}
	}

	var combos []Combination
	for _, browser := range browsers {
		for _, set := range sets {
			for _, target := range targets {
				for _, sc := range g.matrix.Scenarios {
					combos = append(combos, Combination{Browser: browser, ViewportSet: set, Target: target, Scenario: sc})
				}
			}
		}
	}
	return combos
}

func (g *Generator) shouldInclude(combo Combination) bool {
	for _, c := range g.matrix.Constraints {
		switch c.Type {
		case "exclude":
			if matchesCondition(combo, c.Condition) {
				return false
			}
		case "require":
			if !matchesCondition(combo, c.Condition) {
				return false
			}
		}
	}
	return true
}

// matchesCondition is true when every key of condition matches combo. Values are a
// string or a list of alternatives.
func matchesCondition(combo Combination, condition map[string]interface{}) bool {
	for key, value := range condition {
		switch key {
		case "browser":
			if !matchesValue(combo.Browser, value) {
				return false
			}
		case "viewport_set":
			if !matchesValue(combo.ViewportSet.Name, value) {
				return false
			}
		case "target":
			if !matchesValue(combo.Target.Name, value) {
				return false
			}
		case "scenario":
			if !matchesValue(combo.Scenario.Name, value) {
				return false
			}
		case "scenario_tag":
			found := false
			for _, tag := range combo.Scenario.Tags {
				if matchesValue(tag, value) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func matchesValue(actual string, value interface{}) bool {
	switch v := value.(type) {
	case string:
		return actual == v
	case []string:
		for _, item := range v {
			if actual == item {
				return true
			}
		}
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && actual == s {
				return true
			}
		}
	}
	return false
}

func (g *Generator) createScenario(combo Combination) spec.Scenario {
	name := strings.Join([]string{
		g.matrix.Name,
		combo.Scenario.Name,
		sanitizeName(combo.Browser),
		sanitizeName(combo.ViewportSet.Name),
		sanitizeName(combo.Target.Name),
	}, "_")

	description := combo.Scenario.Description
	if description == "" {
		description = combo.Scenario.Name
	}
	description = fmt.Sprintf("%s on %s (%s viewports) against %s", description, combo.Browser, combo.ViewportSet.Name, combo.Target.Name)

	tags := append([]string{}, g.matrix.Tags...)
	tags = append(tags, combo.Scenario.Tags...)
	tags = append(tags, "browser-"+sanitizeName(combo.Browser), "target-"+sanitizeName(combo.Target.Name), "matrix-generated")

	params := map[string]string{
		"browser":      combo.Browser,
		"viewport_set": combo.ViewportSet.Name,
		"target":       combo.Target.Name,
	}
	for k, v := range combo.Scenario.Params {
		params[k] = v
	}

	vars := map[string]string{
		"${browser}":      combo.Browser,
		"${viewport_set}": combo.ViewportSet.Name,
		"${target}":       combo.Target.Name,
		"${scenario}":     combo.Scenario.Name,
	}

	return spec.Scenario{
		APIVersion: spec.APIVersion,
		Kind:       spec.KindScenario,
		Metadata: spec.Metadata{
			Name:        name,
			Description: description,
			Component:   orDefault(combo.Scenario.Component, g.matrix.Name),
			Tags:        tags,
		},
		BaseURL:    combo.Target.BaseURL,
		Viewports:  append([]string(nil), combo.ViewportSet.Viewports...),
		Timeout:    combo.Scenario.Timeout,
		Params:     params,
		Steps:      processSteps(combo.Scenario.Steps, vars),
		Assertions: processSteps(combo.Scenario.Assertions, vars),
	}
}

// processSteps copies steps, substituting combination variables in names and string params.
func processSteps(steps []spec.StepSpec, vars map[string]string) []spec.StepSpec {
	if len(steps) == 0 {
		return nil
	}
	out := make([]spec.StepSpec, len(steps))
	for i, step := range steps {
		processed := step
		processed.Name = replaceVars(step.Name, vars)
		if step.With != nil {
			processed.With = make(map[string]interface{}, len(step.With))
			for key, value := range step.With {
				if str, ok := value.(string); ok {
					value = replaceVars(str, vars)
				}
				processed.With[key] = value
			}
		}
		processed.Viewports = append([]string(nil), step.Viewports...)
		out[i] = processed
	}
	return out
}

func replaceVars(input string, vars map[string]string) string {
	result := input
	for key, value := range vars {
		result = strings.ReplaceAll(result, key, value)
	}
	return result
}

func sanitizeName(name string) string {
	replacer := strings.NewReplacer(".", "_", "-", "_", "/", "_", ":", "_", " ", "_")
	return strings.ToLower(replacer.Replace(name))
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// GenerateReport summarises the matrix dimensions and the surviving combinations.
func (g *Generator) GenerateReport() string {
	all := g.allCombinations()
	filtered := g.Combinations()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Matrix: %s\n", g.matrix.Name)
	if g.matrix.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", g.matrix.Description)
	}
	sb.WriteString("\nDimensions:\n")
	fmt.Fprintf(&sb, "  Browsers: %v\n", g.matrix.Browsers)
	setNames := make([]string, 0, len(g.matrix.ViewportSets))
	for _, set := range g.matrix.ViewportSets {
		setNames = append(setNames, fmt.Sprintf("%s%v", set.Name, set.Viewports))
	}
	fmt.Fprintf(&sb, "  Viewport sets: %s\n", strings.Join(setNames, " "))
	targetNames := make([]string, 0, len(g.matrix.Targets))
	for _, target := range g.matrix.Targets {
		targetNames = append(targetNames, target.Name)
	}
	fmt.Fprintf(&sb, "  Targets: %v\n", targetNames)
	fmt.Fprintf(&sb, "  Scenarios: %d\n", len(g.matrix.Scenarios))
	fmt.Fprintf(&sb, "\nTotal combinations: %d\n", len(all))
	fmt.Fprintf(&sb, "After constraints: %d\n", len(filtered))

	byBrowser := map[string]int{}
	for _, combo := range filtered {
		byBrowser[combo.Browser]++
	}
	browsers := make([]string, 0, len(byBrowser))
	for browser := range byBrowser {
		browsers = append(browsers, browser)
	}
	sort.Strings(browsers)
	sb.WriteString("\nScenarios by browser:\n")
	for _, browser := range browsers {
		fmt.Fprintf(&sb, "  %s: %d\n", browser, byBrowser[browser])
	}
	return sb.String()
}

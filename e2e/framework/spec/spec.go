package spec

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	APIVersion   = "e2e.sipincafe/v1"
	KindScenario = "Scenario"
)

// Scenario describes one declarative site test case. It is immutable once loaded.
type Scenario struct {
	APIVersion string            `json:"apiVersion" yaml:"apiVersion"`
	Kind       string            `json:"kind" yaml:"kind"`
	Metadata   Metadata          `json:"metadata" yaml:"metadata"`
	BaseURL    string            `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
	Viewports  []string          `json:"viewports,omitempty" yaml:"viewports,omitempty"`
	FailFast   *bool             `json:"failFast,omitempty" yaml:"failFast,omitempty"`
	Timeout    string            `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Budgets    Budgets           `json:"budgets,omitempty" yaml:"budgets,omitempty"`
	Params     map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	Steps      []StepSpec        `json:"steps" yaml:"steps"`
	Assertions []StepSpec        `json:"assertions,omitempty" yaml:"assertions,omitempty"`
	Variants   []VariantSpec     `json:"variants,omitempty" yaml:"variants,omitempty"`

	// Source is the file the scenario was read from.
	Source string `json:"-" yaml:"-"`
}

// Metadata captures human-readable scenario metadata.
type Metadata struct {
	Name        string   `json:"name" yaml:"name"`
	ID          string   `json:"id,omitempty" yaml:"id,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Owner       string   `json:"owner,omitempty" yaml:"owner,omitempty"`
	Component   string   `json:"component,omitempty" yaml:"component,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Budgets overrides performance thresholds. Unset fields keep the defaults; an explicit
// zero demands a metric of exactly nothing.
type Budgets struct {
	LCPMs  *float64 `json:"lcpMs,omitempty" yaml:"lcpMs,omitempty"`
	CLS    *float64 `json:"cls,omitempty" yaml:"cls,omitempty"`
	LoadMs *float64 `json:"loadMs,omitempty" yaml:"loadMs,omitempty"`
	FIDMs  *float64 `json:"fidMs,omitempty" yaml:"fidMs,omitempty"`
}

func (b Budgets) validate() error {
	var errs []error
	for _, f := range []struct {
		name  string
		value *float64
	}{{"lcpMs", b.LCPMs}, {"cls", b.CLS}, {"loadMs", b.LoadMs}, {"fidMs", b.FIDMs}} {
		if f.value != nil && *f.value < 0 {
			errs = append(errs, fmt.Errorf("budgets.%s must not be negative", f.name))
		}
	}
	return errors.Join(errs...)
}

// StepSpec defines a step or an assertion. Both share the action vocabulary.
type StepSpec struct {
	Name   string                 `json:"name" yaml:"name"`
	Action string                 `json:"action" yaml:"action"`
	With   map[string]interface{} `json:"with,omitempty" yaml:"with,omitempty"`
	// Viewports restricts the step to the named profiles.
	Viewports []string `json:"viewports,omitempty" yaml:"viewports,omitempty"`
}

// VariantSpec defines a scenario variant derived from a base scenario.
type VariantSpec struct {
	Name          string            `json:"name,omitempty" yaml:"name,omitempty"`
	NameSuffix    string            `json:"nameSuffix,omitempty" yaml:"nameSuffix,omitempty"`
	Tags          []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	Params        map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	Viewports     []string          `json:"viewports,omitempty" yaml:"viewports,omitempty"`
	BaseURL       string            `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
	StepOverrides []StepOverride    `json:"stepOverrides,omitempty" yaml:"stepOverrides,omitempty"`
}

// StepOverride updates a single step in a variant.
type StepOverride struct {
	Name    string                 `json:"name" yaml:"name"`
	Action  string                 `json:"action,omitempty" yaml:"action,omitempty"`
	With    map[string]interface{} `json:"with,omitempty" yaml:"with,omitempty"`
	Replace bool                   `json:"replace,omitempty" yaml:"replace,omitempty"`
}

// AppliesTo reports whether the step runs under the named viewport.
func (s StepSpec) AppliesTo(viewport string) bool {
	if len(s.Viewports) == 0 {
		return true
	}
	for _, name := range s.Viewports {
		if strings.EqualFold(name, viewport) || strings.EqualFold(name, "all") {
			return true
		}
	}
	return false
}

// MatchesTags returns true if the scenario is allowed by include/exclude tags.
func (s Scenario) MatchesTags(include []string, exclude []string) bool {
	if len(include) == 0 && len(exclude) == 0 {
		return true
	}
	for _, tag := range exclude {
		for _, existing := range s.Metadata.Tags {
			if strings.EqualFold(tag, existing) {
				return false
			}
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, tag := range include {
		for _, existing := range s.Metadata.Tags {
			if strings.EqualFold(tag, existing) {
				return true
			}
		}
	}
	return false
}

// TimeoutOr parses Timeout, returning fallback when it is unset.
func (s Scenario) TimeoutOr(fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(s.Timeout) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(s.Timeout))
	if err != nil {
		return 0, fmt.Errorf("scenario %s: invalid timeout %q: %w", s.Metadata.Name, s.Timeout, err)
	}
	return d, nil
}

// FailFastOr returns the scenario setting or fallback when unset.
func (s Scenario) FailFastOr(fallback bool) bool {
	if s.FailFast == nil {
		return fallback
	}
	return *s.FailFast
}

// Validate checks structure only; action names are checked against the step registry by the runner.
func (s Scenario) Validate() error {
	var errs []error
	if strings.TrimSpace(s.Metadata.Name) == "" {
		errs = append(errs, errors.New("metadata.name is required"))
	}
	if s.Kind != "" && s.Kind != KindScenario {
		errs = append(errs, fmt.Errorf("unsupported kind %q", s.Kind))
	}
	if len(s.Steps) == 0 {
		errs = append(errs, errors.New("at least one step is required"))
	}
	if _, err := s.TimeoutOr(0); err != nil {
		errs = append(errs, err)
	}
	if err := s.Budgets.validate(); err != nil {
		errs = append(errs, err)
	}
	check := func(section string, steps []StepSpec) {
		for i, step := range steps {
			if strings.TrimSpace(step.Action) == "" {
				errs = append(errs, fmt.Errorf("%s[%d] %q: action is required", section, i, step.Name))
			}
		}
	}
	check("steps", s.Steps)
	check("assertions", s.Assertions)
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("scenario %s: %w", s.Metadata.Name, err)
	}
	return nil
}

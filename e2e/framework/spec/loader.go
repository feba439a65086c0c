package spec

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadScenarios reads every scenario under root, which may be a directory (walked recursively)
// or a single file. Variants are expanded into standalone scenarios.
func LoadScenarios(root string) ([]Scenario, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return LoadFile(root)
	}
	var scenarios []Scenario
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isSpecFile(path) {
			return nil
		}
		loaded, err := LoadFile(path)
		if err != nil {
			return err
		}
		scenarios = append(scenarios, loaded...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(scenarios, func(i, j int) bool {
		return scenarios[i].Metadata.Name < scenarios[j].Metadata.Name
	})
	return scenarios, nil
}

// LoadFile decodes every YAML document in path.
func LoadFile(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	scenarios, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for i := range scenarios {
		scenarios[i].Source = path
		if scenarios[i].Metadata.Name == "" {
			scenarios[i].Metadata.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
	}
	return scenarios, nil
}

// Decode parses a multi-document YAML stream.
func Decode(data []byte) ([]Scenario, error) {
	var out []Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var scenario Scenario
		if err := decoder.Decode(&scenario); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if scenario.Metadata.Name == "" && scenario.Kind == "" && scenario.APIVersion == "" && len(scenario.Steps) == 0 {
			continue
		}
		if len(scenario.Variants) > 0 {
			out = append(out, expandVariants(scenario)...)
		} else {
			out = append(out, scenario)
		}
	}
	return out, nil
}

func isSpecFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}

func expandVariants(base Scenario) []Scenario {
	out := make([]Scenario, 0, len(base.Variants))
	for i, variant := range base.Variants {
		copied := base
		copied.Variants = nil
		copied.Metadata.Name = variantName(base.Metadata.Name, variant, i)
		copied.Metadata.Tags = mergeTags(base.Metadata.Tags, variant.Tags)
		copied.Params = copyStringMap(base.Params)
		copied.Steps = copySteps(base.Steps)
		copied.Assertions = copySteps(base.Assertions)
		copied.Viewports = append([]string(nil), base.Viewports...)
		if len(variant.Viewports) > 0 {
			copied.Viewports = append([]string(nil), variant.Viewports...)
		}
		if strings.TrimSpace(variant.BaseURL) != "" {
			copied.BaseURL = strings.TrimSpace(variant.BaseURL)
		}
		if len(variant.Params) > 0 {
			if copied.Params == nil {
				copied.Params = make(map[string]string, len(variant.Params))
			}
			for key, value := range variant.Params {
				if strings.TrimSpace(value) == "" {
					continue
				}
				copied.Params[key] = value
			}
		}
		if len(variant.StepOverrides) > 0 {
			copied.Steps = applyStepOverrides(copied.Steps, variant.StepOverrides)
		}
		out = append(out, copied)
	}
	return out
}

func variantName(baseName string, variant VariantSpec, index int) string {
	if name := strings.TrimSpace(variant.Name); name != "" {
		return name
	}
	if suffix := strings.TrimSpace(variant.NameSuffix); suffix != "" {
		return fmt.Sprintf("%s-%s", baseName, suffix)
	}
	return fmt.Sprintf("%s-%d", baseName, index+1)
}

func mergeTags(base []string, extra []string) []string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	add := func(tag string) {
		value := strings.TrimSpace(tag)
		if value == "" {
			return
		}
		key := strings.ToLower(value)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, value)
	}
	for _, tag := range base {
		add(tag)
	}
	for _, tag := range extra {
		add(tag)
	}
	return out
}

func copyStringMap(input map[string]string) map[string]string {
	if len(input) == 0 {
		return nil
	}
	out := make(map[string]string, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}

func copySteps(steps []StepSpec) []StepSpec {
	if len(steps) == 0 {
		return nil
	}
	out := make([]StepSpec, len(steps))
	for i, step := range steps {
		out[i] = step
		out[i].With = copyWithMap(step.With)
		out[i].Viewports = append([]string(nil), step.Viewports...)
	}
	return out
}

func copyWithMap(input map[string]interface{}) map[string]interface{} {
	if len(input) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}

// applyStepOverrides patches steps by name. Unknown names are appended; a nil value deletes a key.
func applyStepOverrides(steps []StepSpec, overrides []StepOverride) []StepSpec {
	out := copySteps(steps)
	for _, override := range overrides {
		name := strings.TrimSpace(override.Name)
		if name == "" {
			continue
		}
		index := -1
		for i := range out {
			if strings.EqualFold(out[i].Name, name) {
				index = i
				break
			}
		}
		if index == -1 || override.Replace {
			replacement := StepSpec{Name: name, Action: override.Action, With: copyWithMap(override.With)}
			if index == -1 {
				out = append(out, replacement)
			} else {
				out[index] = replacement
			}
			continue
		}
		if override.Action != "" {
			out[index].Action = override.Action
		}
		if override.With != nil {
			if out[index].With == nil {
				out[index].With = make(map[string]interface{}, len(override.With))
			}
			for key, value := range override.With {
				if value == nil {
					delete(out[index].With, key)
					continue
				}
				out[index].With[key] = value
			}
		}
	}
	return out
}

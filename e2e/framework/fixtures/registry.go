package fixtures

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Registry holds the site content values and named routes scenarios assert against.
type Registry struct {
	Values map[string]string `json:"values" yaml:"values"`
	Routes map[string]string `json:"routes" yaml:"routes"`
}

// LoadRegistry reads a fixtures YAML file, expanding environment references in every value.
func LoadRegistry(path string) (*Registry, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(payload)
}

// Parse decodes fixtures from YAML.
func Parse(payload []byte) (*Registry, error) {
	var reg Registry
	if err := yaml.Unmarshal(payload, &reg); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	reg.Values = expandAll(reg.Values)
	reg.Routes = expandAll(reg.Routes)
	return &reg, nil
}

func expandAll(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = os.ExpandEnv(value)
	}
	return out
}

// Get returns a content value by name.
func (r *Registry) Get(name string) (string, bool) {
	if r == nil {
		return "", false
	}
	v, ok := r.Values[name]
	return v, ok
}

// Route returns a route path by name.
func (r *Registry) Route(name string) (string, bool) {
	if r == nil {
		return "", false
	}
	v, ok := r.Routes[name]
	return v, ok
}

// Vars exposes values as fixture.<name> and routes as route.<name> for step expansion.
func (r *Registry) Vars() map[string]string {
	out := map[string]string{}
	if r == nil {
		return out
	}
	for key, value := range r.Values {
		out["fixture."+key] = value
	}
	for key, value := range r.Routes {
		out["route."+key] = value
	}
	return out
}

// Names lists value names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.Values))
	for key := range r.Values {
		names = append(names, key)
	}
	sort.Strings(names)
	return names
}

package locator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/thesipincafe/site-e2e/e2e/framework/browser"
)

// Kind tags the strategy a Spec resolves with.
type Kind string

const (
	ByText  Kind = "text"
	ByCSS   Kind = "css"
	ByXPath Kind = "xpath"
	ByRole  Kind = "role"
)

// Spec identifies an element without binding it to a DOM. Resolution happens at use time.
type Spec struct {
	Kind  Kind   `json:"kind" yaml:"kind"`
	Value string `json:"value" yaml:"value"`
	// Name is the accessible name for ByRole.
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Exact bool   `json:"exact,omitempty" yaml:"exact,omitempty"`
	// Nth selects one match; nil leaves the full match set.
	Nth *int `json:"nth,omitempty" yaml:"nth,omitempty"`
}

func Text(text string, exact bool) Spec { return Spec{Kind: ByText, Value: text, Exact: exact} }

func CSS(selector string) Spec { return Spec{Kind: ByCSS, Value: selector} }

func XPath(expr string) Spec { return Spec{Kind: ByXPath, Value: expr} }

func Role(role, name string) Spec { return Spec{Kind: ByRole, Value: role, Name: name} }

// At returns a copy that selects the index-th match.
func (s Spec) At(index int) Spec {
	s.Nth = &index
	return s
}

// Validate checks that the spec carries what its kind needs.
func (s Spec) Validate() error {
	switch s.Kind {
	case ByText, ByCSS, ByXPath, ByRole:
	default:
		return fmt.Errorf("unknown locator kind %q", s.Kind)
	}
	if strings.TrimSpace(s.Value) == "" {
		return fmt.Errorf("%s locator requires a value", s.Kind)
	}
	if s.Nth != nil && *s.Nth < 0 {
		return fmt.Errorf("%s locator index must be >= 0", s.Kind)
	}
	if s.Kind != ByRole && s.Name != "" {
		return fmt.Errorf("name is only valid for role locators")
	}
	return nil
}

func (s Spec) String() string {
	var out string
	switch s.Kind {
	case ByRole:
		if s.Name != "" {
			out = fmt.Sprintf("role=%s[name=%q]", s.Value, s.Name)
		} else {
			out = "role=" + s.Value
		}
	default:
		out = string(s.Kind) + "=" + s.Value
	}
	if s.Nth != nil {
		out += " >> nth=" + strconv.Itoa(*s.Nth)
	}
	return out
}

// Parse reads the string form: css=..., xpath=..., text=..., role=... .
// A string without a known prefix is a CSS selector.
func Parse(raw string) (Spec, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return Spec{}, fmt.Errorf("empty locator")
	}
	var spec Spec
	if head, tail, ok := strings.Cut(value, " >> nth="); ok {
		index, err := strconv.Atoi(strings.TrimSpace(tail))
		if err != nil {
			return Spec{}, fmt.Errorf("invalid locator index in %q: %w", raw, err)
		}
		spec.Nth = &index
		value = strings.TrimSpace(head)
	}
	prefix, rest, found := strings.Cut(value, "=")
	switch {
	case found && prefix == "css":
		spec.Kind, spec.Value = ByCSS, rest
	case found && prefix == "xpath":
		spec.Kind, spec.Value = ByXPath, rest
	case found && prefix == "text":
		spec.Kind, spec.Value = ByText, strings.Trim(rest, `"`)
		spec.Exact = strings.HasPrefix(rest, `"`)
	case found && prefix == "role":
		spec.Kind = ByRole
		spec.Value, spec.Name = parseRole(rest)
	case strings.HasPrefix(value, "//") || strings.HasPrefix(value, "html/"):
		spec.Kind, spec.Value = ByXPath, value
	default:
		spec.Kind, spec.Value = ByCSS, value
	}
	return spec, spec.Validate()
}

func parseRole(value string) (string, string) {
	role, rest, ok := strings.Cut(value, "[name=")
	if !ok {
		return strings.TrimSpace(value), ""
	}
	name := strings.TrimSuffix(strings.TrimSpace(rest), "]")
	return strings.TrimSpace(role), strings.Trim(name, `"'`)
}

// FromValue builds a Spec from a decoded YAML value: either the string form or a mapping
// with exactly one of text, css, xpath, role.
func FromValue(value interface{}) (Spec, error) {
	switch v := value.(type) {
	case string:
		return Parse(v)
	case Spec:
		return v, v.Validate()
	case map[string]interface{}:
		return fromMap(v)
	case map[interface{}]interface{}:
		converted := make(map[string]interface{}, len(v))
		for key, val := range v {
			converted[fmt.Sprint(key)] = val
		}
		return fromMap(converted)
	case nil:
		return Spec{}, fmt.Errorf("locator is required")
	default:
		return Spec{}, fmt.Errorf("unsupported locator value %T", value)
	}
}

func fromMap(m map[string]interface{}) (Spec, error) {
	var spec Spec
	matched := 0
	for _, kind := range []Kind{ByText, ByCSS, ByXPath, ByRole} {
		raw, ok := m[string(kind)]
		if !ok {
			continue
		}
		matched++
		spec.Kind = kind
		spec.Value = fmt.Sprint(raw)
	}
	if matched != 1 {
		return Spec{}, fmt.Errorf("locator must set exactly one of text, css, xpath, role")
	}
	if name, ok := m["name"]; ok {
		spec.Name = fmt.Sprint(name)
	}
	if exact, ok := m["exact"].(bool); ok {
		spec.Exact = exact
	}
	if raw, ok := m["nth"]; ok {
		index, err := strconv.Atoi(fmt.Sprint(raw))
		if err != nil {
			return Spec{}, fmt.Errorf("invalid locator nth: %w", err)
		}
		spec.Nth = &index
	}
	return spec, spec.Validate()
}

// Resolve binds s to the current DOM of page. The returned element re-queries on every call.
func Resolve(page browser.Page, s Spec) browser.Element {
	var el browser.Element
	switch s.Kind {
	case ByText:
		el = page.GetByText(s.Value, s.Exact)
	case ByXPath:
		el = page.Locator("xpath=" + s.Value)
	case ByRole:
		el = page.GetByRole(s.Value, s.Name, s.Exact)
	default:
		el = page.Locator(s.Value)
	}
	if s.Nth != nil {
		el = el.Nth(*s.Nth)
	}
	return el
}

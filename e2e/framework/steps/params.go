package steps

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/thesipincafe/site-e2e/e2e/framework/locator"
)

func getString(params map[string]interface{}, key string, fallback string) string {
	if params == nil {
		return fallback
	}
	value, ok := params[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case string:
		if typed == "" {
			return fallback
		}
		return typed
	default:
		return fmt.Sprintf("%v", typed)
	}
}

func getInt(params map[string]interface{}, key string, fallback int) int {
	if params == nil {
		return fallback
	}
	value, ok := params[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case int:
		return typed
	case int64:
		return int(typed)
	case float64:
		return int(typed)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return fallback
		}
		return parsed
	default:
		return fallback
	}
}

func getFloat(params map[string]interface{}, key string, fallback float64) float64 {
	if params == nil {
		return fallback
	}
	value, ok := params[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case float64:
		return typed
	case int:
		return float64(typed)
	case int64:
		return float64(typed)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return fallback
		}
		return parsed
	default:
		return fallback
	}
}

func getDuration(params map[string]interface{}, key string, fallback time.Duration) time.Duration {
	if params == nil {
		return fallback
	}
	value, ok := params[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case time.Duration:
		return typed
	case string:
		parsed, err := time.ParseDuration(typed)
		if err != nil {
			return fallback
		}
		return parsed
	case int:
		return time.Duration(typed) * time.Millisecond
	case int64:
		return time.Duration(typed) * time.Millisecond
	case float64:
		return time.Duration(typed * float64(time.Millisecond))
	default:
		return fallback
	}
}

func getBool(params map[string]interface{}, key string, fallback bool) bool {
	if params == nil {
		return fallback
	}
	value, ok := params[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case bool:
		return typed
	case string:
		switch strings.ToLower(strings.TrimSpace(typed)) {
		case "true", "1", "yes", "y":
			return true
		case "false", "0", "no", "n":
			return false
		}
	}
	return fallback
}

// getStringList accepts a scalar or a sequence.
func getStringList(params map[string]interface{}, key string) []string {
	if params == nil {
		return nil
	}
	switch typed := params[key].(type) {
	case nil:
		return nil
	case []string:
		return typed
	case []interface{}:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	case string:
		if typed == "" {
			return nil
		}
		return []string{typed}
	default:
		return []string{fmt.Sprintf("%v", typed)}
	}
}

// getLocator reads a locator parameter, expanding variables in its strings first.
func getLocator(params map[string]interface{}, key string, vars map[string]string) (locator.Spec, error) {
	var raw interface{}
	if params != nil {
		raw = params[key]
	}
	spec, err := locator.FromValue(expandValue(raw, vars))
	if err != nil {
		return locator.Spec{}, fmt.Errorf("%s: %w", key, err)
	}
	return spec, nil
}

func expandValue(value interface{}, vars map[string]string) interface{} {
	switch typed := value.(type) {
	case string:
		return expandVars(typed, vars)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for key, item := range typed {
			out[key] = expandValue(item, vars)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(typed))
		for key, item := range typed {
			out[fmt.Sprint(key)] = expandValue(item, vars)
		}
		return out
	case []interface{}:
		out := make([]interface{}, 0, len(typed))
		for _, item := range typed {
			out = append(out, expandValue(item, vars))
		}
		return out
	default:
		return value
	}
}

func expandVars(value string, vars map[string]string) string {
	if value == "" || !strings.Contains(value, "$") {
		return value
	}
	return os.Expand(value, func(key string) string {
		if replacement, ok := vars[key]; ok {
			return replacement
		}
		return os.Getenv(key)
	})
}

func expandStringSlice(values []string, vars map[string]string) []string {
	if len(values) == 0 {
		return values
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		out = append(out, expandVars(trimmed, vars))
	}
	return out
}

func getStringFallback(stepParams map[string]interface{}, specParams map[string]string, key string, fallback string) string {
	if value := getString(stepParams, key, ""); value != "" {
		return value
	}
	if specParams != nil {
		if value := strings.TrimSpace(specParams[key]); value != "" {
			return value
		}
	}
	return fallback
}

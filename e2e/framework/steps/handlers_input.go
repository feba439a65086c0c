package steps

import (
	"context"
	"fmt"
	"strconv"

	"github.com/thesipincafe/site-e2e/e2e/framework/spec"
)

// RegisterInputHandlers registers pointer, keyboard and scroll steps.
func RegisterInputHandlers(reg *Registry) {
	reg.Register("click", handleClick)
	reg.Register("fill", handleFill)
	reg.Register("hover", handleHover)
	reg.Register("press", handlePress)
	reg.Register("scroll.by", handleScrollBy)
	reg.Register("scroll.viewport", handleScrollViewport)
}

func handleClick(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	page, err := exec.Page()
	if err != nil {
		return nil, err
	}
	target, err := getLocator(step.With, "locator", exec.Vars)
	if err != nil {
		return nil, err
	}
	if err := exec.Driver.Click(ctx, page, target, getDuration(step.With, "timeout", 0)); err != nil {
		return nil, err
	}
	return map[string]string{"locator": target.String(), "url": page.URL()}, nil
}

func handleFill(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	page, err := exec.Page()
	if err != nil {
		return nil, err
	}
	target, err := getLocator(step.With, "locator", exec.Vars)
	if err != nil {
		return nil, err
	}
	if step.With == nil || step.With["value"] == nil {
		return nil, fmt.Errorf("fill requires value")
	}
	value := expandVars(getString(step.With, "value", ""), exec.Vars)
	if err := exec.Driver.Fill(ctx, page, target, value, getDuration(step.With, "timeout", 0)); err != nil {
		return nil, err
	}
	return map[string]string{"locator": target.String(), "length": strconv.Itoa(len(value))}, nil
}

func handleHover(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	page, err := exec.Page()
	if err != nil {
		return nil, err
	}
	target, err := getLocator(step.With, "locator", exec.Vars)
	if err != nil {
		return nil, err
	}
	if err := exec.Driver.Hover(ctx, page, target, getDuration(step.With, "timeout", 0)); err != nil {
		return nil, err
	}
	return map[string]string{"locator": target.String()}, nil
}

func handlePress(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	page, err := exec.Page()
	if err != nil {
		return nil, err
	}
	key := getString(step.With, "key", "")
	if key == "" {
		return nil, fmt.Errorf("press requires key")
	}
	if err := exec.Driver.Press(ctx, page, key); err != nil {
		return nil, err
	}
	return map[string]string{"key": key}, nil
}

func handleScrollBy(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	page, err := exec.Page()
	if err != nil {
		return nil, err
	}
	dx := getFloat(step.With, "dx", 0)
	dy := getFloat(step.With, "dy", 0)
	if dx == 0 && dy == 0 {
		return nil, fmt.Errorf("scroll.by requires dx or dy")
	}
	if err := exec.Driver.ScrollBy(ctx, page, dx, dy); err != nil {
		return nil, err
	}
	return map[string]string{"dx": formatFloat(dx), "dy": formatFloat(dy)}, nil
}

func handleScrollViewport(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	page, err := exec.Page()
	if err != nil {
		return nil, err
	}
	pages := getFloat(step.With, "pages", 1)
	dy, err := exec.Driver.ScrollViewports(ctx, page, pages)
	if err != nil {
		return nil, err
	}
	return map[string]string{"pages": formatFloat(pages), "dy": formatFloat(dy)}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

package interact

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/thesipincafe/site-e2e/e2e/framework/browser"
	"github.com/thesipincafe/site-e2e/e2e/framework/fault"
	"github.com/thesipincafe/site-e2e/e2e/framework/locator"
)

// Observed target states, reported in LocatorTimeoutError.LastState.
const (
	StateUnresolved = "unresolved"
	StateDetached   = "detached"
	StateHidden     = "hidden"
	StateUnstable   = "unstable"
	StateDisabled   = "disabled"
	StateReadOnly   = "readonly"
	StateActionable = "actionable"
)

const (
	DefaultActionTimeout = 5 * time.Second
	DefaultPollInterval  = 100 * time.Millisecond
)

// Options tunes the driver.
type Options struct {
	PollInterval  time.Duration
	ActionTimeout time.Duration
}

// Driver performs input against the live DOM. Targets are resolved at call time.
type Driver struct {
	opts   Options
	logger *zap.Logger
}

// New returns a driver with defaults applied.
func New(opts Options, logger *zap.Logger) *Driver {
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = DefaultActionTimeout
	}
	if opts.PollInterval <= 0 {
		// Stability needs two polls inside the timeout.
		opts.PollInterval = min(DefaultPollInterval, opts.ActionTimeout/10)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{opts: opts, logger: logger}
}

type requirement int

const (
	needVisible requirement = iota
	needEnabled
	needEditable
)

// Click waits for the target to be attached, visible, stable and enabled, then clicks it.
func (d *Driver) Click(ctx context.Context, page browser.Page, spec locator.Spec, timeout time.Duration) error {
	return d.act(ctx, page, spec, "click", needEnabled, timeout, func(el browser.Element, remaining time.Duration) error {
		return el.Click(remaining)
	})
}

// Fill waits for the target to be editable, then replaces its value.
func (d *Driver) Fill(ctx context.Context, page browser.Page, spec locator.Spec, value string, timeout time.Duration) error {
	return d.act(ctx, page, spec, "fill", needEditable, timeout, func(el browser.Element, remaining time.Duration) error {
		return el.Fill(value, remaining)
	})
}

// Hover waits for the target to be visible and stable, then moves the pointer over it.
func (d *Driver) Hover(ctx context.Context, page browser.Page, spec locator.Spec, timeout time.Duration) error {
	return d.act(ctx, page, spec, "hover", needVisible, timeout, func(el browser.Element, remaining time.Duration) error {
		return el.Hover(remaining)
	})
}

// Press sends a key to the focused element.
func (d *Driver) Press(ctx context.Context, page browser.Page, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return page.KeyboardPress(key)
}

// ScrollBy wheels the page by a fixed delta.
func (d *Driver) ScrollBy(ctx context.Context, page browser.Page, dx, dy float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return page.MouseWheel(dx, dy)
}

// ScrollViewports scrolls by pages times the current viewport height and returns the delta used.
// The height is read at call time so the distance tracks the active profile.
func (d *Driver) ScrollViewports(ctx context.Context, page browser.Page, pages float64) (float64, error) {
	height, err := ViewportHeight(page)
	if err != nil {
		return 0, err
	}
	dy := math.Round(height * pages)
	return dy, d.ScrollBy(ctx, page, 0, dy)
}

// ViewportHeight reads the current viewport height from the automation API, falling back
// to the in-page window height when the page was created without a fixed viewport.
func ViewportHeight(page browser.Page) (float64, error) {
	if size, ok := page.ViewportSize(); ok && size.Height > 0 {
		return float64(size.Height), nil
	}
	value, err := page.Evaluate("() => window.innerHeight")
	if err != nil {
		return 0, fmt.Errorf("read viewport height: %w", err)
	}
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("read viewport height: unexpected %T", value)
	}
}

func (d *Driver) act(ctx context.Context, page browser.Page, spec locator.Spec, action string, req requirement, timeout time.Duration, do func(browser.Element, time.Duration) error) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	if timeout <= 0 {
		timeout = d.opts.ActionTimeout
	}
	start := time.Now()
	target, state, err := d.waitActionable(ctx, page, spec, req, timeout)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if browser.IsClosed(err) {
			return fault.Infrastructure(action+" "+spec.String(), err)
		}
		return &fault.LocatorTimeoutError{Locator: spec.String(), Action: action, Timeout: timeout, LastState: state, Err: err}
	}
	remaining := timeout - time.Since(start)
	if remaining < d.opts.PollInterval {
		remaining = d.opts.PollInterval
	}
	if err := do(target, remaining); err != nil {
		if errors.Is(err, browser.ErrTimeout) {
			return &fault.LocatorTimeoutError{Locator: spec.String(), Action: action, Timeout: timeout, LastState: StateActionable, Err: err}
		}
		return fmt.Errorf("%s %s: %w", action, spec, err)
	}
	d.logger.Debug("interaction done", zap.String("action", action), zap.String("locator", spec.String()), zap.Duration("elapsed", time.Since(start)))
	return nil
}

// waitActionable polls until spec resolves to one attached, visible element whose box is
// unchanged across two polls and which meets req. It returns the last observed state.
func (d *Driver) waitActionable(ctx context.Context, page browser.Page, spec locator.Spec, req requirement, timeout time.Duration) (browser.Element, string, error) {
	var (
		last    = StateUnresolved
		prevBox *browser.Rect
		target  browser.Element
	)
	err := wait.PollUntilContextTimeout(ctx, d.opts.PollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		el := locator.Resolve(page, spec)
		count, err := el.Count()
		if err != nil {
			if browser.IsClosed(err) {
				return false, err
			}
			last = StateUnresolved
			return false, nil
		}
		if count == 0 {
			last = StateDetached
			prevBox = nil
			return false, nil
		}
		if spec.Nth == nil && count > 1 {
			el = el.First()
		}
		visible, err := el.IsVisible()
		if err != nil || !visible {
			last = StateHidden
			prevBox = nil
			return false, nil
		}
		box, err := el.BoundingBox()
		if err != nil || box == nil {
			last = StateHidden
			prevBox = nil
			return false, nil
		}
		if prevBox == nil || *prevBox != *box {
			prevBox = box
			last = StateUnstable
			return false, nil
		}
		switch req {
		case needEnabled:
			if ok, err := el.IsEnabled(); err != nil || !ok {
				last = StateDisabled
				return false, nil
			}
		case needEditable:
			if ok, err := el.IsEditable(); err != nil || !ok {
				last = StateReadOnly
				return false, nil
			}
		}
		last = StateActionable
		target = el
		return true, nil
	})
	if err != nil {
		return nil, last, err
	}
	return target, last, nil
}

package navigate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thesipincafe/site-e2e/e2e/framework/browser"
	"github.com/thesipincafe/site-e2e/e2e/framework/fault"
	"github.com/thesipincafe/site-e2e/e2e/framework/locator"
	"github.com/thesipincafe/site-e2e/e2e/framework/session"
)

// Signal names a readiness condition.
type Signal string

const (
	SignalDOMContentLoaded Signal = "domcontentloaded"
	SignalLoad             Signal = "load"
	SignalNetworkIdle      Signal = "networkidle"
	SignalSelectorVisible  Signal = "selector-visible"
)

const (
	DefaultCommitTimeout = 10 * time.Second
	DefaultReadyTimeout  = 3 * time.Second
)

// ParseSignal accepts the signal names used in scenario files.
func ParseSignal(value string) (Signal, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "domcontentloaded", "dom":
		return SignalDOMContentLoaded, nil
	case "load":
		return SignalLoad, nil
	case "networkidle", "network-idle":
		return SignalNetworkIdle, nil
	case "selector-visible", "selector", "visible":
		return SignalSelectorVisible, nil
	default:
		return "", fmt.Errorf("unknown readiness signal %q", value)
	}
}

// Readiness is a signal with its budget.
type Readiness struct {
	Signal   Signal
	Selector locator.Spec
	Timeout  time.Duration
}

// Report describes what a readiness wait observed.
type Report struct {
	Signal        Signal
	PageReady     bool
	Timeout       *fault.ReadinessTimeout
	ReadyFrames   []string
	SkippedFrames []string
	Duration      time.Duration
}

// Waiter navigates pages and waits for readiness.
type Waiter struct {
	logger *zap.Logger
}

// NewWaiter returns a waiter logging through logger.
func NewWaiter(logger *zap.Logger) *Waiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Waiter{logger: logger}
}

// NavigateTo loads url and returns once the response is committed.
// Failure to commit is an InfrastructureError.
func (w *Waiter) NavigateTo(ctx context.Context, s *session.Session, url string, commitTimeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if commitTimeout <= 0 {
		commitTimeout = DefaultCommitTimeout
	}
	commitTimeout = clampToDeadline(ctx, commitTimeout)
	start := time.Now()
	if err := s.Page().Goto(url, browser.LoadStateCommit, commitTimeout); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fault.Infrastructure("navigate "+url, err)
	}
	w.logger.Debug("navigation committed", zap.String("url", url), zap.Duration("elapsed", time.Since(start)))
	return nil
}

// WaitReady waits for r on page, then independently on every attached child frame.
// A page timeout is reported in Report.Timeout and is not an error. Frame timeouts
// only mark the frame skipped. The error is non-nil only for context cancellation
// or a page that is already gone.
func (w *Waiter) WaitReady(ctx context.Context, page browser.Page, r Readiness) (Report, error) {
	start := time.Now()
	if r.Signal == "" {
		r.Signal = SignalDOMContentLoaded
	}
	if r.Timeout <= 0 {
		r.Timeout = DefaultReadyTimeout
	}
	report := Report{Signal: r.Signal}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	timeout := clampToDeadline(ctx, r.Timeout)

	// Frames share the budget with the page rather than waiting after it.
	var (
		frames         errgroup.Group
		ready, skipped []string
	)
	frames.Go(func() error {
		ready, skipped = w.waitFrames(page, frameState(r.Signal), timeout)
		return nil
	})
	err := w.waitPage(page, r, timeout)
	_ = frames.Wait()
	report.ReadyFrames = ready
	report.SkippedFrames = skipped

	switch {
	case err == nil:
		report.PageReady = true
	case browser.IsClosed(err):
		return report, fault.Infrastructure("wait ready", err)
	default:
		report.Timeout = &fault.ReadinessTimeout{Target: "page", Signal: string(r.Signal), Timeout: timeout, Err: err}
		w.logger.Warn("page readiness timed out, continuing",
			zap.String("signal", string(r.Signal)),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
	}

	report.Duration = time.Since(start)
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (w *Waiter) waitPage(page browser.Page, r Readiness, timeout time.Duration) error {
	if r.Signal == SignalSelectorVisible {
		if err := r.Selector.Validate(); err != nil {
			return fmt.Errorf("selector-visible readiness: %w", err)
		}
		return locator.Resolve(page, r.Selector).First().WaitFor(browser.ElementVisible, timeout)
	}
	return page.WaitForLoadState(browser.LoadState(r.Signal), timeout)
}

// frameState maps a page signal onto a load state frames can report.
func frameState(signal Signal) browser.LoadState {
	if signal == SignalSelectorVisible {
		return browser.LoadStateDOMContentLoaded
	}
	return browser.LoadState(signal)
}

func (w *Waiter) waitFrames(page browser.Page, state browser.LoadState, timeout time.Duration) ([]string, []string) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		ready   []string
		skipped []string
	)
	for i, frame := range page.Frames() {
		label := frameLabel(i, frame)
		wg.Add(1)
		go func(frame browser.Frame, label string) {
			defer wg.Done()
			err := frame.WaitForLoadState(state, timeout)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				skipped = append(skipped, label)
				w.logger.Debug("frame not ready, skipping", zap.String("frame", label), zap.Error(err))
				return
			}
			ready = append(ready, label)
		}(frame, label)
	}
	wg.Wait()
	return ready, skipped
}

func frameLabel(index int, frame browser.Frame) string {
	if name := frame.Name(); name != "" {
		return name
	}
	if url := frame.URL(); url != "" {
		return url
	}
	return fmt.Sprintf("frame-%d", index)
}

func clampToDeadline(ctx context.Context, timeout time.Duration) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return timeout
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return time.Millisecond
	}
	if remaining < timeout {
		return remaining
	}
	return timeout
}

package steps

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/thesipincafe/site-e2e/e2e/framework/fault"
	"github.com/thesipincafe/site-e2e/e2e/framework/spec"
)

const (
	defaultSettleTimeout  = 2 * time.Second
	settlePollInterval    = 50 * time.Millisecond
	runningAnimationsExpr = `() => document.getAnimations().filter((a) => a.playState === "running").length`
)

// RegisterMiscHandlers registers pacing steps.
func RegisterMiscHandlers(reg *Registry) {
	reg.Register("sleep", handleSleep)
	reg.Register("wait.animations", handleWaitAnimations)
}

// handleSleep pauses for a fixed duration. Integer durations are milliseconds.
func handleSleep(ctx context.Context, _ *Context, step spec.StepSpec) (map[string]string, error) {
	d := getDuration(step.With, "duration", 0)
	if d <= 0 {
		if raw := getString(step.With, "duration", ""); raw != "" {
			return nil, fmt.Errorf("invalid sleep duration %q", raw)
		}
		return nil, fmt.Errorf("sleep duration is required")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(d):
		return map[string]string{"slept": d.String()}, nil
	}
}

// handleWaitAnimations polls until no Web Animation on the page is running. Infinite
// animations such as spinners never settle, so a timeout is reported in the metadata
// and the step still passes, like a page readiness timeout.
func handleWaitAnimations(ctx context.Context, exec *Context, step spec.StepSpec) (map[string]string, error) {
	page, err := exec.Page()
	if err != nil {
		return nil, err
	}
	timeout := getDuration(step.With, "timeout", defaultSettleTimeout)
	start := time.Now()
	running := -1
	pollErr := wait.PollUntilContextTimeout(ctx, settlePollInterval, timeout, true, func(context.Context) (bool, error) {
		value, err := page.Evaluate(runningAnimationsExpr)
		if err != nil {
			return false, err
		}
		n, ok := value.(float64)
		if !ok {
			return false, fmt.Errorf("animation count: unexpected %T", value)
		}
		running = int(n)
		return running == 0, nil
	})
	metadata := map[string]string{
		"running": strconv.Itoa(running),
		"settled": strconv.FormatBool(pollErr == nil),
		"waited":  time.Since(start).Round(time.Millisecond).String(),
	}
	switch {
	case pollErr == nil:
		return metadata, nil
	case ctx.Err() != nil:
		return metadata, ctx.Err()
	case running < 0:
		return metadata, pollErr
	}
	metadata["readiness_timeout"] = "true"
	exec.Logger.Warn("animations still running, continuing",
		zap.Int("running", running),
		zap.Error(&fault.ReadinessTimeout{Target: "page", Signal: "animations settled", Timeout: timeout, Err: pollErr}),
	)
	return metadata, nil
}

package steps

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Progress tracks which step a scenario is executing.
type Progress struct {
	mu        sync.Mutex
	step      string
	viewport  string
	completed int
	total     int
}

// NewProgress returns a tracker expecting total step executions.
func NewProgress(total int) *Progress {
	return &Progress{total: total}
}

// Begin marks step as running under viewport.
func (p *Progress) Begin(step, viewport string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.step = step
	p.viewport = viewport
}

// Done marks the running step finished.
func (p *Progress) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed++
}

func (p *Progress) fields() []zap.Field {
	p.mu.Lock()
	defer p.mu.Unlock()
	return []zap.Field{
		zap.String("step", p.step),
		zap.String("viewport", p.viewport),
		zap.Int("completed", p.completed),
		zap.Int("total", p.total),
	}
}

// StartProgressLogger logs the scenario position every ProgressInterval until the
// returned stop function is called.
func StartProgressLogger(ctx context.Context, exec *Context, progress *Progress, timeout time.Duration) func() {
	if exec == nil || exec.Logger == nil || exec.Config == nil || progress == nil {
		return func() {}
	}
	interval := exec.Config.ProgressInterval
	if interval <= 0 {
		return func() {}
	}

	progressCtx, cancel := context.WithCancel(ctx)
	start := time.Now()
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-progressCtx.Done():
				return
			case <-ticker.C:
				logProgress(exec, progress, time.Since(start), timeout)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func logProgress(exec *Context, progress *Progress, elapsed, timeout time.Duration) {
	fields := []zap.Field{
		zap.String("scenario", exec.ScenarioName),
		zap.Duration("elapsed", elapsed),
	}
	if timeout > 0 {
		fields = append(fields, zap.Duration("timeout", timeout))
	}
	fields = append(fields, progress.fields()...)
	if exec.Collector != nil {
		fields = append(fields, zap.Int("assertions", exec.Collector.Len()))
	}
	exec.Logger.Info("scenario progress", fields...)
}

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/thesipincafe/site-e2e/e2e/framework/browser"
	"github.com/thesipincafe/site-e2e/e2e/framework/browser/browsertest"
	"github.com/thesipincafe/site-e2e/e2e/framework/fault"
)

func testConfig() Config {
	return Config{
		Launch:         browser.LaunchOptions{Engine: "chromium", Headless: true},
		Viewport:       browser.Size{Width: 375, Height: 667},
		DefaultTimeout: time.Second,
		ConsoleLimit:   10,
	}
}

func TestAcquireAndReleaseOnce(t *testing.T) {
	driver := browsertest.NewDriver(nil)
	m := NewManager(driver.Starter(), zap.NewNop())

	s, err := m.Acquire(context.Background(), testConfig())
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.NotNil(t, s.Page())
	assert.Equal(t, 1, m.Active())

	size, ok := s.Page().ViewportSize()
	assert.True(t, ok)
	assert.Equal(t, browser.Size{Width: 375, Height: 667}, size)
	assert.Equal(t, []browser.ContextOptions{{Viewport: size, DefaultTimeout: time.Second}}, driver.Contexts())

	require.NoError(t, m.Release(s))
	require.NoError(t, m.Release(s))
	assert.True(t, s.Released())
	assert.Equal(t, 0, m.Active())

	acquired, released := m.Stats()
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 1, released)
	assert.Equal(t, []string{
		"driver.start", "browser.launch", "context.new", "page.new",
		"context.close", "browser.close", "driver.stop",
	}, driver.Rec.Events())
}

func TestConcurrentReleaseClosesOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	driver := browsertest.NewDriver(nil)
	m := NewManager(driver.Starter(), nil)
	s, err := m.Acquire(context.Background(), testConfig())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Release(s)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, driver.Rec.Count("context.close"))
	assert.Equal(t, 1, driver.Rec.Count("browser.close"))
	assert.Equal(t, 1, driver.Rec.Count("driver.stop"))
}

func TestAcquireFailureLeavesNothingRunning(t *testing.T) {
	cases := []struct {
		name   string
		setup func(*browsertest.Driver)
		want   []string
	}{
		{
			name:   "driver start",
			setup: func(d *browsertest.Driver) { d.StartErr = errors.New("no playwright driver") },
			want:   []string{"driver.start"},
		},
		{
			name:   "launch",
			setup: func(d *browsertest.Driver) { d.LaunchErr = errors.New("executable missing") },
			want:   []string{"driver.start", "browser.launch", "driver.stop"},
		},
		{
			name:   "context",
			setup: func(d *browsertest.Driver) { d.ContextErr = errors.New("context refused") },
			want:   []string{"driver.start", "browser.launch", "context.new", "browser.close", "driver.stop"},
		},
		{
			name:   "page",
			setup: func(d *browsertest.Driver) { d.PageErr = errors.New("page crashed") },
			want:   []string{"driver.start", "browser.launch", "context.new", "page.new", "context.close", "browser.close", "driver.stop"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			driver := browsertest.NewDriver(nil)
			tc.setup(driver)
			m := NewManager(driver.Starter(), nil)

			s, err := m.Acquire(context.Background(), testConfig())
			assert.Nil(t, s)
			require.Error(t, err)
			assert.Equal(t, fault.KindInfrastructure, fault.KindOf(err))
			assert.Equal(t, tc.want, driver.Rec.Events())
			assert.Equal(t, 0, m.Active())
		})
	}
}

func TestAcquireWithDoneContext(t *testing.T) {
	driver := browsertest.NewDriver(nil)
	m := NewManager(driver.Starter(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Acquire(ctx, testConfig())
	assert.True(t, fault.IsFatal(err))
	assert.Empty(t, driver.Rec.Events())
}

func TestReleaseDropsAlreadyClosedErrors(t *testing.T) {
	driver := browsertest.NewDriver(nil)
	driver.CloseErr = fmt.Errorf("context: %w", browser.ErrClosed)
	driver.StopErr = errors.New("driver pipe broken")
	m := NewManager(driver.Starter(), nil)

	s, err := m.Acquire(context.Background(), testConfig())
	require.NoError(t, err)

	err = m.Release(s)
	require.Error(t, err)
	assert.Equal(t, "close driver: driver pipe broken", err.Error())
	// The first result is kept for later calls.
	assert.Equal(t, err, m.Release(s))
	assert.Equal(t, 0, m.Active())
}

func TestConsoleEventsReachBuffer(t *testing.T) {
	page := browsertest.NewPage(browsertest.NewDOM())
	driver := browsertest.NewDriver(page)
	m := NewManager(driver.Starter(), nil)
	s, err := m.Acquire(context.Background(), testConfig())
	require.NoError(t, err)
	defer m.Release(s)

	page.EmitConsole("log", "menu loaded")
	page.EmitConsole("error", "Failed to load resource: 404")
	page.EmitPageError(errors.New("ReferenceError: gtag is not defined"))

	errs := s.Console().Errors()
	require.Len(t, errs, 2)
	assert.Equal(t, "error", errs[0].Type)
	assert.Equal(t, "pageerror", errs[1].Type)
	assert.Len(t, s.Console().Drain(), 3)
	assert.Empty(t, s.Console().Drain())
}

func TestConsoleBufferLimit(t *testing.T) {
	buf := NewConsoleBuffer(2)
	buf.Append("log", "one")
	buf.Append("warning", "two")
	buf.Append("error", "three")
	buf.Append("error", "four")

	assert.Equal(t, 2, buf.Dropped())
	assert.Empty(t, buf.Errors())
	entries := buf.Drain()
	require.Len(t, entries, 2)
	assert.Equal(t, "one", entries[0].Text)
	assert.Equal(t, 0, buf.Dropped())

	buf.Append("error", "five")
	assert.Len(t, buf.Errors(), 1)

	assert.Equal(t, defaultConsoleLimit, NewConsoleBuffer(0).limit)
}

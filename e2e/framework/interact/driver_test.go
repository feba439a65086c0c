package interact

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesipincafe/site-e2e/e2e/framework/browser"
	"github.com/thesipincafe/site-e2e/e2e/framework/browser/browsertest"
	"github.com/thesipincafe/site-e2e/e2e/framework/fault"
	"github.com/thesipincafe/site-e2e/e2e/framework/locator"
)

func newDriver() *Driver {
	return New(Options{PollInterval: 5 * time.Millisecond, ActionTimeout: 200 * time.Millisecond}, nil)
}

func box() browser.Rect { return browser.Rect{X: 10, Y: 20, Width: 120, Height: 40} }

func TestClickWaitsForActionability(t *testing.T) {
	cases := []struct {
		name string
		node *browsertest.Node
	}{
		{"visible at once", &browsertest.Node{Box: box()}},
		{"appears after fade in", &browsertest.Node{Box: box(), HiddenPolls: 3}},
		{"settles after animation", &browsertest.Node{Box: box(), Jitter: 4}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page := browsertest.NewPage(browsertest.NewDOM().Add("css:#subscribe", tc.node))

			require.NoError(t, newDriver().Click(context.Background(), page, locator.CSS("#subscribe"), 0))
			assert.Equal(t, 1, tc.node.Clicks)
		})
	}
}

func TestClickTimeoutReportsLastState(t *testing.T) {
	cases := []struct {
		name  string
		nodes []*browsertest.Node
		state string
	}{
		{"missing", nil, StateDetached},
		{"hidden", []*browsertest.Node{{Box: box(), Hidden: true}}, StateHidden},
		{"always moving", []*browsertest.Node{{Box: box(), Jitter: 1000}}, StateUnstable},
		{"disabled", []*browsertest.Node{{Box: box(), Disabled: true}}, StateDisabled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dom := browsertest.NewDOM()
			if len(tc.nodes) > 0 {
				dom.Add("css:.close", tc.nodes...)
			}
			page := browsertest.NewPage(dom)

			err := newDriver().Click(context.Background(), page, locator.CSS(".close"), 50*time.Millisecond)
			var lte *fault.LocatorTimeoutError
			require.ErrorAs(t, err, &lte)
			assert.Equal(t, tc.state, lte.LastState)
			assert.Equal(t, "click", lte.Action)
			assert.Equal(t, "css=.close", lte.Locator)
			assert.Equal(t, 50*time.Millisecond, lte.Timeout)
			assert.False(t, fault.IsFatal(err))
		})
	}
}

func TestClickResolvesAtCallTime(t *testing.T) {
	home := browsertest.NewDOM().Add("role:link:Menu", &browsertest.Node{Box: box(), Navigates: "/menu"})
	menu := browsertest.NewDOM().Add("css:.menu-item", &browsertest.Node{Box: box(), Text: "Flat White"})
	page := browsertest.NewPage(home).Route("/", home).Route("/menu", menu)
	require.NoError(t, page.Goto("http://site.test/", browser.LoadStateCommit, time.Second))

	d := newDriver()
	require.NoError(t, d.Click(context.Background(), page, locator.Role("link", "Menu"), 0))
	assert.Equal(t, "http://site.test/menu", page.URL())
	require.NoError(t, d.Hover(context.Background(), page, locator.CSS(".menu-item"), 0))
}

func TestClickFirstOfMany(t *testing.T) {
	first := &browsertest.Node{Box: box()}
	second := &browsertest.Node{Box: box()}
	page := browsertest.NewPage(browsertest.NewDOM().Add("css:.gallery img", first, second))

	require.NoError(t, newDriver().Click(context.Background(), page, locator.CSS(".gallery img"), 0))
	assert.Equal(t, 1, first.Clicks)
	assert.Zero(t, second.Clicks)

	require.NoError(t, newDriver().Click(context.Background(), page, locator.CSS(".gallery img").At(1), 0))
	assert.Equal(t, 1, second.Clicks)
}

func TestFill(t *testing.T) {
	email := &browsertest.Node{Box: box()}
	locked := &browsertest.Node{Box: box(), ReadOnly: true}
	page := browsertest.NewPage(browsertest.NewDOM().
		Add("css:#newsletter-email", email).
		Add("css:#locked", locked))
	d := newDriver()

	require.NoError(t, d.Fill(context.Background(), page, locator.CSS("#newsletter-email"), "guest@example.com", 0))
	assert.Equal(t, "guest@example.com", email.Value)

	err := d.Fill(context.Background(), page, locator.CSS("#locked"), "x", 30*time.Millisecond)
	var lte *fault.LocatorTimeoutError
	require.ErrorAs(t, err, &lte)
	assert.Equal(t, StateReadOnly, lte.LastState)
	assert.Empty(t, locked.Value)
}

func TestInvalidLocator(t *testing.T) {
	page := browsertest.NewPage(browsertest.NewDOM())
	err := newDriver().Click(context.Background(), page, locator.Spec{Kind: locator.ByCSS}, 0)
	require.Error(t, err)
	assert.Equal(t, fault.KindStep, fault.KindOf(err))
}

func TestCancelledContextIsNotALocatorTimeout(t *testing.T) {
	page := browsertest.NewPage(browsertest.NewDOM())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := newDriver().Click(ctx, page, locator.CSS(".never"), time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, fault.KindDeadline, fault.KindOf(err))
}

func TestScrollViewports(t *testing.T) {
	page := browsertest.NewPage(browsertest.NewDOM())
	d := newDriver()

	require.NoError(t, page.SetViewportSize(375, 667))
	dy, err := d.ScrollViewports(context.Background(), page, 1.5)
	require.NoError(t, err)
	assert.Equal(t, 1001.0, dy)

	require.NoError(t, page.SetViewportSize(1280, 800))
	dy, err = d.ScrollViewports(context.Background(), page, 1)
	require.NoError(t, err)
	assert.Equal(t, 800.0, dy)

	_, y := page.Scroll()
	assert.Equal(t, 1801.0, y)
}

func TestViewportHeightFallsBackToWindow(t *testing.T) {
	page := browsertest.NewPage(browsertest.NewDOM())
	require.NoError(t, page.SetViewportSize(0, 0))
	page.EvalFunc = func(expression string, args ...any) (any, error) {
		return float64(900), nil
	}
	height, err := ViewportHeight(page)
	require.NoError(t, err)
	assert.Equal(t, 900.0, height)

	page.EvalFunc = func(string, ...any) (any, error) { return nil, errors.New("detached") }
	_, err = ViewportHeight(page)
	assert.Error(t, err)
}

func TestPressAndScrollBy(t *testing.T) {
	page := browsertest.NewPage(browsertest.NewDOM())
	d := newDriver()

	require.NoError(t, d.Press(context.Background(), page, "Escape"))
	require.NoError(t, d.ScrollBy(context.Background(), page, 0, 300))
	assert.Equal(t, []string{"page.press Escape", "page.wheel 0,300"}, page.Recorder().Events())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Press(ctx, page, "Tab"), context.Canceled)
}

func TestNewAppliesDefaults(t *testing.T) {
	d := New(Options{}, nil)
	assert.Equal(t, DefaultActionTimeout, d.opts.ActionTimeout)
	assert.Equal(t, DefaultPollInterval, d.opts.PollInterval)

	d = New(Options{ActionTimeout: 100 * time.Millisecond}, nil)
	assert.Equal(t, 10*time.Millisecond, d.opts.PollInterval)
}

package navigate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/thesipincafe/site-e2e/e2e/framework/browser"
	"github.com/thesipincafe/site-e2e/e2e/framework/browser/browsertest"
	"github.com/thesipincafe/site-e2e/e2e/framework/fault"
	"github.com/thesipincafe/site-e2e/e2e/framework/locator"
	"github.com/thesipincafe/site-e2e/e2e/framework/session"
)

func TestParseSignal(t *testing.T) {
	cases := map[string]Signal{
		"":                 SignalDOMContentLoaded,
		"dom":              SignalDOMContentLoaded,
		"DOMContentLoaded": SignalDOMContentLoaded,
		"load":             SignalLoad,
		"network-idle":     SignalNetworkIdle,
		"networkidle":      SignalNetworkIdle,
		"selector":         SignalSelectorVisible,
		"selector-visible": SignalSelectorVisible,
	}
	for input, want := range cases {
		got, err := ParseSignal(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}
	_, err := ParseSignal("painted")
	assert.EqualError(t, err, `unknown readiness signal "painted"`)
}

func acquire(t *testing.T, page *browsertest.Page) (*session.Session, *browsertest.Driver) {
	t.Helper()
	driver := browsertest.NewDriver(page)
	m := session.NewManager(driver.Starter(), nil)
	s, err := m.Acquire(context.Background(), session.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Release(s) })
	return s, driver
}

func TestNavigateToCommits(t *testing.T) {
	page := browsertest.NewPage(browsertest.NewDOM())
	s, driver := acquire(t, page)

	require.NoError(t, NewWaiter(nil).NavigateTo(context.Background(), s, "http://site.test/menu", 0))
	assert.Equal(t, 1, driver.Rec.Count("page.goto http://site.test/menu"))
	assert.Equal(t, "http://site.test/menu", page.URL())
}

func TestNavigateToFailureIsInfrastructure(t *testing.T) {
	page := browsertest.NewPage(browsertest.NewDOM())
	page.GotoErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	s, _ := acquire(t, page)

	err := NewWaiter(nil).NavigateTo(context.Background(), s, "http://nowhere.test/", time.Second)
	assert.Equal(t, fault.KindInfrastructure, fault.KindOf(err))
	assert.Contains(t, err.Error(), "navigate http://nowhere.test/")
}

func TestNavigateToWithDoneContext(t *testing.T) {
	page := browsertest.NewPage(browsertest.NewDOM())
	s, driver := acquire(t, page)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewWaiter(nil).NavigateTo(ctx, s, "http://site.test/", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, driver.Rec.Count("page.goto http://site.test/"))
}

func TestWaitReadyPageTimeoutIsSoft(t *testing.T) {
	page := browsertest.NewPage(browsertest.NewDOM())
	page.LoadErr[browser.LoadStateNetworkIdle] = fmt.Errorf("networkidle: %w", browser.ErrTimeout)

	report, err := NewWaiter(nil).WaitReady(context.Background(), page, Readiness{Signal: SignalNetworkIdle, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.False(t, report.PageReady)
	require.NotNil(t, report.Timeout)
	assert.Equal(t, "page", report.Timeout.Target)
	assert.Equal(t, "networkidle", report.Timeout.Signal)
	assert.Equal(t, fault.KindReadinessTimeout, fault.KindOf(report.Timeout))
}

func TestWaitReadyClosedPageIsInfrastructure(t *testing.T) {
	page := browsertest.NewPage(browsertest.NewDOM())
	page.LoadErr[browser.LoadStateLoad] = browser.ErrClosed

	_, err := NewWaiter(nil).WaitReady(context.Background(), page, Readiness{Signal: SignalLoad})
	assert.True(t, fault.IsFatal(err))
}

func TestWaitReadySkipsFramesThatNeverLoad(t *testing.T) {
	defer goleak.VerifyNone(t)

	page := browsertest.NewPage(browsertest.NewDOM())
	mapFrame := &browsertest.Frame{FrameName: "google-map", LoadErr: browser.ErrTimeout}
	instagram := &browsertest.Frame{FrameURL: "https://www.instagram.com/embed"}
	anonymous := &browsertest.Frame{}
	page.IFrames = []*browsertest.Frame{mapFrame, instagram, anonymous}

	report, err := NewWaiter(nil).WaitReady(context.Background(), page, Readiness{Signal: SignalLoad, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.True(t, report.PageReady)
	assert.Nil(t, report.Timeout)
	assert.Equal(t, []string{"google-map"}, report.SkippedFrames)
	assert.ElementsMatch(t, []string{"https://www.instagram.com/embed", "frame-2"}, report.ReadyFrames)
	for _, f := range page.IFrames {
		assert.Equal(t, 1, f.Waits())
	}
}

func TestWaitReadyFramesShareThePageBudget(t *testing.T) {
	defer goleak.VerifyNone(t)

	page := browsertest.NewPage(browsertest.NewDOM())
	page.LoadDelay = 150 * time.Millisecond
	page.IFrames = []*browsertest.Frame{
		{FrameName: "consent", LoadDelay: 150 * time.Millisecond},
		{FrameName: "google-map", LoadDelay: time.Second},
	}

	report, err := NewWaiter(nil).WaitReady(context.Background(), page, Readiness{Signal: SignalLoad, Timeout: 200 * time.Millisecond})
	require.NoError(t, err)
	assert.True(t, report.PageReady)
	assert.Equal(t, []string{"consent"}, report.ReadyFrames)
	assert.Equal(t, []string{"google-map"}, report.SkippedFrames)
	// Sequential waits would need at least 350ms.
	assert.Less(t, report.Duration, 300*time.Millisecond)
}

func TestWaitReadySelectorVisible(t *testing.T) {
	dom := browsertest.NewDOM().Add("css:.hero h1", &browsertest.Node{Text: "Sip-In Cafe", HiddenPolls: 3})
	page := browsertest.NewPage(dom)
	page.IFrames = []*browsertest.Frame{{FrameName: "map"}}

	report, err := NewWaiter(nil).WaitReady(context.Background(), page, Readiness{
		Signal:   SignalSelectorVisible,
		Selector: locator.CSS(".hero h1"),
		Timeout:  50 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, report.PageReady)
	assert.Equal(t, []string{"map"}, report.ReadyFrames)
	assert.Zero(t, page.Recorder().Count("page.wait selector-visible"))
}

func TestWaitReadySelectorMissing(t *testing.T) {
	page := browsertest.NewPage(browsertest.NewDOM())

	report, err := NewWaiter(nil).WaitReady(context.Background(), page, Readiness{
		Signal:   SignalSelectorVisible,
		Selector: locator.CSS(".hero h1"),
		Timeout:  20 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.False(t, report.PageReady)
	require.NotNil(t, report.Timeout)
	assert.Equal(t, "selector-visible", report.Timeout.Signal)
}

func TestWaitReadyDefaultsAndClamp(t *testing.T) {
	page := browsertest.NewPage(browsertest.NewDOM())
	page.LoadErr[browser.LoadStateDOMContentLoaded] = browser.ErrTimeout
	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	report, err := NewWaiter(nil).WaitReady(ctx, page, Readiness{})
	require.NoError(t, err)
	assert.Equal(t, SignalDOMContentLoaded, report.Signal)
	require.NotNil(t, report.Timeout)
	assert.LessOrEqual(t, report.Timeout.Timeout, 40*time.Millisecond)
}

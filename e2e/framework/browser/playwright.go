package browser

import (
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/playwright-community/playwright-go"
)

// PlaywrightOptions controls how the playwright driver is started.
type PlaywrightOptions struct {
	// Install downloads the driver and browsers before starting.
	Install bool
	Verbose bool
}

// Playwright returns a Starter backed by playwright-go.
func Playwright(opts PlaywrightOptions) Starter {
	return func() (Driver, error) {
		runOpts := &playwright.RunOptions{Verbose: opts.Verbose}
		if opts.Install {
			if err := playwright.Install(runOpts); err != nil {
				return nil, pkgerrors.Wrap(err, "install playwright")
			}
		}
		pw, err := playwright.Run(runOpts)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "start playwright")
		}
		return &pwDriver{pw: pw}, nil
	}
}

type pwDriver struct {
	pw *playwright.Playwright
}

func (d *pwDriver) Launch(opts LaunchOptions) (Browser, error) {
	engine := strings.ToLower(strings.TrimSpace(opts.Engine))
	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.SlowMo > 0 {
		launch.SlowMo = playwright.Float(float64(opts.SlowMo.Milliseconds()))
	}
	var browserType playwright.BrowserType
	switch engine {
	case "", EngineChromium:
		browserType = d.pw.Chromium
		launch.Args = opts.Args
	case EngineFirefox:
		browserType = d.pw.Firefox
	case EngineWebKit:
		browserType = d.pw.WebKit
	default:
		return nil, fmt.Errorf("unsupported browser engine %q", opts.Engine)
	}
	b, err := browserType.Launch(launch)
	if err != nil {
		return nil, translate("launch "+engineOrDefault(engine), err)
	}
	return &pwBrowser{browser: b}, nil
}

func (d *pwDriver) Stop() error {
	return translate("stop playwright", d.pw.Stop())
}

type pwBrowser struct {
	browser playwright.Browser
}

func (b *pwBrowser) NewContext(opts ContextOptions) (Context, error) {
	ctxOpts := playwright.BrowserNewContextOptions{}
	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		ctxOpts.Viewport = &playwright.Size{Width: opts.Viewport.Width, Height: opts.Viewport.Height}
	}
	if opts.IgnoreHTTPSErrors {
		ctxOpts.IgnoreHttpsErrors = playwright.Bool(true)
	}
	if opts.UserAgent != "" {
		ctxOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	bc, err := b.browser.NewContext(ctxOpts)
	if err != nil {
		return nil, translate("new context", err)
	}
	if opts.DefaultTimeout > 0 {
		bc.SetDefaultTimeout(float64(opts.DefaultTimeout.Milliseconds()))
	}
	return &pwContext{ctx: bc}, nil
}

func (b *pwBrowser) Close() error {
	return translate("close browser", b.browser.Close())
}

type pwContext struct {
	ctx playwright.BrowserContext
}

func (c *pwContext) NewPage() (Page, error) {
	page, err := c.ctx.NewPage()
	if err != nil {
		return nil, translate("new page", err)
	}
	return &pwPage{page: page}, nil
}

func (c *pwContext) Close() error {
	return translate("close context", c.ctx.Close())
}

type pwFrame struct {
	frame playwright.Frame
}

func (f *pwFrame) Name() string { return f.frame.Name() }

func (f *pwFrame) URL() string { return f.frame.URL() }

func (f *pwFrame) WaitForLoadState(state LoadState, timeout time.Duration) error {
	ls := playwright.LoadState(state)
	return translate("frame load state", f.frame.WaitForLoadState(playwright.FrameWaitForLoadStateOptions{
		State:   &ls,
		Timeout: millis(timeout),
	}))
}

type pwPage struct {
	page playwright.Page
}

func (p *pwPage) Goto(url string, waitUntil LoadState, timeout time.Duration) error {
	until := playwright.WaitUntilState(waitUntil)
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: &until,
		Timeout:   millis(timeout),
	})
	return translate("goto "+url, err)
}

func (p *pwPage) WaitForLoadState(state LoadState, timeout time.Duration) error {
	ls := playwright.LoadState(state)
	return translate("page load state", p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   &ls,
		Timeout: millis(timeout),
	}))
}

func (p *pwPage) MainFrame() Frame {
	return &pwFrame{frame: p.page.MainFrame()}
}

func (p *pwPage) Frames() []Frame {
	main := p.page.MainFrame()
	frames := p.page.Frames()
	out := make([]Frame, 0, len(frames))
	for _, frame := range frames {
		if frame == main {
			continue
		}
		out = append(out, &pwFrame{frame: frame})
	}
	return out
}

func (p *pwPage) URL() string { return p.page.URL() }

func (p *pwPage) Locator(selector string) Element {
	return &pwElement{loc: p.page.Locator(selector)}
}

func (p *pwPage) GetByText(text string, exact bool) Element {
	return &pwElement{loc: p.page.GetByText(text, playwright.PageGetByTextOptions{Exact: playwright.Bool(exact)})}
}

func (p *pwPage) GetByRole(role, name string, exact bool) Element {
	opts := playwright.PageGetByRoleOptions{}
	if name != "" {
		opts.Name = name
		opts.Exact = playwright.Bool(exact)
	}
	return &pwElement{loc: p.page.GetByRole(playwright.AriaRole(role), opts)}
}

func (p *pwPage) SetViewportSize(width, height int) error {
	return translate("set viewport", p.page.SetViewportSize(width, height))
}

func (p *pwPage) ViewportSize() (Size, bool) {
	size := p.page.ViewportSize()
	if size == nil {
		return Size{}, false
	}
	return Size{Width: size.Width, Height: size.Height}, true
}

func (p *pwPage) MouseWheel(dx, dy float64) error {
	return translate("mouse wheel", p.page.Mouse().Wheel(dx, dy))
}

func (p *pwPage) KeyboardPress(key string) error {
	return translate("press "+key, p.page.Keyboard().Press(key))
}

func (p *pwPage) Evaluate(expression string, args ...any) (any, error) {
	value, err := p.page.Evaluate(expression, args...)
	if err != nil {
		return nil, translate("evaluate", err)
	}
	return value, nil
}

func (p *pwPage) AddScriptTag(path string) error {
	_, err := p.page.AddScriptTag(playwright.PageAddScriptTagOptions{Path: playwright.String(path)})
	return translate("add script tag", err)
}

func (p *pwPage) Screenshot(fullPage bool) ([]byte, error) {
	data, err := p.page.Screenshot(playwright.PageScreenshotOptions{FullPage: playwright.Bool(fullPage)})
	if err != nil {
		return nil, translate("screenshot", err)
	}
	return data, nil
}

func (p *pwPage) OnConsole(fn func(ConsoleMessage)) {
	p.page.OnConsole(func(msg playwright.ConsoleMessage) {
		fn(ConsoleMessage{Type: msg.Type(), Text: msg.Text()})
	})
}

func (p *pwPage) OnPageError(fn func(error)) {
	p.page.OnPageError(fn)
}

func (p *pwPage) Close() error {
	return translate("close page", p.page.Close())
}

type pwElement struct {
	loc playwright.Locator
}

func (e *pwElement) Count() (int, error) {
	n, err := e.loc.Count()
	return n, translate("count", err)
}

func (e *pwElement) First() Element { return &pwElement{loc: e.loc.First()} }

func (e *pwElement) Nth(index int) Element { return &pwElement{loc: e.loc.Nth(index)} }

func (e *pwElement) IsVisible() (bool, error) {
	ok, err := e.loc.IsVisible()
	return ok, translate("is visible", err)
}

func (e *pwElement) IsEnabled() (bool, error) {
	ok, err := e.loc.IsEnabled()
	return ok, translate("is enabled", err)
}

func (e *pwElement) IsEditable() (bool, error) {
	ok, err := e.loc.IsEditable()
	return ok, translate("is editable", err)
}

func (e *pwElement) BoundingBox() (*Rect, error) {
	box, err := e.loc.BoundingBox()
	if err != nil {
		return nil, translate("bounding box", err)
	}
	if box == nil {
		return nil, nil
	}
	return &Rect{X: box.X, Y: box.Y, Width: box.Width, Height: box.Height}, nil
}

func (e *pwElement) TextContent() (string, error) {
	text, err := e.loc.TextContent()
	return text, translate("text content", err)
}

func (e *pwElement) InnerText() (string, error) {
	text, err := e.loc.InnerText()
	return text, translate("inner text", err)
}

func (e *pwElement) GetAttribute(name string) (string, bool, error) {
	present, err := e.loc.Evaluate("(el, name) => el.hasAttribute(name)", name)
	if err != nil {
		return "", false, translate("has attribute", err)
	}
	if ok, _ := present.(bool); !ok {
		return "", false, nil
	}
	value, err := e.loc.GetAttribute(name)
	return value, true, translate("get attribute", err)
}

func (e *pwElement) Click(timeout time.Duration) error {
	return translate("click", e.loc.Click(playwright.LocatorClickOptions{Timeout: millis(timeout)}))
}

func (e *pwElement) Fill(value string, timeout time.Duration) error {
	return translate("fill", e.loc.Fill(value, playwright.LocatorFillOptions{Timeout: millis(timeout)}))
}

func (e *pwElement) Hover(timeout time.Duration) error {
	return translate("hover", e.loc.Hover(playwright.LocatorHoverOptions{Timeout: millis(timeout)}))
}

func (e *pwElement) WaitFor(state ElementState, timeout time.Duration) error {
	ws := playwright.WaitForSelectorState(state)
	return translate("wait for "+string(state), e.loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   &ws,
		Timeout: millis(timeout),
	}))
}

func millis(d time.Duration) *float64 {
	if d <= 0 {
		return nil
	}
	return playwright.Float(float64(d.Milliseconds()))
}

func engineOrDefault(engine string) string {
	if engine == "" {
		return EngineChromium
	}
	return engine
}

// translate maps playwright errors onto the package sentinels so callers never import playwright.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if pkgerrors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	if IsClosed(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrClosed, err)
	}
	return pkgerrors.Wrap(err, op)
}

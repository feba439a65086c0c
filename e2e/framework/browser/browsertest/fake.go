// Package browsertest provides an in-memory automation collaborator for unit tests.
package browsertest

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/thesipincafe/site-e2e/e2e/framework/browser"
)

// Recorder keeps an ordered log of lifecycle and input events.
type Recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *Recorder) Add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *Recorder) Count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == event {
			n++
		}
	}
	return n
}

// Driver is a fake automation handle. Every Launch yields a browser that serves Page.
type Driver struct {
	Rec  *Recorder
	Page *Page

	StartErr   error
	LaunchErr  error
	ContextErr error
	PageErr    error
	StopErr    error
	BrowserErr error
	CloseErr   error

	mu       sync.Mutex
	launches []browser.LaunchOptions
	contexts []browser.ContextOptions
}

// NewDriver returns a driver serving page. A nil page gets an empty DOM.
func NewDriver(page *Page) *Driver {
	rec := &Recorder{}
	if page == nil {
		page = NewPage(NewDOM())
	}
	page.rec = rec
	return &Driver{Rec: rec, Page: page}
}

// Starter returns a browser.Starter yielding this driver.
func (d *Driver) Starter() browser.Starter {
	return func() (browser.Driver, error) {
		d.Rec.Add("driver.start")
		if d.StartErr != nil {
			return nil, d.StartErr
		}
		return d, nil
	}
}

func (d *Driver) Launch(opts browser.LaunchOptions) (browser.Browser, error) {
	d.Rec.Add("browser.launch")
	d.mu.Lock()
	d.launches = append(d.launches, opts)
	d.mu.Unlock()
	if d.LaunchErr != nil {
		return nil, d.LaunchErr
	}
	return &fakeBrowser{driver: d}, nil
}

func (d *Driver) Stop() error {
	d.Rec.Add("driver.stop")
	return d.StopErr
}

// Launches returns the launch options seen so far.
func (d *Driver) Launches() []browser.LaunchOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]browser.LaunchOptions(nil), d.launches...)
}

// Contexts returns the context options seen so far.
func (d *Driver) Contexts() []browser.ContextOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]browser.ContextOptions(nil), d.contexts...)
}

type fakeBrowser struct {
	driver *Driver
}

func (b *fakeBrowser) NewContext(opts browser.ContextOptions) (browser.Context, error) {
	b.driver.Rec.Add("context.new")
	b.driver.mu.Lock()
	b.driver.contexts = append(b.driver.contexts, opts)
	b.driver.mu.Unlock()
	if b.driver.ContextErr != nil {
		return nil, b.driver.ContextErr
	}
	if opts.Viewport.Width > 0 {
		b.driver.Page.mu.Lock()
		b.driver.Page.viewport = opts.Viewport
		b.driver.Page.mu.Unlock()
	}
	return &fakeContext{driver: b.driver}, nil
}

func (b *fakeBrowser) Close() error {
	b.driver.Rec.Add("browser.close")
	return b.driver.BrowserErr
}

type fakeContext struct {
	driver *Driver
}

func (c *fakeContext) NewPage() (browser.Page, error) {
	c.driver.Rec.Add("page.new")
	if c.driver.PageErr != nil {
		return nil, c.driver.PageErr
	}
	return c.driver.Page, nil
}

func (c *fakeContext) Close() error {
	c.driver.Rec.Add("context.close")
	return c.driver.CloseErr
}

// Node is one element in a fake DOM.
type Node struct {
	Text     string
	Hidden   bool
	Disabled bool
	ReadOnly bool
	Attrs    map[string]string
	Box      browser.Rect

	// HiddenPolls makes the node report hidden for the first N visibility checks.
	HiddenPolls int
	// VisiblePolls makes the node report visible for N checks, then hidden.
	VisiblePolls int
	// Jitter makes the bounding box move for the first N reads.
	Jitter int
	// Navigates is the path loaded when the node is clicked.
	Navigates string

	Value  string
	Clicks int
}

func (n *Node) visible() bool {
	if n.Hidden {
		return false
	}
	if n.HiddenPolls > 0 {
		n.HiddenPolls--
		return false
	}
	if n.VisiblePolls > 0 {
		n.VisiblePolls--
		if n.VisiblePolls == 0 {
			n.Hidden = true
		}
		return true
	}
	return true
}

// DOM maps query keys to nodes. Keys are "css:<sel>", "xpath:<expr>", "text:<text>" and "role:<role>:<name>".
type DOM struct {
	Elements map[string][]*Node
	// Responsive overrides Elements when the viewport width matches.
	Responsive map[int]map[string][]*Node
	Title      string
}

// NewDOM returns an empty document.
func NewDOM() *DOM {
	return &DOM{Elements: map[string][]*Node{}, Responsive: map[int]map[string][]*Node{}}
}

// Add registers nodes under key.
func (d *DOM) Add(key string, nodes ...*Node) *DOM {
	d.Elements[key] = append(d.Elements[key], nodes...)
	return d
}

// AddAt registers nodes under key for one viewport width.
func (d *DOM) AddAt(width int, key string, nodes ...*Node) *DOM {
	if d.Responsive[width] == nil {
		d.Responsive[width] = map[string][]*Node{}
	}
	d.Responsive[width][key] = append(d.Responsive[width][key], nodes...)
	return d
}

// Frame is a fake iframe.
type Frame struct {
	FrameName string
	FrameURL  string
	LoadErr   error
	// LoadDelay is how long the frame takes to reach any load state.
	LoadDelay time.Duration

	mu    sync.Mutex
	waits int
}

func (f *Frame) Name() string { return f.FrameName }

func (f *Frame) URL() string { return f.FrameURL }

func (f *Frame) WaitForLoadState(state browser.LoadState, timeout time.Duration) error {
	f.mu.Lock()
	f.waits++
	f.mu.Unlock()
	if err := settle(f.LoadDelay, timeout); err != nil {
		return err
	}
	return f.LoadErr
}

// settle blocks for delay, or fails with a timeout once timeout is shorter.
func settle(delay, timeout time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if delay > timeout {
		time.Sleep(timeout)
		return fmt.Errorf("load state after %s: %w", timeout, browser.ErrTimeout)
	}
	time.Sleep(delay)
	return nil
}

// Waits reports how many load-state waits the frame received.
func (f *Frame) Waits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waits
}

// Page is a fake page with route-based documents.
type Page struct {
	Routes   map[string]*DOM
	NotFound *DOM

	GotoErr     error
	LoadErr     map[browser.LoadState]error
	LoadDelay   time.Duration
	ViewportErr error
	EvalFunc    func(expression string, args ...any) (any, error)
	ScriptFunc  func(path string) error
	IFrames     []*Frame

	mu          sync.Mutex
	rec         *Recorder
	dom         *DOM
	url         string
	viewport    browser.Size
	scrollX     float64
	scrollY     float64
	resolutions map[string]int
	consoleFns  []func(browser.ConsoleMessage)
	errorFns    []func(error)
	main        *Frame
}

// NewPage returns a page that serves dom at every route.
func NewPage(dom *DOM) *Page {
	return &Page{
		Routes:      map[string]*DOM{},
		NotFound:    dom,
		LoadErr:     map[browser.LoadState]error{},
		dom:         dom,
		viewport:    browser.Size{Width: 1280, Height: 800},
		resolutions: map[string]int{},
		main:        &Frame{FrameName: "main"},
		rec:         &Recorder{},
	}
}

// Route registers dom for path.
func (p *Page) Route(path string, dom *DOM) *Page {
	p.Routes[path] = dom
	return p
}

// Recorder returns the page event log.
func (p *Page) Recorder() *Recorder { return p.rec }

// Resolutions reports how many times key was resolved against the live DOM.
func (p *Page) Resolutions(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resolutions[key]
}

// Scroll returns the accumulated wheel offset.
func (p *Page) Scroll() (float64, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrollX, p.scrollY
}

// EmitConsole delivers a console message to subscribers.
func (p *Page) EmitConsole(kind, text string) {
	p.mu.Lock()
	fns := append(([]func(browser.ConsoleMessage))(nil), p.consoleFns...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(browser.ConsoleMessage{Type: kind, Text: text})
	}
}

// EmitPageError delivers an uncaught page error to subscribers.
func (p *Page) EmitPageError(err error) {
	p.mu.Lock()
	fns := append(([]func(error))(nil), p.errorFns...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

func (p *Page) Goto(rawURL string, waitUntil browser.LoadState, timeout time.Duration) error {
	p.rec.Add("page.goto " + rawURL)
	if p.GotoErr != nil {
		return p.GotoErr
	}
	p.load(rawURL)
	return nil
}

func (p *Page) load(rawURL string) {
	path := rawURL
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Path != "" {
		path = parsed.Path
	} else if err == nil && parsed.Host != "" {
		path = "/"
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if strings.HasPrefix(rawURL, "/") && p.url != "" {
		if base, err := url.Parse(p.url); err == nil {
			base.Path = rawURL
			rawURL = base.String()
		}
	}
	p.url = rawURL
	if dom, ok := p.Routes[path]; ok {
		p.dom = dom
		return
	}
	p.dom = p.NotFound
}

func (p *Page) WaitForLoadState(state browser.LoadState, timeout time.Duration) error {
	p.rec.Add("page.wait " + string(state))
	if err := settle(p.LoadDelay, timeout); err != nil {
		return err
	}
	return p.LoadErr[state]
}

func (p *Page) MainFrame() browser.Frame { return p.main }

func (p *Page) Frames() []browser.Frame {
	frames := make([]browser.Frame, 0, len(p.IFrames))
	for _, f := range p.IFrames {
		frames = append(frames, f)
	}
	return frames
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) Locator(selector string) browser.Element {
	if strings.HasPrefix(selector, "xpath=") {
		return &element{page: p, key: "xpath:" + strings.TrimPrefix(selector, "xpath="), index: -1}
	}
	return &element{page: p, key: "css:" + selector, index: -1}
}

func (p *Page) GetByText(text string, exact bool) browser.Element {
	return &element{page: p, key: "text:" + text, index: -1}
}

func (p *Page) GetByRole(role, name string, exact bool) browser.Element {
	return &element{page: p, key: "role:" + role + ":" + name, index: -1}
}

func (p *Page) SetViewportSize(width, height int) error {
	p.rec.Add(fmt.Sprintf("page.viewport %dx%d", width, height))
	if p.ViewportErr != nil {
		return p.ViewportErr
	}
	p.mu.Lock()
	p.viewport = browser.Size{Width: width, Height: height}
	p.mu.Unlock()
	return nil
}

func (p *Page) ViewportSize() (browser.Size, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewport, p.viewport.Width > 0
}

func (p *Page) MouseWheel(dx, dy float64) error {
	p.rec.Add(fmt.Sprintf("page.wheel %.0f,%.0f", dx, dy))
	p.mu.Lock()
	p.scrollX += dx
	p.scrollY += dy
	p.mu.Unlock()
	return nil
}

func (p *Page) KeyboardPress(key string) error {
	p.rec.Add("page.press " + key)
	return nil
}

func (p *Page) Evaluate(expression string, args ...any) (any, error) {
	if p.EvalFunc == nil {
		return nil, fmt.Errorf("evaluate not supported")
	}
	return p.EvalFunc(expression, args...)
}

func (p *Page) AddScriptTag(path string) error {
	p.rec.Add("page.script " + path)
	if p.ScriptFunc != nil {
		return p.ScriptFunc(path)
	}
	return nil
}

func (p *Page) Screenshot(fullPage bool) ([]byte, error) {
	p.rec.Add("page.screenshot")
	return []byte("\x89PNG fake"), nil
}

func (p *Page) OnConsole(fn func(browser.ConsoleMessage)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consoleFns = append(p.consoleFns, fn)
}

func (p *Page) OnPageError(fn func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errorFns = append(p.errorFns, fn)
}

func (p *Page) Close() error {
	p.rec.Add("page.close")
	return nil
}

func (p *Page) nodes(key string) []*Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolutions[key]++
	if p.dom == nil {
		return nil
	}
	if layout, ok := p.dom.Responsive[p.viewport.Width]; ok {
		if nodes, ok := layout[key]; ok {
			return nodes
		}
	}
	return p.dom.Elements[key]
}

type element struct {
	page  *Page
	key   string
	index int
}

func (e *element) resolve() []*Node {
	nodes := e.page.nodes(e.key)
	if e.index < 0 {
		return nodes
	}
	if e.index >= len(nodes) {
		return nil
	}
	return nodes[e.index : e.index+1]
}

func (e *element) target() (*Node, error) {
	nodes := e.resolve()
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%s: %w", e.key, browser.ErrTimeout)
	}
	return nodes[0], nil
}

func (e *element) Count() (int, error) { return len(e.resolve()), nil }

func (e *element) First() browser.Element { return &element{page: e.page, key: e.key, index: 0} }

func (e *element) Nth(index int) browser.Element {
	return &element{page: e.page, key: e.key, index: index}
}

func (e *element) IsVisible() (bool, error) {
	nodes := e.resolve()
	if len(nodes) == 0 {
		return false, nil
	}
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return nodes[0].visible(), nil
}

func (e *element) IsEnabled() (bool, error) {
	node, err := e.target()
	if err != nil {
		return false, err
	}
	return !node.Disabled, nil
}

func (e *element) IsEditable() (bool, error) {
	node, err := e.target()
	if err != nil {
		return false, err
	}
	return !node.Disabled && !node.ReadOnly, nil
}

func (e *element) BoundingBox() (*browser.Rect, error) {
	nodes := e.resolve()
	if len(nodes) == 0 {
		return nil, nil
	}
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	node := nodes[0]
	if node.Hidden {
		return nil, nil
	}
	box := node.Box
	if node.Jitter > 0 {
		box.Y += float64(node.Jitter)
		node.Jitter--
	}
	return &box, nil
}

func (e *element) TextContent() (string, error) {
	node, err := e.target()
	if err != nil {
		return "", err
	}
	return node.Text, nil
}

func (e *element) InnerText() (string, error) {
	node, err := e.target()
	if err != nil {
		return "", err
	}
	if node.Hidden {
		return "", nil
	}
	return node.Text, nil
}

func (e *element) GetAttribute(name string) (string, bool, error) {
	node, err := e.target()
	if err != nil {
		return "", false, err
	}
	value, ok := node.Attrs[name]
	return value, ok, nil
}

func (e *element) Click(timeout time.Duration) error {
	node, err := e.target()
	if err != nil {
		return err
	}
	if node.Hidden || node.Disabled {
		return fmt.Errorf("click %s: %w", e.key, browser.ErrTimeout)
	}
	e.page.rec.Add("click " + e.key)
	e.page.mu.Lock()
	node.Clicks++
	e.page.mu.Unlock()
	if node.Navigates != "" {
		e.page.load(node.Navigates)
	}
	return nil
}

func (e *element) Fill(value string, timeout time.Duration) error {
	node, err := e.target()
	if err != nil {
		return err
	}
	if node.Disabled || node.ReadOnly {
		return fmt.Errorf("fill %s: %w", e.key, browser.ErrTimeout)
	}
	e.page.rec.Add("fill " + e.key)
	e.page.mu.Lock()
	node.Value = value
	e.page.mu.Unlock()
	return nil
}

func (e *element) Hover(timeout time.Duration) error {
	if _, err := e.target(); err != nil {
		return err
	}
	e.page.rec.Add("hover " + e.key)
	return nil
}

func (e *element) WaitFor(state browser.ElementState, timeout time.Duration) error {
	// Each poll consumes one visibility check, standing in for elapsed time.
	for i := 0; i < 50; i++ {
		nodes := e.resolve()
		switch state {
		case browser.ElementAttached:
			if len(nodes) > 0 {
				return nil
			}
		case browser.ElementDetached:
			if len(nodes) == 0 {
				return nil
			}
		case browser.ElementVisible, browser.ElementHidden:
			visible := false
			if len(nodes) > 0 {
				e.page.mu.Lock()
				visible = nodes[0].visible()
				e.page.mu.Unlock()
			}
			if visible == (state == browser.ElementVisible) {
				return nil
			}
		}
	}
	return fmt.Errorf("wait for %s %s: %w", e.key, state, browser.ErrTimeout)
}

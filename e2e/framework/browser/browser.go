package browser

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Engine names accepted by LaunchOptions.
const (
	EngineChromium = "chromium"
	EngineFirefox  = "firefox"
	EngineWebKit   = "webkit"
)

// LoadState is a navigation lifecycle event a page or frame can be waited on.
type LoadState string

const (
	LoadStateCommit           LoadState = "commit"
	LoadStateDOMContentLoaded LoadState = "domcontentloaded"
	LoadStateLoad             LoadState = "load"
	LoadStateNetworkIdle      LoadState = "networkidle"
)

// ElementState is a locator state accepted by Element.WaitFor.
type ElementState string

const (
	ElementAttached ElementState = "attached"
	ElementDetached ElementState = "detached"
	ElementVisible  ElementState = "visible"
	ElementHidden   ElementState = "hidden"
)

var (
	// ErrTimeout is returned when an automation call exceeds its timeout.
	ErrTimeout = errors.New("browser: timeout")
	// ErrClosed is returned when the page, context or browser is already gone.
	ErrClosed = errors.New("browser: target closed")
)

// DefaultLaunchArgs are passed to chromium unless overridden.
var DefaultLaunchArgs = []string{
	"--window-size=1280,720",
	"--disable-dev-shm-usage",
	"--ipc=host",
	"--single-process",
}

// LaunchOptions configures the browser process.
type LaunchOptions struct {
	Engine   string
	Headless bool
	Args     []string
	SlowMo   time.Duration
}

// Size is a viewport dimension in CSS pixels.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Rect is an element bounding box.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// ContextOptions configures an isolated browsing context.
type ContextOptions struct {
	Viewport          Size
	DefaultTimeout    time.Duration
	IgnoreHTTPSErrors bool
	UserAgent         string
}

// ConsoleMessage is a message emitted on the page console.
type ConsoleMessage struct {
	Type string
	Text string
}

// Starter launches the automation handle. Each call yields an independent driver.
type Starter func() (Driver, error)

// Driver is the automation handle that owns the browser processes.
type Driver interface {
	Launch(opts LaunchOptions) (Browser, error)
	Stop() error
}

// Browser is one running browser process.
type Browser interface {
	NewContext(opts ContextOptions) (Context, error)
	Close() error
}

// Context is an isolated browsing context (cookies, storage, cache).
type Context interface {
	NewPage() (Page, error)
	Close() error
}

// Frame is a document within a page, including iframes.
type Frame interface {
	Name() string
	URL() string
	WaitForLoadState(state LoadState, timeout time.Duration) error
}

// Page is the capability set the harness drives.
type Page interface {
	Goto(url string, waitUntil LoadState, timeout time.Duration) error
	WaitForLoadState(state LoadState, timeout time.Duration) error
	MainFrame() Frame
	// Frames returns the attached child frames, excluding the main frame.
	Frames() []Frame
	URL() string

	Locator(selector string) Element
	GetByText(text string, exact bool) Element
	GetByRole(role, name string, exact bool) Element

	SetViewportSize(width, height int) error
	ViewportSize() (Size, bool)
	MouseWheel(dx, dy float64) error
	KeyboardPress(key string) error

	Evaluate(expression string, args ...any) (any, error)
	AddScriptTag(path string) error
	Screenshot(fullPage bool) ([]byte, error)

	OnConsole(fn func(ConsoleMessage))
	OnPageError(fn func(error))
	Close() error
}

// Element is a lazily resolved locator. Every call re-queries the live DOM.
type Element interface {
	Count() (int, error)
	First() Element
	Nth(index int) Element

	IsVisible() (bool, error)
	IsEnabled() (bool, error)
	IsEditable() (bool, error)
	BoundingBox() (*Rect, error)
	TextContent() (string, error)
	InnerText() (string, error)
	GetAttribute(name string) (string, bool, error)

	Click(timeout time.Duration) error
	Fill(value string, timeout time.Duration) error
	Hover(timeout time.Duration) error
	WaitFor(state ElementState, timeout time.Duration) error
}

// IsClosed reports whether err signals a resource that is already gone.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"target closed", "context closed", "browser has been closed", "has been closed", "connection closed"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thesipincafe/site-e2e/e2e/framework/browser"
	"github.com/thesipincafe/site-e2e/e2e/framework/fault"
)

// Config describes the browser and context a session owns.
type Config struct {
	Launch         browser.LaunchOptions
	Viewport       browser.Size
	DefaultTimeout time.Duration
	ConsoleLimit   int
}

// Session is one browser process, one isolated context and its page.
// It belongs to exactly one scenario run.
type Session struct {
	ID string

	driver  browser.Driver
	browser browser.Browser
	context browser.Context
	page    browser.Page
	console *ConsoleBuffer
	config  Config
	logger  *zap.Logger

	once       sync.Once
	released   atomic.Bool
	releaseErr error
}

// Page returns the session's page.
func (s *Session) Page() browser.Page { return s.page }

// Console returns the session's console buffer.
func (s *Session) Console() *ConsoleBuffer { return s.console }

// Config returns the configuration the session was acquired with.
func (s *Session) Config() Config { return s.config }

// Released reports whether teardown already ran.
func (s *Session) Released() bool { return s.released.Load() }

// Manager launches and tears down sessions.
type Manager struct {
	start  browser.Starter
	logger *zap.Logger

	mu       sync.Mutex
	active   map[string]*Session
	acquired int
	releases int
}

// NewManager returns a manager that starts drivers with start.
func NewManager(start browser.Starter, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{start: start, logger: logger, active: make(map[string]*Session)}
}

// Acquire launches a headless browser and one isolated context.
// Any failure is an InfrastructureError and leaves nothing running.
func (m *Manager) Acquire(ctx context.Context, cfg Config) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fault.Infrastructure("acquire session", err)
	}
	s := &Session{
		ID:      uuid.NewString(),
		config:  cfg,
		console: NewConsoleBuffer(cfg.ConsoleLimit),
	}
	s.logger = m.logger.With(zap.String("session", s.ID))

	driver, err := m.start()
	if err != nil {
		return nil, fault.Infrastructure("start driver", err)
	}
	s.driver = driver

	b, err := driver.Launch(cfg.Launch)
	if err != nil {
		s.closeAll()
		return nil, fault.Infrastructure("launch browser", err)
	}
	s.browser = b

	bc, err := b.NewContext(browser.ContextOptions{
		Viewport:       cfg.Viewport,
		DefaultTimeout: cfg.DefaultTimeout,
	})
	if err != nil {
		s.closeAll()
		return nil, fault.Infrastructure("create context", err)
	}
	s.context = bc

	page, err := bc.NewPage()
	if err != nil {
		s.closeAll()
		return nil, fault.Infrastructure("open page", err)
	}
	s.page = page
	page.OnConsole(func(msg browser.ConsoleMessage) {
		s.console.Append(msg.Type, msg.Text)
	})
	page.OnPageError(func(err error) {
		s.console.Append("pageerror", err.Error())
	})

	m.mu.Lock()
	m.active[s.ID] = s
	m.acquired++
	m.mu.Unlock()
	s.logger.Debug("session acquired",
		zap.String("engine", cfg.Launch.Engine),
		zap.Bool("headless", cfg.Launch.Headless),
		zap.String("viewport", cfg.Viewport.String()),
	)
	return s, nil
}

// Release closes context, browser and driver in that order. Only the first call
// does work; later calls return the first result. Errors from resources that are
// already gone are logged and dropped.
func (m *Manager) Release(s *Session) error {
	if s == nil {
		return nil
	}
	s.once.Do(func() {
		s.releaseErr = s.closeAll()
		s.released.Store(true)
		m.mu.Lock()
		delete(m.active, s.ID)
		m.releases++
		m.mu.Unlock()
		s.logger.Debug("session released", zap.Error(s.releaseErr))
	})
	return s.releaseErr
}

func (s *Session) closeAll() error {
	logger := s.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var errs []error
	closeStep := func(name string, fn func() error) {
		if err := fn(); err != nil {
			if browser.IsClosed(err) {
				logger.Debug("resource already closed", zap.String("resource", name), zap.Error(err))
				return
			}
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	if s.context != nil {
		closeStep("context", s.context.Close)
	}
	if s.browser != nil {
		closeStep("browser", s.browser.Close)
	}
	if s.driver != nil {
		closeStep("driver", s.driver.Stop)
	}
	return errors.Join(errs...)
}

// Active reports sessions acquired but not yet released.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Stats reports total acquisitions and releases.
func (m *Manager) Stats() (acquired, released int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired, m.releases
}

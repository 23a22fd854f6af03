// Package browser renders pages in headless Chrome for tools that need the
// DOM after scripts ran.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// ErrNotRunning is returned by page operations after Stop.
var ErrNotRunning = errors.New("browser not running")

// Manager owns one Chrome process, launched on first use.
type Manager struct {
	mu       sync.Mutex
	browser  *rod.Browser
	headless bool
	bin      string
	stopped  bool
	settle   time.Duration
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithHeadless sets headless mode (default true).
func WithHeadless(h bool) Option {
	return func(m *Manager) { m.headless = h }
}

// WithBinary points at a Chrome/Chromium executable instead of the auto-detected one.
func WithBinary(path string) Option {
	return func(m *Manager) { m.bin = path }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// New creates a Manager. Chrome is not started until the first page load.
func New(opts ...Option) *Manager {
	m := &Manager{
		headless: true,
		settle:   300 * time.Millisecond,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// ensure launches Chrome if needed. Caller holds m.mu.
func (m *Manager) ensure() (*rod.Browser, error) {
	if m.stopped {
		return nil, ErrNotRunning
	}
	if m.browser != nil {
		return m.browser, nil
	}

	l := launcher.New().
		Headless(m.headless).
		Set("disable-gpu").
		Set("no-first-run").
		Set("no-default-browser-check")
	if m.bin != "" {
		l = l.Bin(m.bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch Chrome: %w", err)
	}
	m.logger.Info("Chrome launched", "cdp", controlURL, "headless", m.headless)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect to Chrome: %w", err)
	}
	m.browser = b
	return b, nil
}

// PageText opens url in a fresh tab, waits for it to settle and returns the
// page title and the visible body text. The tab is closed afterwards.
func (m *Manager) PageText(ctx context.Context, url string) (title, text string, err error) {
	m.mu.Lock()
	b, err := m.ensure()
	m.mu.Unlock()
	if err != nil {
		return "", "", err
	}

	page, err := b.Context(ctx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return "", "", fmt.Errorf("open tab: %w", err)
	}
	defer page.Close()

	if err := page.WaitStable(m.settle); err != nil {
		return "", "", fmt.Errorf("wait stable: %w", err)
	}
	if info, err := page.Info(); err == nil && info != nil {
		title = info.Title
	}
	body, err := page.Element("body")
	if err != nil {
		return title, "", fmt.Errorf("find body: %w", err)
	}
	text, err = body.Text()
	if err != nil {
		return title, "", fmt.Errorf("read text: %w", err)
	}
	return title, text, nil
}

// Stop closes Chrome. Later page loads fail with ErrNotRunning.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopped = true
	if m.browser == nil {
		return nil
	}
	err := m.browser.Close()
	m.browser = nil
	return err
}

// Package scraper drives a headless browser against the publisher's
// e-edition site: authenticated sessions, edition page discovery and
// raw blob download into the object store.
package scraper

import (
	"os"
	"strings"
	"sync"

	"newsward/internal/core"
	"newsward/internal/logger"

	"github.com/playwright-community/playwright-go"
)

// URL fragments whose requests are aborted inside browser contexts.
// Trackers and ad beacons are dead weight over metered proxy egress.
var blockedURLFragments = []string{
	"googletagmanager", "doubleclick", "adservice", "analytics", "facebook",
}

// Hardened launch flags; most only matter for chromium but are
// harmless elsewhere.
var launchArgs = []string{
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-dev-shm-usage",
	"--disable-gpu",
	"--disable-software-rasterizer",
	"--single-process",
	"--no-zygote",
}

// Manager owns one shared browser process. Contexts are cheap; the
// browser launch is not, so it is started lazily and reused.
type Manager struct {
	browserName string // firefox, chromium or webkit
	headless    bool
	trace       bool
	proxy       *playwright.Proxy

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

// NewManager configures a browser manager. Proxy may be nil for
// direct connections.
func NewManager(browserName string, trace bool, proxy *playwright.Proxy) *Manager {
	if browserName == "" {
		browserName = "firefox"
	}
	return &Manager{browserName: browserName, headless: true, trace: trace, proxy: proxy}
}

// Start launches the browser if it is not already running.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browser != nil {
		return nil
	}

	pw, err := playwright.Run()
	if err != nil {
		return core.E(core.KindInternal, "start playwright driver", err)
	}

	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(m.headless),
		Args:     launchArgs,
	}
	if m.proxy != nil {
		opts.Proxy = m.proxy
	}

	var bt playwright.BrowserType
	switch m.browserName {
	case "chromium":
		bt = pw.Chromium
	case "webkit":
		bt = pw.WebKit
	default:
		bt = pw.Firefox
	}

	browser, err := bt.Launch(opts)
	if err != nil {
		_ = pw.Stop()
		return core.E(core.KindUpstream, "launch %s", m.browserName, err)
	}

	m.pw = pw
	m.browser = browser
	logger.Info("browser started", "browser", m.browserName, "proxied", m.proxy != nil)
	return nil
}

// Close shuts the browser and the driver down.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browser != nil {
		_ = m.browser.Close()
		m.browser = nil
	}
	if m.pw != nil {
		_ = m.pw.Stop()
		m.pw = nil
	}
}

// NewContext opens a browser context with the request blocker
// installed. A non-empty storageStatePath pointing at an existing file
// restores that session; otherwise the context starts clean.
func (m *Manager) NewContext(storageStatePath string) (playwright.BrowserContext, error) {
	if err := m.Start(); err != nil {
		return nil, err
	}

	opts := playwright.BrowserNewContextOptions{}
	if storageStatePath != "" {
		if _, err := os.Stat(storageStatePath); err == nil {
			opts.StorageStatePath = playwright.String(storageStatePath)
		}
	}

	ctx, err := m.browser.NewContext(opts)
	if err != nil {
		return nil, core.E(core.KindUpstream, "new browser context", err)
	}
	if err := ctx.Route("**/*", blockHeavyRequests); err != nil {
		logger.Warn("request blocker not installed", "error", err.Error())
	}
	if m.trace {
		err := ctx.Tracing().Start(playwright.TracingStartOptions{
			Screenshots: playwright.Bool(true),
			Snapshots:   playwright.Bool(true),
		})
		if err != nil {
			logger.Warn("tracing not started", "error", err.Error())
		}
	}
	return ctx, nil
}

// CloseContext stops tracing (writing the archive when tracing is on
// and tracePath is set) and closes the context.
func (m *Manager) CloseContext(ctx playwright.BrowserContext, tracePath string) {
	if m.trace && tracePath != "" {
		if err := ctx.Tracing().Stop(tracePath); err != nil {
			logger.Warn("trace not saved", "path", tracePath, "error", err.Error())
		}
	}
	_ = ctx.Close()
}

func blockHeavyRequests(route playwright.Route) {
	req := route.Request()
	switch req.ResourceType() {
	case "image", "media", "font":
		_ = route.Abort()
		return
	}
	u := req.URL()
	for _, frag := range blockedURLFragments {
		if strings.Contains(u, frag) {
			_ = route.Abort()
			return
		}
	}
	_ = route.Continue()
}

package scraper

import (
	"context"
	"os"
	"path/filepath"

	"newsward/internal/config"
	"newsward/internal/core"
	"newsward/internal/logger"

	"github.com/playwright-community/playwright-go"
)

// SessionBlobs is the session manager's view of the object store.
// Storage state lives there so every replica shares one login.
type SessionBlobs interface {
	SaveSession(ctx context.Context, slug string, state []byte) error
	LoadSession(ctx context.Context, slug string) ([]byte, error)
}

// SessionManager keeps an authenticated browser session alive for one
// publication.
type SessionManager struct {
	mgr      *Manager
	blobs    SessionBlobs
	cfg      config.Eedition
	stateDir string
}

// NewSessionManager wires a session manager for the configured
// publication.
func NewSessionManager(mgr *Manager, blobs SessionBlobs, cfg config.Eedition, stateDir string) *SessionManager {
	if stateDir == "" {
		stateDir = "storage"
	}
	return &SessionManager{mgr: mgr, blobs: blobs, cfg: cfg, stateDir: stateDir}
}

// StatePath is the local storage_state.json location for this
// publication.
func (s *SessionManager) StatePath() string {
	return filepath.Join(s.stateDir, s.cfg.Slug+"_storage_state.json")
}

// Ensure returns a browser context holding a valid session, restoring
// state from the object store or logging in as needed. The caller
// closes the context.
func (s *SessionManager) Ensure(ctx context.Context) (playwright.BrowserContext, error) {
	path := s.StatePath()
	if _, err := os.Stat(path); err != nil {
		s.restoreFromBlobs(ctx, path)
	}

	bctx, err := s.mgr.NewContext(path)
	if err != nil {
		return nil, err
	}
	ok, err := s.verify(bctx)
	if err != nil {
		_ = bctx.Close()
		return nil, err
	}
	if ok {
		return bctx, nil
	}

	logger.Info("session expired, logging in", "publication", s.cfg.Slug)
	_ = bctx.Close()
	return s.Login(ctx)
}

// Login performs the credential flow against the edition home page and
// persists the fresh storage state locally and in the object store.
func (s *SessionManager) Login(ctx context.Context) (playwright.BrowserContext, error) {
	if s.cfg.Username == "" || s.cfg.Password == "" {
		return nil, core.E(core.KindConfig, "e-edition credentials not configured")
	}

	bctx, err := s.mgr.NewContext("")
	if err != nil {
		return nil, err
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, core.E(core.KindUpstream, "new page", err)
	}

	if _, err := page.Goto(s.cfg.BaseURL, playwright.PageGotoOptions{Timeout: playwright.Float(30000)}); err != nil {
		_ = bctx.Close()
		return nil, core.E(core.KindUpstream, "load %s", s.cfg.BaseURL, err)
	}
	if err := page.Locator("input[name='email']").Fill(s.cfg.Username); err != nil {
		_ = bctx.Close()
		return nil, core.E(core.KindAuth, "login form not found on %s", s.cfg.BaseURL, err)
	}
	if err := page.Locator("input[name='password']").Fill(s.cfg.Password); err != nil {
		_ = bctx.Close()
		return nil, core.E(core.KindAuth, "password field not found", err)
	}
	if err := page.Locator("button[type='submit']").Click(); err != nil {
		_ = bctx.Close()
		return nil, core.E(core.KindAuth, "submit failed", err)
	}
	_ = page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(15000),
	})

	// Still seeing the form means the credentials were rejected.
	if n, _ := page.Locator("input[name='email']").Count(); n > 0 {
		_ = bctx.Close()
		return nil, core.E(core.KindAuth, "login rejected for %s", s.cfg.Slug)
	}
	_ = page.Close()

	path := s.StatePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		_ = bctx.Close()
		return nil, core.E(core.KindInternal, "create state dir", err)
	}
	if _, err := bctx.StorageState(path); err != nil {
		_ = bctx.Close()
		return nil, core.E(core.KindInternal, "save storage state", err)
	}
	if state, err := os.ReadFile(path); err == nil {
		if err := s.blobs.SaveSession(ctx, s.cfg.Slug, state); err != nil {
			logger.Warn("session upload failed", "publication", s.cfg.Slug, "error", err.Error())
		}
	}

	logger.Info("logged in", "publication", s.cfg.Slug)
	return bctx, nil
}

// verify loads the edition home page and checks whether the login form
// is shown. No form means the restored session is still good.
func (s *SessionManager) verify(bctx playwright.BrowserContext) (bool, error) {
	page, err := bctx.NewPage()
	if err != nil {
		return false, core.E(core.KindUpstream, "new page", err)
	}
	defer page.Close()

	if _, err := page.Goto(s.cfg.BaseURL, playwright.PageGotoOptions{Timeout: playwright.Float(30000)}); err != nil {
		return false, core.E(core.KindUpstream, "load %s", s.cfg.BaseURL, err)
	}
	_ = page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(15000),
	})

	n, err := page.Locator("input[name='email']").Count()
	if err != nil {
		return false, core.E(core.KindUpstream, "inspect page", err)
	}
	return n == 0, nil
}

// restoreFromBlobs pulls the shared storage state down to the local
// path. Best effort: a miss just means a fresh login.
func (s *SessionManager) restoreFromBlobs(ctx context.Context, path string) {
	state, err := s.blobs.LoadSession(ctx, s.cfg.Slug)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	if err := os.WriteFile(path, state, 0o600); err != nil {
		logger.Warn("session restore failed", "error", err.Error())
		return
	}
	logger.Info("session restored from object store", "publication", s.cfg.Slug)
}

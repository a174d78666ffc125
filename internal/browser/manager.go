// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/webpilot-cli/internal/config"
)

const shutdownGracePeriod = 15 * time.Second

// Manager owns the browser process lifecycle and creates sessions (tabs).
// The underlying Chrome instance is launched lazily on the first session
// request.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config

	allocCtx    context.Context
	allocCancel context.CancelFunc

	sessions map[string]*Session
	mu       sync.RWMutex
	// wg tracks open sessions so Shutdown can wait for them.
	wg sync.WaitGroup

	// profileSem serializes tasks sharing one browser profile. Sessions are
	// never interleaved on the same page.
	profileSem *semaphore.Weighted

	initOnce sync.Once
	initErr  error
}

// NewManager creates a browser manager. Initialization is deferred until
// the first session is requested.
func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		logger:     logger.Named("browser_manager"),
		cfg:        cfg,
		sessions:   make(map[string]*Session),
		profileSem: semaphore.NewWeighted(1),
	}
}

// initialize builds the exec allocator that launches Chrome.
func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.logger.Info("Launching browser instance.")

		opts := execOptions(m.cfg)
		// The allocator must outlive the initiating request; it is torn
		// down in Shutdown, not when ctx ends.
		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)

		// Probe the allocator so launch failures surface here instead of
		// on the first action.
		probeCtx, probeCancel := chromedp.NewContext(m.allocCtx)
		defer probeCancel()

		runCtx, runCancel := CombineContext(probeCtx, ctx)
		defer runCancel()

		if err := chromedp.Run(runCtx); err != nil {
			m.allocCancel()
			m.initErr = fmt.Errorf("failed to launch browser instance: %w", err)
			return
		}

		m.logger.Info("Browser manager initialized successfully.")
	})
	return m.initErr
}

// NewSession creates an isolated session (tab) and registers it.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}

	if err := m.profileSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire browser profile: %w", err)
	}

	sessionCtx, sessionCancel := chromedp.NewContext(m.allocCtx)

	session, err := NewSession(sessionCtx, sessionCancel, m.cfg, m.logger)
	if err != nil {
		sessionCancel()
		m.profileSem.Release(1)
		return nil, fmt.Errorf("failed to create new session structure: %w", err)
	}

	m.wg.Add(1)
	session.onClose = func() {
		m.mu.Lock()
		delete(m.sessions, session.ID())
		m.mu.Unlock()
		m.profileSem.Release(1)
		m.wg.Done()
		m.logger.Debug("Session removed from manager.", zap.String("session_id", session.ID()))
	}

	if err := session.Initialize(ctx); err != nil {
		cleanupCtx, cancel := context.WithTimeout(Detach(ctx), 10*time.Second)
		defer cancel()
		session.Close(cleanupCtx)
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}

	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()

	m.logger.Info("New session created.", zap.String("session_id", session.ID()))
	return session, nil
}

// Shutdown gracefully closes all sessions and the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager.")

	if m.allocCtx == nil {
		m.logger.Info("Manager not fully initialized, skipping full shutdown sequence.")
		return nil
	}

	m.mu.RLock()
	sessionsToClose := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessionsToClose = append(sessionsToClose, s)
	}
	m.mu.RUnlock()

	for _, s := range sessionsToClose {
		go func(s *Session) {
			if err := s.Close(ctx); err != nil {
				m.logger.Warn("Error during session close in shutdown.", zap.String("session_id", s.ID()), zap.Error(err))
			}
		}(s)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All sessions closed gracefully.")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for sessions to close. Proceeding with forceful shutdown.", zap.Error(ctx.Err()))
	}

	// chromedp.Cancel blocks until the browser process exits; bound it.
	cancelDone := make(chan error, 1)
	go func() {
		cancelDone <- chromedp.Cancel(m.allocCtx)
	}()

	var shutdownErr error
	select {
	case err := <-cancelDone:
		if err != nil && err != context.Canceled {
			m.logger.Error("Failed to stop browser process.", zap.Error(err))
			shutdownErr = fmt.Errorf("failed to stop browser: %w", err)
		}
	case <-time.After(shutdownGracePeriod):
		m.logger.Warn("Browser process shutdown timed out. Proceeding forcefully.")
	}

	m.allocCancel()
	m.logger.Info("Browser manager shutdown complete.")
	return shutdownErr
}

// execOptions translates the browser configuration into allocator options.
func execOptions(cfg *config.Config) []chromedp.ExecAllocatorOption {
	// Explicit defaults suitable for containers and CI rather than relying
	// solely on chromedp.DefaultExecAllocatorOptions.
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("enable-automation", true),
		chromedp.WindowSize(cfg.Browser.ViewportWidth, cfg.Browser.ViewportHeight),
	}

	if cfg.Browser.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.Browser.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.Browser.UserDataDir))
	}
	if cfg.Browser.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.Browser.UserAgent))
	}
	if cfg.Browser.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}

	// Additional flags from the config file's 'args' slice; key=value
	// arguments are split, bare args become boolean flags.
	for _, arg := range cfg.Browser.Args {
		key := strings.TrimLeft(arg, "-")
		if k, v, found := strings.Cut(key, "="); found {
			opts = append(opts, chromedp.Flag(k, v))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}
	return opts
}

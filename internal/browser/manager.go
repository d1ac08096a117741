package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/applypilot/internal/browser/stealth"
	"github.com/xkilldash9x/applypilot/internal/config"
)

// Manager owns the Chrome process. The profile directory persists across runs so the operator
// stays signed in to the job board.
type Manager struct {
	logger  *zap.Logger
	cfg     *config.Config
	persona stealth.Persona

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc

	mu   sync.Mutex
	tabs []*Tab
}

// NewManager launches the browser and verifies it responds.
func NewManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		logger:  logger.Named("browser_manager"),
		cfg:     cfg,
		persona: stealth.DefaultPersona,
	}
	if err := m.launchBrowser(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

func (m *Manager) launchBrowser(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator...",
		zap.String("user_data_dir", m.cfg.Browser.UserDataDir),
		zap.Bool("headless", m.cfg.Browser.Headless),
	)

	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(ctx, allocatorOptions(m.cfg.Browser, m.persona)...)
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocatorCtx,
		chromedp.WithLogf(m.logger.Sugar().Debugf),
		chromedp.WithErrorf(m.logger.Sugar().Warnf),
	)

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := (&Tab{ctx: m.browserCtx, cancel: func() {}, logger: m.logger}).run(startCtx); err != nil {
		m.browserCancel()
		m.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// NewTab opens a tab with the persona and viewport applied.
func (m *Manager) NewTab(ctx context.Context) (*Tab, error) {
	tabCtx, cancel := chromedp.NewContext(m.browserCtx)
	tab := &Tab{
		ctx:     tabCtx,
		cancel:  cancel,
		browser: m.cfg.Browser,
		network: m.cfg.Network,
		logger:  m.logger.Named("tab"),
	}

	setup := chromedp.Tasks{stealth.Apply(m.persona, m.logger)}
	if w, h := m.cfg.Browser.ViewportWidth, m.cfg.Browser.ViewportHeight; w > 0 && h > 0 {
		setup = append(setup, emulation.SetDeviceMetricsOverride(int64(w), int64(h), 1.0, false))
	}
	if err := tab.run(ctx, setup); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize tab: %w", err)
	}

	m.mu.Lock()
	m.tabs = append(m.tabs, tab)
	m.mu.Unlock()
	return tab, nil
}

// Shutdown closes all tabs and terminates the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated.")

	m.mu.Lock()
	for _, t := range m.tabs {
		t.Close()
	}
	m.tabs = nil
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		if err := chromedp.Cancel(m.browserCtx); err != nil {
			m.logger.Debug("Browser context cancel reported an error.", zap.Error(err))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}
	m.browserCancel()
	m.allocatorCancel()
	<-m.allocatorCtx.Done()
	return nil
}

type flag struct {
	name  string
	value interface{}
}

// allocatorFlags lists the Chrome switches layered over chromedp's defaults.
func allocatorFlags(cfg config.BrowserConfig, goos string) []flag {
	flags := []flag{
		{"headless", cfg.Headless},
		{"disable-blink-features", "AutomationControlled"},
		{"disable-extensions", true},
		{"disable-gpu", cfg.Headless},
		{"lang", "id-ID"},
	}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		flags = append(flags, flag{"window-size", fmt.Sprintf("%d,%d", cfg.ViewportWidth, cfg.ViewportHeight)})
	}

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			flags = append(flags, flag{name, parts[1]})
		} else {
			flags = append(flags, flag{name, true})
		}
	}

	if goos == "linux" {
		flags = append(flags,
			flag{"no-sandbox", true},
			flag{"disable-dev-shm-usage", true},
			flag{"disable-setuid-sandbox", true},
		)
	}
	return flags
}

func allocatorOptions(cfg config.BrowserConfig, persona stealth.Persona) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	// enable-automation shows the infobar and flips navigator.webdriver.
	opts = append(opts, chromedp.Flag("enable-automation", false))

	for _, f := range allocatorFlags(cfg, runtime.GOOS) {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	if persona.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(persona.UserAgent))
	}
	return opts
}

package rod

import (
	"context"
	"fmt"
	"sync"
	"time"

	"computer-use-agent/internal/application/port/output"
	"computer-use-agent/internal/domain/entity"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const (
	BackendLocal = "local"

	defaultSlowMotion       = 0
	defaultProvisionTimeout = 60 * time.Second
)

var (
	_ output.Computer        = (*LocalComputer)(nil)
	_ output.ComputerFactory = (*LocalFactory)(nil)
	_ output.PageTextSource  = (*LocalComputer)(nil)
)

type BrowserConfig struct {
	Headless         bool
	SlowMotion       time.Duration
	NoSandbox        bool
	DevTools         bool
	Bin              string
	SettleTimeout    time.Duration
	CaptureTimeout   time.Duration
	ProvisionTimeout time.Duration
}

func DefaultConfig() BrowserConfig {
	return BrowserConfig{
		Headless:         false,
		SlowMotion:       defaultSlowMotion,
		NoSandbox:        false,
		DevTools:         false,
		SettleTimeout:    defaultSettleTimeout,
		CaptureTimeout:   defaultCaptureTimeout,
		ProvisionTimeout: defaultProvisionTimeout,
	}
}

// LocalFactory launches a fresh browser process per acquisition.
type LocalFactory struct {
	cfg    BrowserConfig
	logger output.LoggerPort
}

func NewLocalFactory(cfg BrowserConfig, logger output.LoggerPort) *LocalFactory {
	if cfg.ProvisionTimeout <= 0 {
		cfg.ProvisionTimeout = defaultProvisionTimeout
	}
	return &LocalFactory{cfg: cfg, logger: logger}
}

func (f *LocalFactory) Acquire(ctx context.Context, session entity.SessionConfig) (output.Computer, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.ProvisionTimeout)
	defer cancel()

	c := &LocalComputer{logger: f.logger}
	if err := c.start(ctx, f.cfg, session); err != nil {
		// Whatever was started before the failure is torn down here.
		_ = c.Release(context.Background())
		return nil, entity.NewEnvironmentSetupError(BackendLocal, "launch", err)
	}
	f.logger.Info("Local browser ready", "viewport", session.Viewport.String(), "mobile", session.Mobile,
		"initial_url", session.InitialURL)
	return c, nil
}

type LocalComputer struct {
	*PageDriver

	browser  *rod.Browser
	launcher *launcher.Launcher
	logger   output.LoggerPort

	releaseOnce sync.Once
	releaseErr  error
}

func (c *LocalComputer) start(ctx context.Context, cfg BrowserConfig, session entity.SessionConfig) error {
	l := launcher.New().
		Headless(cfg.Headless).
		Devtools(cfg.DevTools).
		NoSandbox(cfg.NoSandbox).
		Set("window-size", fmt.Sprintf("%d,%d", session.Viewport.Width, session.Viewport.Height))
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	c.launcher = l

	url, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url).SlowMotion(cfg.SlowMotion).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect browser: %w", err)
	}
	// Keep the connection alive past the provisioning deadline.
	c.browser = browser.Context(context.Background())

	page, err := c.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}

	c.PageDriver = NewPageDriver(page, session, DriverConfig{
		Backend:        BackendLocal,
		SettleTimeout:  cfg.SettleTimeout,
		CaptureTimeout: cfg.CaptureTimeout,
		HighlightMouse: session.HighlightMouse,
	}, c.logger)
	return c.PageDriver.Prepare(ctx, session.InitialURL)
}

func (c *LocalComputer) Name() string { return BackendLocal }

// Release closes the browser and removes the launcher's profile directory. Safe to call
// more than once and on a partially started computer.
func (c *LocalComputer) Release(ctx context.Context) error {
	c.releaseOnce.Do(func() {
		if c.browser != nil {
			if err := c.browser.Close(); err != nil {
				c.releaseErr = fmt.Errorf("close browser: %w", err)
			}
		}
		if c.launcher != nil {
			c.launcher.Kill()
			c.launcher.Cleanup()
		}
		c.logger.Info("Local browser released")
	})
	return c.releaseErr
}

package browserbase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"computer-use-agent/internal/application/port/output"
	"computer-use-agent/internal/domain/entity"
	rodbrowser "computer-use-agent/internal/infrastructure/browser/rod"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

const (
	BackendRemote = "browserbase"

	defaultProvisionTimeout = 60 * time.Second
	releaseTimeout          = 15 * time.Second
)

var (
	_ output.Computer        = (*RemoteComputer)(nil)
	_ output.ComputerFactory = (*Factory)(nil)
	_ output.PageTextSource  = (*RemoteComputer)(nil)
)

type Config struct {
	Region           string
	KeepAlive        bool
	SettleTimeout    time.Duration
	CaptureTimeout   time.Duration
	ProvisionTimeout time.Duration
	// Unsupported lists action kinds this service cannot perform.
	Unsupported []entity.ActionKind
}

// sessionAPI is the part of Client the factory needs.
type sessionAPI interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error)
	ReleaseSession(ctx context.Context, id string) error
	DebugURL(ctx context.Context, id string) (string, error)
}

// connectFunc opens a CDP connection to a provisioned session.
type connectFunc func(ctx context.Context, connectURL string) (*rod.Browser, error)

// Factory provisions one managed session per acquisition.
type Factory struct {
	api     sessionAPI
	cfg     Config
	logger  output.LoggerPort
	connect connectFunc
}

func NewFactory(client *Client, cfg Config, logger output.LoggerPort) *Factory {
	if cfg.ProvisionTimeout <= 0 {
		cfg.ProvisionTimeout = defaultProvisionTimeout
	}
	return &Factory{api: client, cfg: cfg, logger: logger, connect: connectCDP}
}

func connectCDP(ctx context.Context, connectURL string) (*rod.Browser, error) {
	browser := rod.New().ControlURL(connectURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, err
	}
	return browser.Context(context.Background()), nil
}

func (f *Factory) Acquire(ctx context.Context, session entity.SessionConfig) (output.Computer, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.ProvisionTimeout)
	defer cancel()

	remote, err := f.api.CreateSession(ctx, CreateSessionRequest{
		BrowserSettings: BrowserSettings{Viewport: Viewport{
			Width:  session.Viewport.Width,
			Height: session.Viewport.Height,
		}},
		Region:    f.cfg.Region,
		KeepAlive: f.cfg.KeepAlive,
	})
	if err != nil {
		return nil, entity.NewEnvironmentSetupError(BackendRemote, "create session", err)
	}

	c := &RemoteComputer{api: f.api, sessionID: remote.ID, logger: f.logger.WithField("session_id", remote.ID)}
	if err := c.start(ctx, f, remote, session); err != nil {
		_ = c.Release(context.Background())
		return nil, entity.NewEnvironmentSetupError(BackendRemote, "connect", err)
	}

	if debugURL, err := f.api.DebugURL(ctx, remote.ID); err == nil && debugURL != "" {
		c.logger.Info("Remote session live view", "url", debugURL)
	}
	c.logger.Info("Remote browser ready", "region", remote.Region, "viewport", session.Viewport.String(),
		"mobile", session.Mobile)
	return c, nil
}

type RemoteComputer struct {
	*rodbrowser.PageDriver

	api       sessionAPI
	sessionID string
	browser   *rod.Browser
	logger    output.LoggerPort

	releaseOnce sync.Once
	releaseErr  error
}

func (c *RemoteComputer) start(ctx context.Context, f *Factory, remote *Session, session entity.SessionConfig) error {
	browser, err := f.connect(ctx, remote.ConnectURL)
	if err != nil {
		return fmt.Errorf("connect cdp: %w", err)
	}
	c.browser = browser

	page, err := firstPage(browser)
	if err != nil {
		return err
	}

	c.PageDriver = rodbrowser.NewPageDriver(page, session, rodbrowser.DriverConfig{
		Backend:        BackendRemote,
		SettleTimeout:  f.cfg.SettleTimeout,
		CaptureTimeout: f.cfg.CaptureTimeout,
		Unsupported:    f.cfg.Unsupported,
	}, c.logger)
	return c.PageDriver.Prepare(ctx, session.InitialURL)
}

// firstPage reuses the tab the session starts with.
func firstPage(browser *rod.Browser) (*rod.Page, error) {
	pages, err := browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	if len(pages) > 0 {
		return pages.First(), nil
	}
	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	return page, nil
}

func (c *RemoteComputer) Name() string { return BackendRemote }

func (c *RemoteComputer) SessionID() string { return c.sessionID }

// Release disconnects and ends the remote session. It runs once; later calls return
// the first result.
func (c *RemoteComputer) Release(ctx context.Context) error {
	c.releaseOnce.Do(func() {
		if c.browser != nil {
			// Closing the CDP connection alone may leave a keep-alive session running.
			_ = c.browser.Close()
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := c.api.ReleaseSession(rctx, c.sessionID); err != nil {
			c.releaseErr = fmt.Errorf("release session %s: %w", c.sessionID, err)
			return
		}
		c.logger.Info("Remote session released")
	})
	return c.releaseErr
}

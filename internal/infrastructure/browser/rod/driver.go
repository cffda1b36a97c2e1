package rod

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"computer-use-agent/internal/application/port/output"
	"computer-use-agent/internal/domain/entity"

	"github.com/disintegration/imaging"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

const (
	mobileUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

	defaultSettleTimeout  = 5 * time.Second
	defaultCaptureTimeout = 15 * time.Second
	dragSteps            = 10
	scrollSteps          = 5
)

// PageDriver runs the computer action vocabulary against one CDP page. The local and
// remote computers both embed it and only differ in how the page is obtained and released.
type PageDriver struct {
	page           *rod.Page
	backend        string
	viewport       entity.Viewport
	mobile         bool
	highlight      bool
	settleTimeout  time.Duration
	captureTimeout time.Duration
	unsupported    map[entity.ActionKind]bool
	logger         output.LoggerPort
}

type DriverConfig struct {
	Backend       string
	SettleTimeout time.Duration
	// CaptureTimeout bounds the screenshot call itself, after settling.
	CaptureTimeout time.Duration
	HighlightMouse bool
	Unsupported    []entity.ActionKind
}

func NewPageDriver(page *rod.Page, session entity.SessionConfig, cfg DriverConfig, logger output.LoggerPort) *PageDriver {
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = defaultSettleTimeout
	}
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = defaultCaptureTimeout
	}
	unsupported := make(map[entity.ActionKind]bool, len(cfg.Unsupported))
	for _, k := range cfg.Unsupported {
		unsupported[k] = true
	}
	return &PageDriver{
		page:           page,
		backend:        cfg.Backend,
		viewport:       session.Viewport,
		mobile:         session.Mobile,
		highlight:      cfg.HighlightMouse,
		settleTimeout:  cfg.SettleTimeout,
		captureTimeout: cfg.CaptureTimeout,
		unsupported:    unsupported,
		logger:         logger,
	}
}

// Prepare applies the session viewport and device emulation, then opens the initial URL.
func (d *PageDriver) Prepare(ctx context.Context, initialURL string) error {
	page := d.page.Context(ctx)

	err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             d.viewport.Width,
		Height:            d.viewport.Height,
		DeviceScaleFactor: d.viewport.DeviceScaleFactor,
		Mobile:            d.mobile,
	})
	if err != nil {
		return fmt.Errorf("set viewport: %w", err)
	}

	if d.mobile {
		if err := (proto.EmulationSetTouchEmulationEnabled{Enabled: true, MaxTouchPoints: gson.Int(5)}).Call(page); err != nil {
			return fmt.Errorf("enable touch emulation: %w", err)
		}
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: mobileUserAgent}); err != nil {
			return fmt.Errorf("set mobile user agent: %w", err)
		}
	}

	if err := page.Navigate(initialURL); err != nil {
		return fmt.Errorf("open %s: %w", initialURL, err)
	}
	d.settle(ctx)
	return nil
}

func (d *PageDriver) Viewport() entity.Viewport { return d.viewport }
func (d *PageDriver) IsMobile() bool            { return d.mobile }

func (d *PageDriver) Supports(kind entity.ActionKind) bool {
	return !d.unsupported[kind]
}

func (d *PageDriver) CurrentURL(ctx context.Context) (string, error) {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return "", d.wrap("", "info", err)
	}
	return info.URL, nil
}

// settle waits for load and idle, bounded by the settle timeout. It reports false on timeout.
func (d *PageDriver) settle(ctx context.Context) bool {
	page := d.page.Context(ctx).Timeout(d.settleTimeout)
	defer page.CancelTimeout()

	if err := page.WaitLoad(); err != nil {
		d.logger.Debug("Page did not finish loading", "error", err)
		return false
	}
	if err := page.WaitIdle(d.settleTimeout); err != nil {
		d.logger.Debug("Page did not become idle", "error", err)
		return false
	}
	return true
}

func (d *PageDriver) Screenshot(ctx context.Context) (*entity.Screenshot, error) {
	settled := d.settle(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page := d.page.Context(ctx).Timeout(d.captureTimeout)
	defer page.CancelTimeout()

	raw, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, d.captureError(ctx, err)
	}

	data, err := d.normalize(raw)
	if err != nil {
		return nil, err
	}

	var url string
	if info, err := page.Info(); err == nil {
		url = info.URL
	}
	return &entity.Screenshot{
		Data:       data,
		Format:     "png",
		URL:        url,
		Viewport:   d.viewport,
		Stale:      !settled,
		CapturedAt: time.Now(),
	}, nil
}

// captureError classifies a failed capture. Running out of capture time is a recoverable
// perception timeout; a cancelled run stays cancelled.
func (d *PageDriver) captureError(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: capture took longer than %s", entity.ErrPerceptionTimeout, d.captureTimeout)
	case sessionLost(err):
		return entity.NewSessionExpiredError(d.backend, "screenshot", err)
	default:
		return entity.NewEnvironmentSetupError(d.backend, "screenshot", err)
	}
}

// normalize scales a device-pixel capture down to CSS pixels so image pixels and the
// coordinate space the model sees agree on mobile presets.
func (d *PageDriver) normalize(raw []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	if img.Bounds().Dx() == d.viewport.Width {
		return raw, nil
	}

	img = imaging.Resize(img, d.viewport.Width, 0, imaging.Lanczos)
	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode screenshot: %w", err)
	}
	return buf.Bytes(), nil
}

func (d *PageDriver) Navigate(ctx context.Context, url string) error {
	if err := d.page.Context(ctx).Navigate(url); err != nil {
		return d.wrap(entity.ActionNavigate, "navigate", err)
	}
	d.settle(ctx)
	return nil
}

func (d *PageDriver) GoBack(ctx context.Context) error {
	if err := d.page.Context(ctx).NavigateBack(); err != nil {
		return d.wrap(entity.ActionGoBack, "go back", err)
	}
	d.settle(ctx)
	return nil
}

func (d *PageDriver) GoForward(ctx context.Context) error {
	if err := d.page.Context(ctx).NavigateForward(); err != nil {
		return d.wrap(entity.ActionGoForward, "go forward", err)
	}
	d.settle(ctx)
	return nil
}

func (d *PageDriver) Click(ctx context.Context, p entity.PixelPoint, button entity.MouseButton) error {
	d.highlightAt(ctx, p)
	page := d.page.Context(ctx)
	if err := d.hitTest(page, entity.ActionClick, p); err != nil {
		return err
	}

	if d.mobile && button == entity.ButtonLeft {
		if err := page.Touch.Tap(float64(p.X), float64(p.Y)); err != nil {
			return d.wrap(entity.ActionClick, "tap", err)
		}
		return nil
	}

	if err := page.Mouse.MoveTo(toProto(p)); err != nil {
		return d.wrap(entity.ActionClick, "move", err)
	}
	if err := page.Mouse.Click(mouseButton(button), 1); err != nil {
		return d.wrap(entity.ActionClick, "click", err)
	}
	return nil
}

func (d *PageDriver) MoveMouse(ctx context.Context, p entity.PixelPoint) error {
	d.highlightAt(ctx, p)
	if err := d.page.Context(ctx).Mouse.MoveTo(toProto(p)); err != nil {
		return d.wrap(entity.ActionHover, "move", err)
	}
	return nil
}

// TypeText inserts text as-is into the focused element.
func (d *PageDriver) TypeText(ctx context.Context, text string) error {
	if err := d.page.Context(ctx).InsertText(text); err != nil {
		return d.wrap(entity.ActionType, "type", err)
	}
	return nil
}

func (d *PageDriver) KeyPress(ctx context.Context, keys []string) error {
	if err := pressKeys(d.page.Context(ctx), keys); err != nil {
		return d.wrap(entity.ActionKeyPress, "key press", err)
	}
	return nil
}

func (d *PageDriver) Scroll(ctx context.Context, at entity.PixelPoint, dx, dy int) error {
	page := d.page.Context(ctx)
	if err := page.Mouse.MoveTo(toProto(at)); err != nil {
		return d.wrap(entity.ActionScroll, "move", err)
	}
	if err := page.Mouse.Scroll(float64(dx), float64(dy), scrollSteps); err != nil {
		return d.wrap(entity.ActionScroll, "scroll", err)
	}
	return nil
}

func (d *PageDriver) Drag(ctx context.Context, path []entity.PixelPoint) error {
	if len(path) < 2 {
		return entity.NewActionError(entity.ActionDrag, entity.FailureInvalidAction, fmt.Errorf("path needs two points"))
	}
	d.highlightAt(ctx, path[0])
	page := d.page.Context(ctx)
	if err := d.hitTest(page, entity.ActionDrag, path[0]); err != nil {
		return err
	}

	if err := page.Mouse.MoveTo(toProto(path[0])); err != nil {
		return d.wrap(entity.ActionDrag, "drag", err)
	}
	if err := page.Mouse.Down(proto.InputMouseButtonLeft, 1); err != nil {
		return d.wrap(entity.ActionDrag, "drag", err)
	}
	for _, p := range path[1:] {
		if err := page.Mouse.MoveLinear(toProto(p), dragSteps); err != nil {
			_ = page.Mouse.Up(proto.InputMouseButtonLeft, 1)
			return d.wrap(entity.ActionDrag, "drag", err)
		}
	}
	if err := page.Mouse.Up(proto.InputMouseButtonLeft, 1); err != nil {
		return d.wrap(entity.ActionDrag, "drag", err)
	}
	return nil
}

func (d *PageDriver) Wait(ctx context.Context, dur time.Duration) error {
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PageHTML returns the current document for page-text extraction.
func (d *PageDriver) PageHTML(ctx context.Context) (string, error) {
	html, err := d.page.Context(ctx).HTML()
	if err != nil {
		return "", d.wrap("", "html", err)
	}
	return html, nil
}

const highlightJS = `(x, y) => {
	const id = "__agent_mouse_highlight";
	let dot = document.getElementById(id);
	if (!dot) {
		dot = document.createElement("div");
		dot.id = id;
		dot.style.cssText = "position:fixed;width:20px;height:20px;margin:-10px 0 0 -10px;border-radius:50%;" +
			"background:rgba(255,0,0,0.5);border:2px solid red;pointer-events:none;z-index:2147483647;";
		document.documentElement.appendChild(dot);
	}
	dot.style.left = x + "px";
	dot.style.top = y + "px";
	clearTimeout(dot.__timer);
	dot.__timer = setTimeout(() => dot.remove(), 1500);
}`

// highlightAt draws a short-lived marker at p. It is presentation only and never fails an action.
func (d *PageDriver) highlightAt(ctx context.Context, p entity.PixelPoint) {
	if !d.highlight {
		return
	}
	if _, err := d.page.Context(ctx).Eval(highlightJS, p.X, p.Y); err != nil {
		d.logger.Debug("Mouse highlight failed", "error", err)
	}
}

// hitTest fails with TargetNotFound when nothing is rendered at p. Other hit-test errors
// are left for the input call itself to report.
func (d *PageDriver) hitTest(page *rod.Page, kind entity.ActionKind, p entity.PixelPoint) error {
	_, err := proto.DOMGetNodeForLocation{X: p.X, Y: p.Y}.Call(page)
	if err != nil && targetMissing(err) {
		return d.wrap(kind, "hit test", err)
	}
	return nil
}

// wrap classifies a CDP failure of op. A lost page or session becomes a fatal session
// expiry, a missing target becomes TargetNotFound for kind, and anything else is returned
// for the translator to classify.
func (d *PageDriver) wrap(kind entity.ActionKind, op string, err error) error {
	switch {
	case err == nil:
		return nil
	case sessionLost(err):
		return entity.NewSessionExpiredError(d.backend, op, err)
	case kind != "" && targetMissing(err):
		return entity.NewActionError(kind, entity.FailureTargetNotFound, fmt.Errorf("%s: %w", op, err))
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func targetMissing(err error) bool {
	var notFound *rod.ElementNotFoundError
	return errors.Is(err, cdp.ErrNodeNotFoundAtPos) || errors.As(err, &notFound)
}

// sessionLost reports errors after which the page can no longer be driven.
func sessionLost(err error) bool {
	if errors.Is(err, cdp.ErrSessionNotFound) ||
		errors.Is(err, cdp.ErrNotAttachedToActivePage) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var cdpErr *cdp.Error
	if errors.As(err, &cdpErr) {
		// Chrome reports a closed tab with a generated message that has no sentinel.
		return strings.HasPrefix(cdpErr.Message, "No target with given id") ||
			strings.Contains(cdpErr.Message, "Target closed")
	}
	return false
}

func toProto(p entity.PixelPoint) proto.Point {
	return proto.Point{X: float64(p.X), Y: float64(p.Y)}
}

func mouseButton(b entity.MouseButton) proto.InputMouseButton {
	switch b {
	case entity.ButtonRight:
		return proto.InputMouseButtonRight
	case entity.ButtonMiddle:
		return proto.InputMouseButtonMiddle
	default:
		return proto.InputMouseButtonLeft
	}
}

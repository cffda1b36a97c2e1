package rod

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"computer-use-agent/internal/domain/entity"
	"computer-use-agent/internal/infrastructure/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireBrowser(t *testing.T) {
	t.Helper()
	if os.Getenv("AGENT_BROWSER_TESTS") != "1" {
		t.Skip("set AGENT_BROWSER_TESTS=1 to run tests against a real Chrome")
	}
}

func serve(t *testing.T, html string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(html))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func acquire(t *testing.T, session entity.SessionConfig) *LocalComputer {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Headless = true
	cfg.NoSandbox = true

	c, err := NewLocalFactory(cfg, logger.NewNop()).Acquire(context.Background(), session)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Release(context.Background()) })
	return c.(*LocalComputer)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Headless)
	assert.False(t, cfg.NoSandbox, "Should be secure by default")
	assert.Equal(t, defaultSettleTimeout, cfg.SettleTimeout)
	assert.Equal(t, defaultCaptureTimeout, cfg.CaptureTimeout)
	assert.Equal(t, defaultProvisionTimeout, cfg.ProvisionTimeout)
}

func TestLocalComputer_AcquireScreenshotRelease(t *testing.T) {
	requireBrowser(t)
	url := serve(t, BasicHTML)

	c := acquire(t, entity.NewSessionConfig(url, false))

	shot, err := c.Screenshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "png", shot.Format)
	assert.True(t, strings.HasPrefix(shot.URL, url))
	assert.Equal(t, entity.DesktopViewport, shot.Viewport)

	html, err := c.PageHTML(context.Background())
	require.NoError(t, err)
	assert.Contains(t, html, "Hello World")

	require.NoError(t, c.Release(context.Background()))
	require.NoError(t, c.Release(context.Background()), "release must be idempotent")
}

func TestLocalComputer_ClickAndType(t *testing.T) {
	requireBrowser(t)
	c := acquire(t, entity.NewSessionConfig(serve(t, InteractiveHTML), false))
	ctx := context.Background()

	require.NoError(t, c.Click(ctx, entity.PixelPoint{X: 100, Y: 50}, entity.ButtonLeft))
	result, err := c.page.Eval(`() => document.getElementById('result').textContent`)
	require.NoError(t, err)
	assert.Equal(t, "Clicked!", result.Value.Str())

	require.NoError(t, c.Click(ctx, entity.PixelPoint{X: 100, Y: 220}, entity.ButtonLeft))
	require.NoError(t, c.KeyPress(ctx, []string{"Control", "a"}))
	require.NoError(t, c.KeyPress(ctx, []string{"Delete"}))
	require.NoError(t, c.TypeText(ctx, "  new value "))
	value, err := c.page.Eval(`() => document.getElementById('field').value`)
	require.NoError(t, err)
	assert.Equal(t, "  new value ", value.Value.Str())
}

func TestLocalComputer_Scroll(t *testing.T) {
	requireBrowser(t)
	c := acquire(t, entity.NewSessionConfig(serve(t, ScrollableHTML), false))

	require.NoError(t, c.Scroll(context.Background(), entity.PixelPoint{X: 720, Y: 450}, 0, 600))
	time.Sleep(300 * time.Millisecond)

	y, err := c.page.Eval(`() => window.scrollY`)
	require.NoError(t, err)
	assert.Greater(t, y.Value.Int(), 0)
}

func TestLocalComputer_MobileScreenshotIsCSSSized(t *testing.T) {
	requireBrowser(t)
	c := acquire(t, entity.NewSessionConfig(serve(t, BasicHTML), true))

	shot, err := c.Screenshot(context.Background())
	require.NoError(t, err)
	assert.True(t, c.IsMobile())
	assert.Equal(t, entity.MobileViewport, shot.Viewport)
}

func TestLocalFactory_BadBinaryIsEnvironmentError(t *testing.T) {
	requireBrowser(t)
	cfg := DefaultConfig()
	cfg.Headless = true
	cfg.Bin = "/nonexistent/chrome"
	cfg.ProvisionTimeout = 5 * time.Second

	_, err := NewLocalFactory(cfg, logger.NewNop()).Acquire(context.Background(), entity.NewSessionConfig("", false))

	assert.ErrorIs(t, err, entity.ErrEnvironmentSetup)
}

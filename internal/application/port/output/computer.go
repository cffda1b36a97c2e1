package output

import (
	"context"
	"time"

	"computer-use-agent/internal/domain/entity"
)

// Computer is a browser environment exclusively owned by one run. Coordinates passed to
// its pointer methods are viewport CSS pixels; normalization happens before the call.
type Computer interface {
	Name() string
	Viewport() entity.Viewport
	IsMobile() bool
	Supports(kind entity.ActionKind) bool
	CurrentURL(ctx context.Context) (string, error)

	// Screenshot waits for pending navigation to settle, bounded by the settle timeout.
	// On timeout it still captures and marks the screenshot stale. A capture that itself
	// runs out of time fails with entity.ErrPerceptionTimeout.
	Screenshot(ctx context.Context) (*entity.Screenshot, error)

	Navigate(ctx context.Context, url string) error
	GoBack(ctx context.Context) error
	GoForward(ctx context.Context) error
	Click(ctx context.Context, p entity.PixelPoint, button entity.MouseButton) error
	MoveMouse(ctx context.Context, p entity.PixelPoint) error
	TypeText(ctx context.Context, text string) error
	KeyPress(ctx context.Context, keys []string) error
	Scroll(ctx context.Context, at entity.PixelPoint, dx, dy int) error
	Drag(ctx context.Context, path []entity.PixelPoint) error
	Wait(ctx context.Context, d time.Duration) error

	// Release closes the underlying browser or session. It is idempotent.
	Release(ctx context.Context) error
}

// ComputerFactory establishes a Computer at the session viewport and navigates to the initial URL.
type ComputerFactory interface {
	Acquire(ctx context.Context, session entity.SessionConfig) (Computer, error)
}

// PageTextSource is implemented by computers that can expose the current document.
type PageTextSource interface {
	PageHTML(ctx context.Context) (string, error)
}

// PageTextExtractor condenses a document into the text outline shown to the model.
type PageTextExtractor interface {
	Extract(rawHTML, url string) (entity.PageText, error)
}

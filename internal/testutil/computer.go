// Package testutil holds in-memory doubles shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"computer-use-agent/internal/application/port/output"
	"computer-use-agent/internal/domain/entity"
)

var _ output.Computer = (*FakeComputer)(nil)

// FakeComputer records every call and serves a fixed PNG as its screenshot.
type FakeComputer struct {
	mu sync.Mutex

	Backend     string
	VP          entity.Viewport
	Mobile      bool
	Unsupported map[entity.ActionKind]bool
	URL         string
	HTML        string

	// Fail makes the named method return the given error on every call.
	Fail map[string]error
	// ScreenshotErr is returned by every Screenshot call when set.
	ScreenshotErr error
	StaleShots    bool

	Calls       []string
	Screenshots int
	Releases    int
}

func NewFakeComputer() *FakeComputer {
	return &FakeComputer{
		Backend:     "fake",
		VP:          entity.DesktopViewport,
		Unsupported: map[entity.ActionKind]bool{},
		URL:         "https://www.google.com",
		Fail:        map[string]error{},
	}
}

func (f *FakeComputer) record(method string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	f.Calls = append(f.Calls, method+"("+strings.Join(parts, ",")+")")
	return f.Fail[method]
}

// CallLog returns a copy of the recorded calls.
func (f *FakeComputer) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

func (f *FakeComputer) Name() string              { return f.Backend }
func (f *FakeComputer) Viewport() entity.Viewport { return f.VP }
func (f *FakeComputer) IsMobile() bool            { return f.Mobile }

func (f *FakeComputer) Supports(kind entity.ActionKind) bool {
	return !f.Unsupported[kind]
}

func (f *FakeComputer) CurrentURL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.URL, nil
}

func (f *FakeComputer) Screenshot(ctx context.Context) (*entity.Screenshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Screenshots++
	if f.ScreenshotErr != nil {
		return nil, f.ScreenshotErr
	}
	return &entity.Screenshot{
		Data:       PNG(),
		Format:     "png",
		URL:        f.URL,
		Viewport:   f.VP,
		Stale:      f.StaleShots,
		CapturedAt: time.Now(),
	}, nil
}

func (f *FakeComputer) Navigate(ctx context.Context, url string) error {
	if err := f.record("Navigate", url); err != nil {
		return err
	}
	f.mu.Lock()
	f.URL = url
	f.mu.Unlock()
	return nil
}

func (f *FakeComputer) GoBack(ctx context.Context) error    { return f.record("GoBack") }
func (f *FakeComputer) GoForward(ctx context.Context) error { return f.record("GoForward") }

func (f *FakeComputer) Click(ctx context.Context, p entity.PixelPoint, button entity.MouseButton) error {
	return f.record("Click", p.X, p.Y, button)
}

func (f *FakeComputer) MoveMouse(ctx context.Context, p entity.PixelPoint) error {
	return f.record("MoveMouse", p.X, p.Y)
}

func (f *FakeComputer) TypeText(ctx context.Context, text string) error {
	return f.record("TypeText", text)
}

func (f *FakeComputer) KeyPress(ctx context.Context, keys []string) error {
	return f.record("KeyPress", strings.Join(keys, "+"))
}

func (f *FakeComputer) Scroll(ctx context.Context, at entity.PixelPoint, dx, dy int) error {
	return f.record("Scroll", at.X, at.Y, dx, dy)
}

func (f *FakeComputer) Drag(ctx context.Context, path []entity.PixelPoint) error {
	args := make([]any, 0, len(path))
	for _, p := range path {
		args = append(args, fmt.Sprintf("%d:%d", p.X, p.Y))
	}
	return f.record("Drag", args...)
}

func (f *FakeComputer) Wait(ctx context.Context, d time.Duration) error {
	return f.record("Wait", d)
}

func (f *FakeComputer) PageHTML(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.HTML, nil
}

func (f *FakeComputer) Release(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Releases++
	return nil
}

// FakeFactory hands out the same FakeComputer, or AcquireErr.
type FakeFactory struct {
	Computer   *FakeComputer
	AcquireErr error
	Sessions   []entity.SessionConfig
}

func (f *FakeFactory) Acquire(ctx context.Context, session entity.SessionConfig) (output.Computer, error) {
	f.Sessions = append(f.Sessions, session)
	if f.AcquireErr != nil {
		return nil, f.AcquireErr
	}
	return f.Computer, nil
}

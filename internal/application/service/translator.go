package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"computer-use-agent/internal/application/port/output"
	"computer-use-agent/internal/domain/entity"
)

const defaultActionTimeout = 10 * time.Second

// ActionTranslator maps normalized model actions onto concrete Computer calls.
type ActionTranslator struct {
	logger        output.LoggerPort
	actionTimeout time.Duration
}

func NewActionTranslator(logger output.LoggerPort, actionTimeout time.Duration) *ActionTranslator {
	if actionTimeout <= 0 {
		actionTimeout = defaultActionTimeout
	}
	return &ActionTranslator{logger: logger, actionTimeout: actionTimeout}
}

// MapCoordinate converts a normalized coordinate to a pixel index in [0, dimension-1].
// clamped reports that the input was outside [0,1] (or NaN).
func MapCoordinate(normalized float64, dimension int) (pixel int, clamped bool) {
	if dimension <= 0 {
		return 0, true
	}
	if math.IsNaN(normalized) {
		return 0, true
	}
	clamped = normalized < 0 || normalized > 1
	v := math.Round(normalized * float64(dimension))
	switch {
	case v < 0:
		return 0, clamped
	case v > float64(dimension-1):
		return dimension - 1, clamped
	default:
		return int(v), clamped
	}
}

// ToPixels maps a normalized point into the viewport.
func ToPixels(p entity.Point, vp entity.Viewport) (entity.PixelPoint, bool) {
	x, cx := MapCoordinate(p.X, vp.Width)
	y, cy := MapCoordinate(p.Y, vp.Height)
	return entity.PixelPoint{X: x, Y: y}, cx || cy
}

// ScrollDelta converts a fraction of the viewport dimension into pixels.
func ScrollDelta(fraction float64, dimension int) int {
	if math.IsNaN(fraction) || math.IsInf(fraction, 0) {
		return 0
	}
	return int(math.Round(fraction * float64(dimension)))
}

// Execute applies one action. Failures come back inside the outcome; the returned
// outcome's Err is fatal only when it is an environment error.
func (t *ActionTranslator) Execute(ctx context.Context, c output.Computer, a entity.Action) entity.ActionOutcome {
	start := time.Now()
	outcome := entity.ActionOutcome{Action: a}

	err := t.execute(ctx, c, a, &outcome)
	outcome.Duration = time.Since(start)
	if err != nil {
		outcome.Err = err
		outcome.Success = false
		t.logger.Warn("Action failed", "action", a.String(), "error", err, "failure", entity.FailureOf(err))
		return outcome
	}

	outcome.Success = true
	if url, uerr := c.CurrentURL(ctx); uerr == nil && url != "" {
		outcome.Message = fmt.Sprintf("%s done, current url: %s", a.Kind, url)
	} else {
		outcome.Message = fmt.Sprintf("%s done", a.Kind)
	}
	if outcome.Clamped {
		outcome.Message += " (coordinates clamped to the viewport)"
	}
	t.logger.Debug("Action completed", "action", a.String(), "duration", outcome.Duration)
	return outcome
}

func (t *ActionTranslator) execute(ctx context.Context, c output.Computer, a entity.Action, outcome *entity.ActionOutcome) error {
	if err := a.Validate(); err != nil {
		return entity.NewActionError(a.Kind, entity.FailureInvalidAction, err)
	}
	if !c.Supports(a.Kind) {
		return entity.NewActionError(a.Kind, entity.FailureUnsupportedAction,
			fmt.Errorf("%s backend does not support %s", c.Name(), a.Kind))
	}

	opCtx, cancel := context.WithTimeout(ctx, t.actionTimeout+a.Duration)
	defer cancel()

	vp := c.Viewport()
	point := func(p entity.Point) entity.PixelPoint {
		px, clamped := ToPixels(p, vp)
		if clamped {
			outcome.Clamped = true
			t.logger.Info("Coordinates clamped", "action", a.Kind, "x", p.X, "y", p.Y, "pixel_x", px.X, "pixel_y", px.Y)
		}
		return px
	}

	var err error
	switch a.Kind {
	case entity.ActionNavigate:
		err = c.Navigate(opCtx, a.URL)
	case entity.ActionGoBack:
		err = c.GoBack(opCtx)
	case entity.ActionGoForward:
		err = c.GoForward(opCtx)
	case entity.ActionClick:
		button := a.Button
		if button == "" {
			button = entity.ButtonLeft
		}
		err = c.Click(opCtx, point(*a.Point), button)
	case entity.ActionHover:
		err = c.MoveMouse(opCtx, point(*a.Point))
	case entity.ActionType:
		err = t.typeText(opCtx, c, a, point)
	case entity.ActionKeyPress:
		err = c.KeyPress(opCtx, a.Keys)
	case entity.ActionScroll:
		at := entity.PixelPoint{X: vp.Width / 2, Y: vp.Height / 2}
		if a.Point != nil {
			at = point(*a.Point)
		}
		err = c.Scroll(opCtx, at, ScrollDelta(a.DX, vp.Width), ScrollDelta(a.DY, vp.Height))
	case entity.ActionDrag:
		path := make([]entity.PixelPoint, 0, len(a.Path))
		for _, p := range a.Path {
			path = append(path, point(p))
		}
		err = c.Drag(opCtx, path)
	case entity.ActionWait:
		err = c.Wait(opCtx, a.Duration)
	case entity.ActionScreenshot:
		// The next turn always starts with a fresh capture.
	}
	return classify(opCtx, a.Kind, err)
}

// typeText clicks the target, optionally clears it, types the text verbatim and optionally submits.
func (t *ActionTranslator) typeText(ctx context.Context, c output.Computer, a entity.Action, point func(entity.Point) entity.PixelPoint) error {
	if a.Point != nil {
		if err := c.Click(ctx, point(*a.Point), entity.ButtonLeft); err != nil {
			return err
		}
	}
	if a.ClearFirst {
		if err := c.KeyPress(ctx, []string{"Control", "A"}); err != nil {
			return err
		}
		if err := c.KeyPress(ctx, []string{"Delete"}); err != nil {
			return err
		}
	}
	if a.Text != "" {
		if err := c.TypeText(ctx, a.Text); err != nil {
			return err
		}
	}
	if a.PressEnter {
		return c.KeyPress(ctx, []string{"Enter"})
	}
	return nil
}

func classify(ctx context.Context, kind entity.ActionKind, err error) error {
	if err == nil {
		return nil
	}
	var ae *entity.ActionError
	if errors.As(err, &ae) || errors.Is(err, entity.ErrEnvironmentSetup) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return entity.NewActionError(kind, entity.FailureTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if kind == entity.ActionNavigate || kind == entity.ActionGoBack || kind == entity.ActionGoForward {
		return entity.NewActionError(kind, entity.FailureNavigation, err)
	}
	return entity.NewActionError(kind, entity.FailureOther, err)
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"computer-use-agent/internal/domain/entity"
	"computer-use-agent/internal/infrastructure/logger"
	"computer-use-agent/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTranslator() *ActionTranslator {
	return NewActionTranslator(logger.NewNop(), time.Second)
}

func TestMapCoordinate(t *testing.T) {
	tests := []struct {
		name        string
		n           float64
		dim         int
		want        int
		wantClamped bool
	}{
		{"origin", 0, 1440, 0, false},
		{"center", 0.5, 1440, 720, false},
		{"right edge stays inside", 1, 1440, 1439, false},
		{"rounds", 0.1234, 1000, 123, false},
		{"negative clamps", -0.2, 900, 0, true},
		{"over one clamps", 1.7, 900, 899, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, clamped := MapCoordinate(tt.n, tt.dim)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantClamped, clamped)
		})
	}
}

func TestMapCoordinate_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		dim := rapid.IntRange(1, 5000).Draw(t, "dim")
		a := rapid.Float64Range(-2, 3).Draw(t, "a")
		b := rapid.Float64Range(-2, 3).Draw(t, "b")
		if a > b {
			a, b = b, a
		}

		pa, _ := MapCoordinate(a, dim)
		pb, _ := MapCoordinate(b, dim)

		if pa < 0 || pa > dim-1 || pb < 0 || pb > dim-1 {
			t.Fatalf("pixel out of range: %d %d for dim %d", pa, pb, dim)
		}
		if pa > pb {
			t.Fatalf("mapping not monotonic: %v->%d, %v->%d", a, pa, b, pb)
		}
	})
}

func TestMapCoordinate_InRangeNeverClamped(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		dim := rapid.IntRange(1, 5000).Draw(t, "dim")
		n := rapid.Float64Range(0, 1).Draw(t, "n")
		if _, clamped := MapCoordinate(n, dim); clamped {
			t.Fatalf("in-range %v reported as clamped", n)
		}
	})
}

func TestExecute_Click(t *testing.T) {
	c := testutil.NewFakeComputer()

	outcome := newTranslator().Execute(context.Background(), c, entity.Click(0.5, 0.5))

	require.True(t, outcome.Success, outcome.Observation())
	assert.False(t, outcome.Clamped)
	assert.Equal(t, []string{"Click(720,450,left)"}, c.CallLog())
	assert.Contains(t, outcome.Message, "current url: https://www.google.com")
}

func TestExecute_ClickOutOfRangeIsClamped(t *testing.T) {
	c := testutil.NewFakeComputer()

	outcome := newTranslator().Execute(context.Background(), c, entity.Click(1.5, -0.1))

	require.True(t, outcome.Success)
	assert.True(t, outcome.Clamped)
	assert.Equal(t, []string{"Click(1439,0,left)"}, c.CallLog())
}

func TestExecute_TypeTextAtDecomposes(t *testing.T) {
	c := testutil.NewFakeComputer()
	a := entity.Action{
		Kind:       entity.ActionType,
		Point:      &entity.Point{X: 0.25, Y: 0.5},
		Text:       "  hello  world ",
		ClearFirst: true,
		PressEnter: true,
	}

	outcome := newTranslator().Execute(context.Background(), c, a)

	require.True(t, outcome.Success)
	assert.Equal(t, []string{
		"Click(360,450,left)",
		"KeyPress(Control+A)",
		"KeyPress(Delete)",
		"TypeText(  hello  world )",
		"KeyPress(Enter)",
	}, c.CallLog())
}

func TestExecute_ScrollUsesViewportFractions(t *testing.T) {
	c := testutil.NewFakeComputer()

	outcome := newTranslator().Execute(context.Background(), c, entity.Scroll(0, 0.5))

	require.True(t, outcome.Success)
	assert.Equal(t, []string{"Scroll(720,450,0,450)"}, c.CallLog())
}

func TestExecute_Drag(t *testing.T) {
	c := testutil.NewFakeComputer()

	outcome := newTranslator().Execute(context.Background(), c,
		entity.Drag(entity.Point{X: 0.1, Y: 0.1}, entity.Point{X: 0.9, Y: 0.9}))

	require.True(t, outcome.Success)
	assert.Equal(t, []string{"Drag(144:90,1296:810)"}, c.CallLog())
}

func TestExecute_UnsupportedAction(t *testing.T) {
	c := testutil.NewFakeComputer()
	c.Unsupported[entity.ActionDrag] = true

	outcome := newTranslator().Execute(context.Background(), c,
		entity.Drag(entity.Point{X: 0.1, Y: 0.1}, entity.Point{X: 0.2, Y: 0.2}))

	assert.False(t, outcome.Success)
	assert.Equal(t, entity.FailureUnsupportedAction, entity.FailureOf(outcome.Err))
	assert.ErrorIs(t, outcome.Err, entity.ErrActionExecution)
	assert.False(t, entity.IsFatal(outcome.Err))
	assert.Empty(t, c.CallLog())
}

func TestExecute_InvalidAction(t *testing.T) {
	c := testutil.NewFakeComputer()

	outcome := newTranslator().Execute(context.Background(), c, entity.Action{Kind: entity.ActionClick})

	assert.False(t, outcome.Success)
	assert.Equal(t, entity.FailureInvalidAction, entity.FailureOf(outcome.Err))
	assert.Contains(t, outcome.Observation(), "Error: ")
}

func TestExecute_NavigationErrorIsClassified(t *testing.T) {
	c := testutil.NewFakeComputer()
	c.Fail["Navigate"] = errors.New("net::ERR_NAME_NOT_RESOLVED")

	outcome := newTranslator().Execute(context.Background(), c, entity.Navigate("https://nope.invalid"))

	assert.False(t, outcome.Success)
	assert.Equal(t, entity.FailureNavigation, entity.FailureOf(outcome.Err))
}

func TestExecute_EnvironmentErrorPassesThrough(t *testing.T) {
	c := testutil.NewFakeComputer()
	c.Fail["Click"] = entity.NewEnvironmentSetupError("fake", "click", errors.New("browser gone"))

	outcome := newTranslator().Execute(context.Background(), c, entity.Click(0.1, 0.1))

	assert.False(t, outcome.Success)
	assert.True(t, entity.IsFatal(outcome.Err))
}

func TestExecute_TargetNotFoundIsKept(t *testing.T) {
	c := testutil.NewFakeComputer()
	c.Fail["Click"] = entity.NewActionError(entity.ActionClick, entity.FailureTargetNotFound,
		errors.New("hit test: no node found at given location"))

	outcome := newTranslator().Execute(context.Background(), c, entity.Click(0.5, 0.5))

	assert.False(t, outcome.Success)
	assert.False(t, entity.IsFatal(outcome.Err))
	assert.Equal(t, entity.FailureTargetNotFound, entity.FailureOf(outcome.Err))
}

func TestExecute_SessionExpiryIsFatal(t *testing.T) {
	c := testutil.NewFakeComputer()
	c.Fail["KeyPress"] = entity.NewSessionExpiredError("fake", "key press", errors.New("not attached to an active page"))

	outcome := newTranslator().Execute(context.Background(), c, entity.Action{Kind: entity.ActionKeyPress, Keys: []string{"Enter"}})

	assert.False(t, outcome.Success)
	assert.True(t, entity.IsFatal(outcome.Err))
	assert.Equal(t, entity.FailureSessionExpired, entity.FailureOf(outcome.Err))
}

func TestExecute_ScreenshotIsNoop(t *testing.T) {
	c := testutil.NewFakeComputer()

	outcome := newTranslator().Execute(context.Background(), c, entity.Action{Kind: entity.ActionScreenshot})

	assert.True(t, outcome.Success)
	assert.Empty(t, c.CallLog())
}

package entity

import (
	"fmt"
	"strings"
)

const DefaultInitialURL = "https://www.google.com"

// Viewport is the CSS pixel size of the browser viewport plus its device pixel ratio.
type Viewport struct {
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	DeviceScaleFactor float64 `json:"device_scale_factor"`
}

func (v Viewport) String() string {
	return fmt.Sprintf("%dx%d@%gx", v.Width, v.Height, v.DeviceScaleFactor)
}

var (
	DesktopViewport = Viewport{Width: 1440, Height: 900, DeviceScaleFactor: 1}
	MobileViewport  = Viewport{Width: 390, Height: 844, DeviceScaleFactor: 3}
)

type OutputMode string

const (
	OutputVerbose OutputMode = "verbose"
	OutputQuiet   OutputMode = "quiet"
)

// SessionConfig is fixed for the lifetime of one run. OutputMode only changes reporting.
type SessionConfig struct {
	Viewport        Viewport
	InitialURL      string
	Mobile          bool
	HighlightMouse  bool
	SaveScreenshots bool
	OutputMode      OutputMode
}

func NewSessionConfig(initialURL string, mobile bool) SessionConfig {
	cfg := SessionConfig{
		Viewport:   DesktopViewport,
		InitialURL: initialURL,
		Mobile:     mobile,
		OutputMode: OutputVerbose,
	}
	if mobile {
		cfg.Viewport = MobileViewport
	}
	if strings.TrimSpace(cfg.InitialURL) == "" {
		cfg.InitialURL = DefaultInitialURL
	}
	return cfg
}

func (c SessionConfig) Quiet() bool {
	return c.OutputMode == OutputQuiet
}

func (c SessionConfig) Validate() error {
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		return fmt.Errorf("invalid viewport %s", c.Viewport)
	}
	if strings.TrimSpace(c.InitialURL) == "" {
		return fmt.Errorf("initial url is required")
	}
	return nil
}

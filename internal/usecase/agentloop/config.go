package agentloop

import (
	"fmt"

	"computer-use-agent/internal/application/service"
)

type Config struct {
	MaxTurns               int
	MaxConsecutiveFailures int
	// HistoryTurns is how many of the newest turns are replayed verbatim.
	HistoryTurns int
	// ScreenshotTurns is how many of the newest turns carry their screenshot.
	ScreenshotTurns   int
	MaxSummaryLines   int
	IncludePageText   bool
	MaxObservationLen int
	Temperature       float32
	ModelRetry        service.RetryPolicy
}

func DefaultConfig() Config {
	return Config{
		MaxTurns:               50,
		MaxConsecutiveFailures: 3,
		HistoryTurns:           10,
		ScreenshotTurns:        3,
		MaxSummaryLines:        40,
		MaxObservationLen:      20000,
		ModelRetry:             service.DefaultRetryPolicy(),
	}
}

func (c Config) Validate() error {
	if c.MaxTurns < 1 {
		return fmt.Errorf("max turns must be at least 1, got %d", c.MaxTurns)
	}
	if c.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("max consecutive failures must be at least 1, got %d", c.MaxConsecutiveFailures)
	}
	if c.HistoryTurns < 1 {
		return fmt.Errorf("history turns must be at least 1, got %d", c.HistoryTurns)
	}
	if c.ScreenshotTurns < 1 {
		return fmt.Errorf("screenshot turns must be at least 1, got %d", c.ScreenshotTurns)
	}
	if c.MaxSummaryLines < 0 {
		return fmt.Errorf("max summary lines must not be negative")
	}
	return nil
}

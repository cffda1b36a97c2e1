package entity

import "time"

// Screenshot is the perception captured at the start of a turn.
type Screenshot struct {
	Data     []byte
	Format   string
	URL      string
	Viewport Viewport
	// Stale is set when the page did not settle before the capture deadline.
	Stale      bool
	CapturedAt time.Time
}

func (s *Screenshot) MIMEType() string {
	if s == nil || s.Format == "" {
		return "image/png"
	}
	return "image/" + s.Format
}

type PageText struct {
	URL   string
	Title string
	Text  string
}

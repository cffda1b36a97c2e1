package screenshots

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"computer-use-agent/internal/application/port/output"
	"computer-use-agent/internal/domain/entity"
)

var _ output.ScreenshotStore = (*FileStore)(nil)

// FileStore writes one file per turn, named screenshot_<turn>.<format>, into a directory.
type FileStore struct {
	dir string

	mu    sync.Mutex
	ready bool
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) Save(ctx context.Context, turnIndex int, shot *entity.Screenshot) (string, error) {
	if shot == nil || len(shot.Data) == 0 {
		return "", errors.New("empty screenshot")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := s.ensureDir(); err != nil {
		return "", fmt.Errorf("create screenshot dir: %w", err)
	}

	ext := shot.Format
	if ext == "" {
		ext = "png"
	}
	path := filepath.Join(s.dir, fmt.Sprintf("screenshot_%03d.%s", turnIndex, ext))
	if err := os.WriteFile(path, shot.Data, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	return path, nil
}

// ensureDir creates the directory on first use. A failure is not remembered, so the next
// turn tries again.
func (s *FileStore) ensureDir() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	s.ready = true
	return nil
}

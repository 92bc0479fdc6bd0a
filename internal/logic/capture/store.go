package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Store persists encoded photos.
type Store interface {
	Write(path string, data []byte) error
}

// FileStore writes photos to the local filesystem. An existing file at
// the same path is overwritten.
type FileStore struct{}

func (FileStore) Write(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// Stamper hands out strictly increasing millisecond timestamps so that two
// captures in the same millisecond never share a file name.
type Stamper struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewStamper creates a stamper reading the wall clock.
func NewStamper() *Stamper { return &Stamper{now: time.Now} }

// Next returns the next timestamp in Unix milliseconds.
func (s *Stamper) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms := s.now().UnixMilli()
	if ms <= s.last {
		ms = s.last + 1
	}
	s.last = ms
	return ms
}

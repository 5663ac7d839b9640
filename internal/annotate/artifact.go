package annotate

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrReleased is returned when reading an artifact whose scratch file is gone
var ErrReleased = errors.New("artifact already released")

// Artifact is a rendered image held in a scratch file until it is released
type Artifact struct {
	Path        string
	ContentType string
	Width       int
	Height      int

	mu       sync.Mutex
	released bool
}

// Bytes reads the rendered image back. The same bytes are shown to the user and uploaded.
func (a *Artifact) Bytes() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return nil, ErrReleased
	}
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

// Release removes the scratch file. Calling it more than once is a no-op.
func (a *Artifact) Release() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return nil
	}
	a.released = true
	if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}

// Released reports whether Release has been called
func (a *Artifact) Released() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.released
}

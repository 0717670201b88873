// Package reconstruct builds linear estimators of mirror commands from
// segment-wise calibrations.
//
// A Reconstructor inverts each segment's poke matrix with an SVD based
// pseudo-inverse and maps masked measurement vectors to command estimates.
package reconstruct

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrArtifact is returned when a calibration artifact can't be loaded.
var ErrArtifact = errors.New("calibration artifact")

// Source provides saved reconstructors by name. Storage formats are left to
// implementations.
type Source interface {
	Load(ctx context.Context, name string) (*Reconstructor, error)
}

// MemorySource is a Source holding reconstructors in memory.
type MemorySource struct {
	mu    sync.RWMutex
	items map[string]*Reconstructor
}

// NewMemorySource returns an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{items: make(map[string]*Reconstructor)}
}

// Store saves a copy of r under name.
func (s *MemorySource) Store(name string, r *Reconstructor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[name] = r.Clone()
}

// Load returns a copy of the reconstructor saved under name.
func (s *MemorySource) Load(ctx context.Context, name string) (*Reconstructor, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrArtifact, name, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.items[name]
	if !ok {
		return nil, fmt.Errorf("%w %q: not found", ErrArtifact, name)
	}
	return r.Clone(), nil
}

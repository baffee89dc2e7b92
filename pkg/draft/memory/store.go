// Package memory keeps the flow draft in process memory.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/dukex/patientflow/pkg/draft"
)

type Store struct {
	mu   sync.RWMutex
	data []byte
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Load(_ context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.data == nil {
		return nil, draft.ErrNoDraft
	}

	return slices.Clone(s.data), nil
}

func (s *Store) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = slices.Clone(data)

	return nil
}

func (s *Store) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = nil

	return nil
}

// Package file keeps the flow draft in a local JSON file.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/patientflow/pkg/draft"
)

type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore stores the draft under dir, named after draft.Key.
func NewStore(dir string) *Store {
	name := strings.NewReplacer(":", "-", "/", "-").Replace(draft.Key) + ".json"

	return &Store{path: filepath.Join(strings.TrimPrefix(dir, "file://"), name)}
}

// Path returns the file holding the draft.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Load(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, draft.ErrNoDraft
		}

		return nil, fmt.Errorf("failed to read draft file: %w", err)
	}

	return data, nil
}

func (s *Store) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)

	err := os.MkdirAll(dir, 0o750)
	if err != nil {
		return fmt.Errorf("failed to create draft directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".draft-*.json")
	if err != nil {
		return fmt.Errorf("failed to create draft file: %w", err)
	}

	defer func() { _ = os.Remove(tmp.Name()) }()

	_, err = tmp.Write(data)
	if err != nil {
		_ = tmp.Close()

		return fmt.Errorf("failed to write draft file: %w", err)
	}

	err = tmp.Close()
	if err != nil {
		return fmt.Errorf("failed to close draft file: %w", err)
	}

	err = os.Rename(tmp.Name(), s.path)
	if err != nil {
		return fmt.Errorf("failed to replace draft file: %w", err)
	}

	return nil
}

func (s *Store) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete draft file: %w", err)
	}

	return nil
}

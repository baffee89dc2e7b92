// Package file provides file-based persistence implementation for flows and executions.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/patientflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root          string
	flowRepo      *FlowRepository
	executionRepo *ExecutionRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:          cleanRoot,
		flowRepo:      NewFlowRepository(cleanRoot),
		executionRepo: NewExecutionRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// FlowRepository returns the flow repository implementation for file persistence.
func (fp *Persistence) FlowRepository() persistence.FlowRepository {
	return fp.flowRepo
}

// ExecutionRepository returns the execution repository implementation for file persistence.
func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

// validateID validates that the ID is safe for file operations.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", persistence.ErrInvalidID)
	}

	// Check for path traversal attempts
	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q contains invalid characters", persistence.ErrInvalidID, id)
	}

	return nil
}

// store reads and writes one JSON document per entity inside dir. Writes go
// through a temporary file and a rename so readers never see partial content.
type store struct {
	dir string
	mu  sync.RWMutex
}

func (s *store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *store) read(id string, v any) (bool, error) {
	err := validateID(id)
	if err != nil {
		return false, err
	}

	data, err := os.ReadFile(s.path(id)) // #nosec G304 -- id is validated above
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s: %w", id, err)
	}

	err = json.Unmarshal(data, v)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", id, err)
	}

	return true, nil
}

func (s *store) write(id string, v any) error {
	err := validateID(id)
	if err != nil {
		return err
	}

	err = os.MkdirAll(s.dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", s.dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	tmp, err := os.CreateTemp(s.dir, id+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", id, err)
	}

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write %s: %w", id, err)
	}

	err = os.Rename(tmp.Name(), s.path(id))
	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to replace %s: %w", id, err)
	}

	return nil
}

// remove deletes the document and reports whether it existed.
func (s *store) remove(id string) (bool, error) {
	err := validateID(id)
	if err != nil {
		return false, err
	}

	err = os.Remove(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to delete %s: %w", id, err)
	}

	return true, nil
}

// ids lists the stored document IDs.
func (s *store) ids() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read directory %s: %w", s.dir, err)
	}

	ids := make([]string, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
		}
	}

	return ids, nil
}

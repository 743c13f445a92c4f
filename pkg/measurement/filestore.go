package measurement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrSlotNotFound is returned by FileStore.LoadMeasurements when no file
// exists for the slot.
var ErrSlotNotFound = errors.New("measurement slot not found")

// FileStore keeps each measurement slot as an indented JSON file in a
// directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create measurement directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(slot string) string {
	return filepath.Join(s.dir, strings.ToUpper(slot)+".json")
}

// SaveMeasurements writes points to the slot file, replacing it.
func (s *FileStore) SaveMeasurements(_ context.Context, slot string, points []Point) error {
	data, err := json.MarshalIndent(points, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal measurements: %w", err)
	}

	tmp := s.path(slot) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write measurements: %w", err)
	}
	return os.Rename(tmp, s.path(slot))
}

// LoadMeasurements reads the slot file.
func (s *FileStore) LoadMeasurements(_ context.Context, slot string) ([]Point, error) {
	data, err := os.ReadFile(s.path(slot))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSlotNotFound, slot)
		}
		return nil, fmt.Errorf("failed to read measurements: %w", err)
	}

	var points []Point
	if err := json.Unmarshal(data, &points); err != nil {
		return nil, fmt.Errorf("failed to parse measurements: %w", err)
	}
	return points, nil
}

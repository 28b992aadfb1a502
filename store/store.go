// Package store persists the listing collection as a JSON array in a
// single file.
//
// The file is not locked. Two processes running against the same path
// race on load/modify/save and the later save wins; run one instance at
// a time.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/use-agent/listwatch/models"
)

// JSONFile is a listing collection stored at Path.
type JSONFile struct {
	Path string
}

// NewJSONFile creates a JSONFile for path.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{Path: path}
}

// Load reads the whole collection. A missing file yields an error
// wrapping fs.ErrNotExist; an undecodable one a decode error.
func (s *JSONFile) Load() ([]models.Property, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", s.Path, err)
	}

	var props []models.Property
	if err := json.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", s.Path, err)
	}
	return props, nil
}

// Save replaces the collection on disk. The data is written to a temporary
// file in the same directory and renamed over Path, so readers see either
// the old or the new collection. Images are never written.
func (s *JSONFile) Save(props []models.Property) error {
	if props == nil {
		props = []models.Property{}
	}
	data, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("store: encode: %w", err)
	}

	dir := filepath.Dir(s.Path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("store: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("store: chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		return fmt.Errorf("store: replace %s: %w", s.Path, err)
	}
	return nil
}

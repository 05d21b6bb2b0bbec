package filestore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

var (
	ErrNotFound   = errors.New("document not found")
	ErrPermission = errors.New("permission denied")
	ErrParse      = errors.New("document could not be parsed")
)

// Store reads and writes whole documents on an afero filesystem.
type Store struct {
	fs afero.Fs
}

func New(fs afero.Fs) *Store {
	return &Store{fs: fs}
}

// Load returns the raw bytes at path. A missing file yields ErrNotFound,
// a denied read yields ErrPermission.
func (s *Store) Load(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("load: path is empty")
	}
	b, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, classify("read", path, err)
	}
	return b, nil
}

// Save writes data to path, creating the parent directory if needed.
func (s *Store) Save(path string, data []byte) error {
	if path == "" {
		return errors.New("save: path is empty")
	}
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return classify("mkdir", filepath.Dir(path), err)
	}
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return classify("write", path, err)
	}
	return nil
}

// SaveJSON encodes v as indented JSON without HTML escaping, so paths and
// rewrite patterns stay readable on disk.
func (s *Store) SaveJSON(path string, v any) error {
	b, err := Marshal(v)
	if err != nil {
		return err
	}
	return s.Save(path, b)
}

// Marshal is the encoding used for every persisted document.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return buf.Bytes(), nil
}

func classify(op, path string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%s %s: %w: %w", op, path, ErrNotFound, err)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%s %s: %w: %w", op, path, ErrPermission, err)
	default:
		return fmt.Errorf("%s %s: %w", op, path, err)
	}
}

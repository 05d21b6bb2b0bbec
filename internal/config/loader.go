package config

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Roelanb/webpsync/internal/filestore"
)

const CurrentVersion = 1

// Load reads the config document at path. A missing document yields
// filestore.ErrNotFound, a malformed one filestore.ErrParse.
func Load(store *filestore.Store, path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	raw, err := store.Load(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes raw JSON over the defaults and normalizes the result.
// Fields absent from raw keep their default value.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	defaultConverters := cfg.Converters
	cfg.Converters = nil
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", filestore.ErrParse, err)
	}
	if cfg.Converters == nil {
		cfg.Converters = defaultConverters
	}
	return Normalize(cfg), nil
}

// Save writes the normalized config to path as a whole document.
func Save(store *filestore.Store, path string, cfg Config) error {
	if path == "" {
		return errors.New("save config: path is empty")
	}
	if err := store.SaveJSON(path, Normalize(cfg)); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

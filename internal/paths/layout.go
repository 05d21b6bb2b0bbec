package paths

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	ConfigFileName  = "config.json"
	OptionsFileName = "wod-options.json"
	RuleFileName    = ".htaccess"
	StateFileName   = "state.db"
	pluginSlug      = "webpsync"
)

// Layout describes where the site keeps its directories. Only DocumentRoot is
// required; every other directory defaults to its conventional position.
type Layout struct {
	DocumentRoot string `yaml:"document_root"`
	IndexDir     string `yaml:"index_dir"`
	ContentDir   string `yaml:"content_dir"`
	PluginsDir   string `yaml:"plugins_dir"`
	UploadsDir   string `yaml:"uploads_dir"`
	PluginDir    string `yaml:"plugin_dir"`
	ConfigDir    string `yaml:"config_dir"`
	CacheDir     string `yaml:"cache_dir"`
	StateDB      string `yaml:"state_db"`
}

// LoadLayout reads a YAML site layout from fs, applies defaults and validates it.
func LoadLayout(fs afero.Fs, path string) (*Layout, error) {
	if path == "" {
		return nil, errors.New("layout path is empty")
	}
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	return ParseLayout(b)
}

// ParseLayout parses raw YAML into a Layout, applies defaults and validates.
func ParseLayout(raw []byte) (*Layout, error) {
	var l Layout
	if err := yaml.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	applyDefaults(&l)
	if err := Validate(&l); err != nil {
		return nil, err
	}
	return &l, nil
}

func applyDefaults(l *Layout) {
	clean := func(p *string) {
		if *p != "" {
			*p = filepath.Clean(*p)
		}
	}
	clean(&l.DocumentRoot)
	if l.IndexDir == "" {
		l.IndexDir = l.DocumentRoot
	}
	clean(&l.IndexDir)
	if l.ContentDir == "" {
		l.ContentDir = filepath.Join(l.IndexDir, "wp-content")
	}
	clean(&l.ContentDir)
	if l.PluginsDir == "" {
		l.PluginsDir = filepath.Join(l.ContentDir, "plugins")
	}
	clean(&l.PluginsDir)
	if l.UploadsDir == "" {
		l.UploadsDir = filepath.Join(l.ContentDir, "uploads")
	}
	clean(&l.UploadsDir)
	if l.PluginDir == "" {
		l.PluginDir = filepath.Join(l.PluginsDir, pluginSlug)
	}
	clean(&l.PluginDir)
	if l.ConfigDir == "" {
		l.ConfigDir = filepath.Join(l.ContentDir, pluginSlug, "config")
	}
	clean(&l.ConfigDir)
	if l.CacheDir == "" {
		l.CacheDir = filepath.Join(l.ContentDir, pluginSlug, "webp-images")
	}
	clean(&l.CacheDir)
	if l.StateDB == "" {
		l.StateDB = filepath.Join(l.ConfigDir, StateFileName)
	}
	clean(&l.StateDB)
}

func Validate(l *Layout) error {
	if l.DocumentRoot == "" {
		return errors.New("layout: document_root is required")
	}
	dirs := map[string]string{
		"document_root": l.DocumentRoot,
		"index_dir":     l.IndexDir,
		"content_dir":   l.ContentDir,
		"plugins_dir":   l.PluginsDir,
		"uploads_dir":   l.UploadsDir,
		"plugin_dir":    l.PluginDir,
		"config_dir":    l.ConfigDir,
		"cache_dir":     l.CacheDir,
		"state_db":      l.StateDB,
	}
	for name, dir := range dirs {
		if !filepath.IsAbs(dir) {
			return fmt.Errorf("layout: %s must be absolute, got %q", name, dir)
		}
	}
	if !Within(l.DocumentRoot, l.IndexDir) {
		return errors.New("layout: index_dir must be inside document_root")
	}
	return nil
}

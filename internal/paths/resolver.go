package paths

import (
	"path/filepath"
	"strings"

	"github.com/Roelanb/webpsync/internal/config"
)

// Location names one of the directories that may hold a rule file.
type Location string

const (
	LocationIndex   Location = "index"
	LocationContent Location = "wp-content"
	LocationPlugins Location = "plugins"
	LocationUploads Location = "uploads"
)

// Resolver answers every path question the subsystem asks about a site.
type Resolver struct {
	layout Layout
}

func NewResolver(l Layout) *Resolver {
	applyDefaults(&l)
	return &Resolver{layout: l}
}

func (r *Resolver) Layout() Layout { return r.layout }

func (r *Resolver) ConfigFile() string {
	return filepath.Join(r.layout.ConfigDir, ConfigFileName)
}

func (r *Resolver) OptionsFile() string {
	return filepath.Join(r.layout.ConfigDir, OptionsFileName)
}

// RuleDir returns the directory whose rule file serves loc.
func (r *Resolver) RuleDir(loc Location) string {
	switch loc {
	case LocationIndex:
		return r.layout.IndexDir
	case LocationContent:
		return r.layout.ContentDir
	case LocationPlugins:
		return r.layout.PluginsDir
	case LocationUploads:
		return r.layout.UploadsDir
	}
	return ""
}

// RuleFile returns the rule file path for loc.
func (r *Resolver) RuleFile(loc Location) string {
	return filepath.Join(r.RuleDir(loc), RuleFileName)
}

// ContentDirMoved reports whether the content directory lives outside the web
// root, where rules in the web root cannot reach it.
func (r *Resolver) ContentDirMoved() bool {
	return !Within(r.layout.IndexDir, r.layout.ContentDir)
}

// PluginsDirMoved reports whether the plugins directory lives outside the content directory.
func (r *Resolver) PluginsDirMoved() bool {
	return !Within(r.layout.ContentDir, r.layout.PluginsDir)
}

// UploadsDirMoved reports whether the uploads directory lives outside the content directory.
func (r *Resolver) UploadsDirMoved() bool {
	return !Within(r.layout.ContentDir, r.layout.UploadsDir)
}

// Covers reports whether rules written for loc also apply to dir.
func (r *Resolver) Covers(loc Location, dir string) bool {
	return Within(r.RuleDir(loc), dir)
}

// SeparateRoot is the root of the separate derivative tree.
func (r *Resolver) SeparateRoot() string {
	return filepath.Join(r.layout.CacheDir, "doc-root")
}

// MingledRoots are the trees whose derivatives sit beside their originals
// when the mingled folder scheme is active.
func (r *Resolver) MingledRoots() []string {
	return []string{r.layout.UploadsDir}
}

// ConverterDir is the directory holding the conversion endpoints.
func (r *Resolver) ConverterDir() string {
	return filepath.Join(r.layout.PluginDir, "wod")
}

// URLPath maps an absolute filesystem path below the document root to its URL path.
func (r *Resolver) URLPath(abs string) (string, bool) {
	rel, ok := relative(r.layout.DocumentRoot, abs)
	if !ok {
		return "", false
	}
	if rel == "." {
		return "/", true
	}
	return "/" + filepath.ToSlash(rel), true
}

// Facts returns the path facts that generated rules embed.
func (r *Resolver) Facts() config.PathFacts {
	existing, _ := r.URLPath(r.SeparateRoot())
	wod, _ := r.URLPath(r.ConverterDir())
	cfgRel, ok := relative(r.layout.DocumentRoot, r.layout.ConfigDir)
	if !ok {
		cfgRel = r.layout.ConfigDir
	}
	return config.PathFacts{
		Existing:     strings.TrimSuffix(existing, "/"),
		WodURLPath:   strings.TrimSuffix(wod, "/"),
		ConfigDirRel: filepath.ToSlash(cfgRel),
	}
}

// Within reports whether child is parent or lies below it.
func Within(parent, child string) bool {
	_, ok := relative(parent, child)
	return ok
}

func relative(parent, child string) (string, bool) {
	rel, err := filepath.Rel(filepath.Clean(parent), filepath.Clean(child))
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

// Package cachemover relocates existing derivative files when the destination
// scheme changes.
package cachemover

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/afero"

	"github.com/Roelanb/webpsync/internal/config"
	"github.com/Roelanb/webpsync/internal/observability"
	"github.com/Roelanb/webpsync/internal/paths"
)

// Failure describes one derivative that could not be moved.
type Failure struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Error string `json:"error"`
}

type Result struct {
	Moved    int       `json:"moved"`
	Failed   int       `json:"failed"`
	Failures []Failure `json:"failures,omitempty"`
}

// Mover walks the derivative trees of a site.
type Mover struct {
	fs    afero.Fs
	paths *paths.Resolver
	log   observability.Logger
}

func New(fsys afero.Fs, resolver *paths.Resolver, log observability.Logger) *Mover {
	return &Mover{fs: fsys, paths: resolver, log: log}
}

type move struct {
	from, to string
}

// Relocate moves every derivative laid out under oldCfg's scheme to where
// newCfg's scheme puts it. Files are collected before anything moves, so a
// move never feeds the walk. A failed file stays where it was and the walk
// goes on.
func (m *Mover) Relocate(oldCfg, newCfg config.Config) Result {
	return m.RelocateScheme(oldCfg.Scheme(), newCfg.Scheme())
}

// RelocateScheme is Relocate for bare schemes.
func (m *Mover) RelocateScheme(from, to config.Scheme) Result {
	var res Result
	if from == to {
		return res
	}
	moves := m.collect(from, to)
	for _, mv := range moves {
		if err := moveFile(m.fs, mv.from, mv.to); err != nil {
			res.Failed++
			res.Failures = append(res.Failures, Failure{From: mv.from, To: mv.to, Error: err.Error()})
			m.log.Warnw("derivative move failed", "from", mv.from, "to", mv.to, "err", err)
			continue
		}
		res.Moved++
	}
	m.log.Infow("derivatives relocated",
		"from_folder", from.Folder, "from_ext", from.Extension,
		"to_folder", to.Folder, "to_ext", to.Extension,
		"moved", res.Moved, "failed", res.Failed)
	return res
}

// Pending lists the derivatives a relocation from -> to would move.
func (m *Mover) Pending(from, to config.Scheme) []string {
	moves := m.collect(from, to)
	out := make([]string, 0, len(moves))
	for _, mv := range moves {
		out = append(out, mv.from)
	}
	return out
}

func (m *Mover) collect(from, to config.Scheme) []move {
	var moves []move
	add := func(derivative, original string) {
		target := m.paths.DerivativePath(original, to)
		if target == derivative {
			return
		}
		moves = append(moves, move{from: derivative, to: target})
	}

	for _, root := range m.paths.SeparateRoots() {
		m.walk(root, func(p string) {
			if original, ok := m.paths.SeparateOriginal(p); ok && paths.IsImage(original) {
				add(p, original)
			}
		})
	}

	if from.Folder == config.FolderMingled {
		cache := m.paths.Layout().CacheDir
		for _, root := range m.paths.MingledRoots() {
			m.walk(root, func(p string) {
				if paths.Within(cache, p) {
					return
				}
				if original, ok := m.mingledOriginal(p, from.Extension); ok {
					add(p, original)
				}
			})
		}
	}
	return moves
}

// mingledOriginal maps a derivative sitting beside its original back to the
// original. With the "set" extension the original must exist, since its
// extension is otherwise unknown.
func (m *Mover) mingledOriginal(derivative string, ext config.DestinationExtension) (string, bool) {
	trimmed := strings.TrimSuffix(derivative, paths.DerivativeExt)
	if ext == config.ExtensionAppend {
		return trimmed, paths.IsImage(trimmed)
	}
	if paths.IsImage(trimmed) {
		return "", false
	}
	for _, e := range paths.ImageExts {
		candidate := trimmed + e
		if ok, _ := afero.Exists(m.fs, candidate); ok {
			return candidate, true
		}
	}
	return "", false
}

func (m *Mover) walk(root string, visit func(path string)) {
	err := afero.Walk(m.fs, root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			if p == root && errors.Is(err, os.ErrNotExist) {
				return nil
			}
			m.log.Warnw("derivative walk error", "path", p, "err", err)
			return nil
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), paths.DerivativeExt) {
			return nil
		}
		visit(p)
		return nil
	})
	if err != nil {
		m.log.Warnw("derivative walk aborted", "root", root, "err", err)
	}
}

package paths

import (
	"path/filepath"
	"strings"

	"github.com/Roelanb/webpsync/internal/config"
)

const DerivativeExt = ".webp"

// ImageExts are the original extensions that get derivatives.
var ImageExts = []string{".jpg", ".jpeg", ".png", ".JPG", ".JPEG", ".PNG"}

// IsImage reports whether name has a convertible image extension.
func IsImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".jpg" || ext == ".jpeg" || ext == ".png"
}

// AbsRoot holds derivatives of originals that live outside the document root.
func (r *Resolver) AbsRoot() string {
	return filepath.Join(r.layout.CacheDir, "abs")
}

// SeparateRoots are the trees that make up the separate derivative folder.
func (r *Resolver) SeparateRoots() []string {
	return []string{r.SeparateRoot(), r.AbsRoot()}
}

// InMingledRoot reports whether original is subject to the mingled folder scheme.
func (r *Resolver) InMingledRoot(original string) bool {
	for _, root := range r.MingledRoots() {
		if Within(root, original) {
			return true
		}
	}
	return false
}

// DerivativePath returns where the derivative of original lives under s.
// Only originals below a mingled root are ever mingled; the rest always use
// the separate tree, which always appends the extension.
func (r *Resolver) DerivativePath(original string, s config.Scheme) string {
	if s.Folder == config.FolderMingled && r.InMingledRoot(original) {
		if s.Extension == config.ExtensionSet {
			return strings.TrimSuffix(original, filepath.Ext(original)) + DerivativeExt
		}
		return original + DerivativeExt
	}
	if rel, ok := relative(r.layout.DocumentRoot, original); ok {
		return filepath.Join(r.SeparateRoot(), rel) + DerivativeExt
	}
	return filepath.Join(r.AbsRoot(), strings.TrimPrefix(filepath.Clean(original), string(filepath.Separator))) + DerivativeExt
}

// SeparateOriginal maps a file in the separate tree back to its original.
func (r *Resolver) SeparateOriginal(derivative string) (string, bool) {
	if !strings.HasSuffix(derivative, DerivativeExt) {
		return "", false
	}
	trimmed := strings.TrimSuffix(derivative, DerivativeExt)
	if rel, ok := relative(r.SeparateRoot(), trimmed); ok && rel != "." {
		return filepath.Join(r.layout.DocumentRoot, rel), true
	}
	if rel, ok := relative(r.AbsRoot(), trimmed); ok && rel != "." {
		return string(filepath.Separator) + rel, true
	}
	return "", false
}

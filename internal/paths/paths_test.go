package paths

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/Roelanb/webpsync/internal/config"
)

func TestParseLayoutDefaults(t *testing.T) {
	l, err := ParseLayout([]byte("document_root: /var/www/html\n"))
	require.NoError(t, err)
	require.Equal(t, "/var/www/html", l.IndexDir)
	require.Equal(t, "/var/www/html/wp-content", l.ContentDir)
	require.Equal(t, "/var/www/html/wp-content/plugins", l.PluginsDir)
	require.Equal(t, "/var/www/html/wp-content/uploads", l.UploadsDir)
	require.Equal(t, "/var/www/html/wp-content/plugins/webpsync", l.PluginDir)
	require.Equal(t, "/var/www/html/wp-content/webpsync/config", l.ConfigDir)
	require.Equal(t, "/var/www/html/wp-content/webpsync/config/state.db", l.StateDB)
}

func TestParseLayoutRejectsRelative(t *testing.T) {
	_, err := ParseLayout([]byte("document_root: /srv\nuploads_dir: media\n"))
	require.Error(t, err)

	_, err = ParseLayout([]byte("index_dir: /srv\n"))
	require.Error(t, err)
}

func TestLoadLayoutFromFs(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/site.yml", []byte("document_root: /srv/www\ncontent_dir: /srv/content\n"), 0o644))
	l, err := LoadLayout(fs, "/etc/site.yml")
	require.NoError(t, err)
	require.Equal(t, "/srv/content/uploads", l.UploadsDir)
}

func TestRelocationDetection(t *testing.T) {
	conventional := NewResolver(Layout{DocumentRoot: "/srv/www"})
	require.False(t, conventional.ContentDirMoved())
	require.False(t, conventional.PluginsDirMoved())
	require.False(t, conventional.UploadsDirMoved())

	split := NewResolver(Layout{
		DocumentRoot: "/srv/www",
		ContentDir:   "/srv/content",
		UploadsDir:   "/srv/media",
		PluginsDir:   "/srv/www/ext",
	})
	require.True(t, split.ContentDirMoved())
	require.True(t, split.UploadsDirMoved())
	require.True(t, split.PluginsDirMoved())
	require.True(t, split.Covers(LocationIndex, "/srv/www/ext"))
	require.False(t, split.Covers(LocationContent, "/srv/www/ext"))
}

func TestWithinIsNotPrefixMatch(t *testing.T) {
	require.True(t, Within("/srv/www", "/srv/www"))
	require.True(t, Within("/srv/www", "/srv/www/a/b"))
	require.False(t, Within("/srv/www", "/srv/www2"))
	require.False(t, Within("/srv/www", "/srv"))
}

func TestFacts(t *testing.T) {
	r := NewResolver(Layout{DocumentRoot: "/srv/www"})
	require.Equal(t, config.PathFacts{
		Existing:     "/wp-content/webpsync/webp-images/doc-root",
		WodURLPath:   "/wp-content/plugins/webpsync/wod",
		ConfigDirRel: "wp-content/webpsync/config",
	}, r.Facts())
}

func TestDerivativePath(t *testing.T) {
	r := NewResolver(Layout{DocumentRoot: "/srv/www"})
	upload := "/srv/www/wp-content/uploads/2024/01/cat.jpg"
	theme := "/srv/www/wp-content/themes/t/logo.png"

	separate := config.Scheme{Folder: config.FolderSeparate, Extension: config.ExtensionAppend}
	mingledAppend := config.Scheme{Folder: config.FolderMingled, Extension: config.ExtensionAppend}
	mingledSet := config.Scheme{Folder: config.FolderMingled, Extension: config.ExtensionSet}

	require.Equal(t, "/srv/www/wp-content/webpsync/webp-images/doc-root/wp-content/uploads/2024/01/cat.jpg.webp",
		r.DerivativePath(upload, separate))
	require.Equal(t, upload+".webp", r.DerivativePath(upload, mingledAppend))
	require.Equal(t, "/srv/www/wp-content/uploads/2024/01/cat.webp", r.DerivativePath(upload, mingledSet))

	// outside the uploads tree the separate folder is always used
	require.Equal(t, r.DerivativePath(theme, separate), r.DerivativePath(theme, mingledSet))

	outside := "/opt/media/x.png"
	d := r.DerivativePath(outside, separate)
	require.Equal(t, "/srv/www/wp-content/webpsync/webp-images/abs/opt/media/x.png.webp", d)

	orig, ok := r.SeparateOriginal(d)
	require.True(t, ok)
	require.Equal(t, outside, orig)

	orig, ok = r.SeparateOriginal(r.DerivativePath(upload, separate))
	require.True(t, ok)
	require.Equal(t, upload, orig)
}

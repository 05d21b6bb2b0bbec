package htaccess

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Roelanb/webpsync/internal/config"
	"github.com/Roelanb/webpsync/internal/filestore"
	"github.com/Roelanb/webpsync/internal/paths"
	"github.com/Roelanb/webpsync/internal/rules"
	"github.com/Roelanb/webpsync/internal/testutil"
)

type site struct {
	fs       *testutil.DenyFs
	resolver *paths.Resolver
	writer   *Writer
	cfg      config.Config
}

func newSite(t *testing.T, layout paths.Layout) *site {
	t.Helper()
	base := afero.NewMemMapFs()
	r := paths.NewResolver(layout)
	l := r.Layout()
	for _, dir := range []string{l.IndexDir, l.ContentDir, l.PluginsDir, l.UploadsDir} {
		require.NoError(t, base.MkdirAll(dir, 0o755))
	}
	fs := testutil.NewDenyFs(base)
	cfg := config.Default()
	cfg.PathsUsedInRules = r.Facts()
	return &site{fs: fs, resolver: r, writer: NewWriter(fs, r, zap.NewNop().Sugar()), cfg: cfg}
}

func (s *site) file(loc paths.Location) string {
	return filepath.Join(s.resolver.RuleDir(loc), ".htaccess")
}

func (s *site) put(t *testing.T, loc paths.Location, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(s.fs.Fs, s.file(loc), []byte(content), 0o644))
}

func (s *site) get(t *testing.T, loc paths.Location) string {
	t.Helper()
	b, err := afero.ReadFile(s.fs, s.file(loc))
	if err != nil {
		return ""
	}
	return string(b)
}

var conventional = paths.Layout{DocumentRoot: "/srv/www"}

func TestSyncConventionalLayout(t *testing.T) {
	s := newSite(t, conventional)
	s.put(t, paths.LocationIndex, "# BEGIN WordPress\nRewriteEngine On\n# END WordPress\n")

	res := s.writer.SyncRules(s.cfg)
	require.Equal(t, MainIndex, res.MainResult)
	require.Equal(t, paths.LocationIndex, res.MinRequired)
	require.Equal(t, InclusionNo, res.PluginToo)
	require.Equal(t, InclusionNo, res.UploadToo)
	require.False(t, res.PluginFailed || res.UploadFailed || res.OverridingRulesInWpContentWarning)

	got := s.get(t, paths.LocationIndex)
	require.Contains(t, got, rules.Text(res.Rules))
	require.Contains(t, got, "# BEGIN WordPress\nRewriteEngine On\n# END WordPress\n")
	require.Empty(t, s.get(t, paths.LocationContent))
}

func TestSyncIsIdempotent(t *testing.T) {
	s := newSite(t, conventional)
	s.writer.SyncRules(s.cfg)
	first := s.get(t, paths.LocationIndex)
	s.writer.SyncRules(s.cfg)
	require.Equal(t, first, s.get(t, paths.LocationIndex))
}

func TestSyncFallsBackToContent(t *testing.T) {
	s := newSite(t, conventional)
	s.fs.Deny(s.file(paths.LocationIndex))

	res := s.writer.SyncRules(s.cfg)
	require.Equal(t, MainContent, res.MainResult)
	require.Equal(t, paths.LocationIndex, res.MinRequired)
	require.True(t, HasBlock(s.get(t, paths.LocationContent)))
	require.Len(t, res.Attempts, 2)
	require.False(t, res.Attempts[0].OK)
	require.NotEmpty(t, res.Attempts[0].Error)
}

func TestSyncMovedContentRequiresContent(t *testing.T) {
	s := newSite(t, paths.Layout{DocumentRoot: "/srv/www", ContentDir: "/srv/content"})
	s.fs.Deny("/srv/content")

	res := s.writer.SyncRules(s.cfg)
	require.Equal(t, paths.LocationContent, res.MinRequired)
	require.Equal(t, MainFailed, res.MainResult)
	require.True(t, res.Failed())
	// a writable index does not rescue a relocated content dir
	require.Empty(t, s.get(t, paths.LocationIndex))
}

func TestSyncMovedContentWritable(t *testing.T) {
	s := newSite(t, paths.Layout{DocumentRoot: "/srv/www", ContentDir: "/srv/content"})
	res := s.writer.SyncRules(s.cfg)
	require.Equal(t, MainContent, res.MainResult)
	require.Equal(t, InclusionNo, res.PluginToo)
	require.Equal(t, InclusionNo, res.UploadToo)
}

func TestSyncRelocatedUploads(t *testing.T) {
	layout := paths.Layout{DocumentRoot: "/srv/www", UploadsDir: "/srv/media"}

	t.Run("written", func(t *testing.T) {
		s := newSite(t, layout)
		res := s.writer.SyncRules(s.cfg)
		require.Equal(t, InclusionYes, res.UploadToo)
		require.False(t, res.UploadFailed)
		require.True(t, HasBlock(s.get(t, paths.LocationUploads)))
	})
	t.Run("denied without prior rules", func(t *testing.T) {
		s := newSite(t, layout)
		s.fs.Deny("/srv/media")
		res := s.writer.SyncRules(s.cfg)
		require.Equal(t, MainIndex, res.MainResult)
		require.True(t, res.UploadFailed)
		require.False(t, res.UploadFailedBadly)
	})
	t.Run("denied with stale rules", func(t *testing.T) {
		s := newSite(t, layout)
		s.put(t, paths.LocationUploads, BeginMarker+"\nold\n"+EndMarker+"\n")
		s.fs.Deny("/srv/media")
		res := s.writer.SyncRules(s.cfg)
		require.True(t, res.UploadFailed)
		require.True(t, res.UploadFailedBadly)
		require.False(t, res.PluginFailed)
	})
	t.Run("unreadable rule file", func(t *testing.T) {
		s := newSite(t, layout)
		s.put(t, paths.LocationUploads, BeginMarker+"\nold\n"+EndMarker+"\n")
		s.fs.DenyRead(s.file(paths.LocationUploads))
		res := s.writer.SyncRules(s.cfg)
		require.True(t, res.UploadFailed)
		require.True(t, res.UploadFailedBadly)

		var got *Outcome
		for i := range res.Attempts {
			if res.Attempts[i].Location == paths.LocationUploads {
				got = &res.Attempts[i]
			}
		}
		require.NotNil(t, got)
		require.True(t, got.HadRules)
		require.Contains(t, got.Error, "permission denied")
	})
}

func TestSyncPluginsDependsOnMain(t *testing.T) {
	layout := paths.Layout{DocumentRoot: "/srv/www", PluginsDir: "/srv/www/ext"}

	t.Run("index covers plugins", func(t *testing.T) {
		s := newSite(t, layout)
		res := s.writer.SyncRules(s.cfg)
		require.Equal(t, MainIndex, res.MainResult)
		require.Equal(t, InclusionNo, res.PluginToo)
		require.Empty(t, s.get(t, paths.LocationPlugins))
	})
	t.Run("content does not", func(t *testing.T) {
		s := newSite(t, layout)
		s.fs.Deny(s.file(paths.LocationIndex))
		res := s.writer.SyncRules(s.cfg)
		require.Equal(t, MainContent, res.MainResult)
		require.Equal(t, InclusionYes, res.PluginToo)
		require.True(t, HasBlock(s.get(t, paths.LocationPlugins)))
	})
	t.Run("unresolved when main failed", func(t *testing.T) {
		s := newSite(t, layout)
		s.fs.Deny(s.file(paths.LocationIndex), s.file(paths.LocationContent))
		res := s.writer.SyncRules(s.cfg)
		require.Equal(t, MainFailed, res.MainResult)
		require.Equal(t, InclusionDepends, res.PluginToo)
		require.False(t, res.PluginFailed)
	})
}

func TestSyncContentOverrideWarning(t *testing.T) {
	stale := BeginMarker + "\nRewriteRule old\n" + EndMarker + "\n"

	t.Run("stale block removed", func(t *testing.T) {
		s := newSite(t, conventional)
		s.put(t, paths.LocationContent, "Options -Indexes\n"+stale)
		res := s.writer.SyncRules(s.cfg)
		require.Equal(t, MainIndex, res.MainResult)
		require.False(t, res.OverridingRulesInWpContentWarning)
		require.Equal(t, "Options -Indexes\n", s.get(t, paths.LocationContent))
	})
	t.Run("stale block stuck", func(t *testing.T) {
		s := newSite(t, conventional)
		s.put(t, paths.LocationContent, stale)
		s.fs.Deny(s.file(paths.LocationContent))
		res := s.writer.SyncRules(s.cfg)
		require.Equal(t, MainIndex, res.MainResult)
		require.True(t, res.OverridingRulesInWpContentWarning)
	})
	t.Run("unreadable content rules", func(t *testing.T) {
		s := newSite(t, conventional)
		s.put(t, paths.LocationContent, stale)
		s.fs.DenyRead(s.file(paths.LocationContent))
		res := s.writer.SyncRules(s.cfg)
		require.Equal(t, MainIndex, res.MainResult)
		require.True(t, res.OverridingRulesInWpContentWarning)
	})
}

func TestStalePluginsBlockIsCleared(t *testing.T) {
	s := newSite(t, conventional)
	s.put(t, paths.LocationPlugins, BeginMarker+"\nold\n"+EndMarker+"\n")
	res := s.writer.SyncRules(s.cfg)
	require.Equal(t, InclusionNo, res.PluginToo)
	assert.False(t, HasBlock(s.get(t, paths.LocationPlugins)))
}

func TestClearRulesWithoutBlockDoesNotWrite(t *testing.T) {
	s := newSite(t, conventional)
	s.put(t, paths.LocationIndex, "keep\n")
	s.fs.Deny(s.file(paths.LocationIndex))
	require.NoError(t, s.writer.ClearRules(paths.LocationIndex))
}

func TestReadRules(t *testing.T) {
	s := newSite(t, conventional)
	got, err := s.writer.ReadRules(paths.LocationUploads)
	require.NoError(t, err)
	require.Empty(t, got)

	s.put(t, paths.LocationIndex, "keep\n")
	got, err = s.writer.ReadRules(paths.LocationIndex)
	require.NoError(t, err)
	require.Equal(t, "keep\n", got)

	s.fs.DenyRead(s.file(paths.LocationIndex))
	_, err = s.writer.ReadRules(paths.LocationIndex)
	require.ErrorIs(t, err, filestore.ErrPermission)
}

package cachemover

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Roelanb/webpsync/internal/config"
	"github.com/Roelanb/webpsync/internal/paths"
	"github.com/Roelanb/webpsync/internal/testutil"
)

var (
	separate      = config.Scheme{Folder: config.FolderSeparate, Extension: config.ExtensionAppend}
	mingledAppend = config.Scheme{Folder: config.FolderMingled, Extension: config.ExtensionAppend}
	mingledSet    = config.Scheme{Folder: config.FolderMingled, Extension: config.ExtensionSet}
)

func newResolver() *paths.Resolver {
	return paths.NewResolver(paths.Layout{DocumentRoot: "/srv/www"})
}

// seed creates n originals in the uploads dir with derivatives under scheme s.
func seed(t *testing.T, fsys afero.Fs, r *paths.Resolver, s config.Scheme, n int) (originals, derivatives []string) {
	t.Helper()
	uploads := r.Layout().UploadsDir
	for i := 0; i < n; i++ {
		ext := ".jpg"
		if i%2 == 1 {
			ext = ".png"
		}
		orig := filepath.Join(uploads, "2024", fmt.Sprintf("%02d", i%3), fmt.Sprintf("img%d%s", i, ext))
		d := r.DerivativePath(orig, s)
		require.NoError(t, fsys.MkdirAll(filepath.Dir(orig), 0o755))
		require.NoError(t, afero.WriteFile(fsys, orig, []byte("original"), 0o644))
		require.NoError(t, fsys.MkdirAll(filepath.Dir(d), 0o755))
		require.NoError(t, afero.WriteFile(fsys, d, []byte("webp:"+orig), 0o644))
		originals = append(originals, orig)
		derivatives = append(derivatives, d)
	}
	return originals, derivatives
}

func newMover(fsys afero.Fs, r *paths.Resolver) *Mover {
	return New(fsys, r, zap.NewNop().Sugar())
}

func TestRelocateAllSucceed(t *testing.T) {
	for _, tc := range []struct {
		name     string
		from, to config.Scheme
	}{
		{"separate to mingled", separate, mingledAppend},
		{"separate to mingled set", separate, mingledSet},
		{"mingled to separate", mingledAppend, separate},
		{"rename append to set", mingledAppend, mingledSet},
		{"rename set to append", mingledSet, mingledAppend},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			r := newResolver()
			originals, old := seed(t, fsys, r, tc.from, 10)
			m := newMover(fsys, r)

			require.Len(t, m.Pending(tc.from, tc.to), 10)
			res := m.RelocateScheme(tc.from, tc.to)
			require.Equal(t, 10, res.Moved)
			require.Equal(t, 0, res.Failed)
			require.Empty(t, m.Pending(tc.from, tc.to))

			for i, orig := range originals {
				exists, _ := afero.Exists(fsys, old[i])
				assert.False(t, exists, old[i])
				b, err := afero.ReadFile(fsys, r.DerivativePath(orig, tc.to))
				require.NoError(t, err)
				assert.Equal(t, "webp:"+orig, string(b))
				// originals are never touched
				exists, _ = afero.Exists(fsys, orig)
				assert.True(t, exists)
			}

			again := m.RelocateScheme(tc.from, tc.to)
			require.Equal(t, Result{}, again)
		})
	}
}

func TestRelocateOneFailure(t *testing.T) {
	base := afero.NewMemMapFs()
	r := newResolver()
	_, old := seed(t, base, r, separate, 10)
	fsys := testutil.NewDenyFs(base, old[4])

	res := newMover(fsys, r).RelocateScheme(separate, mingledAppend)
	require.Equal(t, 9, res.Moved)
	require.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	require.Equal(t, old[4], res.Failures[0].From)
	require.Contains(t, res.Failures[0].Error, "permission denied")

	b, err := afero.ReadFile(base, old[4])
	require.NoError(t, err)
	require.Contains(t, string(b), "webp:")
}

func TestRelocateCollisionLeavesBoth(t *testing.T) {
	fsys := afero.NewMemMapFs()
	r := newResolver()
	originals, old := seed(t, fsys, r, separate, 2)
	target := r.DerivativePath(originals[0], mingledAppend)
	require.NoError(t, afero.WriteFile(fsys, target, []byte("someone else"), 0o644))

	res := newMover(fsys, r).RelocateScheme(separate, mingledAppend)
	require.Equal(t, 1, res.Moved)
	require.Equal(t, 1, res.Failed)
	require.Contains(t, res.Failures[0].Error, ErrCollision.Error())

	b, _ := afero.ReadFile(fsys, target)
	require.Equal(t, "someone else", string(b))
	exists, _ := afero.Exists(fsys, old[0])
	require.True(t, exists)
}

func TestRelocateIgnoresForeignWebp(t *testing.T) {
	fsys := afero.NewMemMapFs()
	r := newResolver()
	uploads := r.Layout().UploadsDir
	// a webp uploaded as such has no original next to it
	require.NoError(t, afero.WriteFile(fsys, filepath.Join(uploads, "banner.webp"), []byte("x"), 0o644))

	m := newMover(fsys, r)
	require.Empty(t, m.Pending(mingledSet, separate))
	require.Empty(t, m.Pending(mingledAppend, separate))
}

func TestRelocateOutsideMingledRootsStaysSeparate(t *testing.T) {
	fsys := afero.NewMemMapFs()
	r := newResolver()
	theme := "/srv/www/wp-content/themes/t/logo.png"
	d := r.DerivativePath(theme, separate)
	require.NoError(t, afero.WriteFile(fsys, d, []byte("x"), 0o644))

	res := newMover(fsys, r).RelocateScheme(separate, mingledSet)
	require.Equal(t, Result{}, res)
	exists, _ := afero.Exists(fsys, d)
	require.True(t, exists)
}

// xdevFs fails every rename as if source and target were on different devices.
type xdevFs struct{ afero.Fs }

func (x xdevFs) Rename(oldname, newname string) error {
	return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: syscall.EXDEV}
}

func TestMoveFallsBackToCopyAcrossDevices(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(base, "/a/x.webp", []byte("data"), 0o640))

	require.NoError(t, moveFile(xdevFs{base}, "/a/x.webp", "/b/c/x.webp"))
	b, err := afero.ReadFile(base, "/b/c/x.webp")
	require.NoError(t, err)
	require.Equal(t, "data", string(b))
	exists, _ := afero.Exists(base, "/a/x.webp")
	require.False(t, exists)
}

func TestMoveOnOsFs(t *testing.T) {
	dir := t.TempDir()
	fsys := afero.NewOsFs()
	src := filepath.Join(dir, "a.jpg.webp")
	dst := filepath.Join(dir, "nested", "a.webp")
	require.NoError(t, afero.WriteFile(fsys, src, []byte("data"), 0o644))
	require.NoError(t, moveFile(fsys, src, dst))
	require.ErrorIs(t, moveFile(fsys, dst, dst), ErrCollision)
}

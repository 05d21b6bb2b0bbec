package settings

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Roelanb/webpsync/internal/cachemover"
	"github.com/Roelanb/webpsync/internal/config"
	"github.com/Roelanb/webpsync/internal/filestore"
	"github.com/Roelanb/webpsync/internal/htaccess"
	"github.com/Roelanb/webpsync/internal/paths"
	"github.com/Roelanb/webpsync/internal/testutil"
)

type countingSyncer struct {
	next  RuleSyncer
	calls int
}

func (c *countingSyncer) SyncRules(cfg config.Config) htaccess.Result {
	c.calls++
	return c.next.SyncRules(cfg)
}

type fakeState struct {
	mu         sync.Mutex
	configured []time.Time
	kinds      []string
}

func (f *fakeState) MarkConfigured(t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configured = append(f.configured, t)
	return nil
}

func (f *fakeState) AppendEvent(kind string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
	return nil
}

type fixture struct {
	fs       *testutil.DenyFs
	resolver *paths.Resolver
	syncer   *countingSyncer
	state    *fakeState
	store    *Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := afero.NewMemMapFs()
	r := paths.NewResolver(paths.Layout{DocumentRoot: "/srv/www"})
	l := r.Layout()
	for _, dir := range []string{l.IndexDir, l.ContentDir, l.PluginsDir, l.UploadsDir} {
		require.NoError(t, base.MkdirAll(dir, 0o755))
	}
	fsys := testutil.NewDenyFs(base)
	log := zap.NewNop().Sugar()
	syncer := &countingSyncer{next: htaccess.NewWriter(fsys, r, log)}
	state := &fakeState{}
	clock := func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) }
	store := New(filestore.New(fsys), r, syncer, cachemover.New(fsys, r, log), log,
		WithState(state), WithClock(clock))
	return &fixture{fs: fsys, resolver: r, syncer: syncer, state: state, store: store}
}

func TestSaveAllUnchangedSyncsAtMostOnce(t *testing.T) {
	f := newFixture(t)
	cfg := config.Default()

	first := f.store.SaveAll(cfg, false)
	require.True(t, first.OK())
	second := f.store.SaveAll(cfg, false)
	require.True(t, second.OK())
	require.False(t, second.RulesNeedUpdate)
	require.Nil(t, second.RuleOutcome)
	require.LessOrEqual(t, f.syncer.calls, 1)

	// and with an existing document to compare against, not at all
	f.syncer.calls = 0
	f.store.SaveAll(cfg, false)
	f.store.SaveAll(cfg, false)
	require.Zero(t, f.syncer.calls)
}

func TestSaveAllQualityChangeDoesNotSync(t *testing.T) {
	f := newFixture(t)
	cfg := config.Default()
	f.store.SaveAll(cfg, false)
	f.syncer.calls = 0

	cfg.MaxQuality = 42
	cfg.PNGQuality = 11
	rep := f.store.SaveAll(cfg, false)
	require.True(t, rep.ConfigSaved)
	require.False(t, rep.RulesNeedUpdate)
	require.Zero(t, f.syncer.calls)

	stored, err := f.store.Load()
	require.NoError(t, err)
	require.Equal(t, 42, stored.MaxQuality)
}

func TestSaveAllForceAndRuleChange(t *testing.T) {
	f := newFixture(t)
	cfg := config.Default()
	f.store.SaveAll(cfg, false)
	f.syncer.calls = 0

	rep := f.store.SaveAll(cfg, true)
	require.True(t, rep.RulesSynced)
	require.Equal(t, 1, f.syncer.calls)

	cfg.EnableRedirectionToWebPRealizer = true
	rep = f.store.SaveAll(cfg, false)
	require.True(t, rep.RulesNeedUpdate)
	require.Equal(t, 2, f.syncer.calls)
	require.Equal(t, htaccess.MainIndex, rep.RuleOutcome.MainResult)
}

func TestSaveAllStampsPathFacts(t *testing.T) {
	f := newFixture(t)
	f.store.SaveAll(config.Default(), false)
	stored, err := f.store.Load()
	require.NoError(t, err)
	require.Equal(t, f.resolver.Facts(), stored.PathsUsedInRules)
}

func TestSaveAllWritesOptionsDocument(t *testing.T) {
	f := newFixture(t)
	f.store.SaveAll(config.Default(), false)
	raw, err := f.store.OptionsDocument()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.NotContains(t, doc, "image-types")
	require.Equal(t, "cwebp", doc["converters"].([]any)[0])
}

func TestSaveAllReportsFailuresIndependently(t *testing.T) {
	f := newFixture(t)
	f.fs.Deny(f.resolver.ConfigFile())

	rep := f.store.SaveAll(config.Default(), false)
	require.False(t, rep.ConfigSaved)
	require.NotEmpty(t, rep.ConfigError)
	require.True(t, rep.OptionsSaved)
	require.True(t, rep.RulesSynced)
	require.True(t, rep.Partial())
	require.False(t, rep.OK())
	// nothing marked configured when the config itself was not written
	require.Empty(t, f.state.configured)
	require.Equal(t, []string{"save"}, f.state.kinds)
}

func TestSaveAllMainFailure(t *testing.T) {
	f := newFixture(t)
	l := f.resolver.Layout()
	f.fs.Deny(filepath.Join(l.IndexDir, ".htaccess"), filepath.Join(l.ContentDir, ".htaccess"))

	rep := f.store.SaveAll(config.Default(), false)
	require.True(t, rep.ConfigSaved)
	require.False(t, rep.RulesSynced)
	require.True(t, rep.RuleOutcome.Failed())
}

func TestSubmitCarriesWhitelistKeyForward(t *testing.T) {
	f := newFixture(t)
	cfg := config.Default()
	cfg.WebService.Whitelist = []config.WhitelistEntry{{Label: "cdn", IP: "10.0.0.1", UID: "X", APIKey: "K"}}
	require.True(t, f.store.SaveAll(cfg, false).ConfigSaved)

	sub := config.Submission{Settings: cfg.Settings, ImageTypes: cfg.ImageTypes}
	sub.Whitelist = []config.SubmittedWhitelistEntry{{Label: "cdn", IP: "10.0.0.1", UID: "X"}}
	rep := f.store.Submit(sub)
	require.True(t, rep.Existed)
	require.True(t, rep.Save.ConfigSaved)

	stored, err := f.store.Load()
	require.NoError(t, err)
	require.Len(t, stored.WebService.Whitelist, 1)
	require.Equal(t, "K", stored.WebService.Whitelist[0].APIKey)
}

func TestSubmitRelocatesOnSchemeChange(t *testing.T) {
	f := newFixture(t)
	cfg := config.Default()
	f.store.SaveAll(cfg, false)

	orig := filepath.Join(f.resolver.Layout().UploadsDir, "a.jpg")
	oldPath := f.resolver.DerivativePath(orig, cfg.Scheme())
	require.NoError(t, afero.WriteFile(f.fs, orig, []byte("jpg"), 0o644))
	require.NoError(t, afero.WriteFile(f.fs, oldPath, []byte("webp"), 0o644))

	sub := config.Submission{Settings: cfg.Settings, ImageTypes: cfg.ImageTypes}
	sub.DestinationFolder = config.FolderMingled
	sub.DestinationExtension = config.ExtensionSet
	rep := f.store.Submit(sub)

	require.Equal(t, config.SchemeRelocatedAndRenamed, rep.SchemeChange)
	require.NotNil(t, rep.Relocation)
	require.Equal(t, 1, rep.Relocation.Moved)
	require.True(t, rep.Save.RulesNeedUpdate)

	exists, _ := afero.Exists(f.fs, filepath.Join(f.resolver.Layout().UploadsDir, "a.webp"))
	assert.True(t, exists)
	assert.Contains(t, f.state.kinds, "relocate")
}

func TestSubmitSkipsRelocationWhenOptionsNotSaved(t *testing.T) {
	f := newFixture(t)
	cfg := config.Default()
	f.store.SaveAll(cfg, false)

	orig := filepath.Join(f.resolver.Layout().UploadsDir, "a.jpg")
	oldPath := f.resolver.DerivativePath(orig, cfg.Scheme())
	require.NoError(t, afero.WriteFile(f.fs, orig, []byte("jpg"), 0o644))
	require.NoError(t, afero.WriteFile(f.fs, oldPath, []byte("webp"), 0o644))
	f.fs.Deny(f.resolver.OptionsFile())

	sub := config.Submission{Settings: cfg.Settings, ImageTypes: cfg.ImageTypes}
	sub.DestinationFolder = config.FolderMingled
	sub.DestinationExtension = config.ExtensionSet
	rep := f.store.Submit(sub)

	require.True(t, rep.Save.ConfigSaved)
	require.False(t, rep.Save.OptionsSaved)
	require.Equal(t, config.SchemeRelocatedAndRenamed, rep.SchemeChange)
	require.Nil(t, rep.Relocation)
	exists, _ := afero.Exists(f.fs, oldPath)
	assert.True(t, exists)
}

func TestSubmitWithoutSchemeChangeDoesNotRelocate(t *testing.T) {
	f := newFixture(t)
	cfg := config.Default()
	f.store.SaveAll(cfg, false)

	sub := config.Submission{Settings: cfg.Settings, ImageTypes: cfg.ImageTypes}
	sub.MaxQuality = 50
	rep := f.store.Submit(sub)
	require.Equal(t, config.SchemeUnchanged, rep.SchemeChange)
	require.Nil(t, rep.Relocation)
}

func TestReconcileIsConvergent(t *testing.T) {
	f := newFixture(t)
	f.store.SaveAll(config.Default(), false)

	// a hand edit that drops the stamp and changes a rule input
	cfg, err := f.store.Load()
	require.NoError(t, err)
	cfg.PathsUsedInRules = config.PathFacts{}
	cfg.EnableRedirectionToWebPRealizer = true
	require.NoError(t, config.Save(filestore.New(f.fs), f.resolver.ConfigFile(), cfg))
	f.syncer.calls = 0

	rep, err := f.store.Reconcile()
	require.NoError(t, err)
	require.True(t, rep.ConfigRestamped)
	require.True(t, rep.OptionsSaved)
	require.True(t, rep.RulesSynced)
	require.Equal(t, 1, f.syncer.calls)

	rep, err = f.store.Reconcile()
	require.NoError(t, err)
	require.False(t, rep.Changed())
	require.Equal(t, 1, f.syncer.calls)
}

func TestReconcileWithoutConfig(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Reconcile()
	require.ErrorIs(t, err, filestore.ErrNotFound)
}

func TestSyncRulesSkipsWhenCurrent(t *testing.T) {
	f := newFixture(t)
	f.store.SaveAll(config.Default(), false)
	f.syncer.calls = 0

	_, ran, err := f.store.SyncRules(false)
	require.NoError(t, err)
	require.False(t, ran)

	out, ran, err := f.store.SyncRules(true)
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, htaccess.MainIndex, out.MainResult)
	require.Equal(t, 1, f.syncer.calls)
}

func TestLoadOrDefaultTreatsMalformedAsAbsent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, afero.WriteFile(f.fs, f.resolver.ConfigFile(), []byte("{not json"), 0o644))

	_, err := f.store.Load()
	require.ErrorIs(t, err, filestore.ErrParse)

	cfg, existed, err := f.store.LoadOrDefault()
	require.NoError(t, err)
	require.False(t, existed)
	require.Equal(t, config.Default(), cfg)
}

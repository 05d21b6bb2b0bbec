package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Roelanb/webpsync/internal/cachemover"
	"github.com/Roelanb/webpsync/internal/filestore"
	"github.com/Roelanb/webpsync/internal/htaccess"
	"github.com/Roelanb/webpsync/internal/observability"
	"github.com/Roelanb/webpsync/internal/paths"
	"github.com/Roelanb/webpsync/internal/settings"
	"github.com/Roelanb/webpsync/internal/state"
)

var (
	sitePath     string
	documentRoot string
	logLevel     string
	dryRun       bool
)

var rootCmd = &cobra.Command{
	Use:     "webpsync",
	Short:   "Keep webp configuration, options, rewrite rules and cache in step",
	Version: version,
	Long: `webpsync persists the webp configuration of a site, derives the options
document the image pipeline reads, distributes rewrite rules over the
site's rule-file locations and relocates converted images when the
destination scheme changes.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		// flags left at their defaults pick up values from the environment
		if !cmd.Flags().Changed("site") {
			if v := os.Getenv("WEBPSYNC_SITE"); v != "" {
				sitePath = v
			}
		}
		if !cmd.Flags().Changed("document-root") {
			if v := os.Getenv("WEBPSYNC_DOCUMENT_ROOT"); v != "" {
				documentRoot = v
			}
		}
		if !cmd.Flags().Changed("log-level") {
			logLevel = observability.EnvLogLevel(logLevel)
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sitePath, "site", "", "Path to the site layout YAML (or set WEBPSYNC_SITE)")
	rootCmd.PersistentFlags().StringVar(&documentRoot, "document-root", "", "Document root of a conventionally laid out site, used when --site is not given")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Report what would happen without writing anything")
}

// app is the wired set of components a command works with.
type app struct {
	log      *zap.SugaredLogger
	fs       afero.Fs
	resolver *paths.Resolver
	writer   *htaccess.Writer
	mover    *cachemover.Mover
	store    *settings.Store
	state    *state.BBoltStore
}

func loadLayout() (paths.Layout, error) {
	if sitePath != "" {
		l, err := paths.LoadLayout(afero.NewOsFs(), sitePath)
		if err != nil {
			return paths.Layout{}, err
		}
		return *l, nil
	}
	if documentRoot == "" {
		return paths.Layout{}, errors.New("either --site or --document-root is required")
	}
	l, err := paths.ParseLayout([]byte("document_root: " + documentRoot + "\n"))
	if err != nil {
		return paths.Layout{}, err
	}
	return *l, nil
}

// openApp wires the components. The state store is only opened when
// withState is set and the run writes.
func openApp(withState bool) (*app, error) {
	layout, err := loadLayout()
	if err != nil {
		return nil, err
	}
	log := observability.NewLogger(logLevel)

	var fsys afero.Fs = afero.NewOsFs()
	if dryRun {
		fsys = afero.NewReadOnlyFs(fsys)
	}
	resolver := paths.NewResolver(layout)

	a := &app{log: log, fs: fsys, resolver: resolver}
	a.writer = htaccess.NewWriter(fsys, resolver, log)
	a.mover = cachemover.New(fsys, resolver, log)

	var opts []settings.Option
	if withState && !dryRun {
		st, err := state.OpenBBolt(resolver.Layout().StateDB)
		if err != nil {
			return nil, err
		}
		a.state = st
		opts = append(opts, settings.WithState(st))
	}
	a.store = settings.New(filestore.New(fsys), resolver, a.writer, a.mover, log, opts...)
	log.Debugw("site resolved",
		"document_root", layout.DocumentRoot, "config", resolver.ConfigFile(),
		"content_moved", resolver.ContentDirMoved(), "uploads_moved", resolver.UploadsDirMoved(),
		"dry_run", dryRun)
	return a, nil
}

func (a *app) Close() {
	if a.state != nil {
		_ = a.state.Close()
	}
	_ = a.log.Sync()
}

func printJSON(w io.Writer, v any) error {
	b, err := filestore.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func readInput(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

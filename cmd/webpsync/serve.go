package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Roelanb/webpsync/internal/api"
	"github.com/Roelanb/webpsync/internal/filestore"
	"github.com/Roelanb/webpsync/internal/watch"
)

var (
	apiAddr       string
	watchConfig   bool
	watchDebounce time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the administrative API and follow edits of the config document",
	Long: `Serve starts the administrative API. With --watch it also watches the
config document and brings the options document and rule files in line
whenever the document changes on disk.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&apiAddr, "api-addr", envOr("WEBPSYNC_API_ADDR", "127.0.0.1:8080"), "Control API listen address")
	serveCmd.Flags().BoolVar(&watchConfig, "watch", true, "Reconcile when the config document changes on disk")
	serveCmd.Flags().DurationVar(&watchDebounce, "debounce", 300*time.Millisecond, "Quiet period before a change is acted on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.log

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reconcile := func(reason string) {
		rep, err := a.store.Reconcile()
		switch {
		case errors.Is(err, filestore.ErrNotFound):
			logger.Debugw("no config document yet", "reason", reason)
		case err != nil:
			logger.Errorw("reconcile failed", "reason", reason, "error", err)
		case rep.RuleOutcome != nil && rep.RuleOutcome.Failed():
			logger.Warnw("rule files could not be brought in line", "reason", reason, "main", rep.RuleOutcome.MainResult)
		}
	}
	reconcile("startup")

	if watchConfig {
		w, err := watch.ForFile(a.resolver.ConfigFile(), watchDebounce, logger)
		if err != nil {
			return err
		}
		events, err := w.Start(ctx)
		if err != nil {
			return err
		}
		defer w.Close()
		go func() {
			for ev := range events {
				logger.Debugw("config document changed", "path", ev.Path)
				reconcile("watch")
			}
		}()
		logger.Infow("watching config document", "path", a.resolver.ConfigFile())
	}

	ctrl := &controlPlane{Store: a.store, state: a.state}
	apiSrv := api.New(logger, ctrl, apiAddr)
	if err := apiSrv.Start(ctx); err != nil {
		logger.Errorw("failed to start api server", "addr", apiAddr, "error", err)
		return err
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infow("signal received, shutting down", "signal", sig.String())

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	if err := apiSrv.Shutdown(shCtx); err != nil {
		logger.Errorw("graceful shutdown failed", "error", err)
	}
	cancel()

	logger.Infow("shutdown complete")
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

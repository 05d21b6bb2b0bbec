package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var syncForce bool

var syncRulesCmd = &cobra.Command{
	Use:   "sync-rules",
	Short: "Write the rewrite rules of the stored config to the rule files",
	Args:  cobra.NoArgs,
	RunE:  runSyncRules,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Bring the options document and rule files in line with the config on disk",
	Args:  cobra.NoArgs,
	RunE:  runReconcile,
}

func init() {
	syncRulesCmd.Flags().BoolVar(&syncForce, "force", true, "Write even when the files are believed current")
	rootCmd.AddCommand(syncRulesCmd)
	rootCmd.AddCommand(reconcileCmd)
}

func runSyncRules(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	res, ran, err := a.store.SyncRules(syncForce)
	if err != nil {
		return err
	}
	if !ran {
		a.log.Infow("rule files already current")
		return nil
	}
	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if res.Failed() {
		return errors.New("rewrite rules could not be placed; redirection is not functional")
	}
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.store.Reconcile()
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), rep)
}

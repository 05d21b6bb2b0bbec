package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Roelanb/webpsync/internal/config"
)

var saveForce bool

var submitCmd = &cobra.Command{
	Use:   "submit <file|->",
	Short: "Merge a settings form submission into the stored config",
	Long: `Submit reads a form submission as JSON, merges the fields its operation
mode exposes into the stored config and saves the config, the options
document and, when needed, the rule files. Converted images are moved
when the destination scheme changed.`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

var saveCmd = &cobra.Command{
	Use:   "save <file|->",
	Short: "Store a complete config document",
	Long: `Save replaces the stored config with the given document and derives the
options document from it. Rule files are rewritten when a rule input
changed or --force is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runSave,
}

func init() {
	saveCmd.Flags().BoolVar(&saveForce, "force", false, "Rewrite the rule files even when no rule input changed")
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(saveCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	raw, err := readInput(args[0])
	if err != nil {
		return err
	}
	var sub config.Submission
	if err := json.Unmarshal(raw, &sub); err != nil {
		return fmt.Errorf("decode submission: %w", err)
	}

	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	rep := a.store.Submit(sub)
	if err := printJSON(cmd.OutOrStdout(), rep); err != nil {
		return err
	}
	if rep.Relocation != nil && rep.Relocation.Failed > 0 {
		a.log.Warnw("some converted images could not be moved", "failed", rep.Relocation.Failed)
	}
	return checkSave(rep.Save.ConfigSaved, rep.Save.RuleOutcome != nil && rep.Save.RuleOutcome.Failed())
}

func runSave(cmd *cobra.Command, args []string) error {
	raw, err := readInput(args[0])
	if err != nil {
		return err
	}
	cfg, err := config.Parse(raw)
	if err != nil {
		return err
	}

	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	rep := a.store.SaveAll(cfg, saveForce)
	if err := printJSON(cmd.OutOrStdout(), rep); err != nil {
		return err
	}
	return checkSave(rep.ConfigSaved, rep.RuleOutcome != nil && rep.RuleOutcome.Failed())
}

func checkSave(configSaved, rulesFailed bool) error {
	switch {
	case !configSaved:
		return errors.New("config was not saved")
	case rulesFailed:
		return errors.New("rewrite rules could not be placed; redirection is not functional")
	}
	return nil
}

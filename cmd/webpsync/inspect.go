package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Roelanb/webpsync/internal/config"
	"github.com/Roelanb/webpsync/internal/htaccess"
	"github.com/Roelanb/webpsync/internal/paths"
	"github.com/Roelanb/webpsync/internal/rules"
)

var (
	eventLimit    int
	showInstalled bool
)

// installedRules describes the rule file found at one location.
type installedRules struct {
	Location paths.Location `json:"location"`
	File     string         `json:"file"`
	HasBlock bool           `json:"has-block"`
	Current  bool           `json:"current"`
	Error    string         `json:"error,omitempty"`
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the rewrite rules the stored config produces",
	Long: `Rules prints the rule block the stored config produces. With --installed
it reports, per rule-file location, whether a block is present on disk and
whether it matches the generated one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()
		lines, err := a.store.Rules()
		if err != nil {
			return err
		}
		if !showInstalled {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), rules.Text(lines))
			return err
		}

		locs := []paths.Location{paths.LocationIndex, paths.LocationContent, paths.LocationPlugins, paths.LocationUploads}
		out := make([]installedRules, 0, len(locs))
		for _, loc := range locs {
			ir := installedRules{Location: loc, File: a.resolver.RuleFile(loc)}
			content, err := a.writer.ReadRules(loc)
			if err != nil {
				ir.Error = err.Error()
			} else {
				ir.HasBlock = htaccess.HasBlock(content)
				ir.Current = ir.HasBlock && htaccess.Splice(content, lines) == content
			}
			out = append(out, ir)
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the stored config with secrets removed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()
		cfg, existed, err := a.store.LoadOrDefault()
		if err != nil {
			return err
		}
		if !existed {
			a.log.Infow("no stored config, showing defaults", "path", a.resolver.ConfigFile())
		}
		return printJSON(cmd.OutOrStdout(), config.Redacted(cfg))
	},
}

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "Print the stored options document",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()
		raw, err := a.store.OptionsDocument()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(raw)
		return err
	},
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the configured flag and recent save events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(true)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.state == nil {
			return fmt.Errorf("state store is not opened in dry-run mode")
		}
		snap, err := a.state.Snapshot()
		if err != nil {
			return err
		}
		events, err := a.state.Events(eventLimit)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), stateView{Snapshot: snap, Events: events})
	},
}

func init() {
	rulesCmd.Flags().BoolVar(&showInstalled, "installed", false, "Report the rule files on disk instead of printing the rules")
	stateCmd.Flags().IntVar(&eventLimit, "events", recentEvents, "Number of recent events to show")
	rootCmd.AddCommand(rulesCmd, configCmd, optionsCmd, stateCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Roelanb/webpsync/internal/config"
)

var (
	fromFolder string
	fromExt    string
	listOnly   bool
)

var relocateCmd = &cobra.Command{
	Use:   "relocate",
	Short: "Move converted images from an earlier destination scheme to the current one",
	Long: `Relocate moves converted images that were placed under the given
destination folder and extension to where the stored config places them.
Use it to finish a move that failed part way.`,
	Args: cobra.NoArgs,
	RunE: runRelocate,
}

func init() {
	relocateCmd.Flags().StringVar(&fromFolder, "from-folder", "", "Previous destination folder: separate|mingled")
	relocateCmd.Flags().StringVar(&fromExt, "from-ext", "", "Previous destination extension: append|set")
	relocateCmd.Flags().BoolVar(&listOnly, "list", false, "Only list the files that would move")
	_ = relocateCmd.MarkFlagRequired("from-folder")
	_ = relocateCmd.MarkFlagRequired("from-ext")
	rootCmd.AddCommand(relocateCmd)
}

func parseScheme(folder, ext string) (config.Scheme, error) {
	s := config.Scheme{Folder: config.DestinationFolder(folder), Extension: config.DestinationExtension(ext)}
	switch s.Folder {
	case config.FolderSeparate, config.FolderMingled:
	default:
		return s, fmt.Errorf("unknown destination folder %q", folder)
	}
	switch s.Extension {
	case config.ExtensionAppend, config.ExtensionSet:
	default:
		return s, fmt.Errorf("unknown destination extension %q", ext)
	}
	return s, nil
}

func runRelocate(cmd *cobra.Command, args []string) error {
	from, err := parseScheme(fromFolder, fromExt)
	if err != nil {
		return err
	}
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, _, err := a.store.LoadOrDefault()
	if err != nil {
		return err
	}
	to := cfg.Scheme()
	if listOnly {
		return printJSON(cmd.OutOrStdout(), a.mover.Pending(from, to))
	}
	res := a.mover.RelocateScheme(from, to)
	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d converted images could not be moved", res.Failed)
	}
	return nil
}

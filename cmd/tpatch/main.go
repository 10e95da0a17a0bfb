package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sokinpui/tpatch/cli"
	"github.com/sokinpui/tpatch/internal/logger"
	"github.com/sokinpui/tpatch/tpatch"
)

// errMissed is returned under --strict when a target or file was not found.
var errMissed = errors.New("some patches did not apply")

func main() {
	cfg := &cli.Config{}

	rootCmd := &cobra.Command{
		Use:   "tpatch [script]",
		Short: "Apply declarative text patches to files",
		Long: `tpatch applies a YAML or markdown patch script to files: literal
replacements with line-ending and whitespace tolerant fallbacks,
marker-bounded block replacement, region rewrites and duplicate-line
collapsing. The script is read from the given path, else stdin when piped,
else the clipboard.

Example: pbpaste | tpatch --dry-run`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, cfg, args)
		},
	}

	cli.BindFlags(rootCmd.PersistentFlags(), cfg)

	rootCmd.AddCommand(newApplyCommand(cfg))
	rootCmd.AddCommand(newInspectCommand(cfg))
	rootCmd.AddCommand(newHistoryCommand(cfg, cli.ModeUndo, "undo", "Revert the files changed by the last apply"))
	rootCmd.AddCommand(newHistoryCommand(cfg, cli.ModeRedo, "redo", "Re-apply the last undone change"))
	rootCmd.AddCommand(newWatchCommand(cfg))

	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		if !errors.Is(err, errMissed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		var detailed *tpatch.DetailedError
		if errors.As(err, &detailed) {
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", detailed.Stack)
		}
		os.Exit(1)
	}
}

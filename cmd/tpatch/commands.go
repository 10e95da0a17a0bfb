package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/sokinpui/tpatch/cli"
	"github.com/sokinpui/tpatch/internal/config"
	"github.com/sokinpui/tpatch/internal/logger"
	"github.com/sokinpui/tpatch/internal/tui"
	"github.com/sokinpui/tpatch/internal/ui"
	"github.com/sokinpui/tpatch/internal/watch"
	"github.com/sokinpui/tpatch/model"
	"github.com/sokinpui/tpatch/tpatch"
)

func newApplyCommand(cfg *cli.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "apply [script]",
		Short: "Apply a patch script (the default command)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, cfg, args)
		},
	}
}

func newInspectCommand(cfg *cli.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print lines quoted and as code points",
		Long: `inspect prints each selected line with escapes and the hex value of
every code point, to find the invisible characters that make a patch miss.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Mode = cli.ModeInspect
			cfg.InspectFile = args[0]
			cfg.Plain = true
			return run(cmd, cfg)
		},
	}
	cli.BindInspectFlags(cmd.Flags(), cfg)
	return cmd
}

func newHistoryCommand(cfg *cli.Config, mode cli.Mode, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Mode = mode
			return run(cmd, cfg)
		},
	}
}

func newWatchCommand(cfg *cli.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <script>",
		Short: "Re-apply a script every time it is saved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Mode = cli.ModeApply
			cfg.Script = args[0]
			app, err := prepare(cmd, cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			apply := func(ctx context.Context) error {
				summary, err := app.ExecuteContext(ctx)
				if err != nil && len(summary.Modified) == 0 {
					return err
				}
				ui.PrintUpdateSummary(summary)
				return err
			}
			if err := apply(ctx); err != nil {
				ui.Error("Error: %v", err)
			}

			w, err := watch.New(cfg.Script, 0, apply)
			if err != nil {
				return err
			}
			ui.Info("Watching %s for changes. Press Ctrl+C to stop.", cfg.Script)
			return w.Run(ctx)
		},
	}
}

func runApply(cmd *cobra.Command, cfg *cli.Config, args []string) error {
	cfg.Mode = cli.ModeApply
	if len(args) == 1 {
		cfg.Script = args[0]
	}
	return run(cmd, cfg)
}

// prepare merges the config file into cfg, sets up logging and builds the app.
func prepare(cmd *cobra.Command, cfg *cli.Config) (*tpatch.App, error) {
	settings, err := config.Load(cfg.ConfigFile)
	if err != nil {
		return nil, err
	}
	cfg.Merge(settings, cmd.Flags())
	if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, err
	}
	return tpatch.New(cfg)
}

func run(cmd *cobra.Command, cfg *cli.Config) error {
	app, err := prepare(cmd, cfg)
	if err != nil {
		return err
	}

	var summary model.Summary
	if useTUI(cfg) {
		summary, err = runTUI(app)
	} else {
		summary, err = runPlain(app, cfg)
	}
	if err != nil {
		return err
	}

	if cfg.Strict && summary.Missed() {
		return errMissed
	}
	return nil
}

func stderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// useTUI reports whether the spinner and styled summary should be shown.
// Modes that print to stdout stay plain.
func useTUI(cfg *cli.Config) bool {
	if cfg.Plain || cfg.DryRun || cfg.Mode == cli.ModeInspect {
		return false
	}
	return stderrIsTerminal()
}

func runTUI(app *tpatch.App) (model.Summary, error) {
	m := tui.New(app)
	p := tea.NewProgram(m, tea.WithOutput(os.Stderr))
	m.SetProgram(p)
	if _, err := p.Run(); err != nil {
		return model.Summary{}, err
	}
	return m.Summary(), m.Err()
}

func runPlain(app *tpatch.App, cfg *cli.Config) (model.Summary, error) {
	if stderrIsTerminal() && cfg.Mode != cli.ModeInspect {
		var bar *ui.ProgressBar
		app.SetProgressCallback(func(current, total int) {
			if bar == nil {
				bar = ui.NewProgressBar(total, "Processing")
				bar.Start()
			}
			if current > 0 {
				bar.Set(current)
			}
			if current == total {
				bar.Finish()
				bar = nil
			}
		})
	}

	summary, err := app.Execute()
	if err != nil && len(summary.Modified) == 0 {
		return model.Summary{}, err
	}

	switch cfg.Mode {
	case cli.ModeUndo:
		ui.PrintHistorySummary("Undo", summary)
	case cli.ModeRedo:
		ui.PrintHistorySummary("Redo", summary)
	case cli.ModeApply:
		ui.PrintUpdateSummary(summary)
	}
	return summary, err
}

package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/sokinpui/tpatch/internal/config"
	"github.com/sokinpui/tpatch/internal/patcher"
)

// Mode selects what an App run does.
type Mode int

const (
	ModeApply Mode = iota
	ModeInspect
	ModeUndo
	ModeRedo
)

// Config holds all the command-line flag values.
type Config struct {
	Mode Mode
	// Script is the patch script path; empty reads stdin or the clipboard.
	Script string

	LookupDirs  []string
	Extensions  []string
	Strategies  []string
	DryRun      bool
	Buffer      bool
	NvimAddr    string
	SaveBuffers bool
	Strict      bool
	Plain       bool
	NoHistory   bool
	Verbose     bool
	ConfigFile  string

	// Filled from the config file.
	StateDir  string
	LogLevel  string
	LogFormat string

	// Inspect mode.
	InspectFile string
	From        int
	To          int
	Find        string
}

// BindFlags registers the flags shared by every command on fs.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringSliceVarP(&cfg.LookupDirs, "lookup-dir", "l", nil, "Directories searched for relative target paths (default: working directory).")
	fs.StringSliceVarP(&cfg.Extensions, "extension", "e", nil, "Only patch target files with these extensions (e.g., 'tsx', 'py').")
	fs.StringSliceVarP(&cfg.Strategies, "strategy", "s", nil, "Default match strategies for replace patches, in order (exact, eol, whitespace, lines).")
	fs.BoolVarP(&cfg.DryRun, "dry-run", "n", false, "Print a unified diff instead of writing files.")
	fs.BoolVarP(&cfg.Buffer, "buffer", "b", false, "Update buffers in a running Neovim instead of writing files.")
	fs.StringVar(&cfg.NvimAddr, "nvim-addr", "", "Neovim listen address (default: $NVIM or $NVIM_LISTEN_ADDRESS).")
	fs.BoolVar(&cfg.SaveBuffers, "save-buffers", false, "With --buffer, write all modified buffers afterwards.")
	fs.BoolVar(&cfg.Strict, "strict", false, "Exit with status 1 if any patch target or file was not found.")
	fs.BoolVar(&cfg.Plain, "plain", false, "Print plain status lines instead of the interactive summary.")
	fs.BoolVar(&cfg.NoHistory, "no-history", false, "Do not record this run for undo.")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Log diagnostic detail to stderr.")
	fs.StringVar(&cfg.ConfigFile, "config", "", "Config file (default: .tpatch.yaml in the working directory or $HOME/.config/tpatch).")
}

// BindInspectFlags registers the inspect command flags on fs.
func BindInspectFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.IntVar(&cfg.From, "from", 1, "First line to inspect (1-based).")
	fs.IntVar(&cfg.To, "to", 0, "Last line to inspect (default: end of file).")
	fs.StringVarP(&cfg.Find, "find", "f", "", "Inspect every line containing this text instead of a range.")
}

// Validate checks flag combinations and normalizes values.
func (c *Config) Validate() error {
	if c.DryRun && c.Buffer {
		return errors.New("--dry-run and --buffer are mutually exclusive")
	}
	if c.SaveBuffers && !c.Buffer {
		return errors.New("--save-buffers requires --buffer")
	}
	if c.Mode == ModeInspect {
		if c.InspectFile == "" {
			return errors.New("inspect needs a file")
		}
		if c.To != 0 && c.To < c.From {
			return fmt.Errorf("--to %d is before --from %d", c.To, c.From)
		}
	}
	if _, err := patcher.ParseStrategies(c.Strategies); err != nil {
		return err
	}

	// Normalize extensions
	for i, ext := range c.Extensions {
		if len(ext) > 0 && ext[0] != '.' {
			c.Extensions[i] = "." + ext
		}
	}
	return nil
}

// Merge fills values from the config file that no flag set explicitly.
func (c *Config) Merge(settings *config.Config, flags *pflag.FlagSet) {
	changed := func(name string) bool {
		return flags != nil && flags.Changed(name)
	}

	if !changed("lookup-dir") && len(settings.LookupDirs) > 0 {
		c.LookupDirs = settings.LookupDirs
	}
	if !changed("strategy") && len(settings.Strategies) > 0 {
		c.Strategies = settings.Strategies
	}
	if !changed("no-history") && !settings.History {
		c.NoHistory = true
	}
	c.StateDir = settings.StateDir
	c.LogFormat = settings.Log.Format
	c.LogLevel = settings.Log.Level
	if c.Verbose {
		c.LogLevel = "debug"
	}
}

// MatchStrategies returns the parsed default strategies, or the built-in
// order when none are configured.
func (c *Config) MatchStrategies() []patcher.Strategy {
	strategies, err := patcher.ParseStrategies(c.Strategies)
	if err != nil || len(strategies) == 0 {
		return patcher.DefaultStrategies
	}
	return strategies
}

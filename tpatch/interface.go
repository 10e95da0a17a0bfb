package tpatch

import (
	"context"
	"fmt"
	"io"

	"github.com/sokinpui/tpatch/cli"
	"github.com/sokinpui/tpatch/model"
)

// Config for using tpatch as a library.
type Config struct {
	// Directories searched for relative target paths; default is the working directory.
	LookupDirs []string
	// Default match strategies for replace patches without their own.
	Strategies []string
	// Only compute outcomes; files are left untouched.
	DryRun bool
	// Record the write so `tpatch undo` can revert it.
	History bool
	// Directory holding history; default .tpatch at the git root.
	StateDir string
}

// ApplyScript parses a YAML or markdown script and applies it to files.
func ApplyScript(content string, config Config) (model.Summary, error) {
	cliCfg := &cli.Config{
		LookupDirs: config.LookupDirs,
		Strategies: config.Strategies,
		DryRun:     config.DryRun,
		NoHistory:  !config.History,
		StateDir:   config.StateDir,
	}

	app, err := New(cliCfg)
	if err != nil {
		return model.Summary{}, fmt.Errorf("failed to initialize tpatch app: %w", err)
	}
	if config.DryRun {
		app.SetOutput(io.Discard)
	}
	return app.ApplyContent(context.Background(), "", content)
}

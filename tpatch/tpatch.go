package tpatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/pmezard/go-difflib/difflib"
	"go.uber.org/zap"

	"github.com/sokinpui/tpatch/cli"
	"github.com/sokinpui/tpatch/internal/fs"
	"github.com/sokinpui/tpatch/internal/inspect"
	"github.com/sokinpui/tpatch/internal/logger"
	"github.com/sokinpui/tpatch/internal/nvim"
	"github.com/sokinpui/tpatch/internal/parser"
	"github.com/sokinpui/tpatch/internal/patcher"
	"github.com/sokinpui/tpatch/internal/source"
	"github.com/sokinpui/tpatch/internal/state"
	"github.com/sokinpui/tpatch/model"
)

const defaultStateDir = ".tpatch"

// ProgressUpdate is a callback function to report progress.
type ProgressUpdate func(current, total int)

// App orchestrates the entire application logic.
type App struct {
	cfg              *cli.Config
	stateManager     *state.Manager
	pathResolver     *fs.PathResolver
	sourceProvider   *source.SourceProvider
	progressCallback ProgressUpdate
	out              io.Writer
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error {
	return e.Err
}

// New creates a new App instance.
func New(cfg *cli.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pathResolver, err := fs.NewPathResolver(cfg.LookupDirs)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize path resolver: %w", err)
	}

	return &App{
		cfg:            cfg,
		pathResolver:   pathResolver,
		sourceProvider: source.New(),
		out:            os.Stdout,
	}, nil
}

// SetProgressCallback sets a function to be called for progress updates.
func (a *App) SetProgressCallback(cb ProgressUpdate) {
	a.progressCallback = cb
}

// SetOutput redirects dry-run diffs and inspection reports.
func (a *App) SetOutput(w io.Writer) {
	a.out = w
}

// SetSource replaces where scripts are read from when no path is given.
func (a *App) SetSource(sp *source.SourceProvider) {
	a.sourceProvider = sp
}

// history opens the state manager on first use so dry runs never create it.
func (a *App) history() (*state.Manager, error) {
	if a.stateManager != nil {
		return a.stateManager, nil
	}
	dir := a.cfg.StateDir
	if dir == "" {
		dir = defaultStateDir
	}
	m, err := state.New(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state manager: %w", err)
	}
	a.stateManager = m
	return m, nil
}

// Execute runs the configured mode.
func (a *App) Execute() (model.Summary, error) {
	return a.ExecuteContext(context.Background())
}

// ExecuteContext runs the configured mode, stopping between files once ctx
// is done.
func (a *App) ExecuteContext(ctx context.Context) (summary model.Summary, err error) {
	// Centralized panic recovery.
	defer func() {
		if r := recover(); r != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	switch a.cfg.Mode {
	case cli.ModeUndo:
		return a.undoLastOperation()
	case cli.ModeRedo:
		return a.redoLastOperation()
	case cli.ModeInspect:
		return a.Inspect(a.cfg.InspectFile, a.cfg.From, a.cfg.To, a.cfg.Find)
	default:
		return a.processContent(ctx)
	}
}

// processContent reads the script source and applies it.
func (a *App) processContent(ctx context.Context) (model.Summary, error) {
	src, err := a.sourceProvider.GetContent(a.cfg.Script)
	if err != nil {
		if errors.Is(err, source.ErrEmpty) {
			return model.Summary{Message: "Source is empty. Nothing to process."}, nil
		}
		return model.Summary{}, err
	}
	logger.L().Debug("loaded script", zap.String("origin", string(src.Origin)), zap.Int("bytes", len(src.Content)))
	return a.ApplyContent(ctx, src.Name, src.Content)
}

// ApplyContent parses a script and applies it. name only picks the format.
func (a *App) ApplyContent(ctx context.Context, name, content string) (model.Summary, error) {
	script, err := parser.Parse(name, content)
	if err != nil {
		return model.Summary{}, err
	}
	return a.Apply(ctx, script)
}

// Apply plans script against the files on disk and then writes, pushes to
// Neovim or prints the result depending on the configuration.
func (a *App) Apply(ctx context.Context, script *parser.Script) (model.Summary, error) {
	script.FilterExtensions(a.cfg.Extensions)
	if len(script.Patches) == 0 {
		return model.Summary{Message: "No patches target the selected extensions. Nothing to do."}, nil
	}

	plan, err := a.Plan(ctx, script)
	if err != nil {
		return model.Summary{}, err
	}

	var summary model.Summary
	switch {
	case a.cfg.DryRun:
		summary, err = a.printDiffs(plan)
	case a.cfg.Buffer:
		summary, err = a.applyToBuffers(plan)
	default:
		summary, err = a.writeChanges(ctx, plan)
	}
	// A write cut short still reports what reached the disk.
	summary.Outcomes = plan.Outcomes
	summary.Unchanged = plan.Unchanged
	summary.Failed = append(plan.Failed, summary.Failed...)
	if len(plan.Changes) == 0 && summary.Message == "" {
		summary.Message = "No valid changes were generated. Nothing to do."
	}
	a.relativizeSummaryPaths(&summary)
	return summary, err
}

// printDiffs writes a unified diff per planned change to the output.
func (a *App) printDiffs(plan *Plan) (model.Summary, error) {
	summary := model.Summary{DryRun: true}
	for _, change := range plan.Changes {
		rel := a.relativize(change.Path)
		diff := difflib.UnifiedDiff{
			A:        difflib.SplitLines(change.Before),
			B:        difflib.SplitLines(change.After),
			FromFile: "a/" + filepath.ToSlash(rel),
			ToFile:   "b/" + filepath.ToSlash(rel),
			Context:  3,
		}
		if err := difflib.WriteUnifiedDiff(a.out, diff); err != nil {
			return model.Summary{}, fmt.Errorf("write diff: %w", err)
		}
		summary.Modified = append(summary.Modified, change.Path)
	}
	return summary, nil
}

// applyToBuffers connects to Neovim and replaces the buffers of changed files.
func (a *App) applyToBuffers(plan *Plan) (model.Summary, error) {
	if len(plan.Changes) == 0 {
		return model.Summary{}, nil
	}
	manager, err := nvim.New(a.cfg.NvimAddr)
	if err != nil {
		return model.Summary{}, err
	}
	defer manager.Close()

	updated, failed := manager.ApplyChanges(plan.Changes, a.progress(len(plan.Changes)))
	summary := model.Summary{Modified: updated, Failed: failed, Message: "Updated Neovim buffers."}
	if a.cfg.SaveBuffers && len(updated) > 0 {
		if err := manager.SaveAllBuffers(); err != nil {
			return model.Summary{}, err
		}
		summary.Message = "Updated and saved Neovim buffers."
	}
	return summary, nil
}

// writeChanges writes every planned change and records one history entry.
// Once ctx is done no further file is written, but the files already written
// are still recorded so they can be undone.
func (a *App) writeChanges(ctx context.Context, plan *Plan) (model.Summary, error) {
	var summary model.Summary
	if len(plan.Changes) == 0 {
		return summary, nil
	}

	var manager *state.Manager
	if !a.cfg.NoHistory {
		m, err := a.history()
		if err != nil {
			return model.Summary{}, err
		}
		manager = m
	}

	report := a.progress(len(plan.Changes))
	var ops []state.Operation
	var writeErr error
	for i, change := range plan.Changes {
		if err := ctx.Err(); err != nil {
			writeErr = err
			break
		}
		op, err := a.writeChange(manager, plan.files[change.Path], change)
		if err != nil {
			logger.L().Warn("write failed", zap.String("path", change.Path), zap.Error(err))
			summary.Failed = append(summary.Failed, change.Path)
		} else {
			summary.Modified = append(summary.Modified, change.Path)
			if op != nil {
				ops = append(ops, *op)
			}
		}
		if report != nil {
			report(i + 1)
		}
	}

	if manager != nil && len(ops) > 0 {
		entry, err := manager.Record(ops)
		if err != nil {
			return summary, errors.Join(writeErr, fmt.Errorf("record history: %w", err))
		}
		logger.L().Debug("recorded history entry", zap.String("id", entry.ID), zap.Int("files", len(ops)))
	}
	return summary, writeErr
}

func (a *App) writeChange(manager *state.Manager, file *fs.File, change model.FileChange) (*state.Operation, error) {
	var op *state.Operation
	if manager != nil {
		before, err := os.ReadFile(change.Path)
		if err != nil {
			return nil, err
		}
		beforeHash, err := manager.StoreBlob(before)
		if err != nil {
			return nil, err
		}
		op = &state.Operation{Action: state.ActionModify, Path: change.Path, Before: beforeHash}
	}

	updated := *file
	updated.Content = change.After
	if manager != nil {
		afterHash, err := manager.StoreBlob(updated.Encode())
		if err != nil {
			return nil, err
		}
		op.After = afterHash
	}
	if err := fs.WriteText(&updated); err != nil {
		return nil, err
	}
	return op, nil
}

// undoLastOperation handles the undo logic.
func (a *App) undoLastOperation() (model.Summary, error) {
	manager, err := a.history()
	if err != nil {
		return model.Summary{}, err
	}
	ops, err := manager.GetOperationsToUndo()
	if err != nil {
		return model.Summary{}, err
	}
	if len(ops) == 0 {
		return model.Summary{Message: "No operation to undo."}, nil
	}

	undone, failed := a.restoreAll(ops, manager.Revert)
	summary := model.Summary{
		Modified: undone,
		Failed:   failed,
		Message:  "Undid last operation.",
	}
	a.relativizeSummaryPaths(&summary)
	return summary, nil
}

// redoLastOperation handles the redo logic.
func (a *App) redoLastOperation() (model.Summary, error) {
	manager, err := a.history()
	if err != nil {
		return model.Summary{}, err
	}
	ops, err := manager.GetOperationsToRedo()
	if err != nil {
		return model.Summary{}, err
	}
	if len(ops) == 0 {
		return model.Summary{Message: "No operation to redo."}, nil
	}

	redone, failed := a.restoreAll(ops, manager.Reapply)
	summary := model.Summary{
		Modified: redone,
		Failed:   failed,
		Message:  "Redid last undone operation.",
	}
	a.relativizeSummaryPaths(&summary)
	return summary, nil
}

func (a *App) restoreAll(ops []state.Operation, restore func(state.Operation) error) (done, failed []string) {
	report := a.progress(len(ops))
	for i, op := range ops {
		if err := restore(op); err != nil {
			logger.L().Warn("restore failed", zap.String("path", op.Path), zap.Error(err))
			failed = append(failed, op.Path)
		} else {
			done = append(done, op.Path)
		}
		if report != nil {
			report(i + 1)
		}
	}
	return done, failed
}

// Inspect writes line reports for path to the output. A non-empty find
// selects matching lines instead of the from..to range.
func (a *App) Inspect(path string, from, to int, find string) (model.Summary, error) {
	resolved := a.pathResolver.Resolve(path)
	file, err := fs.ReadText(resolved)
	if err != nil {
		return model.Summary{}, err
	}

	var reports []inspect.LineReport
	if find != "" {
		reports = inspect.Find(file.Content, find)
	} else {
		reports = inspect.Lines(file.Content, from, to)
	}
	if err := inspect.Write(a.out, a.relativize(resolved), reports); err != nil {
		return model.Summary{}, err
	}
	return model.Summary{Message: fmt.Sprintf("Inspected %d line(s).", len(reports))}, nil
}

// progress adapts the progress callback to a per-item counter.
func (a *App) progress(total int) func(int) {
	if a.progressCallback == nil {
		return nil
	}
	a.progressCallback(0, total)
	return func(current int) {
		a.progressCallback(current, total)
	}
}

func (a *App) relativize(path string) string {
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(wd, path)
	if err != nil {
		return path
	}
	return rel
}

// relativizeSummaryPaths converts absolute file paths in a summary to be
// relative to the current working directory for cleaner display.
func (a *App) relativizeSummaryPaths(summary *model.Summary) {
	makeRelative := func(absPaths []string) []string {
		if absPaths == nil {
			return nil
		}
		relPaths := make([]string, len(absPaths))
		for i, p := range absPaths {
			relPaths[i] = a.relativize(p)
		}
		return relPaths
	}

	summary.Modified = makeRelative(summary.Modified)
	summary.Unchanged = makeRelative(summary.Unchanged)
	summary.Failed = makeRelative(summary.Failed)
}

// defaultStrategies is used for replace patches that list none.
func (a *App) defaultStrategies() []patcher.Strategy {
	return a.cfg.MatchStrategies()
}

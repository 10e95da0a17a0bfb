package tpatch

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sokinpui/tpatch/internal/fs"
	"github.com/sokinpui/tpatch/internal/logger"
	"github.com/sokinpui/tpatch/internal/parser"
	"github.com/sokinpui/tpatch/internal/patcher"
	"github.com/sokinpui/tpatch/model"
)

// Plan is the in-memory result of running a script against the files on
// disk. Nothing has been written yet.
type Plan struct {
	// Changes holds one entry per file whose content changed, by absolute path.
	Changes []model.FileChange
	// Outcomes holds one entry per (file, patch) pair in file order, then
	// script order.
	Outcomes []model.Outcome
	// Unchanged and Failed list absolute paths of files that need no write
	// or could not be read.
	Unchanged []string
	Failed    []string

	files map[string]*fs.File
}

// Plan reads every target file once and applies, in script order, each patch
// that targets it.
func (a *App) Plan(ctx context.Context, script *parser.Script) (*Plan, error) {
	plan := &Plan{files: make(map[string]*fs.File)}

	for _, target := range a.resolveTargets(script) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := target.path
		display := a.relativize(path)

		file, err := fs.ReadText(path)
		if err != nil {
			status := model.StatusError
			if errors.Is(err, fs.ErrFileNotFound) {
				status = model.StatusMissingFile
			}
			for i, p := range script.Patches {
				if target.matches(p) {
					plan.Outcomes = append(plan.Outcomes, model.Outcome{
						Patch:  p.Label(i),
						Path:   display,
						Status: status,
						Err:    err,
					})
				}
			}
			plan.Failed = append(plan.Failed, path)
			continue
		}

		content := file.Content
		for i, p := range script.Patches {
			if !target.matches(p) {
				continue
			}
			res, err := patcher.Apply(content, a.withDefaults(p.Op))
			outcome := model.Outcome{
				Patch:    p.Label(i),
				Path:     display,
				Strategy: string(res.Strategy),
				Count:    res.Count,
				Err:      err,
			}
			switch {
			case err == nil && res.Changed:
				outcome.Status = model.StatusApplied
			case err == nil:
				outcome.Status = model.StatusUnchanged
			case errors.Is(err, patcher.ErrNotFound):
				outcome.Status = model.StatusNotFound
			default:
				outcome.Status = model.StatusError
			}
			logger.L().Debug("patch evaluated",
				zap.String("patch", outcome.Patch),
				zap.String("path", display),
				zap.String("status", string(outcome.Status)),
				zap.String("strategy", outcome.Strategy),
				zap.Int("count", outcome.Count),
				zap.Error(err))

			plan.Outcomes = append(plan.Outcomes, outcome)
			content = res.Content
		}

		if content == file.Content {
			plan.Unchanged = append(plan.Unchanged, path)
			continue
		}
		plan.files[path] = file
		plan.Changes = append(plan.Changes, model.FileChange{Path: path, Before: file.Content, After: content})
	}
	return plan, nil
}

// planTarget is one file on disk and every spelling the script uses for it.
type planTarget struct {
	path  string
	names map[string]bool
}

func (t planTarget) matches(p parser.Patch) bool {
	for _, f := range p.Files {
		if t.names[f] {
			return true
		}
	}
	return false
}

// resolveTargets groups the script's target files by resolved path in
// first-seen order, so `view.tsx` and `./view.tsx` are planned as one file.
func (a *App) resolveTargets(script *parser.Script) []planTarget {
	var out []planTarget
	index := make(map[string]int)
	for _, name := range script.Files() {
		path := a.pathResolver.Resolve(name)
		i, ok := index[path]
		if !ok {
			i = len(out)
			index[path] = i
			out = append(out, planTarget{path: path, names: make(map[string]bool)})
		}
		out[i].names[name] = true
	}
	return out
}

// withDefaults gives a replace patch without its own strategies the
// configured order.
func (a *App) withDefaults(op patcher.Patch) patcher.Patch {
	if op.Replace == nil || len(op.Replace.Strategies) > 0 {
		return op
	}
	spec := *op.Replace
	spec.Strategies = a.defaultStrategies()
	op.Replace = &spec
	return op
}

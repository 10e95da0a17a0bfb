package tpatch

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/tpatch/cli"
	"github.com/sokinpui/tpatch/internal/source"
	"github.com/sokinpui/tpatch/model"
)

const viewBefore = "a -> b\n<table>\n  <tr/>\n</table>\nend\n"
const viewAfter = "a → b\n<Table />\nend\n"

const viewScript = `
patches:
  - name: arrows
    files: [view.tsx]
    replace: {target: "->", replacement: "→"}
  - name: block
    files: [view.tsx]
    markers: {start: "<table>", end: "</table>", replacement: "<Table />"}
  - name: missing target
    files: [view.tsx]
    replace: {target: "nope", replacement: "x"}
  - name: absent
    files: [absent.tsx]
    replace: {target: "a", replacement: "b"}
`

// workspace creates a directory holding view.tsx and a config rooted there.
func workspace(t *testing.T) (string, *cli.Config) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "view.tsx"), []byte(viewBefore), 0o644))
	return dir, &cli.Config{
		LookupDirs: []string{dir},
		StateDir:   filepath.Join(dir, ".tpatch"),
	}
}

func newApp(t *testing.T, cfg *cli.Config) (*App, *bytes.Buffer) {
	t.Helper()
	app, err := New(cfg)
	require.NoError(t, err)
	var out bytes.Buffer
	app.SetOutput(&out)
	return app, &out
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func statuses(s model.Summary) []model.Status {
	var out []model.Status
	for _, o := range s.Outcomes {
		out = append(out, o.Status)
	}
	return out
}

func TestApply_WritesFilesAndReportsOutcomes(t *testing.T) {
	dir, cfg := workspace(t)
	app, _ := newApp(t, cfg)

	summary, err := app.ApplyContent(context.Background(), "fix.yaml", viewScript)
	require.NoError(t, err)

	assert.Equal(t, viewAfter, readFile(t, filepath.Join(dir, "view.tsx")))
	assert.Equal(t, []model.Status{
		model.StatusApplied,
		model.StatusApplied,
		model.StatusNotFound,
		model.StatusMissingFile,
	}, statuses(summary))
	require.Len(t, summary.Modified, 1)
	assert.Equal(t, "view.tsx", filepath.Base(summary.Modified[0]))
	require.Len(t, summary.Failed, 1)
	assert.Equal(t, "absent.tsx", filepath.Base(summary.Failed[0]))
	assert.True(t, summary.Missed())

	assert.Equal(t, "arrows", summary.Outcomes[0].Patch)
	assert.Equal(t, "exact", summary.Outcomes[0].Strategy)
	assert.Equal(t, "markers", summary.Outcomes[1].Strategy)
}

func TestUndoRedo(t *testing.T) {
	dir, cfg := workspace(t)
	path := filepath.Join(dir, "view.tsx")

	app, _ := newApp(t, cfg)
	_, err := app.ApplyContent(context.Background(), "fix.yaml", viewScript)
	require.NoError(t, err)
	require.Equal(t, viewAfter, readFile(t, path))

	undoCfg := *cfg
	undoCfg.Mode = cli.ModeUndo
	undo, _ := newApp(t, &undoCfg)
	summary, err := undo.Execute()
	require.NoError(t, err)
	assert.Equal(t, "Undid last operation.", summary.Message)
	assert.Len(t, summary.Modified, 1)
	assert.Equal(t, viewBefore, readFile(t, path))

	summary, err = undo.Execute()
	require.NoError(t, err)
	assert.Equal(t, "No operation to undo.", summary.Message)

	redoCfg := *cfg
	redoCfg.Mode = cli.ModeRedo
	redo, _ := newApp(t, &redoCfg)
	_, err = redo.Execute()
	require.NoError(t, err)
	assert.Equal(t, viewAfter, readFile(t, path))
}

func TestUndo_SkipsFilesChangedSince(t *testing.T) {
	dir, cfg := workspace(t)
	path := filepath.Join(dir, "view.tsx")

	app, _ := newApp(t, cfg)
	_, err := app.ApplyContent(context.Background(), "fix.yaml", viewScript)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("hand edit\n"), 0o644))

	undoCfg := *cfg
	undoCfg.Mode = cli.ModeUndo
	undo, _ := newApp(t, &undoCfg)
	summary, err := undo.Execute()
	require.NoError(t, err)
	assert.Len(t, summary.Failed, 1)
	assert.Equal(t, "hand edit\n", readFile(t, path))
}

func TestApply_DryRunPrintsDiffOnly(t *testing.T) {
	dir, cfg := workspace(t)
	cfg.DryRun = true
	app, out := newApp(t, cfg)

	summary, err := app.ApplyContent(context.Background(), "fix.yaml", viewScript)
	require.NoError(t, err)
	assert.True(t, summary.DryRun)
	assert.Len(t, summary.Modified, 1)

	assert.Equal(t, viewBefore, readFile(t, filepath.Join(dir, "view.tsx")))
	assert.Contains(t, out.String(), "-a -> b\n")
	assert.Contains(t, out.String(), "+a → b\n")
	assert.Contains(t, out.String(), "+<Table />\n")

	_, err = os.Stat(filepath.Join(dir, ".tpatch"))
	assert.True(t, os.IsNotExist(err), "dry run must not create history")
}

func TestApply_NoHistory(t *testing.T) {
	dir, cfg := workspace(t)
	cfg.NoHistory = true
	app, _ := newApp(t, cfg)

	_, err := app.ApplyContent(context.Background(), "fix.yaml", viewScript)
	require.NoError(t, err)
	assert.Equal(t, viewAfter, readFile(t, filepath.Join(dir, "view.tsx")))

	_, err = os.Stat(filepath.Join(dir, ".tpatch"))
	assert.True(t, os.IsNotExist(err))
}

func TestApply_SecondRunIsNotFound(t *testing.T) {
	_, cfg := workspace(t)
	app, _ := newApp(t, cfg)
	script := "patches:\n  - files: [view.tsx]\n    replace: {target: \"->\", replacement: \"=>\"}\n"

	first, err := app.ApplyContent(context.Background(), "fix.yaml", script)
	require.NoError(t, err)
	assert.Equal(t, []model.Status{model.StatusApplied}, statuses(first))

	second, err := app.ApplyContent(context.Background(), "fix.yaml", script)
	require.NoError(t, err)
	assert.Equal(t, []model.Status{model.StatusNotFound}, statuses(second))
	assert.Empty(t, second.Modified)
	assert.Len(t, second.Unchanged, 1)
}

func TestApply_ConfiguredStrategies(t *testing.T) {
	dir, cfg := workspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "view.tsx"), []byte("\t\treturn  x\n"), 0o644))
	script := "patches:\n  - files: [view.tsx]\n    replace: {target: \"return x\", replacement: \"return y\"}\n"

	cfg.Strategies = []string{"exact"}
	app, _ := newApp(t, cfg)
	summary, err := app.ApplyContent(context.Background(), "fix.yaml", script)
	require.NoError(t, err)
	assert.Equal(t, []model.Status{model.StatusNotFound}, statuses(summary))

	cfg.Strategies = nil
	app, _ = newApp(t, cfg)
	summary, err = app.ApplyContent(context.Background(), "fix.yaml", script)
	require.NoError(t, err)
	assert.Equal(t, []model.Status{model.StatusApplied}, statuses(summary))
	assert.Equal(t, "\t\treturn y\n", readFile(t, filepath.Join(dir, "view.tsx")))
}

func TestApply_ExtensionFilter(t *testing.T) {
	_, cfg := workspace(t)
	cfg.Extensions = []string{"go"}
	app, _ := newApp(t, cfg)

	summary, err := app.ApplyContent(context.Background(), "fix.yaml", viewScript)
	require.NoError(t, err)
	assert.Empty(t, summary.Outcomes)
	assert.Contains(t, summary.Message, "Nothing to do")
}

func TestApply_ProgressCallback(t *testing.T) {
	_, cfg := workspace(t)
	app, _ := newApp(t, cfg)

	var calls [][2]int
	app.SetProgressCallback(func(current, total int) {
		calls = append(calls, [2]int{current, total})
	})
	_, err := app.ApplyContent(context.Background(), "fix.yaml", viewScript)
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{0, 1}, {1, 1}}, calls)
}

func TestApply_CancelledContext(t *testing.T) {
	_, cfg := workspace(t)
	app, _ := newApp(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := app.ApplyContent(ctx, "fix.yaml", viewScript)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestApply_CancelMidWriteKeepsHistory(t *testing.T) {
	dir, cfg := workspace(t)
	view := filepath.Join(dir, "view.tsx")
	other := filepath.Join(dir, "other.tsx")
	require.NoError(t, os.WriteFile(other, []byte("x\n"), 0o644))
	script := "patches:\n" +
		"  - files: [view.tsx]\n    replace: {target: \"->\", replacement: \"=>\"}\n" +
		"  - files: [other.tsx]\n    replace: {target: \"x\", replacement: \"y\"}\n"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app, _ := newApp(t, cfg)
	app.SetProgressCallback(func(current, total int) {
		if current == 1 {
			cancel()
		}
	})

	summary, err := app.ApplyContent(ctx, "fix.yaml", script)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, summary.Modified, 1)
	assert.Equal(t, "view.tsx", filepath.Base(summary.Modified[0]))
	assert.Equal(t, "a => b\n<table>\n  <tr/>\n</table>\nend\n", readFile(t, view))
	assert.Equal(t, "x\n", readFile(t, other))

	undoCfg := *cfg
	undoCfg.Mode = cli.ModeUndo
	undo, _ := newApp(t, &undoCfg)
	undone, err := undo.Execute()
	require.NoError(t, err)
	assert.Len(t, undone.Modified, 1)
	assert.Equal(t, viewBefore, readFile(t, view))
}

func TestApply_AliasedPathsPatchOneFile(t *testing.T) {
	dir, cfg := workspace(t)
	app, _ := newApp(t, cfg)
	script := "patches:\n" +
		"  - files: [view.tsx]\n    replace: {target: \"->\", replacement: \"=>\"}\n" +
		"  - files: [./view.tsx]\n    replace: {target: \"end\", replacement: \"END\"}\n"

	summary, err := app.ApplyContent(context.Background(), "fix.yaml", script)
	require.NoError(t, err)
	assert.Equal(t, []model.Status{model.StatusApplied, model.StatusApplied}, statuses(summary))
	assert.Len(t, summary.Modified, 1)
	assert.Equal(t, "a => b\n<table>\n  <tr/>\n</table>\nEND\n", readFile(t, filepath.Join(dir, "view.tsx")))
}

func TestApply_CRLFMarkdownScriptOnLFFile(t *testing.T) {
	dir, cfg := workspace(t)
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("x\na\nb\ny\n"), 0o644))
	script := strings.ReplaceAll("`notes.txt`\n\n```search\na\nb\n```\n\n```replace\nc\nd\n```\n", "\n", "\r\n")

	app, _ := newApp(t, cfg)
	summary, err := app.ApplyContent(context.Background(), "fix.md", script)
	require.NoError(t, err)
	require.Len(t, summary.Outcomes, 1)
	assert.Equal(t, model.StatusApplied, summary.Outcomes[0].Status)
	assert.Equal(t, "exact", summary.Outcomes[0].Strategy)
	assert.Equal(t, "x\nc\nd\ny\n", readFile(t, path))
}

func TestExecute_ReadsScriptFromSource(t *testing.T) {
	dir, cfg := workspace(t)
	app, _ := newApp(t, cfg)
	app.SetSource(source.NewWith(strings.NewReader(viewScript), true, nil))

	summary, err := app.Execute()
	require.NoError(t, err)
	assert.Len(t, summary.Modified, 1)
	assert.Equal(t, viewAfter, readFile(t, filepath.Join(dir, "view.tsx")))
}

func TestExecute_EmptySource(t *testing.T) {
	_, cfg := workspace(t)
	app, _ := newApp(t, cfg)
	app.SetSource(source.NewWith(strings.NewReader("\n"), true, nil))

	summary, err := app.Execute()
	require.NoError(t, err)
	assert.Equal(t, "Source is empty. Nothing to process.", summary.Message)
}

func TestInspect(t *testing.T) {
	dir, cfg := workspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "crlf.txt"), []byte("one\r\ntwo →\r\n"), 0o644))
	cfg.Mode = cli.ModeInspect
	cfg.InspectFile = "crlf.txt"
	cfg.Find = "→"
	app, out := newApp(t, cfg)

	summary, err := app.Execute()
	require.NoError(t, err)
	assert.Equal(t, "Inspected 1 line(s).", summary.Message)
	assert.Contains(t, out.String(), "Line 2: \"two →\\r\\n\"\n")
	assert.Contains(t, out.String(), "0x2192 0xd 0xa")
}

func TestApplyScript(t *testing.T) {
	dir, _ := workspace(t)

	summary, err := ApplyScript(viewScript, Config{LookupDirs: []string{dir}, DryRun: true})
	require.NoError(t, err)
	assert.Len(t, summary.Modified, 1)
	assert.Equal(t, viewBefore, readFile(t, filepath.Join(dir, "view.tsx")))

	summary, err = ApplyScript(viewScript, Config{LookupDirs: []string{dir}})
	require.NoError(t, err)
	assert.Len(t, summary.Modified, 1)
	assert.Equal(t, viewAfter, readFile(t, filepath.Join(dir, "view.tsx")))

	_, err = ApplyScript("patches: [", Config{LookupDirs: []string{dir}})
	assert.Error(t, err)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(&cli.Config{DryRun: true, Buffer: true})
	assert.Error(t, err)
}

package parser

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokinpui/tpatch/internal/patcher"
)

const yamlScriptSource = `
patches:
  - name: driver cell
    files: [views/ReservasView.tsx]
    replace:
      target: "s.shift_date"
      replacement: "s.date"
      strategies: [exact, whitespace]
      limit: 1
  - file: views/DispatchConsole.tsx
    markers:
      start: '<div className="overflow-hidden">'
      end: '</div>'
      replacement: |
        <div className="overflow-hidden flex-1">
        </div>
  - files: [views/ReservasView.tsx]
    region:
      start: {contains: "<td onClick"}
      start_next: {contains: "<select"}
      end: {contains: "<td", excludes: "Status"}
      keep_end: true
      replacement: "<td>NEW</td>"
  - files: [views/ReservasView.tsx]
    collapse:
      line: {contains: "</td>", excludes: "<td>"}
      from: 850
      to: 900
`

func TestParseYAML(t *testing.T) {
	script, err := Parse("fix.yaml", yamlScriptSource)
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, script.Format)
	require.Len(t, script.Patches, 4)

	want := []Patch{
		{
			Name:  "driver cell",
			Files: []string{"views/ReservasView.tsx"},
			Op: patcher.Patch{Replace: &patcher.ReplaceSpec{
				Target:      "s.shift_date",
				Replacement: "s.date",
				Strategies:  []patcher.Strategy{patcher.StrategyExact, patcher.StrategyWhitespace},
				Limit:       1,
			}},
		},
		{
			Files: []string{"views/DispatchConsole.tsx"},
			Op: patcher.Patch{Markers: &patcher.MarkerSpec{
				Start:       `<div className="overflow-hidden">`,
				End:         "</div>",
				Replacement: "<div className=\"overflow-hidden flex-1\">\n</div>\n",
			}},
		},
		{
			Files: []string{"views/ReservasView.tsx"},
			Op: patcher.Patch{Region: &patcher.RegionSpec{
				Start:       patcher.LinePredicate{Contains: "<td onClick"},
				StartNext:   patcher.LinePredicate{Contains: "<select"},
				End:         patcher.LinePredicate{Contains: "<td", Excludes: "Status"},
				KeepEnd:     true,
				Replacement: "<td>NEW</td>",
			}},
		},
		{
			Files: []string{"views/ReservasView.tsx"},
			Op: patcher.Patch{Collapse: &patcher.CollapseSpec{
				Line: patcher.LinePredicate{Contains: "</td>", Excludes: "<td>"},
				From: 850,
				To:   900,
			}},
		},
	}
	if diff := cmp.Diff(want, script.Patches); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []string{"views/ReservasView.tsx", "views/DispatchConsole.tsx"}, script.Files())
	assert.Equal(t, "driver cell", script.Patches[0].Label(0))
	assert.Equal(t, "#2 markers", script.Patches[1].Label(1))
}

func TestParseYAML_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"empty", ""},
		{"no patches", "patches: []\n"},
		{"unknown key", "patches:\n  - files: [a.txt]\n    replace: {target: a, replacment: b}\n"},
		{"no files", "patches:\n  - replace: {target: a}\n"},
		{"two operations", "patches:\n  - files: [a.txt]\n    replace: {target: a}\n    markers: {start: a, end: b}\n"},
		{"no operation", "patches:\n  - files: [a.txt]\n"},
		{"unknown strategy", "patches:\n  - files: [a.txt]\n    replace: {target: a, strategies: [fuzzy]}\n"},
		{"empty target", "patches:\n  - files: [a.txt]\n    replace: {replacement: b}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("fix.yaml", tt.source)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidScript)
		})
	}
}

const markdownScriptSource = "# Dispatch fixes\n" +
	"\n" +
	"In `views/DispatchConsole.tsx`:\n" +
	"\n" +
	"```search exact whitespace\n" +
	"<span>{b.origin} → {b.destination}</span>\n" +
	"```\n" +
	"\n" +
	"```replace\n" +
	"<span>{b.origin} {\"->\"} {b.destination}</span>\n" +
	"```\n" +
	"\n" +
	"## Table\n" +
	"\n" +
	"Both `views/A.tsx` and `views/B.tsx`, run `npm test` after.\n" +
	"\n" +
	"```markers\n" +
	"<table>\n" +
	"</table>\n" +
	"```\n" +
	"\n" +
	"```replace\n" +
	"<Table />\n" +
	"```\n" +
	"\n" +
	"```go\n" +
	"ignored\n" +
	"```\n"

func TestParseMarkdown(t *testing.T) {
	script, err := Parse("fix.md", markdownScriptSource)
	require.NoError(t, err)
	assert.Equal(t, FormatMarkdown, script.Format)

	want := []Patch{
		{
			Name:  "Dispatch fixes",
			Files: []string{"views/DispatchConsole.tsx"},
			Op: patcher.Patch{Replace: &patcher.ReplaceSpec{
				Target:      "<span>{b.origin} → {b.destination}</span>",
				Replacement: "<span>{b.origin} {\"->\"} {b.destination}</span>",
				Strategies:  []patcher.Strategy{patcher.StrategyExact, patcher.StrategyWhitespace},
			}},
		},
		{
			Name:  "Table",
			Files: []string{"views/A.tsx", "views/B.tsx"},
			Op: patcher.Patch{Markers: &patcher.MarkerSpec{
				Start:       "<table>",
				End:         "</table>",
				Replacement: "<Table />",
			}},
		},
	}
	if diff := cmp.Diff(want, script.Patches); diff != "" {
		t.Errorf("ParseMarkdown() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMarkdown_CRLFBlocksUseLF(t *testing.T) {
	source := strings.ReplaceAll("`notes.txt`\n\n```search\na\nb\n```\n\n```replace\nc\nd\n```\n\n"+
		"`notes.txt`\n\n```markers\nstart\nend\n```\n\n```replace\nz\n```\n", "\n", "\r\n")

	script, err := Parse("fix.md", source)
	require.NoError(t, err)
	require.Len(t, script.Patches, 2)

	replace := script.Patches[0].Op.Replace
	require.NotNil(t, replace)
	assert.Equal(t, "a\nb", replace.Target)
	assert.Equal(t, "c\nd", replace.Replacement)

	markers := script.Patches[1].Op.Markers
	require.NotNil(t, markers)
	assert.Equal(t, "start", markers.Start)
	assert.Equal(t, "end", markers.End)
	assert.Equal(t, "z", markers.Replacement)
}

func TestParseMarkdown_Errors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		line   string
	}{
		{
			name:   "replace without search",
			source: "`a.txt`\n\n```replace\nx\n```\n",
			line:   "line 3",
		},
		{
			name:   "search without replace",
			source: "`a.txt`\n\n```search\nx\n```\n",
			line:   "line 3",
		},
		{
			name:   "no target file",
			source: "```search\nx\n```\n\n```replace\ny\n```\n",
			line:   "line 5",
		},
		{
			name:   "markers need two lines",
			source: "`a.txt`\n\n```markers\nonly one\n```\n\n```replace\ny\n```\n",
			line:   "line 3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMarkdown([]byte(tt.source))
			require.ErrorIs(t, err, ErrInvalidScript)
			assert.Contains(t, err.Error(), tt.line)
		})
	}
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatYAML, DetectFormat("a.yml", ""))
	assert.Equal(t, FormatMarkdown, DetectFormat("a.MD", ""))
	assert.Equal(t, FormatYAML, DetectFormat("", "# comment\npatches:\n"))
	assert.Equal(t, FormatMarkdown, DetectFormat("", "`a.go`\n```search\nx\n```\n"))
}

func TestFilterExtensions(t *testing.T) {
	script := &Script{Patches: []Patch{
		{Files: []string{"a.tsx", "b.go"}},
		{Files: []string{"c.go"}},
	}}
	script.FilterExtensions([]string{".tsx"})
	require.Len(t, script.Patches, 1)
	assert.Equal(t, []string{"a.tsx"}, script.Patches[0].Files)
}

func TestExtractPathsFromHint(t *testing.T) {
	assert.Equal(t, []string{"views/A.tsx"}, extractPathsFromHint("Edit `views/A.tsx` then `go test ./...` and `flag`"))
	assert.Empty(t, extractPathsFromHint("no paths here"))
}

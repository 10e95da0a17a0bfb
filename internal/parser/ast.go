package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/sokinpui/tpatch/internal/patcher"
)

// Fence languages that carry patch content.
const (
	langSearch  = "search"
	langReplace = "replace"
	langMarkers = "markers"
)

// CodeBlock represents a parsed fenced code block.
type CodeBlock struct {
	// Lang is the first word of the info string.
	Lang string
	// Args are the remaining words of the info string.
	Args []string
	// Content is the block text without its final newline.
	Content string
	// Line is the 1-based line of the opening fence.
	Line int
}

// markdownBuilder accumulates patches while walking the document.
type markdownBuilder struct {
	source  []byte
	script  *Script
	name    string
	files   []string
	search  *CodeBlock
	markers *CodeBlock
}

// ParseMarkdown reads a markdown script. A paragraph with backticked paths
// sets the target files, a heading names the patches that follow, a
// `search` block followed by a `replace` block forms a replace patch and a
// two-line `markers` block followed by `replace` forms a marker patch.
// Words after `search` in the info string are match strategies.
func ParseMarkdown(source []byte) (*Script, error) {
	b := &markdownBuilder{source: source, script: &Script{Format: FormatMarkdown}}
	root := goldmark.DefaultParser().Parse(text.NewReader(source))

	walker := func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Heading:
			b.name = strings.TrimSpace(rawText(n, source))
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.TextBlock:
			if paths := extractPathsFromHint(rawText(n, source)); len(paths) > 0 {
				b.files = paths
				b.search, b.markers = nil, nil
			}
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock:
			if err := b.block(codeBlock(n, source)); err != nil {
				return ast.WalkStop, err
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	}

	if err := ast.Walk(root, walker); err != nil {
		return nil, err
	}
	if b.search != nil {
		return nil, fmt.Errorf("%w: search block at line %d has no replace block", ErrInvalidScript, b.search.Line)
	}
	if b.markers != nil {
		return nil, fmt.Errorf("%w: markers block at line %d has no replace block", ErrInvalidScript, b.markers.Line)
	}
	return b.script, nil
}

func (b *markdownBuilder) block(cb CodeBlock) error {
	switch cb.Lang {
	case langSearch:
		if b.search != nil || b.markers != nil {
			return fmt.Errorf("%w: line %d: expected a replace block", ErrInvalidScript, cb.Line)
		}
		b.search = &cb
	case langMarkers:
		if b.search != nil || b.markers != nil {
			return fmt.Errorf("%w: line %d: expected a replace block", ErrInvalidScript, cb.Line)
		}
		b.markers = &cb
	case langReplace:
		return b.replace(cb)
	}
	return nil
}

func (b *markdownBuilder) replace(cb CodeBlock) error {
	if len(b.files) == 0 {
		return fmt.Errorf("%w: line %d: no target file before this block", ErrInvalidScript, cb.Line)
	}
	p := Patch{Name: b.name, Files: append([]string(nil), b.files...)}

	switch {
	case b.search != nil:
		strategies, err := patcher.ParseStrategies(b.search.Args)
		if err != nil {
			return fmt.Errorf("%w: line %d: %w", ErrInvalidScript, b.search.Line, err)
		}
		p.Op.Replace = &patcher.ReplaceSpec{
			Target:      b.search.Content,
			Replacement: cb.Content,
			Strategies:  strategies,
		}
	case b.markers != nil:
		var markers []string
		for _, line := range strings.Split(b.markers.Content, "\n") {
			if line = strings.TrimRight(line, "\r"); strings.TrimSpace(line) != "" {
				markers = append(markers, line)
			}
		}
		if len(markers) != 2 {
			return fmt.Errorf("%w: line %d: markers block needs a start and an end line, got %d", ErrInvalidScript, b.markers.Line, len(markers))
		}
		p.Op.Markers = &patcher.MarkerSpec{Start: markers[0], End: markers[1], Replacement: cb.Content}
	default:
		return fmt.Errorf("%w: line %d: replace block without a preceding search or markers block", ErrInvalidScript, cb.Line)
	}

	b.script.Patches = append(b.script.Patches, p)
	b.search, b.markers = nil, nil
	return nil
}

func codeBlock(n *ast.FencedCodeBlock, source []byte) CodeBlock {
	var block CodeBlock
	if n.Info != nil {
		fields := strings.Fields(string(n.Info.Segment.Value(source)))
		if len(fields) > 0 {
			block.Lang = strings.ToLower(fields[0])
			block.Args = fields[1:]
		}
	}

	var content bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		content.Write(line.Value(source))
	}
	// Scripts saved with CRLF still match LF files; the eol strategy adapts
	// the block to the target's endings.
	text := strings.ReplaceAll(content.String(), "\r\n", "\n")
	block.Content = strings.TrimSuffix(text, "\n")
	block.Line = lineOf(n, source)
	return block
}

// rawText joins the source lines of a block node, keeping inline markup such
// as backticks.
func rawText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		if i > 0 {
			buf.WriteByte('\n')
		}
		line := lines.At(i)
		buf.Write(bytes.TrimRight(line.Value(source), "\r\n"))
	}
	return buf.String()
}

// lineOf returns the 1-based line of the opening fence.
func lineOf(n *ast.FencedCodeBlock, source []byte) int {
	offset := -1
	if n.Info != nil {
		offset = n.Info.Segment.Start
	} else if n.Lines().Len() > 0 {
		offset = n.Lines().At(0).Start
		// The first content line sits one line below the fence.
		return bytes.Count(source[:offset], []byte("\n"))
	}
	if offset < 0 {
		return 0
	}
	return bytes.Count(source[:offset], []byte("\n")) + 1
}

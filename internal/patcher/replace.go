package patcher

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// ReplaceSpec describes a search-and-replace patch.
type ReplaceSpec struct {
	Target      string
	Replacement string
	// Strategies are tried in order; the first one with a match wins.
	// Empty means DefaultStrategies.
	Strategies []Strategy
	// Limit caps the number of replaced occurrences. Zero replaces all.
	Limit int
	// LooseRunes lets each non-ASCII rune of the target match any single
	// character in the whitespace strategy.
	LooseRunes bool
}

type span struct {
	start, end int
}

// matcher locates a target with one strategy. replacement is the text to
// splice in, already adapted to the strategy (e.g. CRLF converted).
type matcher struct {
	find        func(content string) []span
	replacement string
}

// Replace applies spec to content, trying each strategy in turn.
func Replace(content string, spec ReplaceSpec) (Result, error) {
	if spec.Target == "" {
		return Result{Content: content}, ErrEmptyTarget
	}

	strategies := spec.Strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}

	for _, s := range strategies {
		m, err := newMatcher(s, spec)
		if err != nil {
			return Result{Content: content}, err
		}
		spans := m.find(content)
		if len(spans) == 0 {
			continue
		}
		if spec.Limit > 0 && len(spans) > spec.Limit {
			spans = spans[:spec.Limit]
		}
		out, changed := splice(content, spans, m.replacement)
		return Result{Content: out, Strategy: s, Count: len(spans), Changed: changed}, nil
	}

	return Result{Content: content}, fmt.Errorf("%w (tried %s)", ErrNotFound, joinStrategies(strategies))
}

func newMatcher(s Strategy, spec ReplaceSpec) (matcher, error) {
	switch s {
	case StrategyExact:
		return matcher{
			find:        func(c string) []span { return findLiteral(c, spec.Target) },
			replacement: spec.Replacement,
		}, nil
	case StrategyEOL:
		target, replacement, ok := eolVariant(spec.Target, spec.Replacement)
		if !ok {
			return matcher{find: noMatch}, nil
		}
		return matcher{
			find:        func(c string) []span { return findLiteral(c, target) },
			replacement: replacement,
		}, nil
	case StrategyWhitespace:
		re, err := whitespacePattern(spec.Target, spec.LooseRunes)
		if err != nil {
			return matcher{}, err
		}
		if re == nil {
			return matcher{find: noMatch}, nil
		}
		return matcher{
			find:        func(c string) []span { return findRegexp(c, re) },
			replacement: spec.Replacement,
		}, nil
	case StrategyLines:
		return matcher{
			find:        func(c string) []span { return findLineBlocks(c, spec.Target) },
			replacement: spec.Replacement,
		}, nil
	default:
		return matcher{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

func noMatch(string) []span { return nil }

// findLiteral returns the non-overlapping occurrences of target, left to right.
func findLiteral(content, target string) []span {
	var spans []span
	offset := 0
	for {
		idx := strings.Index(content[offset:], target)
		if idx < 0 {
			return spans
		}
		start := offset + idx
		spans = append(spans, span{start: start, end: start + len(target)})
		offset = start + len(target)
	}
}

func findRegexp(content string, re *regexp.Regexp) []span {
	var spans []span
	for _, loc := range re.FindAllStringIndex(content, -1) {
		if loc[0] == loc[1] {
			continue
		}
		spans = append(spans, span{start: loc[0], end: loc[1]})
	}
	return spans
}

// splice replaces every span with replacement. changed reports whether the
// output differs from content.
func splice(content string, spans []span, replacement string) (string, bool) {
	var b strings.Builder
	b.Grow(len(content) + len(spans)*len(replacement))
	changed := false
	prev := 0
	for _, sp := range spans {
		b.WriteString(content[prev:sp.start])
		b.WriteString(replacement)
		if content[sp.start:sp.end] != replacement {
			changed = true
		}
		prev = sp.end
	}
	b.WriteString(content[prev:])
	return b.String(), changed
}

// eolVariant flips the line terminators of target and replacement. Targets
// written with LF are tried as CRLF and vice versa. ok is false when the
// target has no line break to normalise.
func eolVariant(target, replacement string) (string, string, bool) {
	switch {
	case strings.Contains(target, "\r\n"):
		return toLF(target), toLF(replacement), true
	case strings.Contains(target, "\n"):
		return toCRLF(target), toCRLF(replacement), true
	default:
		return "", "", false
	}
}

func toLF(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

func toCRLF(s string) string {
	return strings.ReplaceAll(toLF(s), "\n", "\r\n")
}

const horizontalSpace = `[^\S\r\n]*`

// whitespacePattern turns target into a regexp where interior whitespace runs
// match any non-empty whitespace, and leading/trailing runs match horizontal
// whitespace plus the same number of line breaks. It returns nil when the
// target is whitespace only.
func whitespacePattern(target string, looseRunes bool) (*regexp.Regexp, error) {
	segments := splitWhitespaceRuns(target)
	hasText := false
	for _, seg := range segments {
		if !seg.space {
			hasText = true
			break
		}
	}
	if !hasText {
		return nil, nil
	}

	var b strings.Builder
	for i, seg := range segments {
		switch {
		case !seg.space:
			b.WriteString(quoteSegment(seg.text, looseRunes))
		case i == 0 || i == len(segments)-1:
			b.WriteString(edgeWhitespace(seg.text))
		default:
			b.WriteString(`\s+`)
		}
	}

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("compile whitespace pattern: %w", err)
	}
	return re, nil
}

type segment struct {
	text  string
	space bool
}

func splitWhitespaceRuns(s string) []segment {
	var segments []segment
	start := 0
	inSpace := false
	for i, r := range s {
		isSpace := unicode.IsSpace(r)
		if i == 0 {
			inSpace = isSpace
			continue
		}
		if isSpace != inSpace {
			segments = append(segments, segment{text: s[start:i], space: inSpace})
			start = i
			inSpace = isSpace
		}
	}
	if start < len(s) {
		segments = append(segments, segment{text: s[start:], space: inSpace})
	}
	return segments
}

// edgeWhitespace keeps the line structure of a leading or trailing run so a
// match never swallows a neighbouring line break or indentation. Horizontal
// stretches stay flexible in width.
func edgeWhitespace(run string) string {
	var b strings.Builder
	horizontal := false
	for _, r := range run {
		switch r {
		case '\r':
		case '\n':
			horizontal = false
			b.WriteString(`\r?\n`)
		default:
			if !horizontal {
				b.WriteString(horizontalSpace)
				horizontal = true
			}
		}
	}
	return b.String()
}

func quoteSegment(text string, looseRunes bool) string {
	if !looseRunes {
		return regexp.QuoteMeta(text)
	}
	var b strings.Builder
	for _, r := range text {
		if r > unicode.MaxASCII {
			b.WriteString(".")
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(r)))
	}
	return b.String()
}

func joinStrategies(strategies []Strategy) string {
	names := make([]string, len(strategies))
	for i, s := range strategies {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

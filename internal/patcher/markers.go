package patcher

import (
	"fmt"
	"strings"
)

// MarkerSpec replaces the inclusive line range between the first line holding
// Start and the first line at or after it holding End.
type MarkerSpec struct {
	Start       string
	End         string
	Replacement string
}

// ReplaceBetween applies spec to content. Only the first occurrence of each
// marker is used; a missing end marker is a failure, never a tail cut.
func ReplaceBetween(content string, spec MarkerSpec) (Result, error) {
	if spec.Start == "" || spec.End == "" {
		return Result{Content: content}, ErrEmptyTarget
	}

	lines := splitLines(content)
	start := -1
	for i, line := range lines {
		if strings.Contains(trimEOL(line), spec.Start) {
			start = i
			break
		}
	}
	if start < 0 {
		return Result{Content: content}, fmt.Errorf("%w: %q", ErrStartMarkerNotFound, spec.Start)
	}

	end := -1
	for j := start; j < len(lines); j++ {
		if strings.Contains(trimEOL(lines[j]), spec.End) {
			end = j
			break
		}
	}
	if end < 0 {
		return Result{Content: content}, fmt.Errorf("%w: %q after line %d", ErrEndMarkerNotFound, spec.End, start+1)
	}

	block := terminate(spec.Replacement, lineEnding(lines[end]))
	old := strings.Join(lines[start:end+1], "")

	var b strings.Builder
	b.Grow(len(content) - len(old) + len(block))
	b.WriteString(strings.Join(lines[:start], ""))
	b.WriteString(block)
	b.WriteString(strings.Join(lines[end+1:], ""))

	return Result{
		Content:  b.String(),
		Strategy: StrategyMarkers,
		Count:    1,
		Changed:  block != old,
	}, nil
}

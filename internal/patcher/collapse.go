package patcher

import (
	"fmt"
	"strings"
)

// CollapseSpec drops the second of two consecutive lines that both match
// Line. From and To bound, 1-based and inclusive, the first line of each pair;
// zero means unbounded.
type CollapseSpec struct {
	Line LinePredicate
	From int
	To   int
}

func (s CollapseSpec) inRange(lineNo int) bool {
	if s.From > 0 && lineNo < s.From {
		return false
	}
	return s.To == 0 || lineNo <= s.To
}

// Collapse applies spec to content.
func Collapse(content string, spec CollapseSpec) (Result, error) {
	if spec.Line.Contains == "" {
		return Result{Content: content}, ErrEmptyTarget
	}

	lines := splitLines(content)
	kept := make([]string, 0, len(lines))
	removed := 0
	for i := 0; i < len(lines); i++ {
		kept = append(kept, lines[i])
		if i+1 >= len(lines) || !spec.inRange(i+1) {
			continue
		}
		if spec.Line.Match(trimEOL(lines[i])) && spec.Line.Match(trimEOL(lines[i+1])) {
			i++
			removed++
		}
	}

	if removed == 0 {
		return Result{Content: content}, fmt.Errorf("%w: no repeated %q lines", ErrNotFound, spec.Line.Contains)
	}
	return Result{
		Content:  strings.Join(kept, ""),
		Strategy: StrategyCollapse,
		Count:    removed,
		Changed:  true,
	}, nil
}

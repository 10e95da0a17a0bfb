package patcher

import (
	"fmt"
	"strings"
)

// LinePredicate matches a line that contains Contains and, when set, does not
// contain Excludes.
type LinePredicate struct {
	Contains string
	Excludes string
}

// Match reports whether line satisfies the predicate. The zero predicate
// matches nothing.
func (p LinePredicate) Match(line string) bool {
	if p.Contains == "" || !strings.Contains(line, p.Contains) {
		return false
	}
	return p.Excludes == "" || !strings.Contains(line, p.Excludes)
}

// IsZero reports whether the predicate is unset.
func (p LinePredicate) IsZero() bool {
	return p.Contains == "" && p.Excludes == ""
}

// RegionSpec rewrites every region that opens on a Start line and closes on
// the next End line. The start line and all skipped lines are dropped; the
// end line too unless KeepEnd. A kept end line is never tested as a Start.
type RegionSpec struct {
	Start LinePredicate
	// StartNext, when set, must match the line right after the start line.
	StartNext   LinePredicate
	End         LinePredicate
	KeepEnd     bool
	Replacement string
	// Once stops after the first region.
	Once bool
}

type regionState int

const (
	stateScanning regionState = iota
	stateEmittingReplacement
	stateSkipping
)

func (s regionState) String() string {
	switch s {
	case stateScanning:
		return "scanning"
	case stateEmittingReplacement:
		return "emitting"
	case stateSkipping:
		return "skipping"
	default:
		return "unknown"
	}
}

// regionMachine drives the rewrite one line at a time.
type regionMachine struct {
	spec    RegionSpec
	state   regionState
	out     strings.Builder
	removed strings.Builder // original text of the open region
	block   string          // replacement emitted for the open region
	regions int
	opened  int // 1-based line where the open region started
	changed bool
}

func (m *regionMachine) startsAt(lines []string, i int) bool {
	if m.spec.Once && m.regions > 0 {
		return false
	}
	if !m.spec.Start.Match(trimEOL(lines[i])) {
		return false
	}
	if m.spec.StartNext.IsZero() {
		return true
	}
	return i+1 < len(lines) && m.spec.StartNext.Match(trimEOL(lines[i+1]))
}

func (m *regionMachine) step(lines []string, i int) {
	line := lines[i]
	switch m.state {
	case stateScanning:
		if !m.startsAt(lines, i) {
			m.out.WriteString(line)
			return
		}
		m.state = stateEmittingReplacement
		m.emit(line, i)
	case stateSkipping:
		if !m.spec.End.Match(trimEOL(line)) {
			m.removed.WriteString(line)
			return
		}
		if m.spec.KeepEnd {
			m.out.WriteString(line)
		} else {
			m.removed.WriteString(line)
		}
		m.close()
	}
}

// emit writes the replacement for the region opened at line i and moves on
// to skipping.
func (m *regionMachine) emit(line string, i int) {
	m.regions++
	m.opened = i + 1
	m.removed.Reset()
	m.removed.WriteString(line)
	m.block = terminate(m.spec.Replacement, lineEnding(line))
	m.out.WriteString(m.block)
	m.state = stateSkipping
}

func (m *regionMachine) close() {
	if m.removed.String() != m.block {
		m.changed = true
	}
	m.state = stateScanning
}

// Rewrite applies spec to content. If the input ends inside a region the
// content is returned untouched with ErrUnterminatedRegion.
func Rewrite(content string, spec RegionSpec) (Result, error) {
	if spec.Start.Contains == "" || spec.End.Contains == "" {
		return Result{Content: content}, ErrEmptyTarget
	}

	lines := splitLines(content)
	m := &regionMachine{spec: spec}
	for i := range lines {
		m.step(lines, i)
	}

	if m.state == stateSkipping {
		return Result{Content: content}, fmt.Errorf("%w: region opened at line %d", ErrUnterminatedRegion, m.opened)
	}
	if m.regions == 0 {
		return Result{Content: content}, fmt.Errorf("%w: no line matches region start %q", ErrNotFound, spec.Start.Contains)
	}

	return Result{
		Content:  m.out.String(),
		Strategy: StrategyRegion,
		Count:    m.regions,
		Changed:  m.changed,
	}, nil
}

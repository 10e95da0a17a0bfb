package patcher

import (
	"errors"
	"fmt"
	"strings"
)

// Strategy names a way of locating a patch target inside file content.
type Strategy string

const (
	StrategyExact      Strategy = "exact"
	StrategyEOL        Strategy = "eol"
	StrategyWhitespace Strategy = "whitespace"
	StrategyLines      Strategy = "lines"

	// Line-oriented operations report these instead of a match strategy.
	StrategyMarkers  Strategy = "markers"
	StrategyRegion   Strategy = "region"
	StrategyCollapse Strategy = "collapse"
)

// DefaultStrategies is the fallback order used when a replace patch does not
// list its own.
var DefaultStrategies = []Strategy{StrategyExact, StrategyEOL, StrategyWhitespace}

var (
	ErrNotFound            = errors.New("target not found")
	ErrEmptyTarget         = errors.New("target is empty")
	ErrStartMarkerNotFound = fmt.Errorf("start marker: %w", ErrNotFound)
	ErrEndMarkerNotFound   = fmt.Errorf("end marker: %w", ErrNotFound)
	ErrUnterminatedRegion  = errors.New("region end never matched")
	ErrUnknownStrategy     = errors.New("unknown strategy")
	ErrInvalidPatch        = errors.New("invalid patch")
)

// ParseStrategy converts a user supplied strategy name.
func ParseStrategy(name string) (Strategy, error) {
	switch s := Strategy(strings.ToLower(strings.TrimSpace(name))); s {
	case StrategyExact, StrategyEOL, StrategyWhitespace, StrategyLines:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// ParseStrategies converts a list of names, keeping order and dropping repeats.
func ParseStrategies(names []string) ([]Strategy, error) {
	var out []Strategy
	seen := make(map[Strategy]bool, len(names))
	for _, name := range names {
		s, err := ParseStrategy(name)
		if err != nil {
			return nil, err
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out, nil
}

// Result is the outcome of applying one patch to one piece of content.
type Result struct {
	// Content is the patched text, or the input unchanged on failure.
	Content string
	// Strategy is the strategy or operation that produced the match.
	Strategy Strategy
	// Count is the number of spans, regions or lines affected.
	Count int
	// Changed is false when every matched span already equalled its replacement.
	Changed bool
}

// Patch is one text operation. Exactly one field must be set.
type Patch struct {
	Replace  *ReplaceSpec
	Markers  *MarkerSpec
	Region   *RegionSpec
	Collapse *CollapseSpec
}

// Kind returns the operation name of the patch.
func (p Patch) Kind() string {
	switch {
	case p.Replace != nil:
		return "replace"
	case p.Markers != nil:
		return "markers"
	case p.Region != nil:
		return "region"
	case p.Collapse != nil:
		return "collapse"
	default:
		return ""
	}
}

// Validate checks that exactly one operation is set and that it has the
// fields it needs.
func (p Patch) Validate() error {
	set := 0
	for _, ok := range []bool{p.Replace != nil, p.Markers != nil, p.Region != nil, p.Collapse != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: expected exactly one operation, got %d", ErrInvalidPatch, set)
	}

	switch {
	case p.Replace != nil:
		if p.Replace.Target == "" {
			return ErrEmptyTarget
		}
		if p.Replace.Limit < 0 {
			return fmt.Errorf("%w: negative limit", ErrInvalidPatch)
		}
	case p.Markers != nil:
		if p.Markers.Start == "" || p.Markers.End == "" {
			return fmt.Errorf("%w: markers need both start and end", ErrInvalidPatch)
		}
	case p.Region != nil:
		if p.Region.Start.Contains == "" || p.Region.End.Contains == "" {
			return fmt.Errorf("%w: region needs start and end predicates", ErrInvalidPatch)
		}
	case p.Collapse != nil:
		if p.Collapse.Line.Contains == "" {
			return fmt.Errorf("%w: collapse needs a line predicate", ErrInvalidPatch)
		}
		if p.Collapse.To != 0 && p.Collapse.To < p.Collapse.From {
			return fmt.Errorf("%w: collapse range %d-%d", ErrInvalidPatch, p.Collapse.From, p.Collapse.To)
		}
	}
	return nil
}

// Apply runs the patch against content. On any error the returned Result
// carries the original content.
func Apply(content string, p Patch) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{Content: content}, err
	}
	switch {
	case p.Replace != nil:
		return Replace(content, *p.Replace)
	case p.Markers != nil:
		return ReplaceBetween(content, *p.Markers)
	case p.Region != nil:
		return Rewrite(content, *p.Region)
	default:
		return Collapse(content, *p.Collapse)
	}
}

package patcher

import (
	"strings"
)

// splitLines splits content after every "\n", keeping the terminators.
// A trailing empty element is dropped.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// trimEOL strips the line terminator, "\n" or "\r\n".
func trimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

// lineEnding returns the terminator of line, or "" for an unterminated last line.
func lineEnding(line string) string {
	switch {
	case strings.HasSuffix(line, "\r\n"):
		return "\r\n"
	case strings.HasSuffix(line, "\n"):
		return "\n"
	default:
		return ""
	}
}

// terminate makes block end with eol unless it is empty or already ends a line.
func terminate(block, eol string) string {
	if block == "" || eol == "" || strings.HasSuffix(block, "\n") {
		return block
	}
	return block + eol
}

// normalizeLineForMatching prepares a line for comparison by trimming whitespace
// and normalizing all internal whitespace sequences to a single space.
func normalizeLineForMatching(line string) string {
	return strings.Join(strings.Fields(line), " ")
}

// findLineBlocks finds every occurrence of the target's lines within content.
// It is resilient to indentation and blank-line changes. It works by:
// 1. Filtering out blank lines from both content and target.
// 2. Keeping the byte offsets of each remaining content line.
// 3. Comparing whitespace-normalized lines.
// Each span runs from the start of the first matched line to the end of the
// last one, terminator excluded.
func findLineBlocks(content, target string) []span {
	var block []string
	for _, line := range splitLines(target) {
		if normalized := normalizeLineForMatching(line); normalized != "" {
			block = append(block, normalized)
		}
	}
	if len(block) == 0 {
		return nil
	}

	type sourceLine struct {
		text       string
		start, end int
	}
	var filtered []sourceLine
	offset := 0
	for _, line := range splitLines(content) {
		if normalized := normalizeLineForMatching(line); normalized != "" {
			filtered = append(filtered, sourceLine{
				text:  normalized,
				start: offset,
				end:   offset + len(trimEOL(line)),
			})
		}
		offset += len(line)
	}

	var spans []span
	for i := 0; i <= len(filtered)-len(block); i++ {
		match := true
		for j := range block {
			if filtered[i+j].text != block[j] {
				match = false
				break
			}
		}
		if !match {
			continue
		}
		spans = append(spans, span{start: filtered[i].start, end: filtered[i+len(block)-1].end})
		i += len(block) - 1
	}
	return spans
}

// Package inspect reports the raw content of lines, quoted and as code
// points, so invisible characters that defeat a match become visible.
package inspect

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// LineReport describes one line. Text keeps its terminator.
type LineReport struct {
	Number int
	Text   string
	Codes  []rune
}

func newReport(number int, text string) LineReport {
	return LineReport{Number: number, Text: text, Codes: []rune(text)}
}

func split(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.SplitAfter(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Lines reports lines from through to, 1-based and inclusive. The range is
// clamped to the content; to <= 0 means the last line.
func Lines(content string, from, to int) []LineReport {
	lines := split(content)
	if from < 1 {
		from = 1
	}
	if to <= 0 || to > len(lines) {
		to = len(lines)
	}
	if from > to {
		return nil
	}

	reports := make([]LineReport, 0, to-from+1)
	for n := from; n <= to; n++ {
		reports = append(reports, newReport(n, lines[n-1]))
	}
	return reports
}

// Find reports every line containing needle.
func Find(content, needle string) []LineReport {
	var reports []LineReport
	for i, line := range split(content) {
		if strings.Contains(line, needle) {
			reports = append(reports, newReport(i+1, line))
		}
	}
	return reports
}

// Hex renders code points as space separated 0x values.
func Hex(codes []rune) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = fmt.Sprintf("0x%x", c)
	}
	return strings.Join(parts, " ")
}

// Write prints reports for name to w.
func Write(w io.Writer, name string, reports []LineReport) error {
	if _, err := fmt.Fprintf(w, "%s: %d line(s)\n", name, len(reports)); err != nil {
		return err
	}
	for _, r := range reports {
		if _, err := fmt.Fprintf(w, "Line %d: %s\nHex: %s\n", r.Number, strconv.Quote(r.Text), Hex(r.Codes)); err != nil {
			return err
		}
	}
	return nil
}

package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/sokinpui/tpatch/model"
)

// Out receives every status line.
var Out io.Writer = os.Stderr

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
	PathColor    = color.New(color.FgYellow)
	FaintColor   = color.New(color.Faint)
)

func Header(format string, a ...interface{}) {
	HeaderColor.Fprintf(Out, format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	InfoColor.Fprintf(Out, format+"\n", a...)
}

func Success(format string, a ...interface{}) {
	SuccessColor.Fprintf(Out, format+"\n", a...)
}

func Warning(format string, a ...interface{}) {
	WarningColor.Fprintf(Out, format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	ErrorColor.Fprintf(Out, format+"\n", a...)
}

func Path(format string, a ...interface{}) {
	PathColor.Fprintf(Out, "  "+format+"\n", a...)
}

// --- Outcomes ---

// StatusLabel is the fixed-width tag printed in front of an outcome.
func StatusLabel(s model.Status) string {
	switch s {
	case model.StatusApplied:
		return "SUCCESS"
	case model.StatusUnchanged:
		return "NO CHANGES"
	case model.StatusNotFound:
		return "NOT FOUND"
	case model.StatusMissingFile:
		return "FILE NOT FOUND"
	default:
		return "ERROR"
	}
}

// OutcomeLine renders one outcome without color.
func OutcomeLine(o model.Outcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s", StatusLabel(o.Status), o.Path, o.Patch)
	switch {
	case o.Status == model.StatusApplied && o.Count > 1:
		fmt.Fprintf(&b, " (%s, %d matches)", o.Strategy, o.Count)
	case o.Status == model.StatusApplied:
		fmt.Fprintf(&b, " (%s)", o.Strategy)
	case o.Err != nil && o.Status != model.StatusMissingFile:
		fmt.Fprintf(&b, ": %v", o.Err)
	}
	return b.String()
}

// PrintOutcome prints one colored outcome line.
func PrintOutcome(o model.Outcome) {
	line := OutcomeLine(o)
	switch o.Status {
	case model.StatusApplied:
		SuccessColor.Fprintln(Out, line)
	case model.StatusUnchanged:
		FaintColor.Fprintln(Out, line)
	case model.StatusNotFound, model.StatusMissingFile:
		WarningColor.Fprintln(Out, line)
	default:
		ErrorColor.Fprintln(Out, line)
	}
}

// --- Summaries ---

func printList(c *color.Color, title string, files []string) {
	if len(files) == 0 {
		return
	}
	c.Fprintf(Out, title+"\n", len(files))
	for _, f := range files {
		fmt.Fprintf(Out, "  - %s\n", f)
	}
}

// PrintUpdateSummary prints the outcome lines and file totals of an apply run.
func PrintUpdateSummary(s model.Summary) {
	for _, o := range s.Outcomes {
		PrintOutcome(o)
	}

	if s.DryRun {
		Header("\n--- Dry Run Summary ---")
	} else {
		Header("\n--- Update Summary ---")
	}
	if s.Message != "" {
		Info(s.Message)
	}
	if len(s.Modified) == 0 && len(s.Failed) == 0 {
		Info("No files were updated.")
	}

	verb := "Modified"
	if s.DryRun {
		verb = "Would modify"
	}
	printList(SuccessColor, verb+" %d file(s):", s.Modified)
	printList(FaintColor, "Unchanged %d file(s):", s.Unchanged)
	printList(ErrorColor, "Failed to process %d file(s):", s.Failed)

	if n := s.Count(model.StatusNotFound); n > 0 {
		Warning("%d patch target(s) not found.", n)
	}
	if n := s.Count(model.StatusMissingFile); n > 0 {
		Warning("%d target file(s) missing.", n)
	}
}

// PrintHistorySummary prints the result of an undo or redo.
func PrintHistorySummary(verb string, s model.Summary) {
	Header("\n--- %s Summary ---", verb)
	if s.Message != "" {
		Info(s.Message)
	}
	printList(SuccessColor, "Restored %d file(s):", s.Modified)
	printList(ErrorColor, "Failed to restore %d file(s):", s.Failed)
}

// --- Progress Bar ---

type ProgressBar struct {
	total   int
	prefix  string
	current int
}

func NewProgressBar(total int, prefix string) *ProgressBar {
	return &ProgressBar{total: total, prefix: prefix}
}

func (p *ProgressBar) Start() {
	p.draw()
}

// Set moves the bar to current.
func (p *ProgressBar) Set(current int) {
	p.current = current
	p.draw()
}

func (p *ProgressBar) Finish() {
	fmt.Fprintln(Out)
}

// String renders the bar without the leading carriage return.
func (p *ProgressBar) String() string {
	const barLength = 40
	percent := 0.0
	if p.total > 0 {
		percent = float64(p.current) / float64(p.total)
	}
	filledLength := int(percent * barLength)
	bar := strings.Repeat("█", filledLength) + strings.Repeat("-", barLength-filledLength)
	return fmt.Sprintf("%s |%s| [%d/%d] %.1f%%", p.prefix, bar, p.current, p.total, percent*100)
}

func (p *ProgressBar) draw() {
	if p.total == 0 {
		return
	}
	fmt.Fprintf(Out, "\r%s", p.String())
}

package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"
)

// Origin says where script content came from.
type Origin string

const (
	OriginFile      Origin = "file"
	OriginStdin     Origin = "stdin"
	OriginClipboard Origin = "clipboard"
)

// ErrEmpty is returned when the chosen source holds only whitespace.
var ErrEmpty = errors.New("source is empty")

// Script is loaded patch script text.
type Script struct {
	Name    string
	Content string
	Origin  Origin
}

// SourceProvider determines and retrieves the source content.
type SourceProvider struct {
	stdin     io.Reader
	isPiped   func() bool
	clipboard func() (string, error)
}

// New creates a SourceProvider reading the process stdin and the system
// clipboard.
func New() *SourceProvider {
	return &SourceProvider{
		stdin:     os.Stdin,
		isPiped:   stdinIsPiped,
		clipboard: clipboard.ReadAll,
	}
}

// NewWith creates a SourceProvider over the given stdin and clipboard reader.
func NewWith(stdin io.Reader, piped bool, readClipboard func() (string, error)) *SourceProvider {
	return &SourceProvider{
		stdin:     stdin,
		isPiped:   func() bool { return piped },
		clipboard: readClipboard,
	}
}

func stdinIsPiped() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// GetContent reads path when given ("-" means stdin), else stdin if piped,
// else the clipboard.
func (sp *SourceProvider) GetContent(path string) (*Script, error) {
	var s *Script
	switch {
	case path != "" && path != "-":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read script: %w", err)
		}
		s = &Script{Name: path, Content: string(data), Origin: OriginFile}
	case path == "-" || sp.isPiped():
		data, err := io.ReadAll(sp.stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
		s = &Script{Content: string(data), Origin: OriginStdin}
	default:
		content, err := sp.clipboard()
		if err != nil {
			return nil, fmt.Errorf("failed to read from clipboard: %w", err)
		}
		s = &Script{Content: content, Origin: OriginClipboard}
	}

	if strings.TrimSpace(s.Content) == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, s.Origin)
	}
	return s, nil
}

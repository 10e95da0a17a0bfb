package parser

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sokinpui/tpatch/internal/patcher"
)

// Format is the syntax of a patch script.
type Format string

const (
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

var ErrInvalidScript = errors.New("invalid patch script")

// pathInHintRegex matches a backticked path such as `views/ReservasView.tsx`.
var pathInHintRegex = regexp.MustCompile("`([^`\n]+)`")

// Patch is one operation bound to the files it targets.
type Patch struct {
	Name  string
	Files []string
	Op    patcher.Patch
}

// Label names the patch for status lines; index is 0-based.
func (p Patch) Label(index int) string {
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("#%d %s", index+1, p.Op.Kind())
}

// Script is an ordered list of patches.
type Script struct {
	Format  Format
	Patches []Patch
}

// Files returns every target file in first-seen order.
func (s *Script) Files() []string {
	var files []string
	seen := make(map[string]bool)
	for _, p := range s.Patches {
		for _, f := range p.Files {
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	return files
}

// FilterExtensions keeps only target files whose extension is listed and
// drops patches left without files. An empty list keeps everything.
func (s *Script) FilterExtensions(extensions []string) {
	if len(extensions) == 0 {
		return
	}
	kept := s.Patches[:0]
	for _, p := range s.Patches {
		var files []string
		for _, f := range p.Files {
			if hasAllowedExtension(f, extensions) {
				files = append(files, f)
			}
		}
		if len(files) == 0 {
			continue
		}
		p.Files = files
		kept = append(kept, p)
	}
	s.Patches = kept
}

// DetectFormat picks the script format from the file name, falling back to
// sniffing the content.
func DetectFormat(name, content string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".md", ".markdown":
		return FormatMarkdown
	}
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "patches:") {
			return FormatYAML
		}
	}
	if strings.Contains(content, "```") {
		return FormatMarkdown
	}
	return FormatYAML
}

// Parse parses content as a patch script. name is only used to pick the format.
func Parse(name, content string) (*Script, error) {
	var (
		script *Script
		err    error
	)
	switch DetectFormat(name, content) {
	case FormatMarkdown:
		script, err = ParseMarkdown([]byte(content))
	default:
		script, err = ParseYAML([]byte(content))
	}
	if err != nil {
		return nil, err
	}
	if err := script.Validate(); err != nil {
		return nil, err
	}
	return script, nil
}

// Validate checks every patch has files and exactly one valid operation.
func (s *Script) Validate() error {
	if len(s.Patches) == 0 {
		return fmt.Errorf("%w: no patches", ErrInvalidScript)
	}
	for i, p := range s.Patches {
		if len(p.Files) == 0 {
			return fmt.Errorf("%w: patch %s: no target files", ErrInvalidScript, p.Label(i))
		}
		if err := p.Op.Validate(); err != nil {
			return fmt.Errorf("%w: patch %s: %w", ErrInvalidScript, p.Label(i), err)
		}
	}
	return nil
}

type yamlScript struct {
	Patches []yamlPatch `yaml:"patches"`
}

type yamlPatch struct {
	Name     string        `yaml:"name"`
	File     string        `yaml:"file"`
	Files    []string      `yaml:"files"`
	Replace  *yamlReplace  `yaml:"replace"`
	Markers  *yamlMarkers  `yaml:"markers"`
	Region   *yamlRegion   `yaml:"region"`
	Collapse *yamlCollapse `yaml:"collapse"`
}

type yamlReplace struct {
	Target      string   `yaml:"target"`
	Replacement string   `yaml:"replacement"`
	Strategies  []string `yaml:"strategies"`
	Limit       int      `yaml:"limit"`
	LooseRunes  bool     `yaml:"loose_runes"`
}

type yamlMarkers struct {
	Start       string `yaml:"start"`
	End         string `yaml:"end"`
	Replacement string `yaml:"replacement"`
}

type yamlPredicate struct {
	Contains string `yaml:"contains"`
	Excludes string `yaml:"excludes"`
}

func (p yamlPredicate) predicate() patcher.LinePredicate {
	return patcher.LinePredicate{Contains: p.Contains, Excludes: p.Excludes}
}

type yamlRegion struct {
	Start       yamlPredicate `yaml:"start"`
	StartNext   yamlPredicate `yaml:"start_next"`
	End         yamlPredicate `yaml:"end"`
	KeepEnd     bool          `yaml:"keep_end"`
	Replacement string        `yaml:"replacement"`
	Once        bool          `yaml:"once"`
}

type yamlCollapse struct {
	Line yamlPredicate `yaml:"line"`
	From int           `yaml:"from"`
	To   int           `yaml:"to"`
}

// ParseYAML decodes a YAML script. Unknown keys are rejected.
func ParseYAML(data []byte) (*Script, error) {
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)

	var doc yamlScript
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: script is empty", ErrInvalidScript)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidScript, err)
	}

	script := &Script{Format: FormatYAML}
	for i, yp := range doc.Patches {
		p, err := yp.patch()
		if err != nil {
			return nil, fmt.Errorf("%w: patch #%d: %w", ErrInvalidScript, i+1, err)
		}
		script.Patches = append(script.Patches, p)
	}
	return script, nil
}

func (yp yamlPatch) patch() (Patch, error) {
	p := Patch{Name: yp.Name, Files: yp.Files}
	if yp.File != "" {
		p.Files = append([]string{yp.File}, p.Files...)
	}

	if r := yp.Replace; r != nil {
		strategies, err := patcher.ParseStrategies(r.Strategies)
		if err != nil {
			return Patch{}, err
		}
		p.Op.Replace = &patcher.ReplaceSpec{
			Target:      r.Target,
			Replacement: r.Replacement,
			Strategies:  strategies,
			Limit:       r.Limit,
			LooseRunes:  r.LooseRunes,
		}
	}
	if m := yp.Markers; m != nil {
		p.Op.Markers = &patcher.MarkerSpec{Start: m.Start, End: m.End, Replacement: m.Replacement}
	}
	if r := yp.Region; r != nil {
		p.Op.Region = &patcher.RegionSpec{
			Start:       r.Start.predicate(),
			StartNext:   r.StartNext.predicate(),
			End:         r.End.predicate(),
			KeepEnd:     r.KeepEnd,
			Replacement: r.Replacement,
			Once:        r.Once,
		}
	}
	if c := yp.Collapse; c != nil {
		p.Op.Collapse = &patcher.CollapseSpec{Line: c.Line.predicate(), From: c.From, To: c.To}
	}
	return p, nil
}

// extractPathsFromHint returns every backticked path in a paragraph. Spans
// with spaces are commands, not paths, and spans without a dot or separator
// are identifiers.
func extractPathsFromHint(hint string) []string {
	var paths []string
	for _, match := range pathInHintRegex.FindAllStringSubmatch(hint, -1) {
		path := strings.TrimSpace(match[1])
		if path == "" || strings.Contains(path, " ") {
			continue
		}
		if !strings.ContainsAny(path, "./\\") {
			continue
		}
		paths = append(paths, path)
	}
	return paths
}

func hasAllowedExtension(path string, extensions []string) bool {
	ext := filepath.Ext(path)
	for _, allowedExt := range extensions {
		if ext == allowedExt {
			return true
		}
	}
	return false
}

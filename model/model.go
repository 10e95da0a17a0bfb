package model

// Status is the result of applying one patch to one file.
type Status string

const (
	StatusApplied     Status = "applied"
	StatusUnchanged   Status = "unchanged"
	StatusNotFound    Status = "not_found"
	StatusMissingFile Status = "missing_file"
	StatusError       Status = "error"
)

// Outcome reports one (patch, file) pair.
type Outcome struct {
	Patch    string
	Path     string
	Status   Status
	Strategy string
	Count    int
	Err      error
}

// FileChange represents a single planned change to a file.
type FileChange struct {
	Path   string
	Before string
	After  string
}

// Summary holds the results of an operation for display.
type Summary struct {
	Modified  []string
	Unchanged []string
	Failed    []string
	Outcomes  []Outcome
	Message   string
	DryRun    bool
}

// Count returns how many outcomes have status s.
func (s Summary) Count(status Status) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Missed reports whether any patch found nothing to change or no file.
func (s Summary) Missed() bool {
	return s.Count(StatusNotFound) > 0 || s.Count(StatusMissingFile) > 0 || s.Count(StatusError) > 0
}

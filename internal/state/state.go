package state

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sokinpui/tpatch/internal/fs"
	"github.com/sokinpui/tpatch/internal/logger"
)

const (
	stateFileName = "state.tpatch"
	BlobDir       = "blobs"
)

// ActionModify is the only action tpatch records: a file rewritten in place.
const ActionModify = "modify"

var (
	// ErrConflict means the file changed since the history entry was written.
	ErrConflict = errors.New("file changed since it was patched")
	ErrCorrupt  = errors.New("invalid state file")
)

// Operation records one file rewrite by the sha256 of its content before and
// after. Both contents are kept as blobs.
type Operation struct {
	Action string
	Path   string
	Before string
	After  string
}

// HistoryEntry represents one complete run of the tool.
type HistoryEntry struct {
	ID         string
	Timestamp  int64
	Operations []Operation
}

// State represents the entire state file.
type State struct {
	History      []HistoryEntry
	CurrentIndex int
}

// Manager handles the lifecycle of the state file.
type Manager struct {
	statePath string
	state     *State
	StateDir  string
}

// findGitRoot finds the root of the git repository.
func findGitRoot() (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	output, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

// New creates and loads a state manager. A relative stateDir is placed at the
// git root, or the working directory outside a repository.
func New(stateDir string) (*Manager, error) {
	if !filepath.IsAbs(stateDir) {
		rootDir, err := findGitRoot()
		if err != nil {
			rootDir, err = os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("could not get current working directory: %w", err)
			}
		}
		stateDir = filepath.Join(rootDir, stateDir)
	}

	if err := os.MkdirAll(filepath.Join(stateDir, BlobDir), 0o755); err != nil {
		return nil, fmt.Errorf("could not create state directory: %w", err)
	}
	m := &Manager{
		statePath: filepath.Join(stateDir, stateFileName),
		StateDir:  stateDir,
	}
	if err := m.load(); err != nil {
		logger.L().Warn("discarding unreadable history", zap.String("path", m.statePath), zap.Error(err))
		m.state = &State{CurrentIndex: -1}
	}
	return m, nil
}

// CurrentIndex returns the index of the last applied entry, -1 for none.
func (m *Manager) CurrentIndex() int {
	return m.state.CurrentIndex
}

// History returns the recorded entries.
func (m *Manager) History() []HistoryEntry {
	return m.state.History
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.state = &State{CurrentIndex: -1}
			return nil
		}
		return err
	}
	st, err := decode(string(data))
	if err != nil {
		return err
	}
	m.state = st
	return nil
}

// decode parses the state file: the current index, then one blank-line
// separated block per entry holding "<id> <unix ts>" and four lines per
// operation (action, path, before hash, after hash).
func decode(content string) (*State, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	blocks := strings.Split(content, "\n\n")
	if len(blocks) == 0 || strings.TrimSpace(blocks[0]) == "" {
		return &State{CurrentIndex: -1}, nil
	}

	index, err := strconv.Atoi(strings.TrimSpace(blocks[0]))
	if err != nil {
		return nil, fmt.Errorf("%w: could not parse current index: %w", ErrCorrupt, err)
	}
	st := &State{CurrentIndex: index}

	for _, block := range blocks[1:] {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		lines := strings.Split(block, "\n")

		header := strings.Fields(lines[0])
		if len(header) != 2 {
			return nil, fmt.Errorf("%w: bad entry header %q", ErrCorrupt, lines[0])
		}
		ts, err := strconv.ParseInt(header[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: could not parse timestamp from '%s': %w", ErrCorrupt, header[1], err)
		}
		entry := HistoryEntry{ID: header[0], Timestamp: ts}

		opLines := lines[1:]
		if len(opLines)%4 != 0 {
			return nil, fmt.Errorf("%w: incomplete operation record in entry %s", ErrCorrupt, entry.ID)
		}
		for i := 0; i < len(opLines); i += 4 {
			entry.Operations = append(entry.Operations, Operation{
				Action: opLines[i],
				Path:   opLines[i+1],
				Before: opLines[i+2],
				After:  opLines[i+3],
			})
		}
		st.History = append(st.History, entry)
	}

	if st.CurrentIndex < -1 || st.CurrentIndex >= len(st.History) {
		return nil, fmt.Errorf("%w: index %d out of range", ErrCorrupt, st.CurrentIndex)
	}
	return st, nil
}

func encode(st *State) string {
	blocks := []string{strconv.Itoa(st.CurrentIndex)}
	for _, entry := range st.History {
		lines := []string{fmt.Sprintf("%s %d", entry.ID, entry.Timestamp)}
		for _, op := range entry.Operations {
			lines = append(lines, op.Action, op.Path, op.Before, op.After)
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n\n") + "\n"
}

func (m *Manager) save() error {
	if err := fs.WriteFileAtomic(m.statePath, []byte(encode(m.state)), 0o644); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// StoreBlob keeps data under blobs/<sha256> and returns the hash.
func (m *Manager) StoreBlob(data []byte) (string, error) {
	hash := fs.SHA256(data)
	path := filepath.Join(m.StateDir, BlobDir, hash)
	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}
	if err := fs.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("store blob: %w", err)
	}
	return hash, nil
}

// Blob returns the content stored under hash.
func (m *Manager) Blob(hash string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(m.StateDir, BlobDir, hash))
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", hash, err)
	}
	return data, nil
}

// Record adds a new set of operations to the history, dropping any entries
// that could still have been redone.
func (m *Manager) Record(operations []Operation) (HistoryEntry, error) {
	if m.state.CurrentIndex < len(m.state.History)-1 {
		m.state.History = m.state.History[:m.state.CurrentIndex+1]
	}

	entry := HistoryEntry{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC().Unix(),
		Operations: operations,
	}
	m.state.History = append(m.state.History, entry)
	m.state.CurrentIndex++
	return entry, m.save()
}

// GetOperationsToUndo gets the last operations and moves the history pointer.
func (m *Manager) GetOperationsToUndo() ([]Operation, error) {
	if m.state.CurrentIndex < 0 {
		return nil, nil
	}
	ops := m.state.History[m.state.CurrentIndex].Operations
	m.state.CurrentIndex--
	return ops, m.save()
}

// GetOperationsToRedo gets the next operations and moves the history pointer.
func (m *Manager) GetOperationsToRedo() ([]Operation, error) {
	nextIndex := m.state.CurrentIndex + 1
	if nextIndex >= len(m.state.History) {
		return nil, nil
	}
	m.state.CurrentIndex = nextIndex
	ops := m.state.History[m.state.CurrentIndex].Operations
	return ops, m.save()
}

// Revert restores op.Path to its content before op, provided the file still
// holds what op wrote.
func (m *Manager) Revert(op Operation) error {
	return m.restore(op.Path, op.After, op.Before)
}

// Reapply restores op.Path to its content after op, provided the file still
// holds what op replaced.
func (m *Manager) Reapply(op Operation) error {
	return m.restore(op.Path, op.Before, op.After)
}

func (m *Manager) restore(path, expected, target string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	current, err := fs.GetFileSHA256(path)
	if err != nil {
		return err
	}
	if current != expected {
		return fmt.Errorf("%w: %s", ErrConflict, path)
	}

	data, err := m.Blob(target)
	if err != nil {
		return err
	}
	return fs.WriteFileAtomic(path, data, info.Mode().Perm())
}

package nvim

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/neovim/go-client/nvim"
	"go.uber.org/zap"

	"github.com/sokinpui/tpatch/internal/logger"
	"github.com/sokinpui/tpatch/model"
)

// ErrNoInstance means no Neovim address was given or found in the environment.
var ErrNoInstance = errors.New("no running Neovim found (set --nvim-addr or $NVIM)")

// Manager handles the connection and interaction with a Neovim instance.
type Manager struct {
	nvim *nvim.Nvim
	addr string
}

// ResolveAddress returns addr, or the address Neovim exports to its child
// processes.
func ResolveAddress(addr string) string {
	if addr != "" {
		return addr
	}
	if env := os.Getenv("NVIM"); env != "" {
		return env
	}
	return os.Getenv("NVIM_LISTEN_ADDRESS")
}

// New connects to the Neovim instance listening on addr.
func New(addr string) (*Manager, error) {
	addr = ResolveAddress(addr)
	if addr == "" {
		return nil, ErrNoInstance
	}
	v, err := nvim.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nvim at %s: %w", addr, err)
	}
	logger.L().Debug("connected to nvim", zap.String("addr", addr))
	return &Manager{nvim: v, addr: addr}, nil
}

// Close disconnects from Neovim.
func (m *Manager) Close() error {
	if m.nvim == nil {
		return nil
	}
	return m.nvim.Close()
}

// processSequentially is a generic helper function to run a set of jobs sequentially.
func processSequentially[T any](
	items []T,
	processFn func(item T) (path string, err error),
	progressCb func(int),
) (succeeded, failed []string) {
	for i, item := range items {
		path, err := processFn(item)
		if err == nil {
			succeeded = append(succeeded, path)
		} else {
			logger.L().Warn("buffer update failed", zap.String("path", path), zap.Error(err))
			failed = append(failed, path)
		}
		if progressCb != nil {
			progressCb(i + 1)
		}
	}
	return succeeded, failed
}

// ApplyChanges replaces the buffer of every changed file with its new content.
func (m *Manager) ApplyChanges(changes []model.FileChange, progressCb func(int)) (updated, failed []string) {
	processFn := func(change model.FileChange) (string, error) {
		return change.Path, m.updateBuffer(change.Path, change.After)
	}
	return processSequentially(changes, processFn, progressCb)
}

func (m *Manager) updateBuffer(filePath, content string) error {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return err
	}

	var escaped string
	if err := m.nvim.Call("fnameescape", &escaped, absPath); err != nil {
		return err
	}

	b := m.nvim.NewBatch()
	b.Command("edit " + escaped)
	b.SetBufferLines(0, 0, -1, true, BufferLines(content))
	return b.Execute()
}

// SaveAllBuffers writes all modified buffers to disk.
func (m *Manager) SaveAllBuffers() error {
	if err := m.nvim.Command("wa!"); err != nil {
		return fmt.Errorf("save buffers: %w", err)
	}
	return nil
}

// BufferLines splits file content into buffer lines. The final terminator is
// implied by the buffer, and CRLF files keep their lines without "\r".
func BufferLines(content string) [][]byte {
	sep := "\n"
	if strings.Contains(content, "\r\n") {
		sep = "\r\n"
	}
	content = strings.TrimSuffix(content, sep)
	if content == "" {
		return [][]byte{}
	}

	parts := strings.Split(content, sep)
	lines := make([][]byte, len(parts))
	for i, s := range parts {
		lines[i] = []byte(s)
	}
	return lines
}

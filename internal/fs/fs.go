package fs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/sokinpui/tpatch/internal/logger"
)

// ErrFileNotFound is returned by ReadText for a path that does not exist.
var ErrFileNotFound = errors.New("file not found")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// PathResolver finds absolute paths for files.
type PathResolver struct {
	lookupDirs []string
}

// NewPathResolver creates a new PathResolver. With no lookup directories it
// resolves against the working directory.
func NewPathResolver(lookupDirs []string) (*PathResolver, error) {
	if len(lookupDirs) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("could not get current working directory: %w", err)
		}
		return &PathResolver{lookupDirs: []string{wd}}, nil
	}

	absDirs := make([]string, 0, len(lookupDirs))
	for _, dir := range lookupDirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			logger.L().Warn("ignoring invalid lookup directory", zap.String("dir", dir), zap.Error(err))
			continue
		}
		absDirs = append(absDirs, abs)
	}
	if len(absDirs) == 0 {
		return nil, errors.New("no usable lookup directory")
	}
	return &PathResolver{lookupDirs: absDirs}, nil
}

// Resolve finds an absolute path. Absolute paths pass through; a relative path
// that exists in no lookup directory resolves against the first one.
func (r *PathResolver) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	if existing := r.ResolveExisting(path); existing != "" {
		return existing
	}
	return filepath.Join(r.lookupDirs[0], path)
}

// ResolveExisting finds an absolute path only if the file exists.
func (r *PathResolver) ResolveExisting(path string) string {
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err == nil {
			return filepath.Clean(path)
		}
		return ""
	}
	for _, dir := range r.lookupDirs {
		absPath := filepath.Join(dir, path)
		if _, err := os.Stat(absPath); err == nil {
			return absPath
		}
	}
	return ""
}

// File is a text file decoded for patching.
type File struct {
	Path    string
	Content string
	// BOM records a UTF-8 byte order mark stripped on read and restored on write.
	BOM  bool
	Mode os.FileMode
}

// ReadText reads path as UTF-8. A byte order mark is stripped (UTF-16 input is
// transcoded) and invalid sequences decode to U+FFFD.
func ReadText(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	content, err := DecodeText(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &File{
		Path:    path,
		Content: content,
		BOM:     bytes.HasPrefix(data, utf8BOM),
		Mode:    info.Mode().Perm(),
	}, nil
}

// DecodeText decodes raw bytes the way ReadText does.
func DecodeText(data []byte) (string, error) {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(decoder, data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Encode returns the bytes WriteText would store for f.
func (f *File) Encode() []byte {
	if !f.BOM {
		return []byte(f.Content)
	}
	return append(append([]byte{}, utf8BOM...), f.Content...)
}

// WriteText replaces f.Path atomically: the data goes to a temp file in the
// same directory which is then renamed over the target.
func WriteText(f *File) error {
	mode := f.Mode
	if mode == 0 {
		mode = 0o644
	}
	return WriteFileAtomic(f.Path, f.Encode(), mode)
}

// WriteFileAtomic writes data to path through a temp file and rename.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// GetFileSHA256 returns the hex sha256 of the file at path.
func GetFileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SHA256 returns the hex sha256 of data.
func SHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

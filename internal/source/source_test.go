package source

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noClipboard() (string, error) {
	return "", errors.New("clipboard unavailable")
}

func TestGetContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fix.yaml")
	require.NoError(t, os.WriteFile(path, []byte("patches: []\n"), 0o644))

	tests := []struct {
		name      string
		path      string
		stdin     string
		piped     bool
		clipboard func() (string, error)
		want      Script
	}{
		{
			name:      "file wins over stdin",
			path:      path,
			stdin:     "ignored",
			piped:     true,
			clipboard: noClipboard,
			want:      Script{Name: path, Content: "patches: []\n", Origin: OriginFile},
		},
		{
			name:      "piped stdin",
			stdin:     "from stdin",
			piped:     true,
			clipboard: noClipboard,
			want:      Script{Content: "from stdin", Origin: OriginStdin},
		},
		{
			name:      "dash forces stdin",
			path:      "-",
			stdin:     "dash",
			clipboard: noClipboard,
			want:      Script{Content: "dash", Origin: OriginStdin},
		},
		{
			name:      "clipboard fallback",
			clipboard: func() (string, error) { return "copied", nil },
			want:      Script{Content: "copied", Origin: OriginClipboard},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := NewWith(strings.NewReader(tt.stdin), tt.piped, tt.clipboard)
			got, err := sp.GetContent(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestGetContent_Errors(t *testing.T) {
	sp := NewWith(strings.NewReader("  \n"), true, noClipboard)
	_, err := sp.GetContent("")
	assert.ErrorIs(t, err, ErrEmpty)

	sp = NewWith(strings.NewReader(""), false, noClipboard)
	_, err = sp.GetContent("")
	assert.ErrorContains(t, err, "clipboard unavailable")

	_, err = sp.GetContent(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

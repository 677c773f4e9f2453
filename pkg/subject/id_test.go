package subject

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatID(t *testing.T) {
	assert.Equal(t, "MR000123", FormatID("MR", 123))
	assert.Equal(t, "ZF001000", FormatID("ZF", 1000))
	assert.Equal(t, "MR1234567", FormatID("MR", 1234567))
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		id      string
		prefix  string
		want    int
		wantErr bool
	}{
		{"MR000123", "MR", 123, false},
		{"MR000123b", "MR", 123, false},
		{"MR1234567", "MR", 1234567, false},
		{"ZF000001", "MR", 0, true},
		{"MRabc", "MR", 0, true},
		{"MR", "MR", 0, true},
	}

	for _, tt := range tests {
		n, err := ParseNumber(tt.id, tt.prefix)
		if tt.wantErr {
			assert.Error(t, err, tt.id)
			continue
		}
		require.NoError(t, err, tt.id)
		assert.Equal(t, tt.want, n, tt.id)
	}
}

func TestResolveID(t *testing.T) {
	tests := []struct {
		arg     string
		want    string
		wantErr bool
	}{
		{"123", "MR000123", false},
		{" 42 ", "MR000042", false},
		{"MR000123", "MR000123", false},
		{"MR000123b", "MR000123b", false},
		{"ZF000001", "", true},
		{"", "", true},
		{"patient", "", true},
	}

	for _, tt := range tests {
		got, err := ResolveID(tt.arg, "MR")
		if tt.wantErr {
			assert.Error(t, err, tt.arg)
			continue
		}
		require.NoError(t, err, tt.arg)
		assert.Equal(t, tt.want, got, tt.arg)
	}
}

func TestListAndNextNumber(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"MR000001", "MR000005", "MR000003b", "ZF000002", "notes"} {
		require.NoError(t, os.Mkdir(filepath.Join(root, name), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "MR000099"), []byte("a file, not a subject"), 0o644))

	ids, err := List(root, "MR")
	require.NoError(t, err)
	assert.Equal(t, []string{"MR000001", "MR000003b", "MR000005"}, ids)

	next, err := NextNumber(root, "MR")
	require.NoError(t, err)
	assert.Equal(t, 6, next)
}

func TestNextNumberEmptyRoot(t *testing.T) {
	next, err := NextNumber(t.TempDir(), "MR")
	require.NoError(t, err)
	assert.Equal(t, 1, next)
}

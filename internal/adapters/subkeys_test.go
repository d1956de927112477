package adapters

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadKnownSubkeys_MissingFileYieldsEmptyMapping(t *testing.T) {
	subkeys, err := LoadKnownSubkeys(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, subkeys)
}

func TestLoadKnownSubkeys_ParsesMapping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_subkeys.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"51d6647ec21ad6ea:\n  - feedfacefeedface\n  - deadbeefdeadbeef\n"), 0o644))

	subkeys, err := LoadKnownSubkeys(path)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"51d6647ec21ad6ea": {"feedfacefeedface", "deadbeefdeadbeef"},
	}, subkeys)
}

func TestLoadKnownSubkeys_InvalidContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_subkeys.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- just\n- a\n- list\n"), 0o644))

	_, err := LoadKnownSubkeys(path)
	require.Error(t, err)
}

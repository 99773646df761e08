package cargo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLockedVersions(t *testing.T) {
	lock := `# This file is automatically @generated by Cargo.
version = 3

[[package]]
name = "demo"
version = "0.1.0"

[[package]]
name = "serde"
version = "1.0.100"
source = "registry+https://github.com/rust-lang/crates.io-index"

[[package]]
name = "tokio"
version = "1.17.0"
source = "registry+https://github.com/rust-lang/crates.io-index"
`
	path := filepath.Join(t.TempDir(), "Cargo.lock")
	require.NoError(t, os.WriteFile(path, []byte(lock), 0o644))

	versions, err := LockedVersions(path)
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"demo":  "0.1.0",
		"serde": "1.0.100",
		"tokio": "1.17.0",
	}, versions)
}

func TestLockedVersionsMissingFile(t *testing.T) {
	_, err := LockedVersions(filepath.Join(t.TempDir(), "Cargo.lock"))
	require.Error(t, err)
}

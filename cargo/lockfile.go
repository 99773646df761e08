package cargo

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// lockfileDoc is the subset of Cargo.lock we decode.
type lockfileDoc struct {
	Package []lockfilePackage `toml:"package"`
}

type lockfilePackage struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Source  string `toml:"source"`
}

// LockedVersions decodes a Cargo.lock into a name→version map. It is the
// cheap half of lock-change handling: when the build tool touches the lock
// file, the engine compares this map against the held resolution before
// deciding whether anything actually moved.
func LockedVersions(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lockfile: %w", err)
	}
	var doc lockfileDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding lockfile: %w", err)
	}
	versions := make(map[string]string, len(doc.Package))
	for _, p := range doc.Package {
		// a name may appear at several versions; keep the first, the
		// comparison only cares about change, not identity
		if _, ok := versions[p.Name]; !ok {
			versions[p.Name] = p.Version
		}
	}
	return versions, nil
}

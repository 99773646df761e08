package file

import (
	"fmt"
	"strings"

	"github.com/corymhall/cargo-appraiser/lsp"
)

// Kind describes the kind of the file in question.
type Kind int

const (
	// UnknownKind is a file type we don't know about.
	UnknownKind = Kind(iota)

	// Manifest is a Cargo.toml file.
	Manifest

	// Lockfile is a Cargo.lock file.
	Lockfile
)

func (k Kind) String() string {
	switch k {
	case Manifest:
		return "manifest"
	case Lockfile:
		return "lockfile"
	default:
		return fmt.Sprintf("internal error: unknown file kind %d", k)
	}
}

// KindForURI classifies a document URI by its basename. The language ID the
// client sends for both is plain "toml", so the name is the only signal.
func KindForURI(uri lsp.DocumentURI) Kind {
	switch {
	case strings.HasSuffix(string(uri), "/Cargo.toml"):
		return Manifest
	case strings.HasSuffix(string(uri), "/Cargo.lock"):
		return Lockfile
	default:
		return UnknownKind
	}
}

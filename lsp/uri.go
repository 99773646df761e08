package lsp

import (
	"fmt"
	"path/filepath"
	"strings"
)

type DocumentURI string

type LanguageKind string

// Path converts a file:// URI to a filesystem path.
func (uri DocumentURI) Path() (string, error) {
	if !strings.HasPrefix(string(uri), "file://") {
		return "", fmt.Errorf("URI %q is not a file URI", uri)
	}
	return filepath.FromSlash(string(uri)[7:]), nil
}

// IsCargoManifest reports whether the URI names a Cargo.toml file.
// The server ignores every other document.
func (uri DocumentURI) IsCargoManifest() bool {
	return strings.HasSuffix(string(uri), "/Cargo.toml")
}

func URIFromPath(path string) DocumentURI {
	if path == "" {
		return ""
	}
	return DocumentURI("file://" + filepath.ToSlash(path))
}

package parser

import (
	"fmt"

	"github.com/corymhall/cargo-appraiser/lsp"
)

// Table identifies which dependency table an entry belongs to.
type Table int

const (
	TableNormal Table = iota
	TableDev
	TableBuild
	TableWorkspace
)

func (t Table) String() string {
	switch t {
	case TableNormal:
		return "dependencies"
	case TableDev:
		return "dev-dependencies"
	case TableBuild:
		return "build-dependencies"
	case TableWorkspace:
		return "workspace.dependencies"
	default:
		return fmt.Sprintf("table(%d)", int(t))
	}
}

// TableFromName maps a table header name to its Table, reporting whether the
// name is one of the recognized dependency tables.
func TableFromName(name string) (Table, bool) {
	switch name {
	case "dependencies":
		return TableNormal, true
	case "dev-dependencies":
		return TableDev, true
	case "build-dependencies":
		return TableBuild, true
	default:
		return 0, false
	}
}

// SourceKind tags the one place a dependency comes from.
type SourceKind int

const (
	SourceUnspecified SourceKind = iota
	SourceRegistry
	SourceGit
	SourcePath
	SourceWorkspace
)

func (s SourceKind) String() string {
	switch s {
	case SourceRegistry:
		return "registry"
	case SourceGit:
		return "git"
	case SourcePath:
		return "path"
	case SourceWorkspace:
		return "workspace"
	default:
		return "unspecified"
	}
}

// Source is a tagged union: exactly one source kind per dependency, with the
// fields that kind carries.
type Source struct {
	Kind SourceKind
	// Registry name for SourceRegistry; empty means crates.io.
	Registry string
	// Git fields, set for SourceGit. Ref holds whichever of branch/tag/rev
	// was written; RefKind names which one it was.
	GitURL  string
	Ref     string
	RefKind string
	// Local path for SourcePath.
	Path string
}

// Feature is one entry of a dependency's feature array, with its token range.
type Feature struct {
	Name  string
	Range lsp.Range
}

// Dependency is the semantic projection of one entry in a dependency table.
type Dependency struct {
	// ID is the canonical path of the entry, e.g. "dependencies.serde".
	ID string
	// Table the entry lives in.
	Table Table
	// Platform is the target cfg expression, verbatim, for entries under
	// [target.<cfg>.*-dependencies]. Empty otherwise.
	Platform string
	// Name is the effective crate name, after applying `package = "..."`.
	Name string
	// Alias is the table key when it differs from the crate name.
	Alias string
	// Requirement is the semver request string, empty when absent.
	Requirement string
	Source      Source
	Features    []Feature
	// DefaultFeatures is nil when unset, otherwise the written value.
	DefaultFeatures *bool
	Optional        bool

	// KeyRange covers the table key token; EntryRange the whole entry.
	KeyRange   lsp.Range
	EntryRange lsp.Range
	// RequirementRange covers the version request string value, valid only
	// when Requirement is non-empty.
	RequirementRange lsp.Range
}

// PackageName returns the effective crate name used for registry and
// resolver lookups.
func (d *Dependency) PackageName() string {
	return d.Name
}

// Key returns the table key as written in the manifest.
func (d *Dependency) Key() string {
	if d.Alias != "" {
		return d.Alias
	}
	return d.Name
}

// IsWorkspaceInherited reports whether the entry uses `workspace = true`.
func (d *Dependency) IsWorkspaceInherited() bool {
	return d.Source.Kind == SourceWorkspace
}

// ShapeKey identifies a dependency for structural diffing: two manifests
// have the same dependency shape when their ShapeKey→shape maps match.
func (d *Dependency) ShapeKey() string {
	return fmt.Sprintf("%s\x00%s\x00%s", d.Table, d.Platform, d.Key())
}

// Shape captures the fields whose change invalidates a held resolution.
func (d *Dependency) Shape() string {
	return fmt.Sprintf("%s\x00%s\x00%s\x00%s\x00%s", d.Name, d.Requirement, d.Source.Kind, d.Source.GitURL, d.Source.Ref)
}

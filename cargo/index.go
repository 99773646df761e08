package cargo

import (
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/corymhall/cargo-appraiser/parser"
)

// LookupKey addresses one resolved dependency. The name is the effective
// crate name, not a rename alias: cargo's output is name-keyed and the
// document layer joins aliases back during reconciliation.
type LookupKey struct {
	Table    parser.Table
	Platform string
	Name     string
}

// PackageSourceKind says where a resolved package actually came from.
type PackageSourceKind int

const (
	PackageRegistry PackageSourceKind = iota
	PackageGit
	PackagePath
)

// PackageSource carries the source detail of an installed package.
type PackageSource struct {
	Kind PackageSourceKind
	// Registry name; empty for crates.io.
	Registry string
	// Git detail, set for PackageGit. Ref is the requested branch/tag/rev,
	// Commit the resolved hash.
	RepoURL string
	Ref     string
	Commit  string
}

// ShortCommit returns the first seven characters of the resolved commit.
func (s PackageSource) ShortCommit() string {
	if len(s.Commit) > 7 {
		return s.Commit[:7]
	}
	return s.Commit
}

// Package is one installed package from the resolved graph.
type Package struct {
	Name    string
	Version *semver.Version
	Source  PackageSource
}

// Resolved is the resolution record for one dependency: the installed
// package plus the registry's view of what else is available.
type Resolved struct {
	// Package is nil when the dependency was filtered out of the resolve,
	// e.g. by a non-matching target platform.
	Package *Package
	// AvailableVersions is sorted descending, pre-releases ordered after
	// their release per semver 2.0.
	AvailableVersions []*semver.Version
	// LatestMatched is the newest version satisfying the requirement.
	LatestMatched *semver.Version
	// Latest is the absolute newest version, ignoring the requirement.
	Latest *semver.Version
	// Features maps feature names of the latest matched version to what
	// they enable.
	Features map[string][]string
	// Yanked is set when the installed version is no longer in the
	// registry's live set.
	Yanked bool
}

// Installed reports whether the dependency resolved to a package.
func (r *Resolved) Installed() bool { return r.Package != nil }

// IsLatest reports whether the installed version is the newest available.
func (r *Resolved) IsLatest() bool {
	if r.Package == nil || r.LatestMatched == nil || r.Latest == nil {
		return false
	}
	return r.Package.Version.Equal(r.LatestMatched) && r.LatestMatched.Equal(r.Latest)
}

// HasCompatibleUpgrade reports whether a newer version satisfies the
// requirement.
func (r *Resolved) HasCompatibleUpgrade() bool {
	if r.Package == nil || r.LatestMatched == nil {
		return false
	}
	return r.Package.Version.LessThan(r.LatestMatched)
}

// HasIncompatibleLatest reports whether the newest version falls outside
// the requirement.
func (r *Resolved) HasIncompatibleLatest() bool {
	if r.LatestMatched == nil || r.Latest == nil {
		return false
	}
	return !r.LatestMatched.Equal(r.Latest)
}

// WorkspaceMember names one member package of the resolved workspace.
type WorkspaceMember struct {
	Name         string
	ManifestPath string
}

// Index is the result of one workspace resolution with O(1) lookups.
type Index struct {
	rootManifest    string
	memberManifests []string
	members         []WorkspaceMember
	byKey           map[LookupKey]*Resolved
}

func (i *Index) RootManifest() string        { return i.rootManifest }
func (i *Index) MemberManifests() []string   { return i.memberManifests }
func (i *Index) Members() []WorkspaceMember  { return i.members }
func (i *Index) Len() int                    { return len(i.byKey) }

// Get returns the record for the key, or nil.
func (i *Index) Get(key LookupKey) *Resolved {
	return i.byKey[key]
}

// FindByName returns a record for the crate name regardless of table. It
// serves workspace-inherited dependencies, whose member table is not known
// from the root manifest entry.
func (i *Index) FindByName(name, platform string) *Resolved {
	for _, table := range []parser.Table{parser.TableNormal, parser.TableDev, parser.TableBuild} {
		if r := i.byKey[LookupKey{Table: table, Platform: platform, Name: name}]; r != nil {
			return r
		}
	}
	if platform != "" {
		return nil
	}
	// last resort: any platform
	for key, r := range i.byKey {
		if key.Name == name {
			return r
		}
	}
	return nil
}

// Keys returns every key in the index; ordering is unspecified.
func (i *Index) Keys() []LookupKey {
	keys := make([]LookupKey, 0, len(i.byKey))
	for k := range i.byKey {
		keys = append(keys, k)
	}
	return keys
}

// MemberNames returns the workspace member package names.
func (i *Index) MemberNames() []string {
	names := make([]string, len(i.members))
	for n, m := range i.members {
		names[n] = m.Name
	}
	return names
}

// parseSourceString decodes cargo metadata's `source` field, e.g.
//
//	registry+https://github.com/rust-lang/crates.io-index
//	sparse+https://index.crates.io/
//	git+https://github.com/serde-rs/serde?branch=main#a1b2c3d4...
//
// A null/empty source means a path or workspace-local package.
func parseSourceString(s string) PackageSource {
	if s == "" {
		return PackageSource{Kind: PackagePath}
	}
	scheme, rest, ok := strings.Cut(s, "+")
	if !ok {
		return PackageSource{Kind: PackageRegistry}
	}
	switch scheme {
	case "git":
		src := PackageSource{Kind: PackageGit}
		if url, frag, ok := strings.Cut(rest, "#"); ok {
			src.Commit = frag
			rest = url
		}
		if url, query, ok := strings.Cut(rest, "?"); ok {
			src.RepoURL = url
			for _, kv := range strings.Split(query, "&") {
				if _, v, ok := strings.Cut(kv, "="); ok {
					src.Ref = v
				}
			}
		} else {
			src.RepoURL = rest
		}
		return src
	case "path":
		return PackageSource{Kind: PackagePath}
	default:
		src := PackageSource{Kind: PackageRegistry}
		if !strings.Contains(rest, "crates.io") {
			src.Registry = rest
		}
		return src
	}
}

package cargo

import (
	"context"
	"log"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/corymhall/cargo-appraiser/parser"
	"github.com/hashicorp/go-multierror"
	"github.com/tidwall/gjson"
)

// Result is a resolution outcome: the index plus any non-fatal warnings
// gathered along the way (registry feed failures, unparseable versions).
type Result struct {
	Index    *Index
	Warnings error // nil or a *multierror.Error
}

type installedPkg struct {
	pkg      *Package
	manifest string
}

// Resolve runs one coarse-grained resolution for the workspace that owns
// manifestPath: a single `cargo metadata` invocation plus registry feed
// lookups for the crates it mentions.
func Resolve(ctx context.Context, runner *Runner, logger *log.Logger, manifestPath string, feed VersionFeed) (*Result, *Error) {
	out, cerr := runner.Run(ctx, logger, filepath.Dir(manifestPath), DefaultResolveTimeout,
		"metadata", "--format-version", "1", "--manifest-path", manifestPath)
	if cerr != nil {
		return nil, cerr
	}
	return BuildIndex(ctx, out, feed), nil
}

// BuildIndex turns cargo metadata JSON into a lookup index, consulting the
// version feed for each registry crate. Feed failures degrade the affected
// records (no available/latest data) and are aggregated as warnings.
func BuildIndex(ctx context.Context, metadata []byte, feed VersionFeed) *Result {
	var warnings *multierror.Error
	index := &Index{byKey: make(map[LookupKey]*Resolved)}

	root := gjson.ParseBytes(metadata)

	packagesByName := make(map[string][]installedPkg)
	packagesByID := make(map[string]installedPkg)
	root.Get("packages").ForEach(func(_, pkg gjson.Result) bool {
		version, err := semver.NewVersion(pkg.Get("version").String())
		if err != nil {
			warnings = multierror.Append(warnings, err)
			return true
		}
		p := installedPkg{
			pkg: &Package{
				Name:    pkg.Get("name").String(),
				Version: version,
				Source:  parseSourceString(pkg.Get("source").String()),
			},
			manifest: pkg.Get("manifest_path").String(),
		}
		packagesByName[p.pkg.Name] = append(packagesByName[p.pkg.Name], p)
		packagesByID[pkg.Get("id").String()] = p
		return true
	})

	memberIDs := map[string]bool{}
	root.Get("workspace_members").ForEach(func(_, id gjson.Result) bool {
		memberIDs[id.String()] = true
		return true
	})
	for id, p := range packagesByID {
		if !memberIDs[id] {
			continue
		}
		index.members = append(index.members, WorkspaceMember{
			Name:         p.pkg.Name,
			ManifestPath: p.manifest,
		})
		index.memberManifests = append(index.memberManifests, p.manifest)
	}
	sort.Slice(index.members, func(i, j int) bool { return index.members[i].Name < index.members[j].Name })
	sort.Strings(index.memberManifests)

	if workspaceRoot := root.Get("workspace_root").String(); workspaceRoot != "" {
		index.rootManifest = filepath.Join(workspaceRoot, "Cargo.toml")
	}

	// one index entry per declared dependency of each workspace member
	root.Get("packages").ForEach(func(_, pkg gjson.Result) bool {
		if !memberIDs[pkg.Get("id").String()] {
			return true
		}
		pkg.Get("dependencies").ForEach(func(_, dep gjson.Result) bool {
			key := LookupKey{
				Table:    tableFromKind(dep.Get("kind").String()),
				Platform: dep.Get("target").String(),
				Name:     dep.Get("name").String(),
			}
			if _, done := index.byKey[key]; done {
				return true
			}
			resolved := &Resolved{}
			req := dep.Get("req").String()
			if p := pickInstalled(packagesByName[key.Name], req); p != nil {
				resolved.Package = p
			}
			if isRegistryDep(dep, resolved.Package) && feed != nil {
				if err := attachRegistryData(ctx, resolved, key.Name, req, feed); err != nil {
					warnings = multierror.Append(warnings, err)
				}
			}
			index.byKey[key] = resolved
			return true
		})
		return true
	})

	return &Result{Index: index, Warnings: warnings.ErrorOrNil()}
}

func tableFromKind(kind string) parser.Table {
	switch kind {
	case "dev":
		return parser.TableDev
	case "build":
		return parser.TableBuild
	default:
		return parser.TableNormal
	}
}

// pickInstalled chooses the installed package for a dependency: the one
// whose version satisfies the requirement, or the only candidate when the
// requirement does not narrow it down.
func pickInstalled(candidates []installedPkg, req string) *Package {
	if len(candidates) == 0 {
		return nil
	}
	if constraint, err := semver.NewConstraint(req); err == nil {
		for _, c := range candidates {
			if constraint.Check(c.pkg.Version) {
				return c.pkg
			}
		}
	}
	if len(candidates) == 1 {
		return candidates[0].pkg
	}
	return nil
}

// isRegistryDep reports whether a declared dependency comes from a
// registry. Uninstalled deps (e.g. platform-filtered) still count unless
// declared with a git or path source.
func isRegistryDep(dep gjson.Result, pkg *Package) bool {
	if pkg != nil {
		return pkg.Source.Kind == PackageRegistry
	}
	src := dep.Get("source").String()
	if strings.HasPrefix(src, "git+") || strings.HasPrefix(src, "path+") {
		return false
	}
	return !dep.Get("path").Exists()
}

// attachRegistryData fills available/latest/yanked from the version feed.
func attachRegistryData(ctx context.Context, resolved *Resolved, name, req string, feed VersionFeed) error {
	versions, err := feed.Versions(ctx, name)
	if err != nil {
		return err
	}

	live := make([]RegistryVersion, 0, len(versions))
	for _, v := range versions {
		if !v.Yanked {
			live = append(live, v)
		}
	}
	sort.Slice(live, func(i, j int) bool {
		return live[j].Version.LessThan(live[i].Version)
	})

	resolved.AvailableVersions = make([]*semver.Version, len(live))
	for i, v := range live {
		resolved.AvailableVersions[i] = v.Version
	}

	// a requirement that names a pre-release opts into pre-releases
	allowPre := strings.Contains(req, "-")
	if constraint, err := semver.NewConstraint(req); err == nil {
		for _, v := range live {
			if v.Version.Prerelease() != "" && !allowPre {
				continue
			}
			if constraint.Check(v.Version) {
				resolved.LatestMatched = v.Version
				resolved.Features = v.Features
				break
			}
		}
	}
	for _, v := range live {
		if v.Version.Prerelease() != "" && !allowPre {
			continue
		}
		resolved.Latest = v.Version
		break
	}

	if resolved.Package != nil {
		resolved.Yanked = true
		for _, v := range versions {
			if v.Version.Equal(resolved.Package.Version) {
				resolved.Yanked = v.Yanked
				break
			}
		}
	}
	return nil
}

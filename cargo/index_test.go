package cargo

import (
	"context"
	"fmt"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/corymhall/cargo-appraiser/parser"
	"github.com/hexops/autogold/v2"
	"github.com/stretchr/testify/require"
)

// fakeFeed serves canned registry listings.
type fakeFeed map[string][]RegistryVersion

func (f fakeFeed) Versions(_ context.Context, name string) ([]RegistryVersion, error) {
	versions, ok := f[name]
	if !ok {
		return nil, fmt.Errorf("no such crate %q", name)
	}
	return versions, nil
}

func vers(t *testing.T, s string) *semver.Version {
	t.Helper()
	v, err := semver.NewVersion(s)
	require.NoError(t, err)
	return v
}

func entries(t *testing.T, specs ...string) []RegistryVersion {
	t.Helper()
	var out []RegistryVersion
	for _, s := range specs {
		yanked := false
		if s[0] == '!' {
			yanked = true
			s = s[1:]
		}
		out = append(out, RegistryVersion{Version: vers(t, s), Yanked: yanked})
	}
	return out
}

const metadataJSON = `{
  "packages": [
    {
      "name": "demo",
      "version": "0.1.0",
      "id": "path+file:///ws/demo#0.1.0",
      "source": null,
      "manifest_path": "/ws/demo/Cargo.toml",
      "dependencies": [
        {"name": "serde", "req": "^1.0.100", "kind": null, "target": null},
        {"name": "tokio", "req": "^1.17", "kind": null, "target": null},
        {"name": "winapi", "req": "^0.3", "kind": null, "target": "cfg(windows)"},
        {"name": "trybuild", "req": "^1.0", "kind": "dev", "target": null},
        {"name": "cc", "req": "*", "kind": "build", "source": "path+file:///ws/cc", "path": "/ws/cc", "target": null},
        {"name": "fancy", "req": "*", "source": "git+https://github.com/corp/fancy?branch=main", "kind": null, "target": null}
      ]
    },
    {
      "name": "serde",
      "version": "1.0.100",
      "id": "registry+https://github.com/rust-lang/crates.io-index#serde@1.0.100",
      "source": "registry+https://github.com/rust-lang/crates.io-index",
      "manifest_path": "/cargo/serde/Cargo.toml",
      "dependencies": []
    },
    {
      "name": "tokio",
      "version": "1.17.0",
      "id": "registry+https://github.com/rust-lang/crates.io-index#tokio@1.17.0",
      "source": "registry+https://github.com/rust-lang/crates.io-index",
      "manifest_path": "/cargo/tokio/Cargo.toml",
      "dependencies": []
    },
    {
      "name": "fancy",
      "version": "0.9.1",
      "id": "git+https://github.com/corp/fancy?branch=main#fancy@0.9.1",
      "source": "git+https://github.com/corp/fancy?branch=main#9f2c1a7e55aa00112233445566778899aabbccdd",
      "manifest_path": "/cargo/fancy/Cargo.toml",
      "dependencies": []
    },
    {
      "name": "cc",
      "version": "0.0.1",
      "id": "path+file:///ws/cc#0.0.1",
      "source": null,
      "manifest_path": "/ws/cc/Cargo.toml",
      "dependencies": []
    },
    {
      "name": "trybuild",
      "version": "1.0.99",
      "id": "registry+https://github.com/rust-lang/crates.io-index#trybuild@1.0.99",
      "source": "registry+https://github.com/rust-lang/crates.io-index",
      "manifest_path": "/cargo/trybuild/Cargo.toml",
      "dependencies": []
    }
  ],
  "workspace_members": ["path+file:///ws/demo#0.1.0"],
  "workspace_root": "/ws/demo"
}`

func testFeed(t *testing.T) fakeFeed {
	return fakeFeed{
		"serde":    entries(t, "1.0.210", "1.0.200", "1.0.100", "1.0.0"),
		"tokio":    entries(t, "2.0.0", "1.44.0", "1.17.0", "1.0.0"),
		"winapi":   entries(t, "0.3.9", "0.3.0"),
		"trybuild": entries(t, "1.0.99"),
	}
}

func buildTestIndex(t *testing.T) *Result {
	t.Helper()
	return BuildIndex(context.Background(), []byte(metadataJSON), testFeed(t))
}

func TestBuildIndexMembers(t *testing.T) {
	result := buildTestIndex(t)
	index := result.Index
	require.Equal(t, []WorkspaceMember{{Name: "demo", ManifestPath: "/ws/demo/Cargo.toml"}}, index.Members())
	require.Equal(t, []string{"demo"}, index.MemberNames())
	require.Equal(t, "/ws/demo/Cargo.toml", index.RootManifest())
}

func TestBuildIndexCompatibleUpgrade(t *testing.T) {
	index := buildTestIndex(t).Index

	serde := index.Get(LookupKey{Table: parser.TableNormal, Name: "serde"})
	require.NotNil(t, serde)
	require.True(t, serde.Installed())
	require.Equal(t, "1.0.100", serde.Package.Version.String())
	require.Equal(t, "1.0.210", serde.LatestMatched.String())
	require.Equal(t, "1.0.210", serde.Latest.String())
	require.True(t, serde.HasCompatibleUpgrade())
	require.False(t, serde.HasIncompatibleLatest())
	require.False(t, serde.IsLatest())
	require.False(t, serde.Yanked)

	var available []string
	for _, v := range serde.AvailableVersions {
		available = append(available, v.String())
	}
	autogold.Expect([]string{"1.0.210", "1.0.200", "1.0.100", "1.0.0"}).Equal(t, available)
}

func TestBuildIndexMixedUpgradeable(t *testing.T) {
	index := buildTestIndex(t).Index

	tokio := index.Get(LookupKey{Table: parser.TableNormal, Name: "tokio"})
	require.NotNil(t, tokio)
	require.Equal(t, "1.17.0", tokio.Package.Version.String())
	require.Equal(t, "1.44.0", tokio.LatestMatched.String())
	require.Equal(t, "2.0.0", tokio.Latest.String())
	require.True(t, tokio.HasCompatibleUpgrade())
	require.True(t, tokio.HasIncompatibleLatest())
}

func TestBuildIndexPlatformGated(t *testing.T) {
	index := buildTestIndex(t).Index

	// the platform-gated key exists but carries no installed package
	winapi := index.Get(LookupKey{Table: parser.TableNormal, Platform: "cfg(windows)", Name: "winapi"})
	require.NotNil(t, winapi)
	require.False(t, winapi.Installed())
	require.NotEmpty(t, winapi.AvailableVersions)

	// the un-gated key does not exist
	require.Nil(t, index.Get(LookupKey{Table: parser.TableNormal, Name: "winapi"}))
}

func TestBuildIndexTables(t *testing.T) {
	index := buildTestIndex(t).Index

	require.NotNil(t, index.Get(LookupKey{Table: parser.TableDev, Name: "trybuild"}))
	require.Nil(t, index.Get(LookupKey{Table: parser.TableNormal, Name: "trybuild"}))

	cc := index.Get(LookupKey{Table: parser.TableBuild, Name: "cc"})
	require.NotNil(t, cc)
	require.True(t, cc.Installed())
	require.Equal(t, PackagePath, cc.Package.Source.Kind)
}

func TestBuildIndexGitSource(t *testing.T) {
	index := buildTestIndex(t).Index

	fancy := index.Get(LookupKey{Table: parser.TableNormal, Name: "fancy"})
	require.NotNil(t, fancy)
	require.True(t, fancy.Installed())
	require.Equal(t, PackageGit, fancy.Package.Source.Kind)
	require.Equal(t, "https://github.com/corp/fancy", fancy.Package.Source.RepoURL)
	require.Equal(t, "main", fancy.Package.Source.Ref)
	require.Equal(t, "9f2c1a7", fancy.Package.Source.ShortCommit())
}

func TestBuildIndexFeedFailureIsNonFatal(t *testing.T) {
	// the feed knows nothing; resolution still yields installed packages
	result := BuildIndex(context.Background(), []byte(metadataJSON), fakeFeed{})
	require.Error(t, result.Warnings)

	serde := result.Index.Get(LookupKey{Table: parser.TableNormal, Name: "serde"})
	require.NotNil(t, serde)
	require.True(t, serde.Installed())
	require.Nil(t, serde.Latest)
}

func TestBuildIndexDeterministic(t *testing.T) {
	a := buildTestIndex(t).Index
	b := buildTestIndex(t).Index
	require.Equal(t, len(a.Keys()), len(b.Keys()))
	for _, key := range a.Keys() {
		require.NotNil(t, b.Get(key), "key %v missing on second build", key)
	}
}

func TestFindByName(t *testing.T) {
	index := buildTestIndex(t).Index
	require.NotNil(t, index.FindByName("trybuild", ""))
	require.NotNil(t, index.FindByName("winapi", "cfg(windows)"))
	require.Nil(t, index.FindByName("nope", ""))
}

func TestYankedDetection(t *testing.T) {
	feed := fakeFeed{
		"serde":    entries(t, "1.0.210", "!1.0.100"),
		"tokio":    entries(t, "2.0.0", "1.44.0", "1.17.0"),
		"winapi":   entries(t, "0.3.9"),
		"trybuild": entries(t, "1.0.99"),
	}
	index := BuildIndex(context.Background(), []byte(metadataJSON), feed).Index
	serde := index.Get(LookupKey{Table: parser.TableNormal, Name: "serde"})
	require.NotNil(t, serde)
	require.True(t, serde.Yanked)
	// yanked versions never appear in the available list
	for _, v := range serde.AvailableVersions {
		require.NotEqual(t, "1.0.100", v.String())
	}
}

func TestPrereleaseOrdering(t *testing.T) {
	feed := fakeFeed{
		"serde":    entries(t, "1.0.100"),
		"tokio":    entries(t, "2.0.0-rc.1", "2.0.0", "1.44.0", "1.17.0"),
		"winapi":   entries(t, "0.3.9"),
		"trybuild": entries(t, "1.0.99"),
	}
	index := BuildIndex(context.Background(), []byte(metadataJSON), feed).Index
	tokio := index.Get(LookupKey{Table: parser.TableNormal, Name: "tokio"})
	require.NotNil(t, tokio)

	var available []string
	for _, v := range tokio.AvailableVersions {
		available = append(available, v.String())
	}
	// descending, pre-release after its release
	autogold.Expect([]string{"2.0.0", "2.0.0-rc.1", "1.44.0", "1.17.0"}).Equal(t, available)
	// the absolute latest skips pre-releases
	require.Equal(t, "2.0.0", tokio.Latest.String())
}

func TestParseSourceString(t *testing.T) {
	src := parseSourceString("registry+https://github.com/rust-lang/crates.io-index")
	require.Equal(t, PackageRegistry, src.Kind)
	require.Empty(t, src.Registry)

	src = parseSourceString("sparse+https://my.registry.example/index/")
	require.Equal(t, PackageRegistry, src.Kind)
	require.NotEmpty(t, src.Registry)

	src = parseSourceString("git+https://github.com/corp/fancy?rev=abc123#abc1234567")
	require.Equal(t, PackageGit, src.Kind)
	require.Equal(t, "https://github.com/corp/fancy", src.RepoURL)
	require.Equal(t, "abc123", src.Ref)
	require.Equal(t, "abc1234", src.ShortCommit())

	src = parseSourceString("")
	require.Equal(t, PackagePath, src.Kind)
}

package appraiser

import (
	"testing"

	"github.com/corymhall/cargo-appraiser/parser"
	"github.com/stretchr/testify/require"
)

func newTestParser(t *testing.T) *parser.Parser {
	t.Helper()
	p, err := parser.New()
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestUpdateFirstParseMarksEverythingChanged(t *testing.T) {
	p := newTestParser(t)
	doc := newDocument("file:///ws/demo/Cargo.toml", "/ws/demo/Cargo.toml")

	changed := doc.update(p, memberManifest, 1)
	require.Len(t, changed, 3)
	require.Equal(t, uint64(1), doc.Rev)
}

func TestUpdateWhitespaceIsShapeNeutral(t *testing.T) {
	p := newTestParser(t)
	doc := newDocument("file:///ws/demo/Cargo.toml", "/ws/demo/Cargo.toml")
	doc.update(p, memberManifest, 1)

	changed := doc.update(p, "# header comment\n"+memberManifest+"\n\n", 2)
	require.Empty(t, changed)
	require.Equal(t, uint64(2), doc.Rev)
}

func TestUpdateFeatureEditIsShapeNeutral(t *testing.T) {
	p := newTestParser(t)
	doc := newDocument("file:///ws/demo/Cargo.toml", "/ws/demo/Cargo.toml")
	doc.update(p, `[dependencies]
tokio = { version = "1.17", features = ["macros"] }
`, 1)

	// feature edits do not change name/source/requirement shape
	changed := doc.update(p, `[dependencies]
tokio = { version = "1.17", features = ["macros", "rt"] }
`, 2)
	require.Empty(t, changed)
}

func TestUpdateRequirementChangesShape(t *testing.T) {
	p := newTestParser(t)
	doc := newDocument("file:///ws/demo/Cargo.toml", "/ws/demo/Cargo.toml")
	doc.update(p, memberManifest, 1)

	edited := `[dependencies]
serde = "1.0.200"
tokio = "1.17"

[target.'cfg(windows)'.dependencies]
winapi = "0.3"
`
	changed := doc.update(p, edited, 2)
	require.Len(t, changed, 1)
}

func TestUpdateIdenticalTextIsNoMutation(t *testing.T) {
	p := newTestParser(t)
	doc := newDocument("file:///ws/demo/Cargo.toml", "/ws/demo/Cargo.toml")
	doc.update(p, memberManifest, 1)
	rev := doc.Rev

	changed := doc.update(p, memberManifest, 2)
	require.Empty(t, changed)
	require.Equal(t, rev, doc.Rev)
	require.Equal(t, int32(2), doc.Version)
}

func TestMarkDirtyByShapeKeysKeepsOtherRecords(t *testing.T) {
	p := newTestParser(t)
	doc := newDocument("file:///ws/demo/Cargo.toml", "/ws/demo/Cargo.toml")
	doc.update(p, memberManifest, 1)

	doc.Resolved["dependencies.serde"] = memberFeedResolved(t)
	doc.Resolved["dependencies.tokio"] = memberFeedResolved(t)

	serde := doc.Tree.Dependency("dependencies.serde")
	doc.markDirtyByShapeKeys([]string{serde.ShapeKey()})

	require.NotContains(t, doc.Resolved, "dependencies.serde")
	require.Contains(t, doc.Resolved, "dependencies.tokio")
	require.Contains(t, doc.DirtyDeps, "dependencies.serde")
	require.NotContains(t, doc.DirtyDeps, "dependencies.tokio")
}

func TestMarkDirtyDropsVanishedEntries(t *testing.T) {
	p := newTestParser(t)
	doc := newDocument("file:///ws/demo/Cargo.toml", "/ws/demo/Cargo.toml")
	doc.update(p, memberManifest, 1)
	doc.Resolved["dependencies.serde"] = memberFeedResolved(t)

	changed := doc.update(p, "[dependencies]\ntokio = \"1.17\"\n", 2)
	doc.markDirtyByShapeKeys(changed)

	require.NotContains(t, doc.Resolved, "dependencies.serde")
	require.NotContains(t, doc.DirtyDeps, "dependencies.serde")
}

func TestLookupKeyUsesEffectiveName(t *testing.T) {
	p := newTestParser(t)
	doc := newDocument("file:///ws/demo/Cargo.toml", "/ws/demo/Cargo.toml")
	doc.update(p, `[dependencies]
win = { package = "winapi", version = "0.3" }
`, 1)

	dep := doc.Tree.Dependency("dependencies.win")
	require.NotNil(t, dep)
	key := lookupKey(dep)
	require.Equal(t, "winapi", key.Name)
}

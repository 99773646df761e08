package render

import (
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/corymhall/cargo-appraiser/config"
	"github.com/corymhall/cargo-appraiser/parser"
	"github.com/hexops/autogold/v2"
	"github.com/stretchr/testify/require"
)

func v(t *testing.T, s string) *semver.Version {
	t.Helper()
	version, err := semver.NewVersion(s)
	require.NoError(t, err)
	return version
}

func defaultFormatter() *Formatter {
	return Compile(config.Default().DecorationFormatter)
}

func TestFormatCompatibleLatest(t *testing.T) {
	text, ok := defaultFormatter().Format(Payload{
		Status:        CompatibleLatest,
		Installed:     v(t, "1.0.100"),
		LatestMatched: v(t, "1.0.210"),
		Latest:        v(t, "1.0.210"),
	})
	require.True(t, ok)
	autogold.Expect("🚀 1.0.100 -> 1.0.210").Equal(t, text)
}

func TestFormatMixedUpgradeable(t *testing.T) {
	text, ok := defaultFormatter().Format(Payload{
		Status:        MixedUpgradeable,
		Installed:     v(t, "1.17.0"),
		LatestMatched: v(t, "1.44.0"),
		Latest:        v(t, "2.0.0"),
	})
	require.True(t, ok)
	autogold.Expect("🚀🔒 1.17.0 -> 1.44.0,  2.0.0").Equal(t, text)
}

func TestFormatLatest(t *testing.T) {
	text, ok := defaultFormatter().Format(Payload{
		Status:    Latest,
		Installed: v(t, "1.0.210"),
	})
	require.True(t, ok)
	autogold.Expect("✅ 1.0.210").Equal(t, text)
}

func TestFormatGit(t *testing.T) {
	text, ok := defaultFormatter().Format(Payload{
		Status:    Git,
		GitRef:    "main",
		GitCommit: "9f2c1a7",
	})
	require.True(t, ok)
	autogold.Expect("🐙 9f2c1a7").Equal(t, text)
}

func TestFormatMissingPlaceholdersRenderEmpty(t *testing.T) {
	text, ok := defaultFormatter().Format(Payload{Status: Yanked, Installed: v(t, "0.1.0")})
	require.True(t, ok)
	autogold.Expect("❌ yanked 0.1.0, ").Equal(t, text)
}

func TestFormatNotParsedRendersNothing(t *testing.T) {
	_, ok := defaultFormatter().Format(Payload{Status: NotParsed})
	require.False(t, ok)
}

func TestFormatTableBadge(t *testing.T) {
	text, ok := defaultFormatter().Format(Payload{
		Status:    Latest,
		Installed: v(t, "1.0.0"),
		Tables:    []parser.Table{parser.TableNormal, parser.TableDev},
	})
	require.True(t, ok)
	autogold.Expect("✅ 1.0.0 [dev]").Equal(t, text)
}

func TestCustomTemplate(t *testing.T) {
	text := NewTemplate("{{installed}} ({{latest}})").Format(Payload{
		Installed: v(t, "1.0.0"),
		Latest:    v(t, "2.0.0"),
	})
	require.Equal(t, "1.0.0 (2.0.0)", text)
}

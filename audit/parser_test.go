package audit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const vulnerabilityOutput = "    Fetching advisory database from `https://github.com/RustSec/advisory-db.git`\n" +
	"      Loaded 776 security advisories (from /home/user/.cargo/advisory-db)\n" +
	"    Scanning Cargo.lock for vulnerabilities (100 crate dependencies)\n" +
	"Crate:     crossbeam-channel\n" +
	"Version:   0.5.13\n" +
	"Title:     crossbeam-channel: double free on Drop\n" +
	"Date:      2025-04-08\n" +
	"ID:        RUSTSEC-2025-0024\n" +
	"URL:       https://rustsec.org/advisories/RUSTSEC-2025-0024\n" +
	"Solution:  Upgrade to >=0.5.15\n" +
	"Dependency tree:\n" +
	"crossbeam-channel 0.5.13\n" +
	"├── tame-index 0.14.0\n" +
	"│   └── rustsec 0.30.0\n" +
	"│       └── my-app 0.1.0\n" +
	"└── gix 0.70.0\n" +
	"    └── cargo 0.88.0\n" +
	"        └── my-app 0.1.0\n" +
	"\n" +
	"error: 1 vulnerability found!"

func TestParseVulnerability(t *testing.T) {
	issues := ParseOutput(vulnerabilityOutput, []string{"my-app"})
	require.Len(t, issues, 1)

	issue := issues[0]
	require.Equal(t, "crossbeam-channel", issue.Crate)
	require.Equal(t, "0.5.13", issue.Version)
	require.Equal(t, "crossbeam-channel: double free on Drop", issue.Title)
	require.Equal(t, "RUSTSEC-2025-0024", issue.ID)
	require.Equal(t, "https://rustsec.org/advisories/RUSTSEC-2025-0024", issue.URL)
	require.Equal(t, "Upgrade to >=0.5.15", issue.Solution)
	require.True(t, issue.IsVulnerability())
	require.NotEmpty(t, issue.DependencyPaths)
}

const warningOutput = "Crate:     tokio\n" +
	"Version:   1.44.1\n" +
	"Warning:   unsound\n" +
	"Title:     Broadcast channel calls clone in parallel, but does not require `Sync`\n" +
	"Date:      2025-04-07\n" +
	"ID:        RUSTSEC-2025-0023\n" +
	"URL:       https://rustsec.org/advisories/RUSTSEC-2025-0023\n" +
	"Dependency tree:\n" +
	"tokio 1.44.1\n" +
	"└── my-app 0.1.0\n" +
	"\n" +
	"warning: 1 warning found"

func TestParseWarning(t *testing.T) {
	issues := ParseOutput(warningOutput, []string{"my-app"})
	require.Len(t, issues, 1)

	issue := issues[0]
	require.Equal(t, "tokio", issue.Crate)
	require.Equal(t, Unsound, issue.Kind)
	require.False(t, issue.IsVulnerability())
}

func TestParseSeverity(t *testing.T) {
	output := "Crate:     gix-features\n" +
		"Version:   0.38.2\n" +
		"Title:     SHA-1 collision attacks are not detected\n" +
		"ID:        RUSTSEC-2025-0021\n" +
		"URL:       https://rustsec.org/advisories/RUSTSEC-2025-0021\n" +
		"Severity:  6.8 (medium)\n" +
		"Solution:  Upgrade to >=0.41.0"
	issues := ParseOutput(output, nil)
	require.Len(t, issues, 1)
	require.Equal(t, "6.8 (medium)", issues[0].Severity)
}

func TestParseYankedWarning(t *testing.T) {
	output := "Crate:     badcrate\n" +
		"Version:   0.1.0\n" +
		"Warning:   yanked\n"
	issues := ParseOutput(output, nil)
	require.Len(t, issues, 1)
	require.Equal(t, Yanked, issues[0].Kind)
}

func TestParseMultipleIssues(t *testing.T) {
	output := "Crate:     alpha\n" +
		"Version:   1.0.0\n" +
		"ID:        RUSTSEC-2024-0001\n" +
		"Crate:     beta\n" +
		"Version:   2.0.0\n" +
		"Warning:   unmaintained\n"
	issues := ParseOutput(output, nil)
	require.Len(t, issues, 2)
	require.Equal(t, "alpha", issues[0].Crate)
	require.Equal(t, "beta", issues[1].Crate)
	require.Equal(t, Unmaintained, issues[1].Kind)
}

func TestIndexLookups(t *testing.T) {
	issues := ParseOutput(vulnerabilityOutput+"\n"+warningOutput, []string{"my-app"})
	idx := NewIndex(issues)

	require.True(t, idx.HasIssues())
	require.Len(t, idx.Get("crossbeam-channel", "0.5.13"), 1)
	require.Empty(t, idx.Get("crossbeam-channel", "0.5.15"))
	require.Len(t, idx.GetByName("tokio"), 1)
	require.False(t, idx.IsYanked("tokio", "1.44.1"))

	var nilIdx *Index
	require.False(t, nilIdx.HasIssues())
	require.Nil(t, nilIdx.Get("tokio", "1.44.1"))
}

func TestIndexYanked(t *testing.T) {
	issues := ParseOutput("Crate:     badcrate\nVersion:   0.1.0\nWarning:   yanked\n", nil)
	idx := NewIndex(issues)
	require.True(t, idx.IsYanked("badcrate", "0.1.0"))
	require.False(t, idx.IsYanked("badcrate", "0.2.0"))
}

func TestIssueMarkdown(t *testing.T) {
	issues := ParseOutput(vulnerabilityOutput, []string{"my-app"})
	require.Len(t, issues, 1)
	md := issues[0].Markdown("rustsec")
	require.Contains(t, md, "# Crate: crossbeam-channel")
	require.Contains(t, md, "* Version: 0.5.13")
	require.Contains(t, md, "* Solution: Upgrade to >=0.5.15")
	require.Contains(t, md, "Dependency path:")
}

func TestIssueSummary(t *testing.T) {
	issue := &Issue{
		Crate:    "crossbeam-channel",
		Version:  "0.5.13",
		Title:    "double free on Drop",
		ID:       "RUSTSEC-2025-0024",
		Severity: "8.1 (high)",
	}
	require.Equal(t, "crossbeam-channel: double free on Drop (RUSTSEC-2025-0024, severity 8.1 (high))", issue.Summary())

	yanked := &Issue{Crate: "badcrate", Version: "0.1.0", Kind: Yanked}
	require.Equal(t, "badcrate 0.1.0 is yanked", yanked.Summary())
}

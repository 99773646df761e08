package audit

import (
	"fmt"
	"strings"
)

// IssueKind classifies an advisory.
type IssueKind int

const (
	Vulnerability IssueKind = iota
	Unmaintained
	Unsound
	Yanked
	// Warning is any other warning type cargo-audit may grow.
	Warning
)

func (k IssueKind) String() string {
	switch k {
	case Vulnerability:
		return "vulnerability"
	case Unmaintained:
		return "unmaintained"
	case Unsound:
		return "unsound"
	case Yanked:
		return "yanked"
	default:
		return "warning"
	}
}

func kindFromWarning(s string) IssueKind {
	switch s {
	case "unmaintained":
		return Unmaintained
	case "unsound":
		return Unsound
	case "yanked":
		return Yanked
	default:
		return Warning
	}
}

// Issue is one advisory against a (crate, version) pair.
type Issue struct {
	Crate   string
	Version string
	Title   string
	// ID is the advisory id, e.g. "RUSTSEC-2025-0024". Empty for bare
	// yanked warnings.
	ID       string
	Kind     IssueKind
	Severity string
	URL      string
	Solution string
	// DependencyPaths maps a workspace member's direct dependency name to
	// the chain from the vulnerable crate up to and including that direct
	// dependency; the member itself is not part of the chain.
	DependencyPaths map[string][]string
}

// IsVulnerability reports whether the issue is a security advisory rather
// than a warning.
func (i *Issue) IsVulnerability() bool { return i.Kind == Vulnerability }

// Markdown renders the issue for hovers and diagnostic detail. When
// hintCrate is non-empty only that direct dependency's path is shown.
func (i *Issue) Markdown(hintCrate string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Crate: %s\n", i.Crate)
	fmt.Fprintf(&b, "* Version: %s\n", i.Version)
	if i.Kind != Vulnerability {
		fmt.Fprintf(&b, "* Warning: %s\n", i.Kind)
	}
	if i.Title != "" {
		fmt.Fprintf(&b, "* Title: %s\n", i.Title)
	}
	if i.ID != "" {
		fmt.Fprintf(&b, "* ID: %s\n", i.ID)
	}
	if i.Severity != "" {
		fmt.Fprintf(&b, "* Severity: %s\n", i.Severity)
	}
	if i.URL != "" {
		fmt.Fprintf(&b, "* URL: %s\n", i.URL)
	}
	if i.Solution != "" {
		fmt.Fprintf(&b, "* Solution: %s\n", i.Solution)
	}
	if hintCrate != "" {
		if path, ok := i.DependencyPaths[hintCrate]; ok {
			b.WriteString("* Dependency path:\n")
			reversed := make([]string, len(path))
			for n, p := range path {
				reversed[len(path)-1-n] = p
			}
			b.WriteString(strings.Join(reversed, " -> "))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Summary is a one-line rendering for diagnostics.
func (i *Issue) Summary() string {
	switch {
	case i.Kind == Vulnerability && i.Severity != "":
		return fmt.Sprintf("%s: %s (%s, severity %s)", i.Crate, i.Title, i.ID, i.Severity)
	case i.Kind == Vulnerability:
		return fmt.Sprintf("%s: %s (%s)", i.Crate, i.Title, i.ID)
	case i.Title != "":
		return fmt.Sprintf("%s: %s (%s)", i.Crate, i.Title, i.Kind)
	default:
		return fmt.Sprintf("%s %s is %s", i.Crate, i.Version, i.Kind)
	}
}

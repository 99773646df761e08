package appraiser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/corymhall/cargo-appraiser/cargo"
	"github.com/corymhall/cargo-appraiser/lsp"
	"github.com/corymhall/cargo-appraiser/parser"
)

// Read queries run on the event loop against the current Document
// snapshot; the engine is single-writer, so no locks are involved.

func (a *Appraiser) hover(uri lsp.DocumentURI, pos lsp.Position) *lsp.Hover {
	doc, ok := a.docs[uri]
	if !ok || doc.Tree == nil {
		return nil
	}
	node := doc.Tree.FindAt(pos)
	if node == nil {
		return nil
	}
	dep := doc.dependencyAt(pos)
	if dep == nil {
		return nil
	}
	resolved := doc.Resolved[dep.ID]

	// a feature list entry hovers its transitive activations
	if strings.HasPrefix(node.ID, dep.ID+".features[") && node.Kind == parser.KindString {
		return a.featureHover(node, resolved)
	}

	if dep.Source.Kind == parser.SourceGit {
		return a.gitHover(node, dep, resolved)
	}

	return a.versionHover(node, dep, resolved)
}

func (a *Appraiser) featureHover(node *parser.Node, resolved *cargo.Resolved) *lsp.Hover {
	var b strings.Builder
	fmt.Fprintf(&b, "## Feature `%s`\n\n", node.Text)
	activates := []string(nil)
	if resolved != nil {
		activates = resolved.Features[node.Text]
	}
	if len(activates) == 0 {
		b.WriteString("No transitive activations recorded.\n")
	} else {
		b.WriteString("Activates:\n")
		for _, f := range activates {
			fmt.Fprintf(&b, "- `%s`\n", f)
		}
	}
	return markdownHover(b.String(), node.Range)
}

func (a *Appraiser) gitHover(node *parser.Node, dep *parser.Dependency, resolved *cargo.Resolved) *lsp.Hover {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", dep.PackageName())
	fmt.Fprintf(&b, "Git dependency: %s\n\n", dep.Source.GitURL)
	ref := dep.Source.Ref
	commit := ""
	if resolved != nil && resolved.Package != nil && resolved.Package.Source.Kind == cargo.PackageGit {
		if resolved.Package.Source.Ref != "" {
			ref = resolved.Package.Source.Ref
		}
		commit = resolved.Package.Source.ShortCommit()
	}
	if ref != "" {
		fmt.Fprintf(&b, "* ref: `%s`\n", ref)
	}
	if commit != "" {
		fmt.Fprintf(&b, "* commit: `%s`\n", commit)
	}
	return markdownHover(b.String(), node.Range)
}

func (a *Appraiser) versionHover(node *parser.Node, dep *parser.Dependency, resolved *cargo.Resolved) *lsp.Hover {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", dep.PackageName())
	if dep.Requirement != "" {
		fmt.Fprintf(&b, "Required: `%s`\n\n", dep.Requirement)
	}
	if resolved == nil {
		b.WriteString("Not resolved yet.\n")
		return markdownHover(b.String(), node.Range)
	}
	if resolved.Package != nil {
		fmt.Fprintf(&b, "Installed: `%s`\n\n", resolved.Package.Version)
	} else {
		b.WriteString("Not installed.\n\n")
	}

	if len(resolved.AvailableVersions) > 0 {
		b.WriteString("Available versions:\n")
		const maxListed = 15
		for i, v := range resolved.AvailableVersions {
			if i == maxListed {
				fmt.Fprintf(&b, "- … %d more\n", len(resolved.AvailableVersions)-maxListed)
				break
			}
			switch {
			case resolved.LatestMatched != nil && v.Equal(resolved.LatestMatched):
				fmt.Fprintf(&b, "- **%s** ← latest compatible\n", v)
			default:
				fmt.Fprintf(&b, "- %s\n", v)
			}
		}
	}

	if a.auditIndex != nil && resolved.Package != nil {
		for _, issue := range a.auditIndex.Get(resolved.Package.Name, resolved.Package.Version.String()) {
			b.WriteString("\n---\n\n")
			b.WriteString(issue.Markdown(dep.PackageName()))
		}
	}
	return markdownHover(b.String(), node.Range)
}

func markdownHover(value string, rng lsp.Range) *lsp.Hover {
	r := rng
	return &lsp.Hover{
		Contents: lsp.MarkupContent{Kind: lsp.Markdown, Value: value},
		Range:    &r,
	}
}

func (a *Appraiser) codeActions(uri lsp.DocumentURI, rng lsp.Range) []lsp.CodeAction {
	doc, ok := a.docs[uri]
	if !ok || doc.Tree == nil {
		return nil
	}
	dep := doc.dependencyAt(rng.Start)
	if dep == nil {
		return nil
	}
	resolved := doc.Resolved[dep.ID]

	var actions []lsp.CodeAction
	if resolved != nil && dep.Requirement != "" {
		if resolved.HasCompatibleUpgrade() && resolved.LatestMatched != nil {
			actions = append(actions, requirementEdit(uri, dep,
				fmt.Sprintf("Update %s to %s", dep.PackageName(), resolved.LatestMatched),
				resolved.LatestMatched.String()))
		}
		if resolved.HasIncompatibleLatest() && resolved.Latest != nil {
			actions = append(actions, requirementEdit(uri, dep,
				fmt.Sprintf("Update %s to %s (breaking)", dep.PackageName(), resolved.Latest),
				resolved.Latest.String()))
		}
	}

	// workspace-wide refresh of this one crate, executed by the client
	actions = append(actions, lsp.CodeAction{
		Title: fmt.Sprintf("Run cargo update -p %s", dep.PackageName()),
		Kind:  lsp.CodeActionKindSource,
		Command: &lsp.Command{
			Title:     fmt.Sprintf("cargo update -p %s", dep.PackageName()),
			Command:   "cargo-appraiser.updateDependency",
			Arguments: []any{dep.PackageName()},
		},
	})
	return actions
}

func requirementEdit(uri lsp.DocumentURI, dep *parser.Dependency, title, newVersion string) lsp.CodeAction {
	return lsp.CodeAction{
		Title: title,
		Kind:  lsp.CodeActionKindQuickFix,
		Edit: &lsp.WorkspaceEdit{
			Changes: map[lsp.DocumentURI][]lsp.TextEdit{
				uri: {{
					Range:   dep.RequirementRange,
					NewText: `"` + newVersion + `"`,
				}},
			},
		},
	}
}

func (a *Appraiser) definition(uri lsp.DocumentURI, pos lsp.Position) []lsp.Location {
	doc, ok := a.docs[uri]
	if !ok || doc.Tree == nil {
		return nil
	}
	node := doc.Tree.FindAt(pos)
	if node == nil {
		return nil
	}

	// a [workspace] members entry jumps to that member's manifest
	if strings.HasPrefix(node.ID, "workspace.members[") && node.Kind == parser.KindString {
		return memberDefinition(doc, node)
	}

	dep := doc.dependencyAt(pos)
	if dep == nil || !dep.IsWorkspaceInherited() {
		return nil
	}

	// workspace = true: jump to the matching [workspace.dependencies]
	// entry in the root manifest
	rootDoc, ok := a.docs[a.rootManifestURI]
	if !ok || rootDoc.Tree == nil {
		return nil
	}
	for _, rootDep := range rootDoc.Tree.Dependencies() {
		if rootDep.Table == parser.TableWorkspace && rootDep.PackageName() == dep.PackageName() {
			return []lsp.Location{{URI: rootDoc.URI, Range: rootDep.KeyRange}}
		}
	}
	return nil
}

func memberDefinition(doc *Document, node *parser.Node) []lsp.Location {
	member := node.Text
	if strings.ContainsAny(member, "*?") {
		// glob patterns have no single definition
		return nil
	}
	manifest := filepath.Join(filepath.Dir(doc.Path), member, "Cargo.toml")
	if _, err := os.Stat(manifest); err != nil {
		return nil
	}
	return []lsp.Location{{
		URI:   lsp.URIFromPath(manifest),
		Range: lsp.Range{},
	}}
}

package parser

import (
	"fmt"
	"strings"

	"github.com/corymhall/cargo-appraiser/lsp"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_toml "github.com/tree-sitter-grammars/tree-sitter-toml/bindings/go"
)

// Parser turns manifest text into a Tree. It owns a tree-sitter parser and
// is not safe for concurrent use; the engine parses on its event loop only.
type Parser struct {
	parser *tree_sitter.Parser
	lang   *tree_sitter.Language
}

func New() (*Parser, error) {
	lang := tree_sitter.NewLanguage(tree_sitter_toml.Language())
	parser := tree_sitter.NewParser()
	if err := parser.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	return &Parser{parser: parser, lang: lang}, nil
}

func (p *Parser) Close() {
	if p.parser != nil {
		p.parser.Close()
	}
}

// Parse builds the symbol table and dependency projection for a manifest.
// Recoverable syntax errors end up in Tree.Errors; the rest of the document
// still projects.
func (p *Parser) Parse(text string) *Tree {
	out := newTree(text)
	src := []byte(text)

	tsTree := p.parser.Parse(src, nil)
	defer tsTree.Close()

	w := &walker{tree: out, src: src}
	root := tsTree.RootNode()
	w.collectErrors(root)

	var commentSeq int
	for i := uint(0); i < root.NamedChildCount(); i++ {
		child := root.NamedChild(i)
		switch child.Kind() {
		case "comment":
			w.insertComment(child, &commentSeq)
		case "pair":
			w.pair("", child)
		case "table":
			w.table(child, false)
		case "table_array_element":
			w.table(child, true)
		}
	}

	out.buildIndex()
	return out
}

type walker struct {
	tree *Tree
	src  []byte

	// arrayTableSeq disambiguates repeated [[...]] sections per path.
	arrayTableSeq map[string]int
}

func (w *walker) rangeOf(n *tree_sitter.Node) lsp.Range {
	r := n.Range()
	return lsp.Range{
		Start: lsp.Position{Line: int32(r.StartPoint.Row), Character: int32(r.StartPoint.Column)},
		End:   lsp.Position{Line: int32(r.EndPoint.Row), Character: int32(r.EndPoint.Column)},
	}
}

func (w *walker) node(id string, kind NodeKind, n *tree_sitter.Node) *Node {
	text := n.Utf8Text(w.src)
	if kind == KindString || (kind == KindKey && strings.HasPrefix(text, `"`)) || (kind == KindKey && strings.HasPrefix(text, `'`)) {
		text = unquote(text)
	}
	r := n.Range()
	node := &Node{
		ID:        id,
		Kind:      kind,
		Text:      text,
		StartByte: r.StartByte,
		EndByte:   r.EndByte,
		Range:     w.rangeOf(n),
	}
	w.tree.insert(node)
	return node
}

func (w *walker) insertComment(n *tree_sitter.Node, seq *int) {
	*seq++
	w.node(fmt.Sprintf("comment[%d]", *seq), KindComment, n)
}

// collectErrors walks the whole tree once for ERROR and MISSING nodes.
func (w *walker) collectErrors(n *tree_sitter.Node) {
	if n.IsError() {
		w.tree.addError(fmt.Sprintf("syntax error near %q", truncate(n.Utf8Text(w.src), 24)), w.rangeOf(n))
		return
	}
	if n.IsMissing() {
		w.tree.addError(fmt.Sprintf("missing %s", n.Kind()), w.rangeOf(n))
		return
	}
	if !n.HasError() {
		return
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		w.collectErrors(n.Child(i))
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// keySegments flattens a bare_key, quoted_key or dotted_key into its parts.
// The nodes of the individual segments are returned alongside the text.
func (w *walker) keySegments(n *tree_sitter.Node) ([]string, []*tree_sitter.Node) {
	switch n.Kind() {
	case "bare_key":
		return []string{n.Utf8Text(w.src)}, []*tree_sitter.Node{n}
	case "quoted_key":
		return []string{unquote(n.Utf8Text(w.src))}, []*tree_sitter.Node{n}
	case "dotted_key":
		var segs []string
		var nodes []*tree_sitter.Node
		for i := uint(0); i < n.NamedChildCount(); i++ {
			s, ns := w.keySegments(n.NamedChild(i))
			segs = append(segs, s...)
			nodes = append(nodes, ns...)
		}
		return segs, nodes
	default:
		return nil, nil
	}
}

func unquote(s string) string {
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}

// table handles a [section] or [[section]] element.
func (w *walker) table(n *tree_sitter.Node, isArray bool) {
	if n.NamedChildCount() == 0 {
		return
	}
	keyNode := n.NamedChild(0)
	segs, segNodes := w.keySegments(keyNode)
	if len(segs) == 0 {
		return
	}
	path := strings.Join(segs, ".")
	if isArray {
		if w.arrayTableSeq == nil {
			w.arrayTableSeq = make(map[string]int)
		}
		w.arrayTableSeq[path]++
		path = fmt.Sprintf("%s[%d]", path, w.arrayTableSeq[path]-1)
	}

	// header node: from the opening bracket through the key
	r := n.Range()
	kr := keyNode.Range()
	header := &Node{
		ID:        path,
		Kind:      KindTable,
		Text:      keyNode.Utf8Text(w.src),
		StartByte: r.StartByte,
		EndByte:   kr.EndByte + 1,
		Range: lsp.Range{
			Start: w.rangeOf(n).Start,
			End:   lsp.Position{Line: int32(kr.EndPoint.Row), Character: int32(kr.EndPoint.Column) + 1},
		},
	}
	w.tree.insert(header)

	dep, platform, rest := classifyDependencyPath(segs)
	switch {
	case dep != nil && len(rest) == 0:
		// [dependencies] style: each pair is one dependency entry
		w.dependencyTable(path, *dep, platform, n)
	case dep != nil && len(rest) == 1:
		// [dependencies.serde] style: the table itself is the entry
		last := segNodes[len(segNodes)-1]
		w.dependencyFromTable(path, *dep, platform, rest[0], last, n)
	default:
		var commentSeq int
		for i := uint(1); i < n.NamedChildCount(); i++ {
			child := n.NamedChild(i)
			switch child.Kind() {
			case "pair":
				w.pair(path, child)
			case "comment":
				w.insertComment(child, &commentSeq)
			}
		}
	}
}

// classifyDependencyPath decides whether header segments name a dependency
// table. It returns the table, the platform cfg (for target sections) and
// any trailing segments (the entry name for subtable style).
func classifyDependencyPath(segs []string) (*Table, string, []string) {
	if t, ok := TableFromName(segs[0]); ok {
		return &t, "", segs[1:]
	}
	if segs[0] == "workspace" && len(segs) >= 2 && segs[1] == "dependencies" {
		t := TableWorkspace
		return &t, "", segs[2:]
	}
	if segs[0] == "target" && len(segs) >= 3 {
		if t, ok := TableFromName(segs[2]); ok {
			return &t, segs[1], segs[3:]
		}
	}
	return nil, "", nil
}

// pair records the symbol-table nodes for one `key = value` pair and
// recurses into composite values.
func (w *walker) pair(prefix string, n *tree_sitter.Node) {
	if n.NamedChildCount() < 2 {
		return
	}
	keyNode := n.NamedChild(0)
	valueNode := n.NamedChild(n.NamedChildCount() - 1)

	segs, segNodes := w.keySegments(keyNode)
	if len(segs) == 0 {
		return
	}
	path := joinPath(prefix, segs...)

	w.node(path, KindEntry, n)
	w.node(path, KindKey, segNodes[len(segNodes)-1])
	w.value(path, valueNode)
}

func joinPath(prefix string, segs ...string) string {
	parts := segs
	if prefix != "" {
		parts = append([]string{prefix}, segs...)
	}
	return strings.Join(parts, ".")
}

func (w *walker) value(path string, n *tree_sitter.Node) *Node {
	switch n.Kind() {
	case "string":
		return w.node(path, KindString, n)
	case "integer":
		return w.node(path, KindInteger, n)
	case "float":
		return w.node(path, KindFloat, n)
	case "boolean":
		return w.node(path, KindBool, n)
	case "array":
		node := w.node(path, KindArray, n)
		idx := 0
		for i := uint(0); i < n.NamedChildCount(); i++ {
			child := n.NamedChild(i)
			if child.Kind() == "comment" {
				continue
			}
			w.value(fmt.Sprintf("%s[%d]", path, idx), child)
			idx++
		}
		return node
	case "inline_table":
		node := w.node(path, KindInlineTable, n)
		for i := uint(0); i < n.NamedChildCount(); i++ {
			child := n.NamedChild(i)
			if child.Kind() == "pair" {
				w.pair(path, child)
			}
		}
		return node
	default:
		return nil
	}
}

// dependencyTable projects every pair of a `[dependencies]`-style section.
func (w *walker) dependencyTable(tablePath string, table Table, platform string, n *tree_sitter.Node) {
	var commentSeq int
	for i := uint(1); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		switch child.Kind() {
		case "comment":
			w.insertComment(child, &commentSeq)
		case "pair":
			if child.NamedChildCount() < 2 {
				continue
			}
			keyNode := child.NamedChild(0)
			valueNode := child.NamedChild(child.NamedChildCount() - 1)
			segs, segNodes := w.keySegments(keyNode)
			if len(segs) == 0 {
				continue
			}
			if len(segs) > 1 {
				// dotted form `serde.workspace = true`: the entry is the
				// first segment, the rest behaves like a table field
				w.dependencyDotted(tablePath, table, platform, segs, segNodes, child, valueNode)
				continue
			}
			alias := segs[0]
			path := joinPath(tablePath, alias)
			w.node(path, KindEntry, child)
			w.node(path, KindKey, segNodes[0])
			dep := w.newDependency(path, table, platform, alias, segNodes[0], child)
			w.dependencyValue(dep, path, valueNode)
			w.finishDependency(dep)
		}
	}
}

// dependencyFromTable projects a `[dependencies.serde]` subtable entry.
func (w *walker) dependencyFromTable(path string, table Table, platform, alias string, keyNode, n *tree_sitter.Node) {
	w.node(path, KindEntry, n)
	w.node(path, KindKey, keyNode)
	dep := w.newDependency(path, table, platform, alias, keyNode, n)
	for i := uint(1); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		if child.Kind() != "pair" || child.NamedChildCount() < 2 {
			continue
		}
		fieldKey := child.NamedChild(0)
		fieldValue := child.NamedChild(child.NamedChildCount() - 1)
		segs, segNodes := w.keySegments(fieldKey)
		if len(segs) != 1 {
			continue
		}
		fieldPath := joinPath(path, segs[0])
		w.node(fieldPath, KindEntry, child)
		w.node(fieldPath, KindKey, segNodes[0])
		w.dependencyField(dep, fieldPath, segs[0], fieldValue)
	}
	w.finishDependency(dep)
}

// dependencyDotted handles `serde.workspace = true` style entries.
func (w *walker) dependencyDotted(tablePath string, table Table, platform string, segs []string, segNodes []*tree_sitter.Node, pairNode, valueNode *tree_sitter.Node) {
	alias := segs[0]
	path := joinPath(tablePath, alias)
	dep := w.tree.Dependency(path)
	if dep == nil {
		w.node(path, KindKey, segNodes[0])
		dep = w.newDependency(path, table, platform, alias, segNodes[0], pairNode)
		defer w.finishDependency(dep)
	} else {
		// extend the entry range over this additional pair
		dep.EntryRange.End = w.rangeOf(pairNode).End
	}
	fieldPath := joinPath(path, segs[1])
	w.node(fieldPath, KindEntry, pairNode)
	w.node(fieldPath, KindKey, segNodes[1])
	w.dependencyField(dep, fieldPath, segs[1], valueNode)
}

func (w *walker) newDependency(path string, table Table, platform, alias string, keyNode, entryNode *tree_sitter.Node) *Dependency {
	return &Dependency{
		ID:         path,
		Table:      table,
		Platform:   platform,
		Name:       alias,
		Alias:      alias,
		KeyRange:   w.rangeOf(keyNode),
		EntryRange: w.rangeOf(entryNode),
	}
}

// dependencyValue projects the right-hand side of a dependency entry:
// either a bare requirement string or an inline table of fields.
func (w *walker) dependencyValue(dep *Dependency, path string, valueNode *tree_sitter.Node) {
	switch valueNode.Kind() {
	case "string":
		node := w.node(joinPath(path, "version"), KindString, valueNode)
		dep.Requirement = node.Text
		dep.RequirementRange = node.Range
	case "inline_table":
		w.node(path, KindInlineTable, valueNode)
		for i := uint(0); i < valueNode.NamedChildCount(); i++ {
			child := valueNode.NamedChild(i)
			if child.Kind() != "pair" || child.NamedChildCount() < 2 {
				continue
			}
			fieldKey := child.NamedChild(0)
			fieldValue := child.NamedChild(child.NamedChildCount() - 1)
			segs, segNodes := w.keySegments(fieldKey)
			if len(segs) != 1 {
				continue
			}
			fieldPath := joinPath(path, segs[0])
			w.node(fieldPath, KindKey, segNodes[0])
			w.dependencyField(dep, fieldPath, segs[0], fieldValue)
		}
	default:
		w.tree.addError(fmt.Sprintf("dependency %q must be a version string or a table", dep.Key()), w.rangeOf(valueNode))
	}
}

// dependencyField applies one field of a table-form dependency entry.
func (w *walker) dependencyField(dep *Dependency, fieldPath, field string, valueNode *tree_sitter.Node) {
	switch field {
	case "version":
		node := w.value(fieldPath, valueNode)
		if node != nil && node.Kind == KindString {
			dep.Requirement = node.Text
			dep.RequirementRange = node.Range
		}
	case "package":
		node := w.value(fieldPath, valueNode)
		if node != nil && node.Kind == KindString {
			dep.Name = node.Text
		}
	case "features":
		node := w.value(fieldPath, valueNode)
		if node != nil && node.Kind == KindArray {
			for i := 0; ; i++ {
				el := w.tree.LookupValue(fmt.Sprintf("%s[%d]", fieldPath, i))
				if el == nil {
					break
				}
				dep.Features = append(dep.Features, Feature{Name: el.Text, Range: el.Range})
			}
		}
	case "registry":
		node := w.value(fieldPath, valueNode)
		if node != nil && node.Kind == KindString {
			dep.Source.Registry = node.Text
		}
	case "git":
		node := w.value(fieldPath, valueNode)
		if node != nil && node.Kind == KindString {
			dep.Source.GitURL = node.Text
		}
	case "branch", "tag", "rev":
		node := w.value(fieldPath, valueNode)
		if node != nil && node.Kind == KindString {
			dep.Source.Ref = node.Text
			dep.Source.RefKind = field
		}
	case "path":
		node := w.value(fieldPath, valueNode)
		if node != nil && node.Kind == KindString {
			dep.Source.Path = node.Text
		}
	case "workspace":
		node := w.value(fieldPath, valueNode)
		if node != nil && node.Kind == KindBool && node.Text == "true" {
			dep.Source.Kind = SourceWorkspace
		}
	case "optional":
		node := w.value(fieldPath, valueNode)
		if node != nil && node.Kind == KindBool {
			dep.Optional = node.Text == "true"
		}
	case "default-features", "default_features":
		node := w.value(fieldPath, valueNode)
		if node != nil && node.Kind == KindBool {
			v := node.Text == "true"
			dep.DefaultFeatures = &v
		}
	default:
		w.value(fieldPath, valueNode)
	}
}

// finishDependency settles the source kind and enforces its exclusivity.
func (w *walker) finishDependency(dep *Dependency) {
	switch {
	case dep.Source.Kind == SourceWorkspace:
		if dep.Table == TableWorkspace {
			w.tree.addError(
				fmt.Sprintf("dependency %q in [workspace.dependencies] cannot use workspace = true", dep.Key()),
				dep.KeyRange)
			dep.Source.Kind = SourceUnspecified
			break
		}
		if dep.Requirement != "" || dep.Source.GitURL != "" || dep.Source.Path != "" {
			w.tree.addError(
				fmt.Sprintf("dependency %q inherits from the workspace and cannot also set version, git or path", dep.Key()),
				dep.KeyRange)
		}
	case dep.Source.GitURL != "":
		dep.Source.Kind = SourceGit
		if dep.Source.Path != "" {
			w.tree.addError(
				fmt.Sprintf("dependency %q specifies both git and path", dep.Key()),
				dep.KeyRange)
		}
	case dep.Source.Path != "":
		dep.Source.Kind = SourcePath
	case dep.Requirement != "" || dep.Source.Registry != "":
		dep.Source.Kind = SourceRegistry
	default:
		dep.Source.Kind = SourceUnspecified
	}
	if dep.Name == dep.Alias {
		dep.Alias = ""
	}
	w.tree.addDependency(dep)
}

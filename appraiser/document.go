package appraiser

import (
	"time"

	"github.com/corymhall/cargo-appraiser/cargo"
	"github.com/corymhall/cargo-appraiser/file"
	"github.com/corymhall/cargo-appraiser/lsp"
	"github.com/corymhall/cargo-appraiser/parser"
)

// DocState is the per-document state machine.
type DocState int

const (
	// StateParsed: text is parsed, no resolution stored or in flight.
	StateParsed DocState = iota
	// StateResolving: a resolution task is in flight.
	StateResolving
	// StateResolved: the stored resolution matches the manifest shape.
	StateResolved
	// StateStale: the manifest mutated since the last completed
	// resolution; the rendered state is the old resolution projected onto
	// the new dependency set.
	StateStale
	// StateResolveFailed: the last resolution ended in a hard error.
	StateResolveFailed
)

func (s DocState) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateResolving:
		return "resolving"
	case StateResolved:
		return "resolved"
	case StateStale:
		return "stale"
	case StateResolveFailed:
		return "resolveFailed"
	default:
		return "unknown"
	}
}

// Document is the per-manifest aggregate: text, parsed model, attached
// resolution records and the dirty bookkeeping that drives re-resolves.
type Document struct {
	URI  lsp.DocumentURI
	Path string
	Text string
	// Hash of Text; identical retransmissions skip the re-parse.
	Hash file.Hash
	// Version is the LSP text document version; out-of-order updates with
	// a lower version are discarded.
	Version int32
	// Rev is the generation counter, incremented on every text mutation.
	// Background tasks capture it at dispatch time.
	Rev uint64

	Tree  *parser.Tree
	State DocState
	// LastErr holds the error that moved the document to
	// StateResolveFailed.
	LastErr *cargo.Error

	// Resolved attaches resolution records to dependencies by entry id.
	Resolved map[string]*cargo.Resolved
	// DirtyDeps maps a dependency id to the revision that made it dirty.
	// A completion applies to a dependency iff its dirty revision is not
	// newer than the revision the task captured.
	DirtyDeps map[string]uint64

	// Members is the workspace member set from the last resolution.
	Members []cargo.WorkspaceMember

	DirtySince time.Time
}

func newDocument(uri lsp.DocumentURI, path string) *Document {
	return &Document{
		URI:       uri,
		Path:      path,
		State:     StateParsed,
		Resolved:  make(map[string]*cargo.Resolved),
		DirtyDeps: make(map[string]uint64),
	}
}

// update replaces the document text and re-parses. It returns the
// structural diff against the previous dependency set: the ids that
// appeared, changed or vanished. An empty diff means the held resolution
// is still authoritative (§ reconciliation across edits).
func (d *Document) update(p *parser.Parser, text string, version int32) (changed []string) {
	hash := file.HashOf([]byte(text))
	if d.Tree != nil && hash == d.Hash {
		// same bytes again; not a mutation
		if version != 0 {
			d.Version = version
		}
		return nil
	}

	var oldShapes map[string]string
	if d.Tree != nil {
		oldShapes = shapeMap(d.Tree)
	}

	d.Text = text
	d.Hash = hash
	if version != 0 {
		d.Version = version
	}
	d.Rev++
	d.Tree = p.Parse(text)

	newShapes := shapeMap(d.Tree)
	for key, shape := range newShapes {
		if old, ok := oldShapes[key]; !ok || old != shape {
			changed = append(changed, key)
		}
	}
	for key := range oldShapes {
		if _, ok := newShapes[key]; !ok {
			changed = append(changed, key)
		}
	}

	if len(changed) > 0 {
		d.DirtySince = time.Now()
	}
	return changed
}

// shapeMap keys each dependency by table/platform/alias and hashes the
// fields whose change invalidates a resolution. Whitespace, comments and
// feature edits do not alter it.
func shapeMap(tree *parser.Tree) map[string]string {
	shapes := make(map[string]string)
	for _, dep := range tree.Dependencies() {
		shapes[dep.ShapeKey()] = dep.Shape()
	}
	return shapes
}

// markAllDirty queues every dependency for re-resolution at the current
// revision.
func (d *Document) markAllDirty() {
	if d.Tree == nil {
		return
	}
	for _, dep := range d.Tree.Dependencies() {
		d.DirtyDeps[dep.ID] = d.Rev
	}
	d.DirtySince = time.Now()
}

// markDirtyByShapeKeys queues the dependencies whose shape keys changed.
// Records for unchanged keys stay attached, so their decorations survive.
func (d *Document) markDirtyByShapeKeys(keys []string) {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	for _, dep := range d.Tree.Dependencies() {
		if set[dep.ShapeKey()] {
			d.DirtyDeps[dep.ID] = d.Rev
			delete(d.Resolved, dep.ID)
		}
	}
	// drop attachments for entries that no longer exist
	for id := range d.Resolved {
		if d.Tree.Dependency(id) == nil {
			delete(d.Resolved, id)
		}
	}
	for id := range d.DirtyDeps {
		if d.Tree.Dependency(id) == nil {
			delete(d.DirtyDeps, id)
		}
	}
}

// isDirty reports whether any dependency still waits for resolution.
func (d *Document) isDirty() bool { return len(d.DirtyDeps) > 0 }

// dependencyAt returns the dependency whose entry encloses the position.
func (d *Document) dependencyAt(pos lsp.Position) *parser.Dependency {
	if d.Tree == nil {
		return nil
	}
	return d.Tree.FindDependencyAt(pos)
}

// lookupKey builds the resolution key for a dependency: the effective
// crate name joins cargo's name-keyed output back to this entry.
func lookupKey(dep *parser.Dependency) cargo.LookupKey {
	table := dep.Table
	if table == parser.TableWorkspace {
		table = parser.TableNormal
	}
	return cargo.LookupKey{
		Table:    table,
		Platform: dep.Platform,
		Name:     dep.PackageName(),
	}
}

// resolvedFor finds the record for a dependency in an index, falling back
// to a name-only search for workspace-inherited entries whose concrete
// table is decided by the member manifests.
func resolvedFor(index *cargo.Index, dep *parser.Dependency) *cargo.Resolved {
	if dep.Table == parser.TableWorkspace || dep.IsWorkspaceInherited() {
		return index.FindByName(dep.PackageName(), dep.Platform)
	}
	return index.Get(lookupKey(dep))
}

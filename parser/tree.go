package parser

import (
	"sort"

	"github.com/corymhall/cargo-appraiser/lsp"
)

// Tree is the parsed manifest: a flat symbol table keyed by canonical path,
// a position index for point lookups, and the dependency projection.
type Tree struct {
	mapper *Mapper

	// keys and values map canonical paths to the key token and the value
	// node of each entry. A path may have both.
	keys   map[string]*Node
	values map[string]*Node

	// sorted holds every node ordered by start offset, for FindAt.
	sorted []*Node

	deps    []*Dependency
	depByID map[string]*Dependency

	errors []ParseError
}

func newTree(text string) *Tree {
	return &Tree{
		mapper:  NewMapper(text),
		keys:    make(map[string]*Node),
		values:  make(map[string]*Node),
		depByID: make(map[string]*Dependency),
	}
}

// Mapper returns the byte-offset/position converter for the parsed text.
func (t *Tree) Mapper() *Mapper { return t.mapper }

// Errors returns the recoverable parse errors, in document order.
func (t *Tree) Errors() []ParseError { return t.errors }

// Dependencies returns the projected dependency records in document order.
func (t *Tree) Dependencies() []*Dependency { return t.deps }

// Dependency returns the dependency with the given canonical entry path.
func (t *Tree) Dependency(id string) *Dependency { return t.depByID[id] }

// LookupValue returns the value node at the canonical path.
func (t *Tree) LookupValue(path string) *Node { return t.values[path] }

// LookupKey returns the key token at the canonical path.
func (t *Tree) LookupKey(path string) *Node { return t.keys[path] }

// Lookup returns the node at the canonical path, preferring the value node.
func (t *Tree) Lookup(path string) *Node {
	if n := t.values[path]; n != nil {
		return n
	}
	return t.keys[path]
}

// Nodes iterates over every node in start-offset order.
func (t *Tree) Nodes() []*Node { return t.sorted }

func (t *Tree) insert(n *Node) {
	switch n.Kind {
	case KindKey:
		t.keys[n.ID] = n
	case KindEntry, KindComment:
		// addressable by position only
	default:
		t.values[n.ID] = n
	}
	t.sorted = append(t.sorted, n)
}

func (t *Tree) addDependency(d *Dependency) {
	t.deps = append(t.deps, d)
	t.depByID[d.ID] = d
}

func (t *Tree) addError(msg string, rng lsp.Range) {
	t.errors = append(t.errors, ParseError{Message: msg, Range: rng})
}

// buildIndex must be called once after the walk, before FindAt.
func (t *Tree) buildIndex() {
	sort.SliceStable(t.sorted, func(i, j int) bool {
		if t.sorted[i].StartByte != t.sorted[j].StartByte {
			return t.sorted[i].StartByte < t.sorted[j].StartByte
		}
		// wider first, so the leftward scan in FindAtOffset meets the
		// narrower of two nodes sharing a start first
		return t.sorted[i].width() > t.sorted[j].width()
	})
}

// FindAt returns the innermost node whose range contains the position, or
// nil when the position falls outside every node. Sibling ranges do not
// overlap, so "innermost" is simply the narrowest containing node.
func (t *Tree) FindAt(pos lsp.Position) *Node {
	return t.FindAtOffset(t.mapper.PositionToOffset(pos))
}

// FindAtOffset is FindAt for a byte offset.
func (t *Tree) FindAtOffset(offset uint) *Node {
	// rightmost node starting at or before offset
	idx := sort.Search(len(t.sorted), func(i int) bool {
		return t.sorted[i].StartByte > offset
	}) - 1

	var best *Node
	for i := idx; i >= 0; i-- {
		n := t.sorted[i]
		if best != nil && offset-n.StartByte >= best.width() {
			// every node further left is at least this far away and
			// cannot be narrower than the current best
			break
		}
		if n.Contains(offset) && (best == nil || n.width() < best.width()) {
			best = n
		}
	}
	return best
}

// FindDependencyAt returns the dependency whose entry range contains the
// position, or nil.
func (t *Tree) FindDependencyAt(pos lsp.Position) *Dependency {
	offset := t.mapper.PositionToOffset(pos)
	for _, d := range t.deps {
		start := t.mapper.PositionToOffset(d.EntryRange.Start)
		end := t.mapper.PositionToOffset(d.EntryRange.End)
		if offset >= start && offset < end {
			return d
		}
	}
	return nil
}

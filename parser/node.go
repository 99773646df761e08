package parser

import (
	"github.com/corymhall/cargo-appraiser/lsp"
)

// NodeKind is the syntactic class of a node in the manifest tree.
type NodeKind int

const (
	KindUnknown NodeKind = iota
	// KindTable is a table header, e.g. `[dependencies]`.
	KindTable
	// KindKey is the key side of a pair, e.g. `serde` in `serde = "1.0"`.
	KindKey
	// KindEntry is a whole `key = value` pair or a `[table.entry]` subtable.
	KindEntry
	KindString
	KindInteger
	KindFloat
	KindBool
	KindArray
	KindInlineTable
	KindComment
)

func (k NodeKind) String() string {
	switch k {
	case KindTable:
		return "table"
	case KindKey:
		return "key"
	case KindEntry:
		return "entry"
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	case KindInlineTable:
		return "inline-table"
	case KindComment:
		return "comment"
	default:
		return "unknown"
	}
}

// Node is one node of the concrete syntax tree, addressed by its canonical
// dotted path. Key and value nodes share a path and are told apart by Kind.
type Node struct {
	// ID is the canonical dotted path from the document root,
	// e.g. "dependencies.serde.version".
	ID   string
	Kind NodeKind
	// Text is the raw source text. For strings the quotes are stripped.
	Text      string
	StartByte uint
	EndByte   uint
	Range     lsp.Range
}

// Contains reports whether the byte offset falls inside the node. The end
// offset is exclusive.
func (n *Node) Contains(offset uint) bool {
	return offset >= n.StartByte && offset < n.EndByte
}

func (n *Node) width() uint {
	return n.EndByte - n.StartByte
}

// IsKey reports whether this node is a key token.
func (n *Node) IsKey() bool { return n.Kind == KindKey }

// IsValue reports whether this node is a value (anything that can appear on
// the right side of `=`).
func (n *Node) IsValue() bool {
	switch n.Kind {
	case KindString, KindInteger, KindFloat, KindBool, KindArray, KindInlineTable:
		return true
	}
	return false
}

// ParseError is a recoverable syntax error with its source range.
type ParseError struct {
	Message string
	Range   lsp.Range
}

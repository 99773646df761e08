package file

import (
	"crypto/sha256"

	"github.com/corymhall/cargo-appraiser/lsp"
)

type Hash [sha256.Size]byte

func HashOf(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// Modification represents a modification to a manifest file.
type Modification struct {
	URI    lsp.DocumentURI
	Action Action

	// OnDisk is true if a watched file is changed on disk.
	// If true, Version will be -1 and Text will be nil.
	OnDisk bool

	// Version is -1 on textDocument/didClose and 0 on textDocument/didSave,
	// which carries no version. Text is nil on didClose, and on didSave
	// when the client sent no text.
	Version int32
	Text    []byte

	// LanguageID is only sent from the language client on textDocument/didOpen.
	LanguageID lsp.LanguageKind
}

// An Action is a type of file state change.
type Action int

const (
	UnknownAction = Action(iota)
	Open
	Change
	Close
	Save
	Create
	Delete
)

func (a Action) String() string {
	switch a {
	case Open:
		return "Open"
	case Change:
		return "Change"
	case Close:
		return "Close"
	case Save:
		return "Save"
	case Create:
		return "Create"
	case Delete:
		return "Delete"
	default:
		return "Unknown"
	}
}

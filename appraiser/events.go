package appraiser

import (
	"encoding/json"

	"github.com/corymhall/cargo-appraiser/audit"
	"github.com/corymhall/cargo-appraiser/cargo"
	"github.com/corymhall/cargo-appraiser/file"
	"github.com/corymhall/cargo-appraiser/lsp"
	"github.com/google/uuid"
)

// Event is one message on the engine's input channel. The engine is a
// single-owner actor: editor notifications, task completions and queries
// all arrive here and are handled strictly serially.
type Event interface{ isEvent() }

// DocumentChanged is an open, change or save of a manifest. Text is the
// full document, or empty for a save that arrived without text.
type DocumentChanged struct {
	URI     lsp.DocumentURI
	Text    string
	Version int32
	Action  file.Action
}

// DocumentClosed destroys the document and cancels its tasks.
type DocumentClosed struct {
	URI lsp.DocumentURI
}

// ParseOnly parses a manifest into the document map without scheduling a
// resolve. Used for the workspace root manifest fetched out-of-band.
type ParseOnly struct {
	URI  lsp.DocumentURI
	Text string
}

// ReadyToResolve fires from the debouncer when a manifest has been idle
// long enough.
type ReadyToResolve struct {
	URI lsp.DocumentURI
	Rev uint64
}

// ResolveDone is the completion of a background cargo resolution.
type ResolveDone struct {
	URI    lsp.DocumentURI
	Rev    uint64
	Token  uuid.UUID
	Result *cargo.Result
	Err    *cargo.Error
}

// AuditDone is the completion of a background cargo-audit run.
type AuditDone struct {
	Index *audit.Index
	Err   *audit.Error
}

// LockfileChanged reports that a Cargo.lock was touched outside the
// editor, e.g. by a build.
type LockfileChanged struct {
	Path string
}

// ConfigChanged carries new initialization options or a
// didChangeConfiguration payload.
type ConfigChanged struct {
	Raw json.RawMessage
}

// HoverRequest asks for a hover against the current document snapshot.
// The reply channel has capacity one; the engine never blocks on it.
type HoverRequest struct {
	URI      lsp.DocumentURI
	Position lsp.Position
	Reply    chan *lsp.Hover
}

// CodeActionRequest asks for code actions over a range.
type CodeActionRequest struct {
	URI   lsp.DocumentURI
	Range lsp.Range
	Reply chan []lsp.CodeAction
}

// DefinitionRequest asks for goto-definition at a position.
type DefinitionRequest struct {
	URI      lsp.DocumentURI
	Position lsp.Position
	Reply    chan []lsp.Location
}

func (DocumentChanged) isEvent()   {}
func (DocumentClosed) isEvent()    {}
func (ParseOnly) isEvent()         {}
func (ReadyToResolve) isEvent()    {}
func (ResolveDone) isEvent()       {}
func (AuditDone) isEvent()         {}
func (LockfileChanged) isEvent()   {}
func (ConfigChanged) isEvent()     {}
func (HoverRequest) isEvent()      {}
func (CodeActionRequest) isEvent() {}
func (DefinitionRequest) isEvent() {}

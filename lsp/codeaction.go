package lsp

type CodeActionParams struct {
	WorkDoneProgressOptions
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Range        Range                  `json:"range"`
	Context      CodeActionContext      `json:"context"`
}

type CodeActionKind string

const (
	CodeActionKindEmpty    CodeActionKind = ""
	CodeActionKindQuickFix CodeActionKind = "quickfix"
	CodeActionKindRefactor CodeActionKind = "refactor"
	CodeActionKindSource   CodeActionKind = "source"
)

type TriggerKind int

const (
	TriggerKindInvoked TriggerKind = 1
	TriggerKindAuto    TriggerKind = 2
)

type CodeActionContext struct {
	Diagnostics []Diagnostic     `json:"diagnostics"`
	Only        []CodeActionKind `json:"only,omitempty"`
	TriggerKind TriggerKind      `json:"triggerKind,omitempty"`
}

type CodeAction struct {
	// A short, human-readable, title for this code action.
	Title string `json:"title"`
	// The kind of the code action. Used to filter code actions.
	Kind CodeActionKind `json:"kind"`
	// The workspace edit this code action performs.
	Edit *WorkspaceEdit `json:"edit,omitempty"`
	// The diagnostics that this code action resolves
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
	Command     *Command     `json:"command,omitempty"`
}

type Command struct {
	Title     string `json:"title"`
	Command   string `json:"command"`
	Arguments []any  `json:"arguments,omitempty"`
}

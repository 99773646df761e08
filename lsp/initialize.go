package lsp

import "encoding/json"

type InitializeRequestParams struct {
	WorkDoneProgressCreateParams
	ClientInfo            *ClientInfo        `json:"clientInfo"`
	RootURI               DocumentURI        `json:"rootUri"`
	Capabilities          ClientCapabilities `json:"capabilities"`
	InitializationOptions json.RawMessage    `json:"initializationOptions,omitempty"`
	// ... there's tons more that goes here
}

type ClientCapabilities struct {
	Window    ClientWindowCapabilities    `json:"window"`
	Workspace ClientWorkspaceCapabilities `json:"workspace"`
}

type ClientWindowCapabilities struct {
	WorkDoneProgress bool `json:"workDoneProgress"`
}

type ClientWorkspaceCapabilities struct {
	DidChangeWatchedFiles DynamicRegistrationCapability `json:"didChangeWatchedFiles"`
}

type DynamicRegistrationCapability struct {
	DynamicRegistration bool `json:"dynamicRegistration"`
}

type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   ServerInfo         `json:"serverInfo"`
}

type InitializedParams struct{}

type WorkDoneProgressOptions struct {
	WorkDoneProgress bool `json:"workDoneProgress"`
}

type CodeActionProviderOptions struct {
	CodeActionKinds []CodeActionKind `json:"codeActionKinds"`
}

type TextDocumentSyncOptions struct {
	OpenClose bool        `json:"openClose"`
	Change    int         `json:"change"`
	Save      SaveOptions `json:"save"`
}

type SaveOptions struct {
	IncludeText bool `json:"includeText"`
}

type ServerCapabilities struct {
	TextDocumentSync   TextDocumentSyncOptions   `json:"textDocumentSync"`
	HoverProvider      bool                      `json:"hoverProvider"`
	DefinitionProvider bool                      `json:"definitionProvider"`
	InlayHintProvider  bool                      `json:"inlayHintProvider"`
	CodeActionProvider CodeActionProviderOptions `json:"codeActionProvider"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

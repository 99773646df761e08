package lsp

import (
	"context"

	"github.com/corymhall/cargo-appraiser/rpc"
	"github.com/corymhall/cargo-appraiser/xcontext"
)

// Client is the server-to-client half of the protocol: standard LSP
// notifications and requests plus the cargo-appraiser decoration extension.
type Client interface {
	// See https://microsoft.github.io/language-server-protocol/specifications/lsp/3.17/specification#textDocument_publishDiagnostics
	PublishDiagnostics(context.Context, *PublishDiagnosticsParams) error
	// See https://microsoft.github.io/language-server-protocol/specifications/lsp/3.17/specification#window_showMessage
	ShowMessage(context.Context, *ShowMessageParams) error
	// See https://microsoft.github.io/language-server-protocol/specifications/lsp/3.17/specification#window_logMessage
	LogMessage(context.Context, *LogMessageParams) error
	// See https://microsoft.github.io/language-server-protocol/specifications/lsp/3.17/specification#window_workDoneProgress_create
	WorkDoneProgressCreate(context.Context, *WorkDoneProgressCreateParams) error
	// See https://microsoft.github.io/language-server-protocol/specifications/lsp/3.17/specification#progress
	ProgressBegin(context.Context, *WorkDoneProgressBeginParams) error
	// See https://microsoft.github.io/language-server-protocol/specifications/lsp/3.17/specification#progress
	ProgressEnd(context.Context, *WorkDoneProgressEndParams) error
	// See https://microsoft.github.io/language-server-protocol/specifications/lsp/3.17/specification#client_registerCapability
	RegisterCapability(context.Context, *RegistrationParams) error

	// ReplaceAllDecorations replaces every decoration the client holds for a
	// document. Custom request, only understood by the VS Code extension.
	ReplaceAllDecorations(context.Context, *ReplaceAllDecorationsParams) error
	// ResetDecorations clears all decorations for a document.
	ResetDecorations(context.Context, *ResetDecorationsParams) error
	// ReadFile asks the client for the buffer content of a file the server
	// may not be able to read from disk. Requires the readFile capability.
	ReadFile(context.Context, *ReadFileParams) (*ReadFileResponse, error)
}

type connSender interface {
	Notify(ctx context.Context, method string, params any) error
	Call(ctx context.Context, method string, params, result any) error
}

type clientDispatcher struct {
	sender connSender
}

func ClientDispatcher(conn rpc.Conn) Client {
	return &clientDispatcher{
		sender: clientConn{conn},
	}
}

type clientConn struct {
	conn rpc.Conn
}

func (c clientConn) Notify(ctx context.Context, method string, params any) error {
	return c.conn.Notify(ctx, method, params)
}

func (c clientConn) Call(ctx context.Context, method string, params any, result any) error {
	id, err := c.conn.Call(ctx, method, params, result)
	if ctx.Err() != nil {
		cancelCall(ctx, c, id)
	}
	return err
}

// See https://microsoft.github.io/language-server-protocol/specifications/lsp/3.17/specification#cancelParams
type CancelParams struct {
	// The request id to cancel.
	ID any `json:"id"`
}

func cancelCall(ctx context.Context, sender connSender, id any) {
	ctx = xcontext.Detach(ctx)
	_ = sender.Notify(ctx, "$/cancelRequest", &CancelParams{ID: &id})
}

func (c *clientDispatcher) PublishDiagnostics(ctx context.Context, params *PublishDiagnosticsParams) error {
	return c.sender.Notify(ctx, "textDocument/publishDiagnostics", params)
}

func (c *clientDispatcher) ShowMessage(ctx context.Context, params *ShowMessageParams) error {
	return c.sender.Notify(ctx, "window/showMessage", params)
}

func (c *clientDispatcher) LogMessage(ctx context.Context, params *LogMessageParams) error {
	return c.sender.Notify(ctx, "window/logMessage", params)
}

func (c *clientDispatcher) WorkDoneProgressCreate(ctx context.Context, params *WorkDoneProgressCreateParams) error {
	return c.sender.Call(ctx, "window/workDoneProgress/create", params, nil)
}

func (c *clientDispatcher) ProgressBegin(ctx context.Context, params *WorkDoneProgressBeginParams) error {
	return c.sender.Notify(ctx, "$/progress", params)
}

func (c *clientDispatcher) ProgressEnd(ctx context.Context, params *WorkDoneProgressEndParams) error {
	return c.sender.Notify(ctx, "$/progress", params)
}

func (c *clientDispatcher) RegisterCapability(ctx context.Context, params *RegistrationParams) error {
	return c.sender.Call(ctx, "client/registerCapability", params, nil)
}

func (c *clientDispatcher) ReplaceAllDecorations(ctx context.Context, params *ReplaceAllDecorationsParams) error {
	return c.sender.Call(ctx, MethodDecorationReplaceAll, params, nil)
}

func (c *clientDispatcher) ResetDecorations(ctx context.Context, params *ResetDecorationsParams) error {
	return c.sender.Call(ctx, MethodDecorationReset, params, nil)
}

func (c *clientDispatcher) ReadFile(ctx context.Context, params *ReadFileParams) (*ReadFileResponse, error) {
	var result ReadFileResponse
	if err := c.sender.Call(ctx, MethodReadFile, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

package server

import (
	"context"
	"log/slog"

	"github.com/corymhall/cargo-appraiser/appraiser"
	"github.com/corymhall/cargo-appraiser/debug"
	"github.com/corymhall/cargo-appraiser/file"
	"github.com/corymhall/cargo-appraiser/lsp"
)

// didModifyManifest translates a file modification into engine events.
// Only Cargo.toml files are appraised; everything else was filtered by the
// callers.
func (s *server) didModifyManifest(ctx context.Context, mod file.Modification) {
	if mod.Action == file.Close {
		s.engine.Send(appraiser.DocumentClosed{URI: mod.URI})
		return
	}
	s.engine.SendEdit(appraiser.DocumentChanged{
		URI:     mod.URI,
		Text:    string(mod.Text),
		Version: mod.Version,
		Action:  mod.Action,
	})
}

func (s *server) DidOpen(ctx context.Context, params *lsp.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	if file.KindForURI(uri) != file.Manifest {
		return nil
	}
	s.didModifyManifest(ctx, file.Modification{
		URI:        uri,
		Action:     file.Open,
		Version:    params.TextDocument.Version,
		Text:       []byte(params.TextDocument.Text),
		LanguageID: params.TextDocument.LanguageID,
	})
	if s.watcher != nil {
		if path, err := uri.Path(); err == nil {
			s.watcher.watchManifest(path)
		}
	}
	return nil
}

func (s *server) DidChange(ctx context.Context, params *lsp.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI
	if file.KindForURI(uri) != file.Manifest {
		return nil
	}
	// full sync: take the last full-document change of the batch
	text, ok := "", false
	for _, change := range params.ContentChanges {
		if change.Range == nil {
			text, ok = change.Text, true
		}
	}
	if !ok {
		return nil
	}
	s.didModifyManifest(ctx, file.Modification{
		URI:     uri,
		Action:  file.Change,
		Version: params.TextDocument.Version,
		Text:    []byte(text),
	})
	return nil
}

func (s *server) DidSave(ctx context.Context, params *lsp.DidSaveTextDocumentParams) error {
	ctx, done := debug.Start(ctx, "DidSave", slog.String("uri", string(params.TextDocument.URI)))
	defer done()
	uri := params.TextDocument.URI
	if file.KindForURI(uri) != file.Manifest {
		return nil
	}
	mod := file.Modification{
		URI:    uri,
		Action: file.Save,
	}
	if params.Text != nil {
		mod.Text = []byte(*params.Text)
	}
	s.didModifyManifest(ctx, mod)
	return nil
}

func (s *server) DidClose(ctx context.Context, params *lsp.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI
	if file.KindForURI(uri) != file.Manifest {
		return nil
	}
	s.didModifyManifest(ctx, file.Modification{
		URI:     uri,
		Action:  file.Close,
		Version: -1,
	})
	if s.watcher != nil {
		if path, err := uri.Path(); err == nil {
			s.watcher.unwatchManifest(path)
		}
	}
	return nil
}

func (s *server) Hover(ctx context.Context, params *lsp.HoverParams) (*lsp.Hover, error) {
	ctx, done := debug.Start(ctx, "Hover")
	defer done()
	uri := params.TextDocument.URI
	if file.KindForURI(uri) != file.Manifest {
		return nil, nil
	}
	return s.engine.Hover(ctx, uri, params.Position), nil
}

func (s *server) CodeAction(ctx context.Context, params *lsp.CodeActionParams) ([]lsp.CodeAction, error) {
	ctx, done := debug.Start(ctx, "CodeAction")
	defer done()
	uri := params.TextDocument.URI
	if file.KindForURI(uri) != file.Manifest {
		return nil, nil
	}
	return s.engine.CodeActions(ctx, uri, params.Range), nil
}

func (s *server) Definition(ctx context.Context, params *lsp.DefinitionParams) ([]lsp.Location, error) {
	ctx, done := debug.Start(ctx, "Definition")
	defer done()
	uri := params.TextDocument.URI
	if file.KindForURI(uri) != file.Manifest {
		return nil, nil
	}
	return s.engine.Definition(ctx, uri, params.Position), nil
}

func (s *server) InlayHint(ctx context.Context, params *lsp.InlayHintParams) ([]lsp.InlayHint, error) {
	uri := params.TextDocument.URI
	if file.KindForURI(uri) != file.Manifest {
		return nil, nil
	}
	return s.renderer.InlayHints(uri, params.Range), nil
}

package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/corymhall/cargo-appraiser/appraiser"
	"github.com/corymhall/cargo-appraiser/config"
	"github.com/corymhall/cargo-appraiser/lsp"
	"github.com/corymhall/cargo-appraiser/rpc"
)

func (s *server) Initialize(ctx context.Context, params *lsp.InitializeRequestParams) (*lsp.InitializeResult, error) {
	s.stateMu.Lock()
	if s.state >= serverInitializing {
		defer s.stateMu.Unlock()
		return nil, fmt.Errorf("%w: initialize called while server in %v state", errors.New(rpc.ErrInvalidRequest), s.state)
	}
	s.state = serverInitializing
	s.stateMu.Unlock()

	s.rootURI = params.RootURI
	s.engine.SetSupportsWorkDoneProgress(params.Capabilities.Window.WorkDoneProgress)
	s.clientWatching = params.Capabilities.Workspace.DidChangeWatchedFiles.DynamicRegistration

	cfg, err := config.Parse(params.InitializationOptions)
	if err != nil {
		s.logger.Printf("bad initialization options, using defaults: %v", err)
		cfg = config.Default()
	}
	config.Set(cfg)

	return &lsp.InitializeResult{
		Capabilities: lsp.ServerCapabilities{
			TextDocumentSync: lsp.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    1, // full documents
				Save:      lsp.SaveOptions{IncludeText: true},
			},
			HoverProvider:      true,
			DefinitionProvider: true,
			InlayHintProvider:  true,
			CodeActionProvider: lsp.CodeActionProviderOptions{
				CodeActionKinds: []lsp.CodeActionKind{
					lsp.CodeActionKindQuickFix,
					lsp.CodeActionKindSource,
				},
			},
		},
		ServerInfo: lsp.ServerInfo{
			Name:    "cargo-appraiser",
			Version: "0.1.0",
		},
	}, nil
}

func (s *server) Initialized(ctx context.Context, params *lsp.InitializedParams) error {
	s.stateMu.Lock()
	if s.state >= serverInitialized {
		defer s.stateMu.Unlock()
		return fmt.Errorf("%w: initialized called while server in %v state", errors.New(rpc.ErrInvalidRequest), s.state)
	}
	s.state = serverInitialized
	s.stateMu.Unlock()

	// run the engine for the rest of the session
	s.engineCtx, s.engineCancel = context.WithCancel(s.detach(ctx))
	go s.engine.Run(s.engineCtx)

	// the lock file changes under the editor whenever the build tool runs
	if s.clientWatching {
		if err := s.client.RegisterCapability(ctx, &lsp.RegistrationParams{
			Registrations: []lsp.Registration{{
				ID:     "cargo-appraiser-lock-watch",
				Method: "workspace/didChangeWatchedFiles",
				RegisterOptions: lsp.DidChangeWatchedFilesRegistrationOptions{
					Watchers: []lsp.FileSystemWatcher{{GlobPattern: "**/Cargo.lock"}},
				},
			}},
		}); err != nil {
			s.logger.Printf("watch registration failed, falling back to fsnotify: %v", err)
			s.clientWatching = false
		}
	}
	if !s.clientWatching {
		w, err := newLockWatcher(s.logger, func(path string) {
			s.engine.Send(appraiser.LockfileChanged{Path: path})
		})
		if err != nil {
			s.logger.Printf("fsnotify unavailable, lock changes will go unnoticed: %v", err)
		} else {
			s.watcher = w
		}
	}
	return nil
}

package server

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/corymhall/cargo-appraiser/appraiser"
	"github.com/corymhall/cargo-appraiser/lsp"
	"github.com/corymhall/cargo-appraiser/render"
	"github.com/corymhall/cargo-appraiser/xcontext"
)

// Options are the startup choices from the command line.
type Options struct {
	// Renderer selects the decoration or inlay-hint variant, once.
	Renderer render.Kind
	// CargoPath overrides the cargo binary location.
	CargoPath string
	// ClientCapabilities lists the custom capabilities the editor
	// extension advertised, e.g. "readFile".
	ClientCapabilities []string
}

type serverState int

const (
	serverCreated      = serverState(iota)
	serverInitializing // set once the server has received "initialize" request
	serverInitialized  // set once the server has received "initialized" request
	serverShutDown
)

func (s serverState) String() string {
	switch s {
	case serverCreated:
		return "created"
	case serverInitializing:
		return "initializing"
	case serverInitialized:
		return "initialized"
	case serverShutDown:
		return "shutDown"
	}
	return fmt.Sprintf("(unknown state: %d)", int(s))
}

type server struct {
	logger   *log.Logger
	client   lsp.Client
	renderer render.Renderer
	engine   *appraiser.Appraiser

	stateMu sync.Mutex
	state   serverState

	rootURI lsp.DocumentURI

	engineCtx    context.Context
	engineCancel context.CancelFunc

	// watcher is the fsnotify fallback used when the client cannot
	// register file watchers itself.
	watcher        *lockWatcher
	clientWatching bool
}

// New creates an LSP server bound to the client on the other end of the
// connection.
func New(logger *log.Logger, client lsp.Client, opts Options) (lsp.Server, error) {
	renderer := render.New(opts.Renderer, client, logger)

	canReadFile := false
	for _, c := range opts.ClientCapabilities {
		if c == "readFile" {
			canReadFile = true
		}
	}

	engine, err := appraiser.New(logger, client, renderer, appraiser.Options{
		CargoPath:   opts.CargoPath,
		CanReadFile: canReadFile,
	})
	if err != nil {
		return nil, fmt.Errorf("creating state engine: %w", err)
	}

	return &server{
		logger:   logger,
		client:   client,
		renderer: renderer,
		engine:   engine,
	}, nil
}

func (s *server) Logger() *log.Logger {
	return s.logger
}

// Shutdown implements the 'shutdown' LSP handler. It stops the engine and
// cancels everything still in flight.
func (s *server) Shutdown(ctx context.Context) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.state != serverShutDown {
		s.state = serverShutDown
		if s.engineCancel != nil {
			s.engineCancel()
		}
		if s.watcher != nil {
			s.watcher.close()
		}
	}
	return nil
}

func (s *server) Exit(ctx context.Context) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.state != serverShutDown {
		os.Exit(1)
	}
	os.Exit(0)
	return nil
}

// detach keeps the client reachable for notifications that outlive the
// request that triggered them.
func (s *server) detach(ctx context.Context) context.Context {
	return lsp.WithClient(xcontext.Detach(ctx), s.client)
}

package server

import (
	"context"

	"github.com/corymhall/cargo-appraiser/appraiser"
	"github.com/corymhall/cargo-appraiser/file"
	"github.com/corymhall/cargo-appraiser/lsp"
)

func (s *server) DidChangeConfiguration(ctx context.Context, params *lsp.DidChangeConfigurationParams) error {
	s.engine.Send(appraiser.ConfigChanged{Raw: params.Settings})
	return nil
}

func (s *server) DidChangeWatchedFiles(ctx context.Context, params *lsp.DidChangeWatchedFilesParams) error {
	for _, change := range params.Changes {
		if file.KindForURI(change.URI) != file.Lockfile {
			continue
		}
		path, err := change.URI.Path()
		if err != nil {
			s.logger.Printf("ignoring watched file with bad URI: %v", err)
			continue
		}
		s.engine.Send(appraiser.LockfileChanged{Path: path})
	}
	return nil
}

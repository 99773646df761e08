package render

import (
	"context"
	"fmt"
	"log"

	"github.com/corymhall/cargo-appraiser/config"
	"github.com/corymhall/cargo-appraiser/lsp"
)

// Item is one dependency's projection: where it is and what its status
// payload says. The engine produces one identical slice of items per
// document; the Renderer variant chooses how to ship it.
type Item struct {
	// ID is the dependency's canonical entry path.
	ID      string
	Range   lsp.Range
	Payload Payload
}

// Renderer projects document state into editor-visible artifacts.
type Renderer interface {
	// Update replaces the rendered state for a document.
	Update(ctx context.Context, uri lsp.DocumentURI, items []Item)
	// Reset clears the rendered state for a document.
	Reset(ctx context.Context, uri lsp.DocumentURI)
	// InlayHints lists the hints for a document within a range. Only the
	// inlay-hint variant returns anything.
	InlayHints(uri lsp.DocumentURI, rng lsp.Range) []lsp.InlayHint
}

// Kind selects the renderer variant at startup.
type Kind string

const (
	KindVSCode    Kind = "vscode"
	KindInlayHint Kind = "inlayHint"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindVSCode:
		return KindVSCode, nil
	case KindInlayHint:
		return KindInlayHint, nil
	default:
		return "", fmt.Errorf("unknown renderer %q (want %q or %q)", s, KindVSCode, KindInlayHint)
	}
}

// New builds the renderer for the kind. Selection happens once; there is
// no runtime variance.
func New(kind Kind, client lsp.Client, logger *log.Logger) Renderer {
	switch kind {
	case KindInlayHint:
		return NewInlayHintRenderer()
	default:
		return NewDecorationRenderer(client, logger)
	}
}

// formatter returns the compiled formatter for the current config
// snapshot, recompiling only when the snapshot pointer moved.
type formatterCache struct {
	snapshot *config.Config
	compiled *Formatter
}

func (c *formatterCache) get() *Formatter {
	cfg := config.Get()
	if c.compiled == nil || c.snapshot != cfg {
		c.snapshot = cfg
		c.compiled = Compile(cfg.DecorationFormatter)
	}
	return c.compiled
}

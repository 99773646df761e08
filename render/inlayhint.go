package render

import (
	"context"
	"sync"

	"github.com/corymhall/cargo-appraiser/lsp"
)

// InlayHintRenderer keeps the latest projection per document and answers
// standard textDocument/inlayHint requests from it. Updates come from the
// engine goroutine, reads from the rpc goroutine.
type InlayHintRenderer struct {
	mu    sync.Mutex
	fmt   formatterCache
	hints map[lsp.DocumentURI][]lsp.InlayHint
}

func NewInlayHintRenderer() *InlayHintRenderer {
	return &InlayHintRenderer{
		hints: make(map[lsp.DocumentURI][]lsp.InlayHint),
	}
}

func (r *InlayHintRenderer) Update(_ context.Context, uri lsp.DocumentURI, items []Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	formatter := r.fmt.get()
	hints := make([]lsp.InlayHint, 0, len(items))
	for _, item := range items {
		text, ok := formatter.Format(item.Payload)
		if !ok {
			continue
		}
		kind := lsp.InlayHintKindType
		hints = append(hints, lsp.InlayHint{
			// hang the hint off the end of the entry
			Position:    item.Range.End,
			Label:       text,
			Kind:        &kind,
			PaddingLeft: true,
		})
	}
	r.hints[uri] = hints
}

func (r *InlayHintRenderer) Reset(_ context.Context, uri lsp.DocumentURI) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hints, uri)
}

func (r *InlayHintRenderer) InlayHints(uri lsp.DocumentURI, rng lsp.Range) []lsp.InlayHint {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []lsp.InlayHint
	for _, h := range r.hints[uri] {
		if h.Position.Line < rng.Start.Line || h.Position.Line > rng.End.Line {
			continue
		}
		out = append(out, h)
	}
	return out
}

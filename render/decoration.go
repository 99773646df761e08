package render

import (
	"context"
	"log"

	"github.com/corymhall/cargo-appraiser/lsp"
	"github.com/corymhall/cargo-appraiser/xcontext"
)

// DecorationRenderer ships decorations to the VS Code extension through
// the custom replaceAll request. Requests go out on a queue goroutine so a
// slow client never stalls the engine's event loop.
type DecorationRenderer struct {
	client lsp.Client
	logger *log.Logger
	fmt    formatterCache
	queue  chan func()
}

func NewDecorationRenderer(client lsp.Client, logger *log.Logger) *DecorationRenderer {
	r := &DecorationRenderer{
		client: client,
		logger: logger,
		queue:  make(chan func(), 64),
	}
	go func() {
		for fn := range r.queue {
			fn()
		}
	}()
	return r
}

func (r *DecorationRenderer) Update(ctx context.Context, uri lsp.DocumentURI, items []Item) {
	formatter := r.fmt.get()
	decorations := make([]lsp.Decoration, 0, len(items))
	for _, item := range items {
		text, ok := formatter.Format(item.Payload)
		if !ok {
			continue
		}
		decorations = append(decorations, lsp.Decoration{
			ID:    item.ID,
			Text:  text,
			Kind:  item.Payload.Status.DecorationKind(),
			Range: item.Range,
		})
	}

	ctx = xcontext.Detach(ctx)
	r.enqueue(func() {
		if err := r.client.ReplaceAllDecorations(ctx, &lsp.ReplaceAllDecorationsParams{
			URI:         uri,
			Decorations: decorations,
		}); err != nil {
			r.logger.Printf("update decorations error: %v", err)
		}
	})
}

func (r *DecorationRenderer) Reset(ctx context.Context, uri lsp.DocumentURI) {
	ctx = xcontext.Detach(ctx)
	r.enqueue(func() {
		if err := r.client.ResetDecorations(ctx, &lsp.ResetDecorationsParams{URI: uri}); err != nil {
			r.logger.Printf("reset decoration error: %v", err)
		}
	})
}

func (r *DecorationRenderer) enqueue(fn func()) {
	select {
	case r.queue <- fn:
	default:
		// the client is hopelessly behind; drop the oldest update, the
		// next one supersedes it anyway
		select {
		case <-r.queue:
		default:
		}
		r.queue <- fn
	}
}

// InlayHints is empty for the decoration variant; the extension draws
// decorations instead.
func (r *DecorationRenderer) InlayHints(lsp.DocumentURI, lsp.Range) []lsp.InlayHint {
	return nil
}

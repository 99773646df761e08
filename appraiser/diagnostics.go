package appraiser

import (
	"context"
	"log"

	"github.com/corymhall/cargo-appraiser/lsp"
	"github.com/corymhall/cargo-appraiser/xcontext"
)

// Diagnostics come from three independent producers with different
// lifetimes: parse errors die on the next successful parse, cargo errors
// on the next successful resolve, audit findings on the next audit pass.
// A diagnosticSet keeps the buckets separate and publishes their union.
type bucket int

const (
	bucketParse bucket = iota
	bucketCargo
	bucketAudit
	bucketCount
)

type diagnosticSet struct {
	client  lsp.Client
	logger  *log.Logger
	byURI   map[lsp.DocumentURI]*[bucketCount][]lsp.Diagnostic
}

func newDiagnosticSet(client lsp.Client, logger *log.Logger) *diagnosticSet {
	return &diagnosticSet{
		client: client,
		logger: logger,
		byURI:  make(map[lsp.DocumentURI]*[bucketCount][]lsp.Diagnostic),
	}
}

// set replaces one bucket for a document and republishes the union.
// Publishing an identical empty union for an unknown document is skipped
// so closed documents do not resurrect.
func (d *diagnosticSet) set(ctx context.Context, uri lsp.DocumentURI, b bucket, diags []lsp.Diagnostic) {
	buckets, ok := d.byURI[uri]
	if !ok {
		if len(diags) == 0 {
			return
		}
		buckets = &[bucketCount][]lsp.Diagnostic{}
		d.byURI[uri] = buckets
	}
	buckets[b] = diags
	d.publish(ctx, uri, buckets)
}

// clearAll wipes every bucket for a document, publishing the empty set so
// the editor's problems panel empties too.
func (d *diagnosticSet) clearAll(ctx context.Context, uri lsp.DocumentURI) {
	if _, ok := d.byURI[uri]; !ok {
		return
	}
	delete(d.byURI, uri)
	d.publishList(ctx, uri, []lsp.Diagnostic{})
}

func (d *diagnosticSet) publish(ctx context.Context, uri lsp.DocumentURI, buckets *[bucketCount][]lsp.Diagnostic) {
	merged := []lsp.Diagnostic{}
	for _, diags := range buckets {
		merged = append(merged, diags...)
	}
	d.publishList(ctx, uri, merged)
}

func (d *diagnosticSet) publishList(ctx context.Context, uri lsp.DocumentURI, diags []lsp.Diagnostic) {
	ctx = xcontext.Detach(ctx)
	if err := d.client.PublishDiagnostics(ctx, &lsp.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diags,
	}); err != nil {
		d.logger.Printf("error publishing diagnostics for %s: %v", uri, err)
	}
}

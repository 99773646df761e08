package appraiser

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/corymhall/cargo-appraiser/audit"
	"github.com/corymhall/cargo-appraiser/cargo"
	"github.com/corymhall/cargo-appraiser/config"
	"github.com/corymhall/cargo-appraiser/file"
	"github.com/corymhall/cargo-appraiser/lsp"
	"github.com/corymhall/cargo-appraiser/render"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fakeClient records outbound traffic.
type fakeClient struct {
	mu          sync.Mutex
	diagnostics map[lsp.DocumentURI][]lsp.Diagnostic
	messages    []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{diagnostics: make(map[lsp.DocumentURI][]lsp.Diagnostic)}
}

func (c *fakeClient) PublishDiagnostics(_ context.Context, p *lsp.PublishDiagnosticsParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diagnostics[p.URI] = p.Diagnostics
	return nil
}

func (c *fakeClient) ShowMessage(_ context.Context, p *lsp.ShowMessageParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, p.Message)
	return nil
}

func (c *fakeClient) LogMessage(context.Context, *lsp.LogMessageParams) error   { return nil }
func (c *fakeClient) WorkDoneProgressCreate(context.Context, *lsp.WorkDoneProgressCreateParams) error {
	return nil
}
func (c *fakeClient) ProgressBegin(context.Context, *lsp.WorkDoneProgressBeginParams) error {
	return nil
}
func (c *fakeClient) ProgressEnd(context.Context, *lsp.WorkDoneProgressEndParams) error { return nil }
func (c *fakeClient) RegisterCapability(context.Context, *lsp.RegistrationParams) error { return nil }
func (c *fakeClient) ReplaceAllDecorations(context.Context, *lsp.ReplaceAllDecorationsParams) error {
	return nil
}
func (c *fakeClient) ResetDecorations(context.Context, *lsp.ResetDecorationsParams) error {
	return nil
}
func (c *fakeClient) ReadFile(context.Context, *lsp.ReadFileParams) (*lsp.ReadFileResponse, error) {
	return nil, fmt.Errorf("readFile not supported")
}

func (c *fakeClient) diagnosticsFor(uri lsp.DocumentURI) []lsp.Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.diagnostics[uri]
}

// fakeRenderer records the latest projection per document.
type fakeRenderer struct {
	mu     sync.Mutex
	items  map[lsp.DocumentURI][]render.Item
	resets []lsp.DocumentURI
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{items: make(map[lsp.DocumentURI][]render.Item)}
}

func (r *fakeRenderer) Update(_ context.Context, uri lsp.DocumentURI, items []render.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[uri] = items
}

func (r *fakeRenderer) Reset(_ context.Context, uri lsp.DocumentURI) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, uri)
	r.resets = append(r.resets, uri)
}

func (r *fakeRenderer) InlayHints(lsp.DocumentURI, lsp.Range) []lsp.InlayHint { return nil }

func (r *fakeRenderer) itemsFor(uri lsp.DocumentURI) []render.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[uri]
}

func statusOf(t *testing.T, items []render.Item, id string) render.Status {
	t.Helper()
	for _, item := range items {
		if item.ID == id {
			return item.Payload.Status
		}
	}
	t.Fatalf("no item with id %s", id)
	return render.NotParsed
}

// fakeFeed mirrors the one in the cargo package tests.
type fakeFeed map[string][]cargo.RegistryVersion

func (f fakeFeed) Versions(_ context.Context, name string) ([]cargo.RegistryVersion, error) {
	versions, ok := f[name]
	if !ok {
		return nil, fmt.Errorf("no such crate %q", name)
	}
	return versions, nil
}

func feedEntries(t *testing.T, specs ...string) []cargo.RegistryVersion {
	t.Helper()
	var out []cargo.RegistryVersion
	for _, s := range specs {
		v, err := cargoVersion(s)
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

func cargoVersion(s string) (cargo.RegistryVersion, error) {
	yanked := false
	if s[0] == '!' {
		yanked = true
		s = s[1:]
	}
	v, err := semver.NewVersion(s)
	if err != nil {
		return cargo.RegistryVersion{}, err
	}
	return cargo.RegistryVersion{Version: v, Yanked: yanked}, nil
}

const memberManifest = `[dependencies]
serde = "1.0.100"
tokio = "1.17"

[target.'cfg(windows)'.dependencies]
winapi = "0.3"
`

const memberMetadata = `{
  "packages": [
    {
      "name": "demo",
      "version": "0.1.0",
      "id": "path+file:///ws/demo#0.1.0",
      "source": null,
      "manifest_path": "/ws/demo/Cargo.toml",
      "dependencies": [
        {"name": "serde", "req": "^1.0.100", "kind": null, "target": null},
        {"name": "tokio", "req": "^1.17", "kind": null, "target": null},
        {"name": "winapi", "req": "^0.3", "kind": null, "target": "cfg(windows)"}
      ]
    },
    {
      "name": "serde",
      "version": "1.0.100",
      "id": "reg#serde@1.0.100",
      "source": "registry+https://github.com/rust-lang/crates.io-index",
      "manifest_path": "/cargo/serde/Cargo.toml",
      "dependencies": []
    },
    {
      "name": "tokio",
      "version": "1.17.0",
      "id": "reg#tokio@1.17.0",
      "source": "registry+https://github.com/rust-lang/crates.io-index",
      "manifest_path": "/cargo/tokio/Cargo.toml",
      "dependencies": []
    }
  ],
  "workspace_members": ["path+file:///ws/demo#0.1.0"],
  "workspace_root": "/ws/demo"
}`

func testEngine(t *testing.T) (*Appraiser, *fakeClient, *fakeRenderer) {
	t.Helper()
	cfg := config.Default()
	cfg.Audit.Disabled = true
	config.Set(cfg)

	client := newFakeClient()
	renderer := newFakeRenderer()
	engine, err := New(log.New(io.Discard, "", 0), client, renderer, Options{Feed: fakeFeed{}})
	require.NoError(t, err)
	t.Cleanup(engine.parser.Close)
	engine.baseCtx = context.Background()
	engine.debounce = newDebouncer(func(ReadyToResolve) {})
	return engine, client, renderer
}

func openDoc(t *testing.T, engine *Appraiser, uri lsp.DocumentURI, text string) *Document {
	t.Helper()
	engine.handleDocumentChanged(context.Background(), DocumentChanged{
		URI: uri, Text: text, Version: 1, Action: file.Open,
	})
	doc, ok := engine.docs[uri]
	require.True(t, ok)
	return doc
}

func deliverResolution(t *testing.T, engine *Appraiser, doc *Document, rev uint64, metadata string, feed fakeFeed) {
	t.Helper()
	token := uuid.New()
	engine.tasks[token] = &task{uri: doc.URI, rev: rev, cancel: func() {}}
	engine.taskByURI[doc.URI] = token
	result := cargo.BuildIndex(context.Background(), []byte(metadata), feed)
	engine.handleResolveDone(context.Background(), ResolveDone{
		URI: doc.URI, Rev: rev, Token: token, Result: result,
	})
}

func memberFeed(t *testing.T) fakeFeed {
	return fakeFeed{
		"serde":  feedEntries(t, "1.0.210", "1.0.200", "1.0.100"),
		"tokio":  feedEntries(t, "2.0.0", "1.44.0", "1.17.0"),
		"winapi": feedEntries(t, "0.3.9"),
	}
}

const demoURI = lsp.DocumentURI("file:///ws/demo/Cargo.toml")

func TestReconcileStatuses(t *testing.T) {
	engine, _, renderer := testEngine(t)
	doc := openDoc(t, engine, demoURI, memberManifest)
	require.True(t, doc.isDirty())

	items := renderer.itemsFor(demoURI)
	require.Equal(t, render.Waiting, statusOf(t, items, "dependencies.serde"))

	deliverResolution(t, engine, doc, doc.Rev, memberMetadata, memberFeed(t))

	require.Equal(t, StateResolved, doc.State)
	require.False(t, doc.isDirty())

	items = renderer.itemsFor(demoURI)
	// S1: compatible upgrade
	require.Equal(t, render.CompatibleLatest, statusOf(t, items, "dependencies.serde"))
	// S2: mixed upgradeable
	require.Equal(t, render.MixedUpgradeable, statusOf(t, items, "dependencies.tokio"))
	// S4: platform-gated miss
	require.Equal(t, render.NotInstalled, statusOf(t, items, "target.cfg(windows).dependencies.winapi"))
}

// Reconciliation is deterministic: identical text and resolution yield an
// identical status map.
func TestReconcileDeterministic(t *testing.T) {
	collect := func() map[string]render.Status {
		engine, _, renderer := testEngine(t)
		doc := openDoc(t, engine, demoURI, memberManifest)
		deliverResolution(t, engine, doc, doc.Rev, memberMetadata, memberFeed(t))
		out := make(map[string]render.Status)
		for _, item := range renderer.itemsFor(demoURI) {
			out[item.ID] = item.Payload.Status
		}
		return out
	}
	first := collect()
	for i := 0; i < 3; i++ {
		require.Equal(t, first, collect())
	}
}

// S5: a completion whose generation was superseded must not overwrite
// newer state.
func TestStaleCompletionDiscarded(t *testing.T) {
	engine, _, _ := testEngine(t)
	doc := openDoc(t, engine, demoURI, memberManifest)
	rev1 := doc.Rev

	// the requirement changes while the first resolution is in flight
	edited := `[dependencies]
serde = "1.0.200"
tokio = "1.17"

[target.'cfg(windows)'.dependencies]
winapi = "0.3"
`
	engine.handleDocumentChanged(context.Background(), DocumentChanged{
		URI: demoURI, Text: edited, Version: 2, Action: file.Change,
	})
	require.Greater(t, doc.Rev, rev1)

	// now the rev1 resolution lands
	deliverResolution(t, engine, doc, rev1, memberMetadata, memberFeed(t))

	// serde was dirtied after rev1, so its record must not attach
	require.Nil(t, doc.Resolved["dependencies.serde"])
	require.True(t, doc.isDirty())
	require.Equal(t, StateStale, doc.State)
	// tokio's shape did not change; the rev1 record serves it fine
	require.NotNil(t, doc.Resolved["dependencies.tokio"])
}

// A completion for a token the engine no longer tracks is dropped whole.
func TestUnknownTokenDiscarded(t *testing.T) {
	engine, _, _ := testEngine(t)
	doc := openDoc(t, engine, demoURI, memberManifest)

	result := cargo.BuildIndex(context.Background(), []byte(memberMetadata), memberFeed(t))
	engine.handleResolveDone(context.Background(), ResolveDone{
		URI: demoURI, Rev: doc.Rev, Token: uuid.New(), Result: result,
	})
	require.Empty(t, doc.Resolved)
	require.True(t, doc.isDirty())
}

// Whitespace and comment edits never dirty dependencies, never schedule
// a resolution, and never change the status map.
func TestWhitespaceEditKeepsResolution(t *testing.T) {
	engine, _, renderer := testEngine(t)
	doc := openDoc(t, engine, demoURI, memberManifest)
	deliverResolution(t, engine, doc, doc.Rev, memberMetadata, memberFeed(t))
	require.Equal(t, StateResolved, doc.State)

	scheduled := len(engine.debounce.in)
	before := renderer.itemsFor(demoURI)

	engine.handleDocumentChanged(context.Background(), DocumentChanged{
		URI: demoURI, Text: "# a comment\n\n" + memberManifest, Version: 3, Action: file.Change,
	})

	require.Equal(t, StateResolved, doc.State)
	require.False(t, doc.isDirty())
	require.Equal(t, scheduled, len(engine.debounce.in), "whitespace edit scheduled a resolve")

	after := renderer.itemsFor(demoURI)
	require.Equal(t, len(before), len(after))
	for i := range before {
		require.Equal(t, before[i].Payload.Status, after[i].Payload.Status)
		// decorations moved with the text
		require.Equal(t, before[i].Range.Start.Line+2, after[i].Range.Start.Line)
	}
}

func TestShapeEditMarksStale(t *testing.T) {
	engine, _, renderer := testEngine(t)
	doc := openDoc(t, engine, demoURI, memberManifest)
	deliverResolution(t, engine, doc, doc.Rev, memberMetadata, memberFeed(t))

	edited := `[dependencies]
serde = "1.0.200"
tokio = "1.17"

[target.'cfg(windows)'.dependencies]
winapi = "0.3"
`
	engine.handleDocumentChanged(context.Background(), DocumentChanged{
		URI: demoURI, Text: edited, Version: 2, Action: file.Change,
	})

	require.Equal(t, StateStale, doc.State)
	items := renderer.itemsFor(demoURI)
	// the changed key went back to waiting, the untouched one kept its verdict
	require.Equal(t, render.Waiting, statusOf(t, items, "dependencies.serde"))
	require.Equal(t, render.MixedUpgradeable, statusOf(t, items, "dependencies.tokio"))
}

// Close leaves no tasks referring to the URI.
func TestCloseCancelsTasks(t *testing.T) {
	engine, _, renderer := testEngine(t)
	doc := openDoc(t, engine, demoURI, memberManifest)

	canceled := false
	token := uuid.New()
	engine.tasks[token] = &task{uri: doc.URI, rev: doc.Rev, cancel: func() { canceled = true }}
	engine.taskByURI[doc.URI] = token

	engine.handleClosed(context.Background(), DocumentClosed{URI: demoURI})

	require.True(t, canceled)
	require.Empty(t, engine.tasks)
	require.Empty(t, engine.taskByURI)
	require.Empty(t, engine.docs)
	require.Contains(t, renderer.resets, demoURI)

	// the late completion is a no-op
	result := cargo.BuildIndex(context.Background(), []byte(memberMetadata), memberFeed(t))
	engine.handleResolveDone(context.Background(), ResolveDone{
		URI: demoURI, Rev: 1, Token: token, Result: result,
	})
	require.Empty(t, engine.docs)
}

func TestResolveErrorPublishesDiagnostic(t *testing.T) {
	engine, client, _ := testEngine(t)
	doc := openDoc(t, engine, demoURI, memberManifest)

	token := uuid.New()
	engine.tasks[token] = &task{uri: doc.URI, rev: doc.Rev, cancel: func() {}}
	engine.taskByURI[doc.URI] = token
	engine.handleResolveDone(context.Background(), ResolveDone{
		URI: demoURI, Rev: doc.Rev, Token: token,
		Err: &cargo.Error{Kind: cargo.ResolutionFailed, Message: "no matching package named `serde` found"},
	})

	require.Equal(t, StateResolveFailed, doc.State)
	require.NotNil(t, doc.LastErr)
	diags := client.diagnosticsFor(demoURI)
	require.NotEmpty(t, diags)
	require.Equal(t, "cargo", diags[0].Source)
}

func TestParseErrorBlocksResolve(t *testing.T) {
	engine, client, _ := testEngine(t)
	engine.handleDocumentChanged(context.Background(), DocumentChanged{
		URI: demoURI, Text: "[dependencies]\nserde =\n", Version: 1, Action: file.Open,
	})
	require.Empty(t, engine.debounce.in)
	require.NotEmpty(t, client.diagnosticsFor(demoURI))
}

func TestOutOfOrderVersionDiscarded(t *testing.T) {
	engine, _, _ := testEngine(t)
	doc := openDoc(t, engine, demoURI, memberManifest)
	doc.Version = 5

	engine.handleDocumentChanged(context.Background(), DocumentChanged{
		URI: demoURI, Text: "[dependencies]\nserde = \"2.0\"\n", Version: 3, Action: file.Change,
	})
	require.Equal(t, int32(5), doc.Version)
	require.NotNil(t, doc.Tree.Dependency("dependencies.tokio"))
}

func TestAuditYankedStatus(t *testing.T) {
	engine, client, renderer := testEngine(t)
	doc := openDoc(t, engine, demoURI, memberManifest)
	deliverResolution(t, engine, doc, doc.Rev, memberMetadata, memberFeed(t))

	issues := audit.ParseOutput("Crate:     serde\nVersion:   1.0.100\nWarning:   yanked\n", nil)
	engine.handleAuditDone(context.Background(), AuditDone{Index: audit.NewIndex(issues)})

	// S3: yanked wins over the version ladder, with a warning diagnostic
	items := renderer.itemsFor(demoURI)
	require.Equal(t, render.Yanked, statusOf(t, items, "dependencies.serde"))

	var found bool
	for _, d := range client.diagnosticsFor(demoURI) {
		if d.Source == "cargo-audit" {
			found = true
			require.Equal(t, lsp.SeverityWarning, d.Severity)
		}
	}
	require.True(t, found, "expected a cargo-audit diagnostic")
}

func TestAuditFailureDegradesQuietly(t *testing.T) {
	engine, client, _ := testEngine(t)
	openDoc(t, engine, demoURI, memberManifest)

	engine.handleAuditDone(context.Background(), AuditDone{Err: &audit.Error{Message: "tool missing"}})
	engine.handleAuditDone(context.Background(), AuditDone{Err: &audit.Error{Message: "tool missing"}})

	require.Nil(t, engine.auditIndex)
	// the user hears about it exactly once
	require.Len(t, client.messages, 1)
}

func TestConfigChangeRerenders(t *testing.T) {
	engine, _, renderer := testEngine(t)
	doc := openDoc(t, engine, demoURI, memberManifest)
	deliverResolution(t, engine, doc, doc.Rev, memberMetadata, memberFeed(t))
	require.NotEmpty(t, renderer.itemsFor(demoURI))

	engine.handleConfigChanged(context.Background(), ConfigChanged{
		Raw: []byte(`{"audit": {"disabled": true}, "decorationFormatter": {"latest": "OK {{installed}}"}}`),
	})
	require.Equal(t, "OK {{installed}}", config.Get().DecorationFormatter.Latest)
	require.NotEmpty(t, renderer.itemsFor(demoURI))
}

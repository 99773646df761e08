package appraiser

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/corymhall/cargo-appraiser/audit"
	"github.com/corymhall/cargo-appraiser/cargo"
	"github.com/corymhall/cargo-appraiser/config"
	"github.com/corymhall/cargo-appraiser/file"
	"github.com/corymhall/cargo-appraiser/logger"
	"github.com/corymhall/cargo-appraiser/lsp"
	"github.com/corymhall/cargo-appraiser/parser"
	"github.com/corymhall/cargo-appraiser/render"
	"github.com/corymhall/cargo-appraiser/xcontext"
	"github.com/google/uuid"
)

// Options configure the engine at startup.
type Options struct {
	// CargoPath overrides the cargo binary; empty means $PATH lookup.
	CargoPath string
	// RegistryURL overrides the sparse index base URL, for tests.
	RegistryURL string
	// CanReadFile is set when the client advertised the readFile custom
	// capability at startup.
	CanReadFile bool
	// Feed overrides the registry version feed, for tests. When nil a
	// fresh RegistryClient is created per resolution pass.
	Feed cargo.VersionFeed
}

// Appraiser is the single-owner actor holding every open manifest. All
// state mutation happens on its event loop; only subprocess calls and file
// reads run on background goroutines, returning as events.
type Appraiser struct {
	logger   *log.Logger
	client   lsp.Client
	renderer render.Renderer
	parser   *parser.Parser
	runner   *cargo.Runner
	opts     Options

	events chan Event

	editMu       sync.Mutex
	pendingEdits map[lsp.DocumentURI]*DocumentChanged

	// everything below is owned by the event loop
	baseCtx   context.Context
	docs      map[lsp.DocumentURI]*Document
	tasks     map[uuid.UUID]*task
	taskByURI map[lsp.DocumentURI]uuid.UUID
	debounce  *debouncer
	progress  *Tracker

	auditIndex    *audit.Index
	auditCancel   context.CancelFunc
	auditNotified bool

	rootManifestURI lsp.DocumentURI
	memberNames     []string

	diags *diagnosticSet
}

// task is one in-flight background resolution. Tokens carry ids, never
// back-pointers, so a Document and its tasks cannot form a cycle.
type task struct {
	uri    lsp.DocumentURI
	rev    uint64
	cancel context.CancelFunc
	work   *WorkDone
}

// editQueued is the internal marker that an edit waits in the coalescing
// slot for its URI.
type editQueued struct{ uri lsp.DocumentURI }

// lockCompared is the internal follow-up to LockfileChanged after the lock
// file was read off-loop.
type lockCompared struct{ changed bool }

func (editQueued) isEvent()   {}
func (lockCompared) isEvent() {}

func New(lg *log.Logger, client lsp.Client, renderer render.Renderer, opts Options) (*Appraiser, error) {
	p, err := parser.New()
	if err != nil {
		return nil, err
	}
	return &Appraiser{
		logger:       lg,
		client:       client,
		renderer:     renderer,
		parser:       p,
		runner:       cargo.NewRunner(opts.CargoPath, config.Get().ExtraEnv),
		opts:         opts,
		events:       make(chan Event, 256),
		pendingEdits: make(map[lsp.DocumentURI]*DocumentChanged),
		docs:         make(map[lsp.DocumentURI]*Document),
		tasks:        make(map[uuid.UUID]*task),
		taskByURI:    make(map[lsp.DocumentURI]uuid.UUID),
		progress:     NewTracker(client, lg),
		diags:        newDiagnosticSet(client, lg),
	}, nil
}

// SetSupportsWorkDoneProgress must be called before Run, from initialize.
func (a *Appraiser) SetSupportsWorkDoneProgress(b bool) {
	a.progress.SetSupportsWorkDoneProgress(b)
}

// Send enqueues an event. Task completions always land; the channel is
// sized so that blocking here means the loop is wedged on something far
// worse than backpressure.
func (a *Appraiser) Send(ev Event) {
	a.events <- ev
}

// SendEdit enqueues a text change, coalescing runs of edits per URI: when
// an earlier change for the same document is still queued, the newer text
// replaces it in place and no second event is enqueued.
func (a *Appraiser) SendEdit(ev DocumentChanged) {
	if ev.Action == file.Change {
		a.editMu.Lock()
		if slot, ok := a.pendingEdits[ev.URI]; ok && slot.Action == file.Change {
			*slot = ev
			a.editMu.Unlock()
			return
		}
		a.pendingEdits[ev.URI] = &ev
		a.editMu.Unlock()
		a.Send(editQueued{uri: ev.URI})
		return
	}
	a.Send(ev)
}

// Run drives the event loop until the context is canceled. It must be
// called exactly once.
func (a *Appraiser) Run(ctx context.Context) {
	a.baseCtx = ctx
	a.debounce = newDebouncer(func(ev ReadyToResolve) {
		select {
		case a.events <- ev:
		case <-ctx.Done():
		}
	})
	go a.debounce.run(ctx)

	for {
		select {
		case <-ctx.Done():
			a.shutdown()
			return
		case ev := <-a.events:
			a.handle(ctx, ev)
		}
	}
}

func (a *Appraiser) handle(ctx context.Context, ev Event) {
	switch ev := ev.(type) {
	case editQueued:
		a.editMu.Lock()
		queued, ok := a.pendingEdits[ev.uri]
		delete(a.pendingEdits, ev.uri)
		a.editMu.Unlock()
		if ok {
			a.handleDocumentChanged(ctx, *queued)
		}
	case DocumentChanged:
		a.handleDocumentChanged(ctx, ev)
	case DocumentClosed:
		a.handleClosed(ctx, ev)
	case ParseOnly:
		a.handleParseOnly(ctx, ev)
	case ReadyToResolve:
		a.handleReadyToResolve(ctx, ev)
	case ResolveDone:
		a.handleResolveDone(ctx, ev)
	case AuditDone:
		a.handleAuditDone(ctx, ev)
	case LockfileChanged:
		a.handleLockfileChanged(ev)
	case lockCompared:
		a.handleLockCompared(ctx, ev)
	case ConfigChanged:
		a.handleConfigChanged(ctx, ev)
	case HoverRequest:
		ev.Reply <- a.hover(ev.URI, ev.Position)
	case CodeActionRequest:
		ev.Reply <- a.codeActions(ev.URI, ev.Range)
	case DefinitionRequest:
		ev.Reply <- a.definition(ev.URI, ev.Position)
	}
}

func (a *Appraiser) shutdown() {
	for _, t := range a.tasks {
		t.cancel()
	}
	if a.auditCancel != nil {
		a.auditCancel()
	}
	a.parser.Close()
}

func (a *Appraiser) handleDocumentChanged(ctx context.Context, ev DocumentChanged) {
	doc, existing := a.docs[ev.URI]
	if !existing {
		path, err := ev.URI.Path()
		if err != nil {
			a.logger.Printf("ignoring document with bad URI: %v", err)
			return
		}
		doc = newDocument(ev.URI, path)
		a.docs[ev.URI] = doc
	}

	// text versions are monotonic per URI
	if ev.Version != 0 && existing && ev.Version < doc.Version {
		a.logger.Printf("discarding out-of-order change for %s (version %d < %d)", ev.URI, ev.Version, doc.Version)
		return
	}

	// a save may arrive without text; the buffer content is unchanged
	text := ev.Text
	if ev.Action == file.Save && text == "" && doc.Tree != nil {
		text = doc.Text
	}

	changed := doc.update(a.parser, text, ev.Version)
	a.publishParseDiagnostics(ctx, doc)
	if len(doc.Tree.Errors()) > 0 {
		// wait for the file to recover before resolving
		return
	}

	interactive := ev.Action == file.Open || ev.Action == file.Save

	switch {
	case !existing:
		doc.markAllDirty()
	case len(changed) > 0:
		doc.markDirtyByShapeKeys(changed)
		if doc.State == StateResolved {
			doc.State = StateStale
		}
	default:
		// pure whitespace/comment/value-neutral edit: the old resolution
		// stays authoritative, decorations just move with the text
		if !interactive {
			a.renderDoc(ctx, doc)
			return
		}
	}

	a.renderDoc(ctx, doc)
	if !doc.isDirty() {
		return
	}
	if interactive {
		a.debounce.interactive(doc.URI, doc.Rev)
	} else {
		a.debounce.background(doc.URI, doc.Rev)
	}
}

func (a *Appraiser) handleParseOnly(ctx context.Context, ev ParseOnly) {
	doc, ok := a.docs[ev.URI]
	if ok && doc.Tree != nil {
		return
	}
	path, err := ev.URI.Path()
	if err != nil {
		return
	}
	doc = newDocument(ev.URI, path)
	a.docs[ev.URI] = doc
	doc.update(a.parser, ev.Text, 0)
	a.publishParseDiagnostics(ctx, doc)
}

func (a *Appraiser) handleClosed(ctx context.Context, ev DocumentClosed) {
	doc, ok := a.docs[ev.URI]
	if !ok {
		return
	}
	if token, ok := a.taskByURI[ev.URI]; ok {
		if t := a.tasks[token]; t != nil {
			t.cancel()
			t.work.End(ctx, "canceled")
		}
		delete(a.tasks, token)
		delete(a.taskByURI, ev.URI)
	}
	delete(a.docs, ev.URI)
	a.renderer.Reset(ctx, doc.URI)
	a.diags.clearAll(ctx, doc.URI)
}

func (a *Appraiser) handleReadyToResolve(ctx context.Context, ev ReadyToResolve) {
	doc, ok := a.docs[ev.URI]
	if !ok || !doc.isDirty() {
		return
	}
	// the debounced rev must cover every dirty dependency; an exact match
	// with doc.Rev would be too strict, since whitespace-only edits bump
	// the rev without dirtying anything
	for _, rev := range doc.DirtyDeps {
		if rev > ev.Rev {
			return
		}
	}
	a.startResolve(ctx, doc)
}

func (a *Appraiser) startResolve(ctx context.Context, doc *Document) {
	// a newly scheduled resolution supersedes the in-flight one
	if token, ok := a.taskByURI[doc.URI]; ok {
		if t := a.tasks[token]; t != nil {
			t.cancel()
			t.work.End(ctx, "superseded")
		}
		delete(a.tasks, token)
		delete(a.taskByURI, doc.URI)
	}

	token := uuid.New()
	tctx, cancel := context.WithCancel(a.baseCtx)
	work := a.progress.Start(ctx, "Cargo", "Resolving dependencies...", nil, nil)
	a.tasks[token] = &task{uri: doc.URI, rev: doc.Rev, cancel: cancel, work: work}
	a.taskByURI[doc.URI] = token
	doc.State = StateResolving

	feed := a.opts.Feed
	if feed == nil {
		feed = cargo.NewRegistryClient(a.opts.RegistryURL)
	}
	rev, path, uri := doc.Rev, doc.Path, doc.URI
	go func() {
		result, err := cargo.Resolve(tctx, a.runner, a.logger, path, feed)
		a.Send(ResolveDone{URI: uri, Rev: rev, Token: token, Result: result, Err: err})
	}()
}

func (a *Appraiser) handleResolveDone(ctx context.Context, ev ResolveDone) {
	t, known := a.tasks[ev.Token]
	if !known {
		// superseded or closed; the result is stale by definition
		a.logger.Printf("discarding resolution for %s (superseded)", ev.URI)
		return
	}
	delete(a.tasks, ev.Token)
	if a.taskByURI[ev.URI] == ev.Token {
		delete(a.taskByURI, ev.URI)
	}
	t.work.End(ctx, "Done.")

	doc, ok := a.docs[ev.URI]
	if !ok {
		return
	}

	if ev.Err != nil {
		doc.State = StateResolveFailed
		doc.LastErr = ev.Err
		a.publishCargoDiagnostic(ctx, doc, ev.Err)
		logger.Log(ctx, "cargo resolution failed: "+ev.Err.Message, lsp.MessageTypeError)
		return
	}

	index := ev.Result.Index
	if ev.Result.Warnings != nil {
		a.logger.Printf("resolution warnings: %v", ev.Result.Warnings)
	}

	doc.Members = index.Members()
	a.memberNames = index.MemberNames()
	a.rootManifestURI = lsp.URIFromPath(index.RootManifest())
	a.ensureRootManifest(index.RootManifest())

	doc.LastErr = nil
	a.diags.set(ctx, doc.URI, bucketCargo, nil)

	// attach records for every dependency whose dirty revision the task
	// covers; newer edits stay dirty until their own resolution lands
	for _, dep := range doc.Tree.Dependencies() {
		dirtyRev, dirty := doc.DirtyDeps[dep.ID]
		if !dirty {
			continue
		}
		if dirtyRev > ev.Rev {
			continue
		}
		if resolved := resolvedFor(index, dep); resolved != nil {
			doc.Resolved[dep.ID] = resolved
		} else {
			delete(doc.Resolved, dep.ID)
		}
		delete(doc.DirtyDeps, dep.ID)
	}

	if doc.isDirty() {
		doc.State = StateStale
		a.debounce.background(doc.URI, doc.Rev)
	} else {
		doc.State = StateResolved
	}

	a.renderDoc(ctx, doc)
	a.startAudit(index)
}

// ensureRootManifest parses the workspace root manifest so that
// goto-definition into [workspace.dependencies] works even when the root
// was never opened in the editor. The text comes from the client's buffer
// when it can serve readFile, otherwise from disk; both off-loop.
func (a *Appraiser) ensureRootManifest(path string) {
	if path == "" {
		return
	}
	uri := lsp.URIFromPath(path)
	if doc, ok := a.docs[uri]; ok && doc.Tree != nil {
		return
	}
	canRead := a.opts.CanReadFile
	client := a.client
	go func() {
		if canRead {
			resp, err := client.ReadFile(xcontext.Detach(a.baseCtx), &lsp.ReadFileParams{URI: uri})
			if err == nil {
				a.Send(ParseOnly{URI: uri, Text: resp.Content})
				return
			}
			a.logger.Printf("readFile %s failed, falling back to disk: %v", uri, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			a.logger.Printf("reading root manifest %s: %v", path, err)
			return
		}
		a.Send(ParseOnly{URI: uri, Text: string(data)})
	}()
}

func (a *Appraiser) startAudit(index *cargo.Index) {
	cfg := config.Get()
	if cfg.Audit.Disabled {
		return
	}
	if a.auditCancel != nil {
		a.auditCancel()
	}
	actx, cancel := context.WithCancel(a.baseCtx)
	a.auditCancel = cancel

	dir := "."
	if root := index.RootManifest(); root != "" {
		dir = filepath.Dir(root)
	}
	members := index.MemberNames()
	cargoPath := a.opts.CargoPath
	lg := a.logger
	go func() {
		defer cancel()
		idx, err := audit.Run(actx, lg, cargoPath, dir, members)
		a.Send(AuditDone{Index: idx, Err: err})
	}()
}

func (a *Appraiser) handleAuditDone(ctx context.Context, ev AuditDone) {
	if ev.Err != nil {
		// audit is advisory: degrade to an empty index, tell the user once
		a.logger.Printf("audit failed: %v (stderr: %s)", ev.Err, ev.Err.Stderr)
		if !a.auditNotified {
			a.auditNotified = true
			_ = a.client.ShowMessage(xcontext.Detach(ctx), &lsp.ShowMessageParams{
				Type:    lsp.MessageTypeWarning,
				Message: "cargo audit failed: " + ev.Err.Message,
			})
		}
		a.auditIndex = nil
		return
	}
	a.auditNotified = false
	a.auditIndex = ev.Index
	for _, doc := range a.docs {
		a.renderDoc(ctx, doc)
	}
}

func (a *Appraiser) handleLockfileChanged(ev LockfileChanged) {
	// compare off-loop: the lock decode is file IO
	installed := a.installedSnapshot()
	go func() {
		locked, err := cargo.LockedVersions(ev.Path)
		changed := err != nil || lockDiffers(locked, installed)
		a.Send(lockCompared{changed: changed})
	}()
}

// installedSnapshot flattens every attached resolution to name→version.
func (a *Appraiser) installedSnapshot() map[string]string {
	out := make(map[string]string)
	for _, doc := range a.docs {
		for _, resolved := range doc.Resolved {
			if resolved.Package != nil {
				out[resolved.Package.Name] = resolved.Package.Version.String()
			}
		}
	}
	return out
}

func lockDiffers(locked, installed map[string]string) bool {
	for name, version := range installed {
		if lockedVersion, ok := locked[name]; ok && lockedVersion != version {
			return true
		}
	}
	return false
}

func (a *Appraiser) handleLockCompared(ctx context.Context, ev lockCompared) {
	if !ev.changed {
		return
	}
	// conservative: no forced resolve, mark everything stale and let the
	// background debounce pick it up
	a.auditIndex = nil
	for _, doc := range a.docs {
		doc.markAllDirty()
		if doc.State == StateResolved {
			doc.State = StateStale
		}
		a.renderDoc(ctx, doc)
		a.debounce.background(doc.URI, doc.Rev)
	}
}

func (a *Appraiser) handleConfigChanged(ctx context.Context, ev ConfigChanged) {
	cfg, err := config.Parse(ev.Raw)
	if err != nil {
		a.logger.Printf("ignoring bad configuration: %v", err)
		return
	}
	config.Set(cfg)
	for _, doc := range a.docs {
		a.renderDoc(ctx, doc)
	}
}

// renderDoc projects the document into renderer items and audit
// diagnostics. The projection is identical for both renderer variants.
func (a *Appraiser) renderDoc(ctx context.Context, doc *Document) {
	if doc.Tree == nil {
		return
	}

	// crates appearing in several tables get a badge suffix
	tablesByName := make(map[string][]parser.Table)
	for _, dep := range doc.Tree.Dependencies() {
		name := dep.PackageName()
		if !containsTable(tablesByName[name], dep.Table) {
			tablesByName[name] = append(tablesByName[name], dep.Table)
		}
	}

	items := make([]render.Item, 0, len(doc.Tree.Dependencies()))
	var auditDiags []lsp.Diagnostic
	for _, dep := range doc.Tree.Dependencies() {
		resolved := doc.Resolved[dep.ID]
		_, pending := doc.DirtyDeps[dep.ID]

		auditYanked := false
		if a.auditIndex != nil && resolved != nil && resolved.Package != nil {
			auditYanked = a.auditIndex.IsYanked(resolved.Package.Name, resolved.Package.Version.String())
		}

		payload := render.Compute(dep, resolved, pending, auditYanked)
		if tables := tablesByName[dep.PackageName()]; len(tables) > 1 {
			payload.Tables = tables
		}
		items = append(items, render.Item{
			ID:      dep.ID,
			Range:   dep.EntryRange,
			Payload: payload,
		})

		auditDiags = append(auditDiags, a.auditDiagnostics(dep, resolved)...)
	}

	a.renderer.Update(ctx, doc.URI, items)
	a.diags.set(ctx, doc.URI, bucketAudit, auditDiags)
}

func containsTable(tables []parser.Table, t parser.Table) bool {
	for _, have := range tables {
		if have == t {
			return true
		}
	}
	return false
}

// auditDiagnostics maps the audit issues of a dependency's installed
// version onto its manifest range, honoring the configured level.
func (a *Appraiser) auditDiagnostics(dep *parser.Dependency, resolved *cargo.Resolved) []lsp.Diagnostic {
	if a.auditIndex == nil || resolved == nil || resolved.Package == nil {
		return nil
	}
	issues := a.auditIndex.Get(resolved.Package.Name, resolved.Package.Version.String())
	if len(issues) == 0 {
		return nil
	}
	level := config.Get().Audit.Level

	rng := dep.RequirementRange
	if dep.Requirement == "" {
		rng = dep.KeyRange
	}
	var out []lsp.Diagnostic
	for _, issue := range issues {
		if level == config.AuditLevelVulnerability && !issue.IsVulnerability() {
			continue
		}
		out = append(out, lsp.Diagnostic{
			Range:    rng,
			Severity: lsp.SeverityWarning,
			Source:   "cargo-audit",
			Message:  issue.Summary(),
		})
	}
	return out
}

func (a *Appraiser) publishParseDiagnostics(ctx context.Context, doc *Document) {
	var diags []lsp.Diagnostic
	for _, e := range doc.Tree.Errors() {
		diags = append(diags, lsp.Diagnostic{
			Range:    e.Range,
			Severity: lsp.SeverityError,
			Source:   "cargo-appraiser",
			Message:  e.Message,
		})
	}
	a.diags.set(ctx, doc.URI, bucketParse, diags)
}

// publishCargoDiagnostic projects a hard cargo error into the manifest at
// the best-matching range.
func (a *Appraiser) publishCargoDiagnostic(ctx context.Context, doc *Document, cerr *cargo.Error) {
	rng := lsp.Range{}
	if cerr.Span != nil && doc.Tree != nil {
		pos := lsp.Position{Line: int32(cerr.Span.Line - 1), Character: int32(cerr.Span.Column - 1)}
		if node := doc.Tree.FindAt(pos); node != nil {
			rng = node.Range
		} else {
			rng = lsp.Range{Start: pos, End: pos}
		}
	}
	a.diags.set(ctx, doc.URI, bucketCargo, []lsp.Diagnostic{{
		Range:    rng,
		Severity: lsp.SeverityError,
		Source:   "cargo",
		Message:  cerr.Message,
	}})
}

// Hover, CodeActions and Definition bridge the rpc goroutine into the
// event loop: the request travels as an event, the loop answers on a
// buffered reply channel.
func (a *Appraiser) Hover(ctx context.Context, uri lsp.DocumentURI, pos lsp.Position) *lsp.Hover {
	reply := make(chan *lsp.Hover, 1)
	a.Send(HoverRequest{URI: uri, Position: pos, Reply: reply})
	select {
	case h := <-reply:
		return h
	case <-ctx.Done():
		return nil
	}
}

func (a *Appraiser) CodeActions(ctx context.Context, uri lsp.DocumentURI, rng lsp.Range) []lsp.CodeAction {
	reply := make(chan []lsp.CodeAction, 1)
	a.Send(CodeActionRequest{URI: uri, Range: rng, Reply: reply})
	select {
	case actions := <-reply:
		return actions
	case <-ctx.Done():
		return nil
	}
}

func (a *Appraiser) Definition(ctx context.Context, uri lsp.DocumentURI, pos lsp.Position) []lsp.Location {
	reply := make(chan []lsp.Location, 1)
	a.Send(DefinitionRequest{URI: uri, Position: pos, Reply: reply})
	select {
	case locs := <-reply:
		return locs
	case <-ctx.Done():
		return nil
	}
}

// WaitIdle blocks until the engine has drained its queue. Test helper.
func (a *Appraiser) WaitIdle(ctx context.Context) {
	reply := make(chan []lsp.Location, 1)
	a.Send(DefinitionRequest{URI: "", Position: lsp.Position{}, Reply: reply})
	select {
	case <-reply:
	case <-ctx.Done():
	}
}

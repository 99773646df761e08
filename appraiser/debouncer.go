package appraiser

import (
	"context"
	"time"

	"github.com/corymhall/cargo-appraiser/lsp"
)

// Resolution is expensive; edits arrive fast. The debouncer sits between
// the engine and the resolve scheduler: opens and saves fire after a short
// interactive delay, plain edits after a longer background delay that
// backs off when a manifest keeps re-scheduling without ever settling.
const (
	interactiveDelay = 600 * time.Millisecond
	backgroundDelay  = 3 * time.Second
	maxBackoffDelay  = 30 * time.Second
)

type debounceRequest struct {
	uri         lsp.DocumentURI
	rev         uint64
	interactive bool
}

type debouncer struct {
	in   chan debounceRequest
	emit func(ReadyToResolve)

	entries map[lsp.DocumentURI]*debounceEntry
	backoff map[lsp.DocumentURI]int
}

type debounceEntry struct {
	rev      uint64
	deadline time.Time
}

func newDebouncer(emit func(ReadyToResolve)) *debouncer {
	return &debouncer{
		in:      make(chan debounceRequest, 64),
		emit:    emit,
		entries: make(map[lsp.DocumentURI]*debounceEntry),
		backoff: make(map[lsp.DocumentURI]int),
	}
}

func (d *debouncer) interactive(uri lsp.DocumentURI, rev uint64) {
	d.in <- debounceRequest{uri: uri, rev: rev, interactive: true}
}

func (d *debouncer) background(uri lsp.DocumentURI, rev uint64) {
	d.in <- debounceRequest{uri: uri, rev: rev}
}

// run owns the timer state. It wakes at the earliest deadline, emits the
// expired entries, and sleeps again.
func (d *debouncer) run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	rearm := func() {
		next, ok := d.earliest()
		if !ok {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(time.Until(next))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.in:
			d.insert(req)
			rearm()
		case <-timer.C:
			now := time.Now()
			for uri, e := range d.entries {
				if !e.deadline.After(now) {
					delete(d.entries, uri)
					d.emit(ReadyToResolve{URI: uri, Rev: e.rev})
				}
			}
			rearm()
		}
	}
}

func (d *debouncer) insert(req debounceRequest) {
	delay := interactiveDelay
	if req.interactive {
		// a deliberate user action resets any accumulated backoff
		delete(d.backoff, req.uri)
	} else {
		d.backoff[req.uri]++
		delay = backoffDelay(backgroundDelay, d.backoff[req.uri])
	}
	d.entries[req.uri] = &debounceEntry{
		rev:      req.rev,
		deadline: time.Now().Add(delay),
	}
}

func (d *debouncer) earliest() (time.Time, bool) {
	var next time.Time
	for _, e := range d.entries {
		if next.IsZero() || e.deadline.Before(next) {
			next = e.deadline
		}
	}
	return next, !next.IsZero()
}

// backoffDelay grows the background delay for a manifest that keeps
// re-scheduling, capped at maxBackoffDelay.
func backoffDelay(base time.Duration, count int) time.Duration {
	var factor time.Duration
	switch {
	case count <= 2:
		factor = 1
	case count <= 5:
		factor = 2
	case count <= 10:
		factor = 3
	case count <= 15:
		factor = 6
	default:
		factor = 7
	}
	if d := base * factor; d < maxBackoffDelay {
		return d
	}
	return maxBackoffDelay
}

package appraiser

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"

	"github.com/corymhall/cargo-appraiser/lsp"
	"github.com/corymhall/cargo-appraiser/xcontext"
	"golang.org/x/exp/rand"
)

// A Tracker reports the progress of a long-running operation to an LSP client.
type Tracker struct {
	client                   lsp.Client
	supportsWorkDoneProgress bool
	logger                   *log.Logger

	mu         sync.Mutex
	inProgress map[lsp.ProgressToken]*WorkDone
}

// NewTracker returns a new Tracker that reports progress to the
// specified client.
func NewTracker(client lsp.Client, logger *log.Logger) *Tracker {
	return &Tracker{
		client:     client,
		logger:     logger,
		inProgress: make(map[lsp.ProgressToken]*WorkDone),
	}
}

// SetSupportsWorkDoneProgress sets whether the client supports "work done"
// progress reporting. It must be set before using the tracker.
func (t *Tracker) SetSupportsWorkDoneProgress(b bool) {
	t.supportsWorkDoneProgress = b
}

// WorkDone represents a unit of work that is reported to the client via the
// progress API.
type WorkDone struct {
	client lsp.Client
	// If token is nil, this workDone object is silent: either the client
	// does not support progress, or creation failed.
	token lsp.ProgressToken
	// err is set if progress reporting is broken for some reason (for example,
	// if there was an initial error creating a token).
	err error

	logger *log.Logger

	cancelMu  sync.Mutex
	cancelled bool
	cancel    func()

	cleanup func()
}

func (wd *WorkDone) doCancel() {
	wd.cancelMu.Lock()
	defer wd.cancelMu.Unlock()
	if !wd.cancelled {
		wd.cancelled = true
		wd.cancel()
	}
}

func (t *Tracker) Start(ctx context.Context, title, message string, token lsp.ProgressToken, cancel func()) *WorkDone {
	ctx = xcontext.Detach(ctx) // progress messages outlive the request
	wd := &WorkDone{
		client: t.client,
		token:  token,
		cancel: cancel,
		logger: t.logger,
	}
	if !t.supportsWorkDoneProgress {
		return wd
	}

	if wd.token == nil {
		token = strconv.FormatInt(rand.Int63(), 10)
		err := wd.client.WorkDoneProgressCreate(ctx, &lsp.WorkDoneProgressCreateParams{
			Token: token,
		})
		if err != nil {
			t.logger.Printf("error creating progress token: %v", err)
			wd.err = err
			return wd
		}
		wd.token = token
	}
	t.mu.Lock()
	t.inProgress[wd.token] = wd
	t.mu.Unlock()
	wd.cleanup = func() {
		t.mu.Lock()
		delete(t.inProgress, token)
		t.mu.Unlock()
	}
	err := wd.client.ProgressBegin(ctx, &lsp.WorkDoneProgressBeginParams{
		Token: wd.token,
		Value: &lsp.WorkDoneProgressBeginValue{
			Kind:        lsp.Begin,
			Title:       title,
			Cancellable: wd.cancel != nil,
			Message:     message,
		},
	})
	if err != nil {
		t.logger.Printf("error starting progress: %v", err)
	}
	return wd
}

// End reports a workdone completion back to the client.
func (wd *WorkDone) End(ctx context.Context, message string) {
	if wd == nil {
		return
	}
	ctx = xcontext.Detach(ctx) // progress messages should not be cancelled
	var err error
	switch {
	case wd.err != nil:
		// There is a prior error.
	case wd.token == nil:
		// progress reporting is off; nothing to end
	default:
		err = wd.client.ProgressEnd(ctx, &lsp.WorkDoneProgressEndParams{
			Token: wd.token,
			Value: &lsp.WorkDoneProgressEndValue{
				Kind:    lsp.End,
				Message: message,
			},
		})
	}
	if err != nil {
		wd.logger.Printf("error ending progress: %v", err)
	}
	if wd.cleanup != nil {
		wd.cleanup()
	}
}

// Cancel requests cancellation of an in-flight unit of work.
func (t *Tracker) Cancel(token lsp.ProgressToken) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	wd, ok := t.inProgress[token]
	if !ok {
		return fmt.Errorf("token %q not found in progress", token)
	}
	if wd.cancel == nil {
		return fmt.Errorf("work %q is not cancellable", token)
	}
	wd.doCancel()
	return nil
}

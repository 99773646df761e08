package logger

import (
	"context"
	"log/slog"
	"sync"

	"github.com/corymhall/cargo-appraiser/lsp"
	"github.com/corymhall/cargo-appraiser/xcontext"
)

var ProgramLevel = new(slog.LevelVar)

var (
	startLogSenderOnce sync.Once
	logQueue           = make(chan func(), 100) // big enough for a large transient burst
)

// Log forwards a message to the editor's output channel via
// window/logMessage. Messages are queued so a slow client never blocks the
// caller.
func Log(ctx context.Context, msg string, mt lsp.MessageType) {
	client := lsp.GetClient(ctx)
	if client == nil {
		return
	}
	logMsg := &lsp.LogMessageParams{
		Message:     msg,
		MessageType: mt,
	}

	startLogSenderOnce.Do(func() {
		go func() {
			for fn := range logQueue {
				fn()
			}
		}()
	})

	ctx2 := xcontext.Detach(ctx)
	logQueue <- func() { client.LogMessage(ctx2, logMsg) }
}

func ConvertLevel(level slog.Level) lsp.MessageType {
	switch level {
	case slog.LevelDebug:
		return lsp.MessageTypeDebug
	case slog.LevelInfo:
		return lsp.MessageTypeInfo
	case slog.LevelWarn:
		return lsp.MessageTypeWarning
	case slog.LevelError:
		return lsp.MessageTypeError
	default:
		return lsp.MessageTypeLog
	}
}

package lsp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/corymhall/cargo-appraiser/rpc"
	"github.com/corymhall/cargo-appraiser/xcontext"
)

type ProgressToken any

// UnmarshalJSON unmarshals msg into the variable pointed to by
// params. In JSONRPC, optional messages may be
// "null", in which case it is a no-op.
func UnmarshalJSON(msg json.RawMessage, v any) error {
	if len(msg) == 0 || bytes.Equal(msg, []byte("null")) {
		return nil
	}
	return json.Unmarshal(msg, v)
}

var (
	// RequestCancelledError should be used when a request is cancelled early.
	RequestCancelledError = errors.New("JSON RPC cancelled")
)

func ServerHandler(server Server, handler rpc.Handler) rpc.Handler {
	return func(ctx context.Context, reply rpc.Replier, req rpc.Request) error {
		if ctx.Err() != nil {
			ctx := xcontext.Detach(ctx)
			return reply(ctx, nil, RequestCancelledError)
		}
		handled, err := serverDispatch(ctx, server, reply, req)
		if handled || err != nil {
			return err
		}
		return handler(ctx, reply, req)
	}
}

func sendParseError(ctx context.Context, reply rpc.Replier, err error) error {
	return reply(ctx, nil, fmt.Errorf("%s: %w", rpc.ErrParse, err))
}

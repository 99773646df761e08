package rpc

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeCall(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"jsonrpc":"2.0","id":1,"method":"textDocument/hover","params":{"x":1}}`))
	require.NoError(t, err)
	call, ok := msg.(*Call)
	require.True(t, ok)
	require.Equal(t, "textDocument/hover", call.Method())
	require.JSONEq(t, `{"x":1}`, string(call.Params()))
}

func TestDecodeNotification(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"jsonrpc":"2.0","method":"initialized","params":{}}`))
	require.NoError(t, err)
	_, ok := msg.(*Notification)
	require.True(t, ok)
}

func TestDecodeErrorResponse(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"jsonrpc":"2.0","id":7,"error":{"code":-32601,"message":"method not found"}}`))
	require.NoError(t, err)
	resp, ok := msg.(*Response)
	require.True(t, ok)
	require.Error(t, resp.Err())
	require.Contains(t, resp.Err().Error(), "method not found")
}

func TestDecodeInvalid(t *testing.T) {
	_, err := DecodeMessage([]byte(`{"jsonrpc":"2.0"}`))
	require.Error(t, err)
}

func TestResponseMarshalError(t *testing.T) {
	resp, err := NewResponse(ID{number: 3}, nil, &wireError{Code: -32600, Message: "bad"})
	require.NoError(t, err)
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	require.Contains(t, string(data), `"error"`)
	require.NotContains(t, string(data), `"result"`)
}

func TestHeaderStreamRoundTrip(t *testing.T) {
	var out strings.Builder
	writeStream := NewHeaderStream(strings.NewReader(""), &out)

	notify, err := NewNotification("window/logMessage", map[string]string{"message": "hi"})
	require.NoError(t, err)
	_, err = writeStream.Write(context.Background(), notify)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out.String(), "Content-Length: "))

	readStream := NewHeaderStream(strings.NewReader(out.String()), io.Discard)
	msg, _, err := readStream.Read(context.Background())
	require.NoError(t, err)
	got, ok := msg.(*Notification)
	require.True(t, ok)
	require.Equal(t, "window/logMessage", got.Method())
}

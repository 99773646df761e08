package lsp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestURIPath(t *testing.T) {
	path, err := DocumentURI("file:///ws/demo/Cargo.toml").Path()
	require.NoError(t, err)
	require.Equal(t, "/ws/demo/Cargo.toml", path)

	_, err = DocumentURI("untitled:Untitled-1").Path()
	require.Error(t, err)
}

func TestURIFromPath(t *testing.T) {
	require.Equal(t, DocumentURI("file:///ws/demo/Cargo.toml"), URIFromPath("/ws/demo/Cargo.toml"))
	require.Equal(t, DocumentURI(""), URIFromPath(""))
}

func TestIsCargoManifest(t *testing.T) {
	require.True(t, DocumentURI("file:///ws/Cargo.toml").IsCargoManifest())
	require.False(t, DocumentURI("file:///ws/Cargo.lock").IsCargoManifest())
	require.False(t, DocumentURI("file:///ws/NotCargo.toml").IsCargoManifest())
}

func TestRangeContains(t *testing.T) {
	r := Range{Start: Position{Line: 1, Character: 2}, End: Position{Line: 1, Character: 10}}
	require.True(t, r.Contains(Position{Line: 1, Character: 2}))
	require.True(t, r.Contains(Position{Line: 1, Character: 9}))
	// the end is exclusive
	require.False(t, r.Contains(Position{Line: 1, Character: 10}))
	require.False(t, r.Contains(Position{Line: 0, Character: 5}))
}

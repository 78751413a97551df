package errors

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseErrorWraps(t *testing.T) {
	err := fmt.Errorf("compiling: %w", NewParseError("lucene", "foo:(", 4, "unbalanced %s", "group"))
	require.ErrorIs(t, err, ErrParse)

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, 4, pe.Pos)
	require.Contains(t, err.Error(), "unbalanced group")
	require.Equal(t, http.StatusBadRequest, HTTPStatusCode(err))
}

func TestUnresolvedListsAllNames(t *testing.T) {
	err := Unresolved("query parameter", "cm:one", "cm:two")
	require.ErrorIs(t, err, ErrUnresolved)
	require.Contains(t, err.Error(), "cm:one, cm:two")
}

func TestIndexIOKeepsCause(t *testing.T) {
	err := IndexIO("open segment", io.ErrUnexpectedEOF)
	require.ErrorIs(t, err, ErrIndexIO)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.Equal(t, http.StatusInternalServerError, HTTPStatusCode(err))
}

func TestAppErrorStatus(t *testing.T) {
	err := Newf(ErrNotFound, http.StatusGone, "store %s", "s1")
	require.Equal(t, http.StatusGone, HTTPStatusCode(err))
	require.ErrorIs(t, err, ErrNotFound)
}

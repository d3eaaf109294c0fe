package imapx

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsRecoverable(t *testing.T) {
	require.True(t, IsRecoverable(recoverable("fetch", errors.New("reset"))))
	require.True(t, IsRecoverable(ErrNotConnected))
	require.True(t, IsRecoverable(io.EOF))
	require.True(t, IsRecoverable(io.ErrUnexpectedEOF))

	require.False(t, IsRecoverable(nil))
	require.False(t, IsRecoverable(errors.New("parse failure")))
	require.False(t, IsRecoverable(authFailure("login", errors.New("no"))))
}

func TestIsRecoverableWrapped(t *testing.T) {
	err := fmt.Errorf("failed to list uids: %w", recoverable("search", errors.New("reset")))
	require.True(t, IsRecoverable(err))
}

func TestIsAuth(t *testing.T) {
	require.True(t, IsAuth(authFailure("login", errors.New("bad credentials"))))
	require.False(t, IsAuth(recoverable("fetch", errors.New("reset"))))
	require.False(t, IsAuth(errors.New("other")))
}

func TestConnErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := recoverable("op", inner)
	require.ErrorIs(t, err, inner)
}

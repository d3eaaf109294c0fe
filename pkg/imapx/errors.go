package imapx

import (
	"errors"
	"fmt"
	"io"
	"net"
)

// ErrKind partitions connection failures into the classes the sync
// engine reacts to differently.
type ErrKind int

const (
	// KindRecoverable covers transient I/O, protocol-level failures and
	// stale sessions: reconnect once and retry once.
	KindRecoverable ErrKind = iota
	// KindAuth means the server rejected the credentials; surfaced
	// immediately, never retried.
	KindAuth
)

// ConnError wraps a failure from the remote session with its class.
type ConnError struct {
	Kind ErrKind
	Op   string
	Err  error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("imap %s: %v", e.Op, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

// ErrNotConnected is returned when an operation runs without a live
// session; it is recoverable because a reconnect establishes one.
var ErrNotConnected = &ConnError{Kind: KindRecoverable, Op: "session", Err: errors.New("not connected")}

// IsRecoverable reports whether err warrants one reconnect-and-retry.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var ce *ConnError
	if errors.As(err, &ce) {
		return ce.Kind == KindRecoverable
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// IsAuth reports whether err is a credential rejection.
func IsAuth(err error) bool {
	var ce *ConnError
	return errors.As(err, &ce) && ce.Kind == KindAuth
}

func recoverable(op string, err error) error {
	return &ConnError{Kind: KindRecoverable, Op: op, Err: err}
}

func authFailure(op string, err error) error {
	return &ConnError{Kind: KindAuth, Op: op, Err: err}
}

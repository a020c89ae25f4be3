package messaging

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSessionClosed is returned by operations on a closed session
	ErrSessionClosed = errors.New("messaging: session is closed")
	// ErrUndeclared is returned by operations on a closed publisher or querier
	ErrUndeclared = errors.New("messaging: entity is undeclared")
	// ErrUnknownTransport is returned when no driver is registered for a transport name
	ErrUnknownTransport = errors.New("messaging: unknown transport")
	// ErrInvalidConfiguration is returned for unusable session configurations
	ErrInvalidConfiguration = errors.New("messaging: invalid configuration")
)

// SessionError represents a failed session operation
type SessionError struct {
	Op        string    // Operation that failed
	KeyExpr   string    // Key expression involved, if any
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
}

func (e *SessionError) Error() string {
	if e.KeyExpr != "" {
		return fmt.Sprintf("session error: %s on %q failed: %v", e.Op, e.KeyExpr, e.Err)
	}
	return fmt.Sprintf("session error: %s failed: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

func opError(op, keyExpr string, err error) error {
	return &SessionError{Op: op, KeyExpr: keyExpr, Err: err, Timestamp: time.Now()}
}

package models

import (
	"errors"
	"fmt"
)

var (
	ErrCleanedUp     = errors.New("session cleaned up")
	ErrDisconnected  = errors.New("server is currently disconnected")
	ErrSessionActive = errors.New("another session is active, close it before logging in")
	ErrRowNotFound   = errors.New("row not found")
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
	ErrSessionClosed = errors.New("session closed")
	ErrInvalidValue  = errors.New("value not allowed for column")
	ErrUnknownColumn = errors.New("unknown column")
	ErrNotConfirmed  = errors.New("destructive operation not confirmed")
)

// ConnectionError means the datastore could not be reached.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// PrivilegeError is an edit outside the role's field set or row ownership.
type PrivilegeError struct {
	Role  Role
	Key   string
	Field string
}

func (e *PrivilegeError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("role %s has no privilege to edit column %q", e.Role, e.Field)
	}
	return fmt.Sprintf("role %s has no privilege to edit column %q of row %s", e.Role, e.Field, e.Key)
}

// ConflictError reports another user editing the same cell.
type ConflictError struct {
	Editor string
	Key    string
	Field  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("user %s is editing cell (%s, %s)", e.Editor, e.Key, e.Field)
}

// TransactionError wraps a commit or rollback failure.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// MalformedNoticeError is an unparseable notification payload.
type MalformedNoticeError struct {
	Channel string
	Payload string
	Reason  string
}

func (e *MalformedNoticeError) Error() string {
	return fmt.Sprintf("malformed notice on %s (%s): %q", e.Channel, e.Reason, e.Payload)
}

// Package apperr defines the error taxonomy shared by the router, the match
// sessions and the rating engine. Each error carries the code that is sent to
// clients in an "error" frame.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindProtocol           Kind = "protocol_error"
	KindIllegalTransition  Kind = "illegal_transition"
	KindPairingTimeout     Kind = "pairing_timeout"
	KindForfeitTimeout     Kind = "forfeit_timeout"
	KindPersistenceFailure Kind = "persistence_failure"
)

// Wire codes.
const (
	CodeUnknownType    = "UNKNOWN_TYPE"
	CodeMalformed      = "MALFORMED_FRAME"
	CodeIdentity       = "IDENTITY_MISMATCH"
	CodeMatchNotFound  = "MATCH_NOT_FOUND"
	CodeNotParticipant = "NOT_PARTICIPANT"
	CodeWrongStatus    = "WRONG_STATUS"
	CodeWrongTurn      = "WRONG_TURN"
	CodeInvalidMove    = "INVALID_MOVE"
	CodeUnknownGame    = "UNKNOWN_GAME"
	CodeBusy           = "PLAYER_BUSY"
	CodeTimeout        = "TIMEOUT"
	CodeInternal       = "INTERNAL"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Protocol(code, msg string) *Error {
	return &Error{Kind: KindProtocol, Code: code, Message: msg}
}

func Illegal(code, msg string) *Error {
	return &Error{Kind: KindIllegalTransition, Code: code, Message: msg}
}

// PairingTimeout is the cause of a match cancelled because both players did
// not become ready in time.
func PairingTimeout(matchID string) *Error {
	return &Error{Kind: KindPairingTimeout, Code: CodeTimeout,
		Message: fmt.Sprintf("match %s was not joined in time", matchID)}
}

// ForfeitTimeout is the cause of a match lost by userID for staying away past
// the reconnect grace.
func ForfeitTimeout(matchID, userID string) *Error {
	return &Error{Kind: KindForfeitTimeout, Code: CodeTimeout,
		Message: fmt.Sprintf("%s did not reconnect to match %s", userID, matchID)}
}

func Persistence(msg string, err error) *Error {
	return &Error{Kind: KindPersistenceFailure, Code: CodeInternal, Message: msg, Err: err}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// CodeOf returns the wire code and message for any error; errors outside the
// taxonomy map to CodeInternal.
func CodeOf(err error) (string, string) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, e.Message
	}
	return CodeInternal, err.Error()
}

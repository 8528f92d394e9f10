package session

import "errors"

var (
	// ErrStreamBusy indicates a SendTurn while a stream is already in flight.
	// A session accepts one writer at a time.
	ErrStreamBusy = errors.New("a stream is already in flight")

	// ErrSessionNotFound indicates an unknown session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed indicates an operation on a closed session.
	ErrSessionClosed = errors.New("session is closed")
)

package lobby

import "errors"

var (
	// ErrAlreadyInSession indicates the connection is already bound to a live session.
	ErrAlreadyInSession = errors.New("lobby: connection already in a session")

	// ErrCapacityReached indicates the registry holds the maximum number of live sessions.
	ErrCapacityReached = errors.New("lobby: session capacity reached")

	// ErrSessionNotFound indicates the referenced session does not exist.
	ErrSessionNotFound = errors.New("lobby: session not found")

	// ErrSessionFull indicates the session holds the maximum number of members.
	ErrSessionFull = errors.New("lobby: session is full")
)

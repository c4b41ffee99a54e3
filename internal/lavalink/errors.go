// internal/lavalink/errors.go
package lavalink

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAvailableNode is returned by SelectNode when no node is Ready.
	ErrNoAvailableNode = errors.New("no available lavalink node")

	// ErrNoSessionID means a REST call was attempted before the node handshake.
	ErrNoSessionID = errors.New("node has no session id yet")

	// ErrStaleResponse marks a response issued against a superseded generation.
	// Callers drop it silently; it must never be applied to acknowledged state.
	ErrStaleResponse = errors.New("response from a superseded node generation")

	// ErrInvalidMessage means the node sent a frame the codec cannot decode.
	ErrInvalidMessage = errors.New("invalid message from lavalink node")

	errHandshake = errors.New("handshake failed")
)

// RemoteError is a REST call the node rejected. The session that issued it
// stays alive; the error is surfaced as a playback/command failure.
type RemoteError struct {
	Status  int
	Message string
	Path    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("lavalink rest error %d on %s: %s", e.Status, e.Path, e.Message)
}

// LoadError is a loadtracks response with loadType "error".
type LoadError struct {
	Exception Exception
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("track load failed (%s): %s", e.Exception.Severity, e.Exception.Message)
}

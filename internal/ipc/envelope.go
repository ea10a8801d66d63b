// Package ipc implements one side of a duplex message pipe with
// request/response correlation, fire-and-forget events, and the bridge that
// cross-routes two such channels between the agent process and front-ends.
package ipc

import (
	"errors"
	"fmt"
	"time"
)

// EnvelopeType discriminates the three wire envelope variants.
type EnvelopeType string

const (
	// EnvelopeRequest expects a response envelope with the same ID.
	EnvelopeRequest EnvelopeType = "request"
	// EnvelopeResponse answers a prior request, correlated solely by ID.
	EnvelopeResponse EnvelopeType = "response"
	// EnvelopeEvent is fire-and-forget; its ID is informational only.
	EnvelopeEvent EnvelopeType = "event"
)

// Envelope is the transport frame exchanged between channel peers.
// IDs are unique per channel instance across its lifetime, not just per
// in-flight window, so a late response can never collide with a reused id.
type Envelope struct {
	ID   string       `json:"id"`
	Type EnvelopeType `json:"type"`
	Data any          `json:"data,omitempty"`
	Ts   int64        `json:"ts"`
}

// ErrChannelDisposed rejects requests pending at disposal time and any verb
// called after Dispose. It signals deliberate shutdown, not a fault.
var ErrChannelDisposed = errors.New("ipc channel disposed")

// TimeoutError reports a request that outlived its deadline. The remote may
// still answer later; that late response is dropped silently.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("IPC request timeout after %dms", e.Timeout.Milliseconds())
}

// IsTimeout reports whether err is an IPC request timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

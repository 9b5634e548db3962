package session

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of the shared connection
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the status as its name
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Snapshot is a point-in-time view of the manager, readable without the lock
type Snapshot struct {
	Status         Status     `json:"status"`
	Fingerprint    string     `json:"fingerprint"`
	ConnectedSince *time.Time `json:"connected_since,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	LastErrorKind  string     `json:"last_error_kind,omitempty"`
	Reconnects     int        `json:"reconnects"`
}

package sync

import "encoding/json"

// Envelope is the JSON body of every feed response and stream message.
type Envelope struct {
	OK     *bool             `json:"ok,omitempty"`
	Unread *int              `json:"unread,omitempty"`
	Items  []json.RawMessage `json:"items"`
}

// Snapshot loads the items a new subscriber has not seen yet.
type Snapshot func(after int64) Envelope

// OK is the shared "ok": true marker.
func OK() *bool {
	ok := true
	return &ok
}

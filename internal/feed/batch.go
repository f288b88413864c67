package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Item is one entry of a feed. Payload holds the raw JSON object as sent by
// the backend; use Decode for a typed view.
type Item struct {
	ID      int64
	Payload json.RawMessage
}

// Batch is the group of items delivered by one transport event.
// A batch with Err set came from a failed request or an unparseable
// message and carries no items.
type Batch struct {
	Items  []Item
	Unread *int
	Err    error
}

// IDs returns the item ids in delivery order.
func (b Batch) IDs() []int64 {
	ids := make([]int64, len(b.Items))
	for i, it := range b.Items {
		ids[i] = it.ID
	}
	return ids
}

// envelope is the JSON shape shared by poll responses and stream messages.
type envelope struct {
	OK     *bool             `json:"ok"`
	Items  []json.RawMessage `json:"items"`
	Unread *int              `json:"unread"`
	Error  string            `json:"error"`
}

// ParseBatch decodes a poll response body or stream message.
// It never fails: problems are reported through Batch.Err.
func ParseBatch(data []byte) Batch {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Batch{Err: fmt.Errorf("%w: empty body", ErrMalformedPayload)}
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Batch{Err: fmt.Errorf("%w: %v", ErrMalformedPayload, err)}
	}

	// The notification stream omits "ok"; only an explicit false is a failure.
	if env.OK != nil && !*env.OK {
		msg := env.Error
		if msg == "" {
			msg = "backend reported ok=false"
		}
		return Batch{Err: fmt.Errorf("%w: %s", ErrNetworkFailure, msg)}
	}

	items := make([]Item, 0, len(env.Items))
	for _, raw := range env.Items {
		items = append(items, Item{ID: itemID(raw), Payload: raw})
	}

	return Batch{Items: items, Unread: env.Unread}
}

// itemID extracts the numeric id of a raw item. Missing, null,
// non-numeric and negative ids yield 0.
func itemID(raw json.RawMessage) int64 {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || len(probe.ID) == 0 {
		return 0
	}

	text := string(probe.ID)
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
		text = text[1 : len(text)-1]
	}

	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

// Decode unmarshals an item's payload into T.
func Decode[T any](it Item) (T, error) {
	var v T
	if err := json.Unmarshal(it.Payload, &v); err != nil {
		return v, fmt.Errorf("%w: item %d: %v", ErrMalformedPayload, it.ID, err)
	}
	return v, nil
}

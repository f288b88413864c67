package feed

import (
	"errors"
	"testing"
)

func TestParseBatch_PollResponse(t *testing.T) {
	b := ParseBatch([]byte(`{"ok":true,"unread":3,"items":[{"id":1,"title":"a"},{"id":2,"title":"b"}]}`))
	if b.Err != nil {
		t.Fatalf("unexpected error: %v", b.Err)
	}
	if len(b.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(b.Items))
	}
	if b.Items[0].ID != 1 || b.Items[1].ID != 2 {
		t.Errorf("unexpected ids: %v", b.IDs())
	}
	if b.Unread == nil || *b.Unread != 3 {
		t.Errorf("expected unread 3, got %v", b.Unread)
	}
}

func TestParseBatch_MissingOKAccepted(t *testing.T) {
	// Shape of the notification stream messages.
	b := ParseBatch([]byte(`{"unread":0,"items":[{"id":7}]}`))
	if b.Err != nil {
		t.Fatalf("unexpected error: %v", b.Err)
	}
	if len(b.Items) != 1 || b.Items[0].ID != 7 {
		t.Errorf("unexpected items: %v", b.IDs())
	}
}

func TestParseBatch_NotOK(t *testing.T) {
	b := ParseBatch([]byte(`{"ok":false,"error":"forbidden"}`))
	if !errors.Is(b.Err, ErrNetworkFailure) {
		t.Fatalf("expected ErrNetworkFailure, got %v", b.Err)
	}
	if len(b.Items) != 0 {
		t.Errorf("failed batch must carry no items")
	}
}

func TestParseBatch_Malformed(t *testing.T) {
	for _, body := range []string{"", "not json", `{"items":"nope"}`, `[1,2]`} {
		b := ParseBatch([]byte(body))
		if KindOf(b.Err) != KindMalformedPayload {
			t.Errorf("body %q: expected malformed payload, got %v", body, b.Err)
		}
	}
}

func TestParseBatch_ItemIDs(t *testing.T) {
	b := ParseBatch([]byte(`{"items":[{"id":"12"},{"id":null},{"title":"no id"},{"id":"abc"},{"id":-4},{"id":2.5},42]}`))
	if b.Err != nil {
		t.Fatalf("unexpected error: %v", b.Err)
	}

	want := []int64{12, 0, 0, 0, 0, 0, 0}
	got := b.IDs()
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d: expected id %d, got %d", i, want[i], got[i])
		}
	}
}

func TestDecode(t *testing.T) {
	b := ParseBatch([]byte(`{"ok":true,"items":[{"id":5,"user_name":"Ana","content":"hi","internal":true}]}`))

	c, err := Decode[Comment](b.Items[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ID != 5 || c.UserName != "Ana" || c.Content != "hi" || !c.Internal {
		t.Errorf("unexpected comment: %+v", c)
	}

	_, err = Decode[Comment](Item{ID: 1, Payload: []byte(`{"id":"x"}`)})
	if KindOf(err) != KindMalformedPayload {
		t.Errorf("expected malformed payload, got %v", err)
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(nil) != KindNone {
		t.Error("nil should be KindNone")
	}
	if KindOf(errors.New("boom")) != KindUnknown {
		t.Error("plain error should be KindUnknown")
	}
	if KindOf(ErrTransportUnavailable) != KindTransportUnavailable {
		t.Error("expected KindTransportUnavailable")
	}
}

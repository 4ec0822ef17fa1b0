package ids

import "testing"

func TestNewIDDeterministic(t *testing.T) {
	a := NewID([]byte("payload"))
	b := NewID([]byte("payload"))
	if a != b {
		t.Fatalf("same input hashed to different IDs: %s vs %s", a, b)
	}
	if a == NewID([]byte("other")) {
		t.Fatal("different inputs hashed to the same ID")
	}
}

func TestStringRoundTrip(t *testing.T) {
	id := NewID([]byte("block"))
	parsed, err := FromString(id.String())
	if err != nil {
		t.Fatalf("FromString: %v", err)
	}
	if parsed != id {
		t.Fatalf("round trip mismatch: %s vs %s", parsed, id)
	}
	if _, err := FromString("not hex"); err == nil {
		t.Fatal("expected error for non-hex input")
	}
}

func TestIsZero(t *testing.T) {
	if !Empty.IsZero() {
		t.Fatal("Empty must be zero")
	}
	if NewID([]byte("x")).IsZero() {
		t.Fatal("hash of data must not be zero")
	}
}

package idgen

import (
	"strings"
	"testing"
)

func TestUUIDv7_Format(t *testing.T) {
	id := UUIDv7()()
	parts := strings.Split(id, "-")
	if len(parts) != 5 {
		t.Fatalf("UUIDv7: expected 5 parts, got %d in %q", len(parts), id)
	}
	if len(id) != 36 {
		t.Fatalf("UUIDv7: expected length 36, got %d", len(id))
	}
	if id[14] != '7' {
		t.Fatalf("UUIDv7: version nibble = %q, want 7 in %q", id[14], id)
	}
}

func TestUUIDv7_Sortable(t *testing.T) {
	gen := UUIDv7()
	prev := gen()
	for i := 0; i < 100; i++ {
		id := gen()
		if id == prev {
			t.Fatalf("UUIDv7: duplicate at iteration %d", i)
		}
		// Same-millisecond IDs only share the timestamp prefix.
		if id[:8] < prev[:8] {
			t.Fatalf("UUIDv7: timestamp went backwards: %q after %q", id, prev)
		}
		prev = id
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("mb_", UUIDv7())()
	if !strings.HasPrefix(id, "mb_") {
		t.Fatalf("Prefixed: got %q, want mb_ prefix", id)
	}
	if len(id) != 3+36 {
		t.Fatalf("Prefixed: got length %d", len(id))
	}
}

func TestSequence(t *testing.T) {
	gen := Sequence("b")
	for _, want := range []string{"b1", "b2", "b3"} {
		if got := gen(); got != want {
			t.Fatalf("Sequence: got %q, want %q", got, want)
		}
	}
}

func TestParse(t *testing.T) {
	id := New()
	got, err := Parse(strings.ToUpper(id))
	if err != nil {
		t.Fatal(err)
	}
	if got != id {
		t.Errorf("Parse: got %q, want %q", got, id)
	}
	if _, err := Parse("not-a-uuid"); err == nil {
		t.Error("Parse: expected error for invalid input")
	}
}

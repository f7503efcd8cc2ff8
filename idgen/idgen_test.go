package idgen

import (
	"strings"
	"testing"
)

func TestUUIDv7_Format(t *testing.T) {
	id := New()
	if _, err := Parse(id); err != nil {
		t.Fatalf("New() = %q: %v", id, err)
	}
	if id[14] != '7' {
		t.Errorf("version nibble = %c, want 7 (%s)", id[14], id)
	}
}

func TestUUIDv7_Sortable(t *testing.T) {
	gen := UUIDv7()
	prev := gen()
	for i := 0; i < 100; i++ {
		next := gen()
		if next <= prev {
			t.Fatalf("ids not increasing: %s then %s", prev, next)
		}
		prev = next
	}
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("rev_", Default)
	id := gen()
	if !strings.HasPrefix(id, "rev_") {
		t.Fatalf("id %q lacks prefix", id)
	}
	if _, err := Parse(strings.TrimPrefix(id, "rev_")); err != nil {
		t.Fatal(err)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse("not-a-uuid"); err == nil {
		t.Fatal("expected error")
	}
}

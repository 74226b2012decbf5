package internal

import "testing"

func TestNewSessionID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id, err := NewSessionID()
		if err != nil {
			t.Fatalf("NewSessionID failed: %v", err)
		}
		if err := ParseSessionID(id); err != nil {
			t.Fatalf("generated id fails validation: %v", err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestParseSessionIDRejectsGarbage(t *testing.T) {
	for _, bad := range []string{"", "short", "!!!not-base64!!!", "AAAA"} {
		if err := ParseSessionID(bad); err == nil {
			t.Fatalf("expected rejection of %q", bad)
		}
	}
}

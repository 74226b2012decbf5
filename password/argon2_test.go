package password

import (
	"errors"
	"strings"
	"testing"
)

func testConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
}

func TestHashVerify(t *testing.T) {
	hasher, err := NewArgon2(testConfig())
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}

	hash, err := hasher.Hash("correct horse 7")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("unexpected PHC prefix: %q", hash)
	}

	ok, err := hasher.Verify("correct horse 7", hash)
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}

	ok, err = hasher.Verify("wrong horse 7", hash)
	if err != nil || ok {
		t.Fatalf("expected mismatch, got ok=%v err=%v", ok, err)
	}
}

func TestHashSaltsDiffer(t *testing.T) {
	hasher, err := NewArgon2(testConfig())
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}

	a, err := hasher.Hash("same input 1")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	b, err := hasher.Hash("same input 1")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if a == b {
		t.Fatalf("two hashes of the same input must not collide")
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	hasher, err := NewArgon2(testConfig())
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}

	if _, err := hasher.Verify("anything 1", "not-a-phc-string"); err == nil {
		t.Fatalf("expected error for malformed hash")
	}
}

func TestNewArgon2RejectsWeakParams(t *testing.T) {
	cfg := testConfig()
	cfg.Memory = 1024
	if _, err := NewArgon2(cfg); err == nil {
		t.Fatalf("expected rejection of weak memory parameter")
	}
}

func TestCheckPolicy(t *testing.T) {
	cases := []struct {
		credential string
		ok         bool
	}{
		{"longenough1", true},
		{"pass8word9 extra", true},
		{"short1", false},
		{"nodigitsinhere", false},
		{"1234567890", false},
		{"", false},
	}

	for _, tc := range cases {
		err := CheckPolicy(tc.credential)
		if tc.ok && err != nil {
			t.Fatalf("CheckPolicy(%q) unexpected error: %v", tc.credential, err)
		}
		if !tc.ok && !errors.Is(err, ErrWeakCredential) {
			t.Fatalf("CheckPolicy(%q) expected ErrWeakCredential, got %v", tc.credential, err)
		}
	}
}

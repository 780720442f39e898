package signature

import "testing"

func TestHMACSHA256Hex(t *testing.T) {
	// RFC 4231 test case 2
	got := HMACSHA256Hex("Jefe", "what do ya want for nothing?")
	want := "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843"
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestSHA256Hex(t *testing.T) {
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := SHA256Hex(""); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestEqual(t *testing.T) {
	if !Equal("ABCDEF", "abcdef") {
		t.Error("digests compare case-insensitively")
	}
	if Equal("", "") {
		t.Error("empty digests never match")
	}
	if Equal("abc", "abd") {
		t.Error("different digests must not match")
	}
}

func TestCanonical(t *testing.T) {
	got := Canonical(map[string]string{"b": "2", "a": "1", "signature": "x"}, "signature")
	if got != "a=1&b=2" {
		t.Errorf("unexpected canonical form %q", got)
	}
	if Join("|", "a", "b", "c") != "a|b|c" {
		t.Error("unexpected join")
	}
}

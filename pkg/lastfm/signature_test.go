package lastfm

import (
	"crypto/md5"
	"encoding/hex"
	"testing"
)

func TestSign_MatchesKnownDigest(t *testing.T) {
	got := Sign(map[string]string{"a": "1", "b": "2"}, "secret")

	sum := md5.Sum([]byte("a1b2secret"))
	want := hex.EncodeToString(sum[:])

	if got != want {
		t.Errorf("Sign = %s, want %s", got, want)
	}
}

func TestSign_OrderIndependent(t *testing.T) {
	first := Sign(map[string]string{"b": "2", "a": "1"}, "secret")
	second := Sign(map[string]string{"a": "1", "b": "2"}, "secret")

	if first != second {
		t.Errorf("signature depends on map construction order: %s != %s", first, second)
	}
}

func TestSign_RawValues(t *testing.T) {
	// Values must be concatenated unescaped; "a b&c" stays literal.
	got := Sign(map[string]string{"artist": "a b&c"}, "s")

	sum := md5.Sum([]byte("artista b&cs"))
	want := hex.EncodeToString(sum[:])

	if got != want {
		t.Errorf("Sign = %s, want %s", got, want)
	}
}

func TestSign_EmptyParams(t *testing.T) {
	got := Sign(nil, "secret")

	sum := md5.Sum([]byte("secret"))
	want := hex.EncodeToString(sum[:])

	if got != want {
		t.Errorf("Sign = %s, want %s", got, want)
	}
}

package util

import (
	"testing"
)

func TestDoubleSHA256_KnownVector(t *testing.T) {
	// Double-SHA256 of the empty string.
	got := DoubleSHA256(nil)
	want := "5df6e0e2761359d30a8275058e299fcc0381534545f55cf43e41983f5d4c9456"
	if HashToHex(got) != want {
		t.Errorf("DoubleSHA256(nil) = %s, want %s", HashToHex(got), want)
	}
}

func TestHexToHash_RoundTrip(t *testing.T) {
	var h [32]byte
	for i := range h {
		h[i] = byte(i)
	}
	back, err := HexToHash(HashToHex(h))
	if err != nil {
		t.Fatalf("HexToHash: %v", err)
	}
	if back != h {
		t.Error("round trip mismatch")
	}
}

func TestHexToHash_BadInput(t *testing.T) {
	cases := []string{"zz", "abcd", ""}
	for _, c := range cases {
		if _, err := HexToHash(c); err == nil {
			t.Errorf("HexToHash(%q): expected error", c)
		}
	}
}

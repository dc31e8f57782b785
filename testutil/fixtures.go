package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aced-network/aced/internal/cmt"
	"github.com/aced-network/aced/internal/types"
)

// TestBaseSymbolSize is the base symbol size used by the small test
// trees; the production 128 KiB symbols make unit tests needlessly
// slow. 512 bytes keeps a 16-symbol base layer big enough for a couple
// dozen transaction records.
const TestBaseSymbolSize = 512

// TestKSet is the per-layer systematic count of the small test tree:
// each layer satisfies k' = n/Aggregate and the top layer has exactly
// HeaderSize coded symbols.
func TestKSet() []int { return []int{16, 8, 4} }

// CopyCodes builds a rate-1/4 "copy" code per layer: 3k parity
// equations, equation j pairing systematic symbol j mod k with parity
// symbol k+j. Trivial structure, but peelable in both directions and
// enough to exercise encoding, hash gating, and stopping sets.
func CopyCodes() []*cmt.Code {
	var codes []*cmt.Code
	for _, k := range TestKSet() {
		n := 4 * k
		parities := make([][]int, 3*k)
		for j := 0; j < 3*k; j++ {
			parities[j] = []int{j % k, k + j}
		}
		code, err := cmt.NewCode(k, parities, n)
		if err != nil {
			panic(err)
		}
		codes = append(codes, code)
	}
	return codes
}

// Payload returns count serialized transactions with deterministic
// fields, concatenated into a block payload.
func Payload(count int) []byte {
	var out []byte
	for i := 0; i < count; i++ {
		tx := &types.Transaction{Nonce: uint64(i), Value: uint64(i) * 10}
		tx.From[0] = byte(i)
		out = append(out, tx.Serialize()...)
	}
	return out
}

// WriteCodeTables writes the copy-code parity tables for TestKSet into
// dir in the on-disk format cmt.LoadCodes reads.
func WriteCodeTables(t *testing.T, dir string) {
	t.Helper()
	for _, k := range TestKSet() {
		var lines []string
		for j := 0; j < 3*k; j++ {
			lines = append(lines, fmt.Sprintf("%d %d", j%k, k+j))
		}
		content := strings.Join(lines, "\n") + "\n"
		for _, direction := range []string{"encode", "decode"} {
			path := filepath.Join(dir, fmt.Sprintf("k=%d_%s.txt", k, direction))
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				t.Fatalf("write code table %s: %v", path, err)
			}
		}
	}
}

// EncodeTestBlock builds a tree and header over Payload(count).
func EncodeTestBlock(count int) (*cmt.Tree, *types.BlockHeader, error) {
	tree, err := cmt.Encode(Payload(count), CopyCodes(), TestBaseSymbolSize)
	if err != nil {
		return nil, nil, err
	}
	roots, err := tree.HeaderRoots()
	if err != nil {
		return nil, nil, err
	}
	return tree, &types.BlockHeader{Version: 1, CodedRoots: roots}, nil
}

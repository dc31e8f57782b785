package cmt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConvertParityToSymbols(t *testing.T) {
	parities := [][]int{{0, 1, 2}, {1, 3}, {0, 3}}
	symbols := ConvertParityToSymbols(parities, 4)

	require.Equal(t, [][]int{{0, 2}, {0, 1}, {0}, {1, 2}}, symbols)
}

func TestNewCode_ValidatesIndices(t *testing.T) {
	_, err := NewCode(1, [][]int{{0, 4}}, 4)
	require.Error(t, err, "out-of-range index must be rejected")

	_, err = NewCode(1, [][]int{{1, 1}}, 4)
	require.Error(t, err, "duplicate member must be rejected")

	code, err := NewCode(2, [][]int{{0, 2}, {1, 3}}, 4)
	require.NoError(t, err)
	require.Equal(t, 4, code.N())
	require.Equal(t, 2, code.P())
}

func TestLoadCode_ParsesTables(t *testing.T) {
	dir := t.TempDir()

	// k=2, n=8: six parity equations per direction.
	encode := "0 2\n1 3\n0 4\n1 5\n0 6\n1 7\n"
	decode := "2 0\n3 1\n4 0\n5 1\n6 0\n7 1\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "k=2_encode.txt"), []byte(encode), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "k=2_decode.txt"), []byte(decode), 0o644))

	enc, dec, err := LoadCode(2, dir)
	require.NoError(t, err)
	require.Equal(t, 6, enc.P())
	require.Equal(t, 8, enc.N())
	require.Equal(t, []int{0, 2}, enc.Parities[0])
	require.Equal(t, []int{2, 0}, dec.Parities[0])
	require.Equal(t, []int{0, 2, 4}, enc.Symbols[0])
}

func TestLoadCode_MissingFile(t *testing.T) {
	_, _, err := LoadCode(2, t.TempDir())
	require.Error(t, err)
}

func TestLoadCode_BadToken(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "k=2_encode.txt"), []byte("0 x\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "k=2_decode.txt"), []byte("0 2\n"), 0o644))

	_, _, err := LoadCode(2, dir)
	require.Error(t, err)
}

func TestLoadCodes_AllLayers(t *testing.T) {
	dir := t.TempDir()
	for _, k := range []int{4, 2} {
		var enc, dec string
		for j := 0; j < 3*k; j++ {
			line := ""
			line += itoa(j%k) + " " + itoa(k+j) + "\n"
			enc += line
			dec += line
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, "k="+itoa(k)+"_encode.txt"), []byte(enc), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "k="+itoa(k)+"_decode.txt"), []byte(dec), 0o644))
	}

	forEnc, forDec, err := LoadCodes([]int{4, 2}, dir)
	require.NoError(t, err)
	require.Len(t, forEnc, 2)
	require.Len(t, forDec, 2)
	require.Equal(t, 16, forEnc[0].N())
	require.Equal(t, 8, forDec[1].N())
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	var digits []byte
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	return string(digits)
}

package cmt

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aced-network/aced/internal/types"
)

// Code is the sparse bipartite parity-check graph of one CMT layer, held
// in both orientations so the peeling decoder can walk either side.
// Parities[j] lists the symbol indices participating in equation j;
// Symbols[i] lists the equations symbol i participates in.
type Code struct {
	K        int
	Parities [][]int
	Symbols  [][]int
}

// N is the code length: the number of coded symbols.
func (c *Code) N() int {
	return len(c.Symbols)
}

// P is the number of parity equations.
func (c *Code) P() int {
	return len(c.Parities)
}

// ConvertParityToSymbols derives the symbol-side adjacency from the
// parity-side one for a code of length n.
func ConvertParityToSymbols(parities [][]int, n int) [][]int {
	symbols := make([][]int, n)
	for j, parity := range parities {
		for _, s := range parity {
			symbols[s] = append(symbols[s], j)
		}
	}
	return symbols
}

// NewCode builds a Code from its parity equations and validates both
// orientations against each other.
func NewCode(k int, parities [][]int, n int) (*Code, error) {
	for j, parity := range parities {
		seen := make(map[int]struct{}, len(parity))
		for _, s := range parity {
			if s < 0 || s >= n {
				return nil, fmt.Errorf("equation %d references symbol %d outside [0,%d)", j, s, n)
			}
			if _, dup := seen[s]; dup {
				return nil, fmt.Errorf("equation %d references symbol %d twice", j, s)
			}
			seen[s] = struct{}{}
		}
	}
	return &Code{K: k, Parities: parities, Symbols: ConvertParityToSymbols(parities, n)}, nil
}

// readCodeFile parses one parity-check matrix file: one equation per line,
// whitespace-separated 0-based decimal symbol indices.
func readCodeFile(path string) ([][]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open code table: %w", err)
	}
	defer f.Close()

	var parities [][]int
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		parity := make([]int, 0, len(fields))
		for _, field := range fields {
			idx, err := strconv.Atoi(field)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: bad symbol index %q: %w", filepath.Base(path), line, field, err)
			}
			parity = append(parity, idx)
		}
		parities = append(parities, parity)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read code table: %w", err)
	}
	return parities, nil
}

// LoadCode reads the encode and decode parity-check matrices for one layer
// from dir; the files are named k=<k>_encode.txt and k=<k>_decode.txt.
func LoadCode(k int, dir string) (encode, decode *Code, err error) {
	n := int(float64(k) / types.Rate)

	encParities, err := readCodeFile(filepath.Join(dir, fmt.Sprintf("k=%d_encode.txt", k)))
	if err != nil {
		return nil, nil, err
	}
	encode, err = NewCode(k, encParities, n)
	if err != nil {
		return nil, nil, fmt.Errorf("k=%d encode matrix: %w", k, err)
	}

	decParities, err := readCodeFile(filepath.Join(dir, fmt.Sprintf("k=%d_decode.txt", k)))
	if err != nil {
		return nil, nil, err
	}
	decode, err = NewCode(k, decParities, n)
	if err != nil {
		return nil, nil, fmt.Errorf("k=%d decode matrix: %w", k, err)
	}
	return encode, decode, nil
}

// LoadCodes reads the full per-layer code set for a CMT with the given
// k-set (base layer first).
func LoadCodes(kSet []int, dir string) (forEncoding, forDecoding []*Code, err error) {
	for _, k := range kSet {
		enc, dec, err := LoadCode(k, dir)
		if err != nil {
			return nil, nil, err
		}
		forEncoding = append(forEncoding, enc)
		forDecoding = append(forDecoding, dec)
	}
	return forEncoding, forDecoding, nil
}

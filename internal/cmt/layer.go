package cmt

import (
	"sync"
)

// parityWorkers is the fan-out width for parallel parity accumulation.
// Worker w owns the parity equations j with j % parityWorkers == w.
const parityWorkers = 4

// parallelBatchMin is the ingest batch size below which the fan-out is
// not worth the channel traffic and the update runs inline.
const parallelBatchMin = 64

// layerDecoder runs hash-gated belief propagation over one CMT layer.
// The same machinery performs encoding: ingest the k systematic symbols
// and peel (ungated) until the n-k parities are solved.
type layerDecoder struct {
	level int
	n     int
	k     int
	p     int
	code  *Code

	// remaining[j] holds the still-Empty members of equation j; it is the
	// source of truth for "unique remaining neighbor" during peeling.
	remaining []map[int]struct{}

	symbols    []Symbol
	paritySums []Symbol
	parityDeg  []int
	degreeOne  []int

	symKind SymbolKind
	symLen  int

	decoded    int
	decodedSys int
}

// newLayerDecoder builds the per-layer state. Parity accumulators are
// allocated up front and reused for the whole decode; level 0 carries
// base symbols of baseSymbolSize bytes, upper levels carry digest groups.
func newLayerDecoder(level int, code *Code, baseSymbolSize int) *layerDecoder {
	n := code.N()
	p := code.P()

	d := &layerDecoder{
		level:      level,
		n:          n,
		k:          code.K,
		p:          p,
		code:       code,
		remaining:  make([]map[int]struct{}, p),
		symbols:    make([]Symbol, n),
		paritySums: make([]Symbol, p),
		parityDeg:  make([]int, p),
		symKind:    KindUpper,
		symLen:     UpperSymbolSize,
	}
	if level == 0 {
		d.symKind = KindBase
		d.symLen = baseSymbolSize
	}
	for j, parity := range code.Parities {
		members := make(map[int]struct{}, len(parity))
		for _, i := range parity {
			members[i] = struct{}{}
		}
		d.remaining[j] = members
		d.parityDeg[j] = len(parity)
		if level == 0 {
			d.paritySums[j] = NewBaseSymbol(baseSymbolSize)
		} else {
			d.paritySums[j] = NewUpperSymbol()
		}
	}
	for i := range d.symbols {
		d.symbols[i] = EmptySymbol()
	}
	return d
}

// ingest records received or newly decoded symbols. Symbols whose slot is
// already filled are dropped, which makes repeated delivery idempotent.
// It returns the subset that was actually fresh and whether the layer is
// now fully decoded.
func (d *layerDecoder) ingest(symbols []Symbol, indices []int) (fresh []Symbol, freshIdx []int, done bool) {
	count := len(symbols)
	if len(indices) < count {
		count = len(indices)
	}
	for i := 0; i < count; i++ {
		idx := indices[i]
		if idx < 0 || idx >= d.n {
			continue
		}
		// A symbol of the wrong variant or size is malformed input, not
		// a coding error: drop it before it can reach the XOR path.
		if symbols[i].Kind != d.symKind || len(symbols[i].Data) != d.symLen {
			continue
		}
		if !d.symbols[idx].IsEmpty() {
			continue
		}
		d.symbols[idx] = symbols[i]
		d.decoded++
		if idx < d.k {
			d.decodedSys++
		}
		fresh = append(fresh, symbols[i])
		freshIdx = append(freshIdx, idx)
	}
	return fresh, freshIdx, d.decoded == d.n
}

// parityUpdate folds freshly known symbols into every parity equation
// they participate in: XOR into the accumulator, drop the remaining
// degree, and collect equations that reach degree one. Returns whether
// any degree-one equation is available afterwards.
//
// The XOR work is the decoder's hot loop and is independent across
// parity equations, so large batches are fanned out to parityWorkers
// goroutines, each owning the accumulator slice j % parityWorkers == w;
// the degree bookkeeping stays on the calling goroutine.
func (d *layerDecoder) parityUpdate(fresh []Symbol, freshIdx []int) bool {
	if len(fresh) == 0 {
		return len(d.degreeOne) != 0
	}

	if len(fresh) >= parallelBatchMin {
		d.parityXorParallel(fresh, freshIdx)
	} else {
		for t, idx := range freshIdx {
			for _, j := range d.code.Symbols[idx] {
				d.paritySums[j].XorInto(fresh[t].Data)
			}
		}
	}

	for _, idx := range freshIdx {
		for _, j := range d.code.Symbols[idx] {
			d.parityDeg[j]--
			if d.parityDeg[j] == 1 {
				d.degreeOne = append(d.degreeOne, j)
			}
			delete(d.remaining[j], idx)
		}
	}
	return len(d.degreeOne) != 0
}

// parityXorTask is one unit streamed to a fan-out worker.
type parityXorTask struct {
	data   []byte
	parity int
}

func (d *layerDecoder) parityXorParallel(fresh []Symbol, freshIdx []int) {
	chans := make([]chan parityXorTask, parityWorkers)
	var wg sync.WaitGroup
	for w := 0; w < parityWorkers; w++ {
		chans[w] = make(chan parityXorTask, 256)
		wg.Add(1)
		go func(in <-chan parityXorTask) {
			defer wg.Done()
			for task := range in {
				d.paritySums[task.parity].XorInto(task.data)
			}
		}(chans[w])
	}

	for t, idx := range freshIdx {
		for _, j := range d.code.Symbols[idx] {
			chans[j%parityWorkers] <- parityXorTask{data: fresh[t].Data, parity: j}
		}
	}

	// Drain barrier: workers exit once their stream closes, and every
	// accumulator slice is back under the caller's ownership after Wait.
	for _, ch := range chans {
		close(ch)
	}
	wg.Wait()
}

// checkParities verifies every fully-resolved equation sums to zero.
// A violation is an incorrect coding: the returned equation index feeds
// a NotZero proof.
func (d *layerDecoder) checkParities() (violated int, ok bool) {
	for j := 0; j < d.p; j++ {
		if d.parityDeg[j] == 0 && !d.paritySums[j].IsZero() {
			return j, false
		}
	}
	return 0, true
}

// hashMismatch carries what a NotHash proof needs: the violated equation
// and the index of the symbol whose decoded value missed its hash.
type hashMismatch struct {
	parity int
	symbol int
}

// peel solves every available degree-one equation. With gate set, each
// newly decoded symbol must match its expected hash; a mismatch aborts
// with the offending equation (the decoded value is kept in place so the
// proof can reference it, and is never overwritten). Without the gate
// (encoding, where all inputs are trusted) symbols are accepted as-is.
func (d *layerDecoder) peel(gate bool, expected [][32]byte) (fresh []Symbol, freshIdx []int, done bool, bad *hashMismatch) {
	for _, j := range d.degreeOne {
		if len(d.remaining[j]) == 0 {
			// Equation already resolved through another peel.
			continue
		}
		var idx int
		for i := range d.remaining[j] {
			idx = i
		}
		if !d.symbols[idx].IsEmpty() {
			continue
		}

		value := d.paritySums[j].Clone()
		d.symbols[idx] = value

		if gate {
			if value.Hash() != expected[idx] {
				d.degreeOne = nil
				return nil, nil, false, &hashMismatch{parity: j, symbol: idx}
			}
		}

		d.decoded++
		if idx < d.k {
			d.decodedSys++
		}
		fresh = append(fresh, value)
		freshIdx = append(freshIdx, idx)
	}
	d.degreeOne = nil
	return fresh, freshIdx, d.decoded == d.n, nil
}

// stoppingSet returns the indices still Empty; when the peeler stalls
// these form the stopping set of the received sample pattern.
func (d *layerDecoder) stoppingSet() []uint64 {
	var set []uint64
	for i := range d.symbols {
		if d.symbols[i].IsEmpty() {
			set = append(set, uint64(i))
		}
	}
	return set
}

// systematic returns the first k symbol values.
func (d *layerDecoder) systematic() []Symbol {
	return d.symbols[:d.k]
}

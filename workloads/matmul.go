// Package workloads holds example job functions exercising the
// communicator: distributed matrix multiplication, Monte Carlo
// estimation, and parallel primality testing.
package workloads

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/thomasedgemon/mpigo/comm"
	"github.com/thomasedgemon/mpigo/registry"
)

// ErrDimensionMismatch is returned when a*b's inner dimensions
// disagree, mirroring the original implementation's ValueError.
var ErrDimensionMismatch = errors.New("workloads: incompatible matrix dimensions")

const (
	tagABase     = 1000
	tagBBase     = 2000
	tagAStepBase = 3000
	tagBStepBase = 4000
)

type matmulMeta struct {
	M int `msgpack:"m"`
	K int `msgpack:"k"`
	N int `msgpack:"n"`
}

func partitionRanges(n, parts int) [][2]int {
	base := n / parts
	remainder := n % parts
	ranges := make([][2]int, parts)
	start := 0
	for i := 0; i < parts; i++ {
		size := base
		if i < remainder {
			size++
		}
		end := start + size
		ranges[i] = [2]int{start, end}
		start = end
	}
	return ranges
}

// gridDims picks the most-square process grid (pr rows, pc columns)
// that evenly divides size, matching the original's descending search
// from sqrt(size).
func gridDims(size int) (pr, pc int) {
	root := int(math.Sqrt(float64(size)))
	for r := root; r > 0; r-- {
		if size%r == 0 {
			return r, size / r
		}
	}
	return 1, size
}

func localMatMul(a, b [][]float64) ([][]float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return nil, ErrDimensionMismatch
	}
	if len(a[0]) != len(b) {
		return nil, ErrDimensionMismatch
	}
	m, k, n := len(a), len(b), len(b[0])
	out := make([][]float64, m)
	for i := 0; i < m; i++ {
		out[i] = make([]float64, n)
		for p := 0; p < k; p++ {
			av := a[i][p]
			if av == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				out[i][j] += av * b[p][j]
			}
		}
	}
	return out, nil
}

func subBlock(m [][]float64, rs, re, cs, ce int) [][]float64 {
	out := make([][]float64, re-rs)
	for i := range out {
		out[i] = append([]float64(nil), m[rs+i][cs:ce]...)
	}
	return out
}

func blockSize(b [][]float64) int {
	if len(b) == 0 {
		return 0
	}
	return len(b) * len(b[0])
}

func addInto(dst, src [][]float64) {
	for i := range dst {
		for j := range dst[i] {
			dst[i][j] += src[i][j]
		}
	}
}

func zeros(rows, cols int) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
	}
	return out
}

// MatMul multiplies a by b using c's rank/size: a single local product
// when c.Size()==1, a 2D block-decomposed distributed product
// otherwise. Only rank 0's a and b are read; other ranks pass nil.
func MatMul(c registry.Communicator, a, b [][]float64, cancelRequested func() bool) ([][]float64, error) {
	if c.Size() == 1 {
		return localMatMul(a, b)
	}

	pr, pc := gridDims(int(c.Size()))

	var meta matmulMeta
	if c.Rank() == 0 {
		if len(a) == 0 || len(b) == 0 || len(a[0]) != len(b) {
			return nil, ErrDimensionMismatch
		}
		meta = matmulMeta{M: len(a), K: len(b), N: len(b[0])}
	}
	bmeta, err := comm.Bcast[matmulMeta](c, meta, 0)
	if err != nil {
		return nil, fmt.Errorf("workloads: matmul: broadcasting shape: %w", err)
	}
	m, k, n := bmeta.M, bmeta.K, bmeta.N

	rowRanges := partitionRanges(m, pr)
	kRanges := partitionRanges(k, pc)
	colRanges := partitionRanges(n, pc)

	rank := int(c.Rank())
	r := rank / pc
	col := rank % pc

	rowStart, rowEnd := rowRanges[r][0], rowRanges[r][1]
	colStart, colEnd := colRanges[col][0], colRanges[col][1]
	localC := zeros(rowEnd-rowStart, colEnd-colStart)

	var localA [][]float64
	localBBlocks := make(map[int][][]float64)

	if rank == 0 {
		for rr := 0; rr < pr; rr++ {
			rs, re := rowRanges[rr][0], rowRanges[rr][1]
			for cc := 0; cc < pc; cc++ {
				ks, ke := kRanges[cc][0], kRanges[cc][1]
				block := subBlock(a, rs, re, ks, ke)
				dest := rr*pc + cc
				if dest == 0 {
					localA = block
				} else if err := c.Send(block, uint32(dest), uint32(tagABase+dest)); err != nil {
					return nil, fmt.Errorf("workloads: matmul: sending A block: %w", err)
				}
			}
		}
		for q := 0; q < pc; q++ {
			ks, ke := kRanges[q][0], kRanges[q][1]
			ownerRow := q % pr
			for cc := 0; cc < pc; cc++ {
				cs, ce := colRanges[cc][0], colRanges[cc][1]
				block := subBlock(b, ks, ke, cs, ce)
				dest := ownerRow*pc + cc
				if dest == 0 {
					localBBlocks[q] = block
				} else if err := c.Send(block, uint32(dest), uint32(tagBBase+q)); err != nil {
					return nil, fmt.Errorf("workloads: matmul: sending B block: %w", err)
				}
			}
		}
	} else {
		if err := c.RecvInto(ptrU32(0), ptrU32(uint32(tagABase+rank)), 0, &localA); err != nil {
			return nil, fmt.Errorf("workloads: matmul: receiving A block: %w", err)
		}
		for q := 0; q < pc; q++ {
			if q%pr == r {
				var block [][]float64
				if err := c.RecvInto(ptrU32(0), ptrU32(uint32(tagBBase+q)), 0, &block); err != nil {
					return nil, fmt.Errorf("workloads: matmul: receiving B block: %w", err)
				}
				localBBlocks[q] = block
			}
		}
	}

	for q := 0; q < pc; q++ {
		if cancelRequested != nil && cancelRequested() {
			return nil, nil
		}

		var aPanel [][]float64
		if col == q {
			aPanel = localA
			for destC := 0; destC < pc; destC++ {
				if destC == col {
					continue
				}
				destRank := r*pc + destC
				if err := c.Send(aPanel, uint32(destRank), uint32(tagAStepBase+q)); err != nil {
					return nil, fmt.Errorf("workloads: matmul: A step send: %w", err)
				}
			}
		} else {
			ownerRank := r*pc + q
			if err := c.RecvInto(ptrU32(uint32(ownerRank)), ptrU32(uint32(tagAStepBase+q)), 0, &aPanel); err != nil {
				return nil, fmt.Errorf("workloads: matmul: A step recv: %w", err)
			}
		}

		ownerRow := q % pr
		var bPanel [][]float64
		if r == ownerRow {
			bPanel = localBBlocks[q]
			for destR := 0; destR < pr; destR++ {
				if destR == r {
					continue
				}
				destRank := destR*pc + col
				if err := c.Send(bPanel, uint32(destRank), uint32(tagBStepBase+q)); err != nil {
					return nil, fmt.Errorf("workloads: matmul: B step send: %w", err)
				}
			}
		} else {
			ownerRank := ownerRow*pc + col
			if err := c.RecvInto(ptrU32(uint32(ownerRank)), ptrU32(uint32(tagBStepBase+q)), 0, &bPanel); err != nil {
				return nil, fmt.Errorf("workloads: matmul: B step recv: %w", err)
			}
		}

		if blockSize(aPanel) > 0 && blockSize(bPanel) > 0 {
			partial, err := localMatMul(aPanel, bPanel)
			if err != nil {
				return nil, err
			}
			addInto(localC, partial)
		}
	}

	gathered, err := comm.Gather[[][]float64](c, localC, 0)
	if err != nil {
		return nil, fmt.Errorf("workloads: matmul: gather: %w", err)
	}
	if rank != 0 {
		return nil, nil
	}

	result := zeros(m, n)
	for gatherRank, block := range gathered {
		rr := gatherRank / pc
		cc := gatherRank % pc
		rs, re := rowRanges[rr][0], rowRanges[rr][1]
		cs, ce := colRanges[cc][0], colRanges[cc][1]
		if rs == re || cs == ce {
			continue
		}
		for i := rs; i < re; i++ {
			copy(result[i][cs:ce], block[i-rs])
		}
	}
	return result, nil
}

func ptrU32(v uint32) *uint32 { return &v }

var matmulInputsMu sync.Mutex
var matmulInputs *struct{ a, b [][]float64 }

// SetMatMulInputs stashes a and b for the next MatMulJob invocation on
// rank 0 — mirroring the original implementation's module-level
// `_MATMUL_INPUTS`, which avoids shipping large matrices through the
// launcher's environment-variable argument handover.
func SetMatMulInputs(a, b [][]float64) {
	matmulInputsMu.Lock()
	matmulInputs = &struct{ a, b [][]float64 }{a, b}
	matmulInputsMu.Unlock()
}

// ClearMatMulInputs releases the stashed matrices after a job completes.
func ClearMatMulInputs() {
	matmulInputsMu.Lock()
	matmulInputs = nil
	matmulInputsMu.Unlock()
}

// MatMulJob is the registered entrypoint for a distributed matmul: it
// reads a and b (set via SetMatMulInputs on rank 0 before Run) rather
// than accepting them as job arguments, since job arguments are
// shipped to every worker through the SSH launcher's environment
// variable handover and would duplicate the whole matrix per rank.
func MatMulJob(c registry.Communicator, args []any) (any, error) {
	var a, b [][]float64
	if c.Rank() == 0 {
		matmulInputsMu.Lock()
		inputs := matmulInputs
		matmulInputsMu.Unlock()
		if inputs == nil {
			return nil, fmt.Errorf("workloads: matmul inputs missing on root")
		}
		a, b = inputs.a, inputs.b
	}
	return MatMul(c, a, b, nil)
}

func init() {
	registry.Register("workloads", "MatMulJob", MatMulJob)
}

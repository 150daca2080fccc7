package workloads

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/thomasedgemon/mpigo/comm"
	"github.com/thomasedgemon/mpigo/registry"
)

// ErrNegativeSamples is returned when num_samples is negative.
var ErrNegativeSamples = errors.New("workloads: num_samples must be non-negative")

// Result is the default finalizer's output: mean, variance, and
// standard error across every sample taken, pooled across ranks.
type Result struct {
	Mean     float64
	Variance float64
	StdErr   float64
	Samples  int
}

// SampleFunc draws one sample using rng.
type SampleFunc func(rng *rand.Rand) any

// EvalFunc maps a sample to the numeric value the default reducer
// accumulates.
type EvalFunc func(sample any) float64

// InitFunc, ReduceFunc, CombineFunc, and FinalizeFunc let callers replace the
// default mean/variance reduction with a custom one, mirroring the
// original implementation's optional reduce_fn/combine_fn/finalize_fn.
type (
	InitFunc     func() any
	ReduceFunc   func(acc any, value float64) any
	CombineFunc  func(left, right any) any
	FinalizeFunc func(acc any, totalSamples int) any
)

type defaultAcc struct {
	Sum   float64 `msgpack:"sum"`
	SumSq float64 `msgpack:"sumsq"`
	Count float64 `msgpack:"count"`
}

func defaultInit() any { return defaultAcc{} }

// asDefaultAcc accepts either a defaultAcc produced locally or the
// map[string]any msgpack decodes a gathered accumulator into once it
// has crossed the wire from another rank — any's dynamic type does not
// survive a round trip through a schemaless codec.
func asDefaultAcc(v any) defaultAcc {
	switch t := v.(type) {
	case defaultAcc:
		return t
	case map[string]any:
		return defaultAcc{Sum: toFloat(t["sum"]), SumSq: toFloat(t["sumsq"]), Count: toFloat(t["count"])}
	default:
		return defaultAcc{}
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	default:
		return 0
	}
}

func defaultReduce(acc any, value float64) any {
	a := asDefaultAcc(acc)
	a.Sum += value
	a.SumSq += value * value
	a.Count++
	return a
}

func defaultCombine(left, right any) any {
	l := asDefaultAcc(left)
	r := asDefaultAcc(right)
	l.Sum += r.Sum
	l.SumSq += r.SumSq
	l.Count += r.Count
	return l
}

func defaultFinalize(acc any, totalSamples int) any {
	if totalSamples <= 0 {
		return Result{Mean: math.NaN(), Variance: math.NaN(), StdErr: math.NaN()}
	}
	a := asDefaultAcc(acc)
	mean := a.Sum / float64(totalSamples)
	variance := math.Max(0, a.SumSq/float64(totalSamples)-mean*mean)
	stderr := math.Sqrt(variance / float64(totalSamples))
	return Result{Mean: mean, Variance: variance, StdErr: stderr, Samples: totalSamples}
}

func partitionCounts(total, parts int) []int {
	base := total / parts
	remainder := total % parts
	counts := make([]int, parts)
	for i := range counts {
		counts[i] = base
		if i < remainder {
			counts[i]++
		}
	}
	return counts
}

// partial is the value gathered from every rank: a local completion
// flag (true if that rank bailed out early on cancellation) and its
// partial accumulator.
type partial struct {
	Cancelled bool `msgpack:"cancelled"`
	Acc       any  `msgpack:"acc"`
}

// Options configures a MonteCarlo run. A nil ReduceFunc selects the
// built-in mean/variance/stderr reduction; InitFunc and CombineFunc
// are required whenever ReduceFunc is set.
type Options struct {
	InitFunc         InitFunc
	ReduceFunc       ReduceFunc
	CombineFunc      CombineFunc
	FinalizeFunc     FinalizeFunc
	Seed             int64
	HasSeed          bool
	CancelCheckEvery int
	CancelRequested  func() bool
}

// MonteCarlo runs numSamples trials split evenly across c's ranks,
// reducing with opts' accumulator (or the default mean/variance one),
// and returns the combined result on rank 0 (nil elsewhere, or if any
// rank observed cancellation).
func MonteCarlo(c registry.Communicator, numSamples int, sampleFn SampleFunc, evalFn EvalFunc, opts Options) (any, error) {
	if numSamples < 0 {
		return nil, ErrNegativeSamples
	}

	initFn, reduceFn, combineFn, finalizeFn := opts.InitFunc, opts.ReduceFunc, opts.CombineFunc, opts.FinalizeFunc
	if reduceFn == nil {
		initFn, reduceFn, combineFn, finalizeFn = defaultInit, defaultReduce, defaultCombine, defaultFinalize
	} else {
		if initFn == nil {
			return nil, fmt.Errorf("workloads: init_fn is required when reduce_fn is provided")
		}
		if combineFn == nil {
			return nil, fmt.Errorf("workloads: combine_fn is required when reduce_fn is provided")
		}
	}

	counts := partitionCounts(numSamples, int(c.Size()))
	localSamples := counts[c.Rank()]

	var rng *rand.Rand
	if opts.HasSeed {
		rng = rand.New(rand.NewSource(opts.Seed + int64(c.Rank())))
	} else {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	cancelCheckEvery := opts.CancelCheckEvery
	acc := initFn()
	cancelled := false
	for i := 0; i < localSamples; i++ {
		if cancelCheckEvery > 0 && i%cancelCheckEvery == 0 && opts.CancelRequested != nil && opts.CancelRequested() {
			cancelled = true
			break
		}
		sample := sampleFn(rng)
		value := evalFn(sample)
		acc = reduceFn(acc, value)
	}

	partials, err := comm.Gather[partial](c, partial{Cancelled: cancelled, Acc: acc}, 0)
	if err != nil {
		return nil, fmt.Errorf("workloads: montecarlo: gather: %w", err)
	}
	if c.Rank() != 0 {
		return nil, nil
	}

	for _, p := range partials {
		if p.Cancelled {
			return nil, nil
		}
	}

	combined := partials[0].Acc
	for _, p := range partials[1:] {
		combined = combineFn(combined, p.Acc)
	}

	if finalizeFn == nil {
		return combined, nil
	}
	return finalizeFn(combined, numSamples), nil
}

// NewMonteCarloJob binds sampleFn and evalFn into a registry.JobFunc
// that reads numSamples from args[0]. sampleFn and evalFn are not
// wire-transmitted: every rank runs the same compiled binary, so they
// only need to be registered identically on each one (see
// registry.Register), the same way the original implementation relies
// on every worker importing the same Python module.
func NewMonteCarloJob(sampleFn SampleFunc, evalFn EvalFunc, opts Options) registry.JobFunc {
	return func(c registry.Communicator, args []any) (any, error) {
		if len(args) < 1 {
			return nil, fmt.Errorf("workloads: montecarlo job requires num_samples as args[0]")
		}
		numSamples, ok := args[0].(int)
		if !ok {
			return nil, fmt.Errorf("workloads: montecarlo job: args[0] must be an int")
		}
		return MonteCarlo(c, numSamples, sampleFn, evalFn, opts)
	}
}

// EstimatePi samples points uniformly in the unit square and counts
// the fraction falling inside the unit quarter-circle, the textbook
// Monte Carlo estimate of pi, distributed across every rank.
func EstimatePi(c registry.Communicator, numSamples int, cancelRequested func() bool) (Result, error) {
	sample := func(rng *rand.Rand) any {
		return [2]float64{rng.Float64(), rng.Float64()}
	}
	eval := func(s any) float64 {
		p := s.([2]float64)
		if p[0]*p[0]+p[1]*p[1] <= 1.0 {
			return 4.0
		}
		return 0.0
	}
	out, err := MonteCarlo(c, numSamples, sample, eval, Options{
		CancelCheckEvery: 1024,
		CancelRequested:  cancelRequested,
	})
	if err != nil || out == nil {
		return Result{}, err
	}
	return out.(Result), nil
}

var EstimatePiJob = NewMonteCarloJob(
	func(rng *rand.Rand) any { return [2]float64{rng.Float64(), rng.Float64()} },
	func(s any) float64 {
		p := s.([2]float64)
		if p[0]*p[0]+p[1]*p[1] <= 1.0 {
			return 4.0
		}
		return 0.0
	},
	Options{CancelCheckEvery: 1024},
)

func init() {
	registry.Register("workloads", "EstimatePiJob", EstimatePiJob)
}

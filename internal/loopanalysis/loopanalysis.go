// Package loopanalysis classifies each `for` loop as Bounded or Unbounded
// and recommends the eBPF-legal lowering strategy that will carry it
// through the verifier (spec.md §4.4). It consumes only what the checker
// hands it: the loop node and a constant-folding function closed over the
// environment accumulated from the statements preceding the loop in the
// same block.
package loopanalysis

import "github.com/kernelscript/ksc/internal/ast"

// Strategy is the eBPF-legal lowering chosen for one loop.
type Strategy string

const (
	UnrolledLoop  Strategy = "unroll"
	SimpleLoop    Strategy = "simple"
	BpfLoopHelper Strategy = "bpf_loop"
)

// Bound describes the classification of a loop's trip count.
type Bound struct {
	Bounded bool
	Lo, Hi  int64 // meaningful only when Bounded
}

// Result is the full analysis of one loop.
type Result struct {
	Bound          Bound
	EstimatedIters int64 // -1 when Bounded is false
	Strategy       Strategy
}

// Fold folds e to a constant int64 using whatever environment the caller
// has accumulated, reporting ok=false when e is not currently constant.
type Fold func(e ast.Expr) (int64, bool)

// Analyze classifies n. The iterator surface form (`for v in expr`) is
// always Unbounded per spec.md §4.4/§9: the source language exhibits
// divergent handling here and the safer, conservative classification is
// kept until a real use case forces folding it too.
func Analyze(n *ast.ForStmt, fold Fold) Result {
	if n.Kind != ast.ForRange {
		return unbounded()
	}
	lo, okLo := fold(n.Start)
	hi, okHi := fold(n.End)
	if !okLo || !okHi {
		return unbounded()
	}
	iters := hi - lo
	if iters < 0 {
		iters = 0
	}
	return Result{
		Bound:          Bound{Bounded: true, Lo: lo, Hi: hi},
		EstimatedIters: iters,
		Strategy:       strategyFor(true, iters),
	}
}

func unbounded() Result {
	return Result{Bound: Bound{Bounded: false}, EstimatedIters: -1, Strategy: strategyFor(false, -1)}
}

// strategyFor applies the thresholds of spec.md §4.4, breaking ties toward
// the lower-verifier-risk strategy in the order Unroll -> Simple -> BpfLoop.
func strategyFor(bounded bool, iters int64) Strategy {
	if bounded && iters <= 4 {
		return UnrolledLoop
	}
	if !bounded || iters > 100 {
		return BpfLoopHelper
	}
	return SimpleLoop
}

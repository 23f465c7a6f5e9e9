package loopanalysis_test

import (
	"testing"

	"github.com/kernelscript/ksc/internal/ast"
	"github.com/kernelscript/ksc/internal/loopanalysis"
)

func constFold(vals map[ast.Expr]int64) loopanalysis.Fold {
	return func(e ast.Expr) (int64, bool) {
		v, ok := vals[e]
		return v, ok
	}
}

// S5: a small bounded loop (0..3) must fold to the unrolled strategy.
func TestAnalyze_SmallBoundedLoopUnrolls(t *testing.T) {
	lo := &ast.IntLit{Raw: 0}
	hi := &ast.IntLit{Raw: 3}
	n := &ast.ForStmt{Kind: ast.ForRange, Start: lo, End: hi}

	res := loopanalysis.Analyze(n, constFold(map[ast.Expr]int64{lo: 0, hi: 3}))

	if !res.Bound.Bounded {
		t.Fatal("expected Bounded = true")
	}
	if res.EstimatedIters != 3 {
		t.Errorf("EstimatedIters = %d, want 3", res.EstimatedIters)
	}
	if res.Strategy != loopanalysis.UnrolledLoop {
		t.Errorf("Strategy = %v, want UnrolledLoop", res.Strategy)
	}
}

func TestAnalyze_MediumBoundedLoopUsesSimpleStrategy(t *testing.T) {
	lo := &ast.IntLit{Raw: 0}
	hi := &ast.IntLit{Raw: 50}
	n := &ast.ForStmt{Kind: ast.ForRange, Start: lo, End: hi}

	res := loopanalysis.Analyze(n, constFold(map[ast.Expr]int64{lo: 0, hi: 50}))

	if res.Strategy != loopanalysis.SimpleLoop {
		t.Errorf("Strategy = %v, want SimpleLoop", res.Strategy)
	}
}

func TestAnalyze_LargeBoundedLoopUsesBpfLoopHelper(t *testing.T) {
	lo := &ast.IntLit{Raw: 0}
	hi := &ast.IntLit{Raw: 1000}
	n := &ast.ForStmt{Kind: ast.ForRange, Start: lo, End: hi}

	res := loopanalysis.Analyze(n, constFold(map[ast.Expr]int64{lo: 0, hi: 1000}))

	if res.Strategy != loopanalysis.BpfLoopHelper {
		t.Errorf("Strategy = %v, want BpfLoopHelper", res.Strategy)
	}
}

func TestAnalyze_IteratorFormIsAlwaysUnbounded(t *testing.T) {
	n := &ast.ForStmt{Kind: ast.ForIter, Iter: &ast.Ident{Name: "items"}}

	res := loopanalysis.Analyze(n, constFold(nil))

	if res.Bound.Bounded {
		t.Error("expected ForIter to classify as Unbounded")
	}
	if res.EstimatedIters != -1 {
		t.Errorf("EstimatedIters = %d, want -1", res.EstimatedIters)
	}
	if res.Strategy != loopanalysis.BpfLoopHelper {
		t.Errorf("Strategy = %v, want BpfLoopHelper", res.Strategy)
	}
}

func TestAnalyze_NonConstantBoundsAreUnbounded(t *testing.T) {
	lo := &ast.IntLit{Raw: 0}
	hi := &ast.Ident{Name: "n"}
	n := &ast.ForStmt{Kind: ast.ForRange, Start: lo, End: hi}

	res := loopanalysis.Analyze(n, constFold(map[ast.Expr]int64{lo: 0}))

	if res.Bound.Bounded {
		t.Error("expected non-constant hi bound to classify as Unbounded")
	}
}

func TestAnalyze_DescendingRangeHasZeroIterations(t *testing.T) {
	lo := &ast.IntLit{Raw: 10}
	hi := &ast.IntLit{Raw: 5}
	n := &ast.ForStmt{Kind: ast.ForRange, Start: lo, End: hi}

	res := loopanalysis.Analyze(n, constFold(map[ast.Expr]int64{lo: 10, hi: 5}))

	if res.EstimatedIters != 0 {
		t.Errorf("EstimatedIters = %d, want 0", res.EstimatedIters)
	}
	if res.Strategy != loopanalysis.UnrolledLoop {
		t.Errorf("Strategy = %v, want UnrolledLoop for zero iterations", res.Strategy)
	}
}

func TestAnalyze_BoundaryFourUnrollsFiveDoesNot(t *testing.T) {
	four := testRangeIters(4)
	if four.Strategy != loopanalysis.UnrolledLoop {
		t.Errorf("4 iterations Strategy = %v, want UnrolledLoop", four.Strategy)
	}
	five := testRangeIters(5)
	if five.Strategy != loopanalysis.SimpleLoop {
		t.Errorf("5 iterations Strategy = %v, want SimpleLoop", five.Strategy)
	}
}

func testRangeIters(n int64) loopanalysis.Result {
	lo := &ast.IntLit{Raw: 0}
	hi := &ast.IntLit{Raw: uint64(n)}
	stmt := &ast.ForStmt{Kind: ast.ForRange, Start: lo, End: hi}
	return loopanalysis.Analyze(stmt, constFold(map[ast.Expr]int64{lo: 0, hi: n}))
}

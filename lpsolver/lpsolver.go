// Package lpsolver wraps gonum's simplex implementation behind a small
// incremental model builder: non-negative variables with optional upper
// bounds, linear <= / >= constraints and a minimization objective.
package lpsolver

import (
	"context"
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// Status reports the outcome of a solve.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusUnbounded
	StatusTimeout
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusTimeout:
		return "timeout"
	default:
		return "error"
	}
}

type constraint struct {
	coeffs map[int]float64
	rhs    float64
}

// Problem is a linear program under construction. All variables are
// implicitly bounded below by zero.
type Problem struct {
	costs []float64
	upper []float64 // +Inf = unbounded above

	le []constraint // sum coeffs*x <= rhs
	ge []constraint // sum coeffs*x >= rhs
}

// Solution holds the variable values and objective of an optimal solve.
type Solution struct {
	X         []float64
	Objective float64
}

// New creates an empty minimization problem.
func New() *Problem {
	return &Problem{}
}

// AddVariable adds a variable with the given objective coefficient and upper
// bound (use math.Inf(1) for none) and returns its index. An upper bound of
// zero pins the variable to zero.
func (p *Problem) AddVariable(cost, upper float64) int {
	p.costs = append(p.costs, cost)
	p.upper = append(p.upper, upper)
	return len(p.costs) - 1
}

// AddConstraintLE adds sum(coeffs[i] * x[i]) <= rhs.
func (p *Problem) AddConstraintLE(coeffs map[int]float64, rhs float64) {
	p.le = append(p.le, constraint{coeffs: coeffs, rhs: rhs})
}

// AddConstraintGE adds sum(coeffs[i] * x[i]) >= rhs.
func (p *Problem) AddConstraintGE(coeffs map[int]float64, rhs float64) {
	p.ge = append(p.ge, constraint{coeffs: coeffs, rhs: rhs})
}

// NumVariables returns the number of variables added so far.
func (p *Problem) NumVariables() int {
	return len(p.costs)
}

type solveResult struct {
	sol    Solution
	status Status
}

// Solve minimizes the objective, giving up after timeLimit or when ctx is
// done. On StatusTimeout the underlying simplex keeps running in the
// background until it finishes on its own; the model is small enough that
// this never accumulates.
func (p *Problem) Solve(ctx context.Context, timeLimit time.Duration) (Solution, Status) {
	done := make(chan solveResult, 1)
	go func() {
		done <- p.solve()
	}()

	timer := time.NewTimer(timeLimit)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.sol, res.status
	case <-timer.C:
		return Solution{}, StatusTimeout
	case <-ctx.Done():
		return Solution{}, StatusTimeout
	}
}

// solve converts the model to standard form and runs the simplex method.
func (p *Problem) solve() solveResult {
	n := len(p.costs)
	if n == 0 {
		return solveResult{status: StatusError}
	}

	// Collect all inequalities as G x <= h: the <= rows as-is, the >= rows
	// negated, one row per finite upper bound, and one -x_i <= 0 row per
	// variable. Convert treats general-form variables as free, so the lower
	// bound must be an explicit row or solutions go negative.
	var rows []constraint
	rows = append(rows, p.le...)
	for _, c := range p.ge {
		neg := make(map[int]float64, len(c.coeffs))
		for i, v := range c.coeffs {
			neg[i] = -v
		}
		rows = append(rows, constraint{coeffs: neg, rhs: -c.rhs})
	}
	for i, ub := range p.upper {
		if !math.IsInf(ub, 1) {
			rows = append(rows, constraint{coeffs: map[int]float64{i: 1}, rhs: ub})
		}
	}
	for i := 0; i < n; i++ {
		rows = append(rows, constraint{coeffs: map[int]float64{i: -1}, rhs: 0})
	}

	g := mat.NewDense(len(rows), n, nil)
	h := make([]float64, len(rows))
	for r, c := range rows {
		for i, v := range c.coeffs {
			g.Set(r, i, v)
		}
		h[r] = c.rhs
	}

	cStd, aStd, bStd := lp.Convert(p.costs, g, h, nil, nil)
	objective, xStd, err := lp.Simplex(cStd, aStd, bStd, 1e-10, nil)
	if err != nil {
		switch {
		case errors.Is(err, lp.ErrInfeasible):
			return solveResult{status: StatusInfeasible}
		case errors.Is(err, lp.ErrUnbounded):
			return solveResult{status: StatusUnbounded}
		default:
			return solveResult{status: StatusError}
		}
	}

	// Convert splits each free variable into a positive and a negative part;
	// the original value is their difference.
	x := make([]float64, n)
	for i := range x {
		x[i] = xStd[i] - xStd[n+i]
		if x[i] < 0 && x[i] > -1e-9 {
			x[i] = 0
		}
	}

	return solveResult{
		sol:    Solution{X: x, Objective: objective},
		status: StatusOptimal,
	}
}

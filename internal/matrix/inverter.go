package matrix

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrSingular is returned when a pivot falls below PivotTolerance.
var ErrSingular = errors.New("matrix: singular")

const PivotTolerance = 1e-9

// Inverter holds the LU factors of a square matrix A with partial pivoting:
// P·A = L·U, L unit lower triangular, U upper triangular.
type Inverter struct {
	n  int
	lu mat.LU
}

// NewInverter factors a. It panics when a is not square.
func NewInverter(a *Matrix) (*Inverter, error) {
	if !a.IsSquare() {
		panic(fmt.Sprintf("matrix: cannot invert %dx%d", a.Rows(), a.Cols()))
	}
	inv := &Inverter{n: a.Rows()}
	inv.lu.Factorize(a.d)
	var u mat.TriDense
	inv.lu.UTo(&u)
	for k := 0; k < inv.n; k++ {
		if p := math.Abs(u.At(k, k)); p < PivotTolerance || math.IsNaN(p) {
			return nil, fmt.Errorf("%w: pivot %d is %g", ErrSingular, k, p)
		}
	}
	return inv, nil
}

func (inv *Inverter) Lower() *Matrix {
	var l mat.TriDense
	inv.lu.LTo(&l)
	return FromDense(&l)
}

func (inv *Inverter) Upper() *Matrix {
	var u mat.TriDense
	inv.lu.UTo(&u)
	return FromDense(&u)
}

// Permutation returns P with P·A = L·U.
func (inv *Inverter) Permutation() *Matrix {
	p := New(inv.n, inv.n)
	// gonum factors A = Pg·L·U with row i of A equal to row piv[i] of L·U.
	for i, j := range inv.lu.RowPivots(nil) {
		p.Set(j, i, 1)
	}
	return p
}

// Solve returns X with A·X = B for every column of B.
func (inv *Inverter) Solve(b *Matrix) *Matrix {
	if b.Rows() != inv.n {
		panic(fmt.Sprintf("matrix: cannot solve %dx%d system with %dx%d right side", inv.n, inv.n, b.Rows(), b.Cols()))
	}
	var x mat.Dense
	if err := inv.lu.SolveTo(&x, false, b.d); err != nil {
		// Small pivots were rejected in NewInverter, so this is only gonum's
		// ill-conditioning warning and x is still the solution.
		var c mat.Condition
		if !errors.As(err, &c) {
			panic(err)
		}
	}
	return &Matrix{d: &x}
}

func (inv *Inverter) Inverse() *Matrix {
	return inv.Solve(Identity(inv.n))
}

// Inverse factors and inverts a in one step.
func Inverse(a *Matrix) (*Matrix, error) {
	inv, err := NewInverter(a)
	if err != nil {
		return nil, err
	}
	return inv.Inverse(), nil
}

// Package matrix is a small dense matrix type over gonum's mat.Dense with an
// LU based inverter. Dimension mismatches are programming errors and panic.
package matrix

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Matrix satisfies mat.Matrix, so it can be passed straight to gonum.
type Matrix struct {
	d *mat.Dense
}

// New returns a zero rows×cols matrix.
func New(rows, cols int) *Matrix {
	if rows <= 0 || cols <= 0 {
		panic(fmt.Sprintf("matrix: invalid size %dx%d", rows, cols))
	}
	return &Matrix{d: mat.NewDense(rows, cols, nil)}
}

// FromRows copies a rectangular slice of rows.
func FromRows(rows [][]float64) *Matrix {
	if len(rows) == 0 || len(rows[0]) == 0 {
		panic("matrix: empty rows")
	}
	m := New(len(rows), len(rows[0]))
	for i, r := range rows {
		if len(r) != len(rows[0]) {
			panic(fmt.Sprintf("matrix: row %d has %d columns, want %d", i, len(r), len(rows[0])))
		}
		m.d.SetRow(i, r)
	}
	return m
}

// FromDense copies any gonum matrix.
func FromDense(a mat.Matrix) *Matrix {
	return &Matrix{d: mat.DenseCopyOf(a)}
}

// Column returns an n×1 matrix holding values.
func Column(values ...float64) *Matrix {
	m := New(len(values), 1)
	m.d.SetCol(0, values)
	return m
}

func Identity(n int) *Matrix {
	m := New(n, n)
	for i := 0; i < n; i++ {
		m.d.Set(i, i, 1)
	}
	return m
}

func (m *Matrix) Dims() (r, c int) { return m.d.Dims() }

func (m *Matrix) Rows() int {
	r, _ := m.d.Dims()
	return r
}

func (m *Matrix) Cols() int {
	_, c := m.d.Dims()
	return c
}

func (m *Matrix) At(i, j int) float64     { return m.d.At(i, j) }
func (m *Matrix) Set(i, j int, v float64) { m.d.Set(i, j, v) }

// T is the gonum transpose view; Transpose returns a copy.
func (m *Matrix) T() mat.Matrix { return m.d.T() }

func (m *Matrix) Clone() *Matrix { return FromDense(m.d) }

func (m *Matrix) IsSquare() bool {
	r, c := m.d.Dims()
	return r == c
}

func (m *Matrix) Transpose() *Matrix { return FromDense(m.d.T()) }

func (m *Matrix) Multiply(o *Matrix) *Matrix {
	if m.Cols() != o.Rows() {
		panic(fmt.Sprintf("matrix: cannot multiply %dx%d by %dx%d", m.Rows(), m.Cols(), o.Rows(), o.Cols()))
	}
	var r mat.Dense
	r.Mul(m.d, o.d)
	return &Matrix{d: &r}
}

func (m *Matrix) Add(o *Matrix) *Matrix {
	var r mat.Dense
	r.Add(m.d, o.d)
	return &Matrix{d: &r}
}

func (m *Matrix) Sub(o *Matrix) *Matrix {
	var r mat.Dense
	r.Sub(m.d, o.d)
	return &Matrix{d: &r}
}

func (m *Matrix) Scale(f float64) *Matrix {
	var r mat.Dense
	r.Scale(f, m.d)
	return &Matrix{d: &r}
}

// Equal reports whether m and o have the same shape and all entries within tol.
func (m *Matrix) Equal(o *Matrix, tol float64) bool {
	return mat.EqualApprox(m.d, o.d, tol)
}

func (m *Matrix) String() string {
	return fmt.Sprintf("%.6g\n", mat.Formatted(m.d))
}

// Package lsq fits reconstruction polynomials to cell averages on a stencil.
//
// The fit is constrained to reproduce the seed-cell average exactly: the
// basis is m_k - mu_k, with mu_k the seed average of monomial m_k, so the
// constant term drops out of the least-squares system and is recovered
// afterwards.
package lsq

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/cweno/grid"
	"github.com/notargets/cweno/polynomial"
	"github.com/notargets/cweno/stencil"
	"github.com/notargets/cweno/utils"
)

var ErrRankDeficient = errors.New("rank deficient least-squares system")

// Solver holds the factorized design matrix of one stencil. It is safe for
// concurrent use once built.
type Solver struct {
	stencil stencil.Stencil
	degree  int
	nDims   int
	frame   polynomial.Frame
	mu      []float64 // seed averages of the non-constant monomials
	qr      *mat.QR
}

// DesignMatrix builds the constrained least-squares matrix of s. Row i
// belongs to stencil cell i+1, column j to monomial j+1 of the graded
// table, in the frame of the seed.
func DesignMatrix(g *grid.Grid, s stencil.Stencil) (A *mat.Dense, mu []float64, frame polynomial.Frame, err error) {
	var (
		seed   = s.Local[0]
		degree = s.Order - 1
		nCols  = polynomial.NDOF(degree, g.NDims) - 1
		nRows  = s.Size() - 1
		avg    []float64
	)
	frame = polynomial.Frame{Center: g.Centers[seed], Scale: g.CircumRadii[seed]}
	if avg, err = monomialAverages(g, seed, degree, frame); err != nil {
		return
	}
	mu = avg[1:]
	if nCols == 0 || nRows == 0 {
		return
	}
	A = mat.NewDense(nRows, nCols, nil)
	for i, k := range s.Local[1:] {
		if avg, err = monomialAverages(g, k, degree, frame); err != nil {
			return
		}
		for j := 0; j < nCols; j++ {
			A.Set(i, j, avg[j+1]-mu[j])
		}
	}
	return
}

func monomialAverages(g *grid.Grid, k, degree int, frame polynomial.Frame) (avg []float64, err error) {
	var (
		pts  []r3.Vec
		wts  []float64
		n    = polynomial.NDOF(degree, g.NDims)
		mono [polynomial.MaxCoeffs]float64
	)
	if pts, wts, err = g.QuadraturePoints(k, degree); err != nil {
		return
	}
	avg = make([]float64, n)
	for i, x := range pts {
		polynomial.MonomialValues(g.NDims, degree, frame.ToLocal(x), mono[:])
		for j := 0; j < n; j++ {
			avg[j] += wts[i] * mono[j]
		}
	}
	return
}

// NewSolver assembles and factorizes the system of stencil s. Systems with
// fewer cells than unknowns or with a numerically singular R factor fail
// with ErrRankDeficient.
func NewSolver(g *grid.Grid, s stencil.Stencil) (sv *Solver, err error) {
	if s.Order < 1 || s.Order > stencil.MaxOrder {
		return nil, fmt.Errorf("%w: order %d", stencil.ErrInvalidParams, s.Order)
	}
	var A *mat.Dense
	sv = &Solver{
		stencil: s,
		degree:  s.Order - 1,
		nDims:   g.NDims,
	}
	if A, sv.mu, sv.frame, err = DesignMatrix(g, s); err != nil {
		return nil, err
	}
	nCols := len(sv.mu)
	if nCols == 0 {
		return
	}
	if nRows := s.Size() - 1; nRows < nCols {
		return nil, fmt.Errorf("%w: cell %d: %d equations for %d unknowns",
			ErrRankDeficient, s.Local[0], nRows, nCols)
	}
	sv.qr = &mat.QR{}
	sv.qr.Factorize(A)
	var (
		R    mat.Dense
		rMax float64
	)
	sv.qr.RTo(&R)
	for j := 0; j < nCols; j++ {
		rMax = math.Max(rMax, math.Abs(R.At(j, j)))
	}
	for j := 0; j < nCols; j++ {
		if rjj := math.Abs(R.At(j, j)); rjj <= utils.RANKTOL*rMax || rMax == 0 {
			return nil, fmt.Errorf("%w: cell %d: |R[%d,%d]| = %g, max %g",
				ErrRankDeficient, s.Local[0], j, j, rjj, rMax)
		}
	}
	return
}

func (sv *Solver) Stencil() stencil.Stencil { return sv.stencil }

func (sv *Solver) Degree() int { return sv.degree }

func (sv *Solver) Frame() polynomial.Frame { return sv.frame }

// Solve fits every column of qbar, rows indexed by local cell, in one
// batched solve. The result reproduces the seed average of each column.
func (sv *Solver) Solve(qbar *mat.Dense) (p polynomial.WENOPoly, err error) {
	var (
		_, nVars = qbar.Dims()
		seed     = sv.stencil.Local[0]
		nCols    = len(sv.mu)
	)
	if nVars < 1 || nVars > polynomial.MaxVars {
		return p, fmt.Errorf("cannot fit %d state variables, limit is %d", nVars, polynomial.MaxVars)
	}
	p = polynomial.NewWENOPoly(sv.degree, sv.nDims, nVars, sv.frame)
	if nCols == 0 {
		for v := 0; v < nVars; v++ {
			p.SetCoeff(v, 0, qbar.At(seed, v))
		}
		return
	}
	var (
		cells = sv.stencil.Local[1:]
		b     = mat.NewDense(len(cells), nVars, nil)
		x     mat.Dense
	)
	for i, k := range cells {
		for v := 0; v < nVars; v++ {
			b.Set(i, v, qbar.At(k, v)-qbar.At(seed, v))
		}
	}
	if err = sv.qr.SolveTo(&x, false, b); err != nil {
		return p, fmt.Errorf("%w: cell %d: %v", ErrRankDeficient, seed, err)
	}
	for v := 0; v < nVars; v++ {
		c0 := qbar.At(seed, v)
		for j := 0; j < nCols; j++ {
			c := x.At(j, v)
			p.SetCoeff(v, j+1, c)
			c0 -= c * sv.mu[j]
		}
		p.SetCoeff(v, 0, c0)
	}
	return
}

// SolveScalar fits a single field given one average per local cell.
func (sv *Solver) SolveScalar(qbar []float64) (p polynomial.ScalarPoly, err error) {
	var wp polynomial.WENOPoly
	if wp, err = sv.Solve(mat.NewDense(len(qbar), 1, qbar)); err != nil {
		return
	}
	return polynomial.AsScalar(wp), nil
}

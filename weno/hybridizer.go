// Package weno blends the member polynomials of a stencil family into one
// reconstruction with CWENO-AO nonlinear weights, and drives the per-cell
// fit and blend over a grid.
package weno

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/cweno/polynomial"
	"github.com/notargets/cweno/stencil"
	"github.com/notargets/cweno/utils"
)

// Hybridizer blends the polynomials of one family.
type Hybridizer struct {
	gamma    []float64
	epsilon  float64
	exponent int
	highest  int
}

func NewHybridizer(params HybridWENOParams, family *stencil.StencilFamily) (h *Hybridizer, err error) {
	if err = params.Validate(family.Len()); err != nil {
		return nil, err
	}
	np := params.normalized()
	h = &Hybridizer{
		gamma:    np.LinearWeights,
		epsilon:  np.Epsilon,
		exponent: np.Exponent,
		highest:  family.HighestOrderStencil(),
	}
	return
}

// LinearWeights are the normalized linear weights.
func (h *Hybridizer) LinearWeights() []float64 { return h.gamma }

// NonlinearWeights computes gamma_k / (eps + beta_k)^r normalized to sum to
// one. Each term is taken relative to the smallest denominator, so the sum
// is at least the linear weight of the smoothest member.
func NonlinearWeights(gamma, beta []float64, epsilon float64, exponent int) (omega []float64) {
	omega = make([]float64, len(gamma))
	dMin := epsilon + beta[0]
	for _, b := range beta[1:] {
		dMin = min(dMin, epsilon+b)
	}
	if dMin == 0 {
		copy(omega, gamma)
		floats.Scale(1/floats.Sum(omega), omega)
		return
	}
	for k := range omega {
		omega[k] = gamma[k] * utils.POW(dMin/(epsilon+beta[k]), exponent)
	}
	floats.Scale(1/floats.Sum(omega), omega)
	return
}

// prepare brings every member into the frame of the highest-order member
// and returns the seed rule in that frame.
func (h *Hybridizer) prepare(polys []polynomial.WENOPoly, pts []r3.Vec) (framed []polynomial.WENOPoly,
	localPts []r3.Vec, err error) {
	if len(polys) != len(h.gamma) {
		return nil, nil, fmt.Errorf("%d polynomials for %d linear weights", len(polys), len(h.gamma))
	}
	var (
		target = polys[h.highest].Frame()
		nVars  = polys[h.highest].NVars()
	)
	framed = make([]polynomial.WENOPoly, len(polys))
	for k, p := range polys {
		if p.NVars() != nVars {
			return nil, nil, fmt.Errorf("polynomial %d has %d variables, want %d", k, p.NVars(), nVars)
		}
		framed[k] = p.Reframe(target)
	}
	localPts = make([]r3.Vec, len(pts))
	for i, x := range pts {
		localPts[i] = target.ToLocal(x)
	}
	return
}

// Weights returns the nonlinear weights omega[v][k] of every variable. pts
// and wts are a seed-cell quadrature rule in global coordinates, exact for
// squared derivatives of the members.
func (h *Hybridizer) Weights(polys []polynomial.WENOPoly, pts []r3.Vec, wts []float64) (omega [][]float64, err error) {
	var (
		framed   []polynomial.WENOPoly
		localPts []r3.Vec
	)
	if framed, localPts, err = h.prepare(polys, pts); err != nil {
		return
	}
	nVars := framed[0].NVars()
	omega = make([][]float64, nVars)
	beta := make([]float64, len(framed))
	for v := 0; v < nVars; v++ {
		for k, p := range framed {
			beta[k] = p.SmoothnessIndicator(v, localPts, wts)
		}
		omega[v] = NonlinearWeights(h.gamma, beta, h.epsilon, h.exponent)
	}
	return
}

// Hybridize blends the members, ordered as in the family, into one
// polynomial in the seed frame of the highest-order member:
//
//	p* = sum_k omega_k p~_k,  p~_h = (p_h - sum_{k!=h} gamma_k p_k) / gamma_h
//
// The blend is convex in the coefficients of the p~_k, so the seed average
// shared by every member is preserved.
func (h *Hybridizer) Hybridize(polys []polynomial.WENOPoly, pts []r3.Vec, wts []float64) (p polynomial.WENOPoly, err error) {
	var omega [][]float64
	if omega, err = h.Weights(polys, pts, wts); err != nil {
		return
	}
	var (
		target = polys[h.highest].Frame()
		degree int
	)
	for _, q := range polys {
		degree = max(degree, q.Degree())
	}
	p = polynomial.NewWENOPoly(degree, polys[0].NDims(), polys[0].NVars(), target)
	gh := h.gamma[h.highest]
	for v := range omega {
		w := omega[v]
		for k, q := range polys {
			var a float64
			if k == h.highest {
				a = w[k] / gh
			} else {
				a = w[k] - w[h.highest]*h.gamma[k]/gh
			}
			p.AddScaledVar(v, a, q.Reframe(target))
		}
	}
	return
}

func (h *Hybridizer) HybridizeScalar(polys []polynomial.ScalarPoly, pts []r3.Vec, wts []float64) (p polynomial.ScalarPoly, err error) {
	vp := make([]polynomial.WENOPoly, len(polys))
	for k, q := range polys {
		vp[k] = q.Vector()
	}
	var wp polynomial.WENOPoly
	if wp, err = h.Hybridize(vp, pts, wts); err != nil {
		return
	}
	return polynomial.AsScalar(wp), nil
}

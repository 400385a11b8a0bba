// Package polynomial holds the fixed-capacity reconstruction polynomials.
//
// A WENOPoly stores up to MaxVars components, each a polynomial of total
// degree <= MaxDegree in the local coordinates of its Frame. Coefficients live
// in a fixed array, so assignment copies the polynomial.
package polynomial

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/cweno/utils"
)

type WENOPoly struct {
	degree, nDims, nVars int
	frame                Frame
	coeffs               [MaxCoeffs * MaxVars]float64 // coeffs[v*MaxCoeffs+k]
}

func NewWENOPoly(degree, nDims, nVars int, frame Frame) (p WENOPoly) {
	if degree < 0 || degree > MaxDegree {
		panic(fmt.Sprintf("polynomial degree %d outside [0, %d]", degree, MaxDegree))
	}
	if nVars < 1 || nVars > MaxVars {
		panic(fmt.Sprintf("number of variables %d outside [1, %d]", nVars, MaxVars))
	}
	NDOF(0, nDims) // validates nDims
	p = WENOPoly{
		degree: degree,
		nDims:  nDims,
		nVars:  nVars,
		frame:  frame,
	}
	return
}

func (p WENOPoly) Degree() int  { return p.degree }
func (p WENOPoly) NDims() int   { return p.nDims }
func (p WENOPoly) NVars() int   { return p.nVars }
func (p WENOPoly) Frame() Frame { return p.frame }
func (p WENOPoly) NDOF() int    { return NDOF(p.degree, p.nDims) }

func (p WENOPoly) Coeff(v, k int) float64 { return p.coeffs[v*MaxCoeffs+k] }

func (p *WENOPoly) SetCoeff(v, k int, c float64) { p.coeffs[v*MaxCoeffs+k] = c }

// Coeffs returns a copy of the coefficients of component v.
func (p WENOPoly) Coeffs(v int) (c []float64) {
	c = make([]float64, p.NDOF())
	copy(c, p.coeffs[v*MaxCoeffs:v*MaxCoeffs+p.NDOF()])
	return
}

// Eval evaluates all components at the global point x into out[:NVars].
func (p WENOPoly) Eval(x r3.Vec, out []float64) {
	var (
		z    = p.frame.ToLocal(x)
		n    = p.NDOF()
		mono [MaxCoeffs]float64
	)
	MonomialValues(p.nDims, p.degree, z, mono[:])
	for v := 0; v < p.nVars; v++ {
		var sum float64
		for k := 0; k < n; k++ {
			sum += p.coeffs[v*MaxCoeffs+k] * mono[k]
		}
		out[v] = sum
	}
}

// EvalVar evaluates component v at the global point x.
func (p WENOPoly) EvalVar(x r3.Vec, v int) float64 {
	return p.evalLocal(v, p.frame.ToLocal(x))
}

func (p WENOPoly) evalLocal(v int, z r3.Vec) (sum float64) {
	var (
		n    = p.NDOF()
		mono [MaxCoeffs]float64
	)
	MonomialValues(p.nDims, p.degree, z, mono[:])
	for k := 0; k < n; k++ {
		sum += p.coeffs[v*MaxCoeffs+k] * mono[k]
	}
	return
}

// Average integrates every component with a rule given in global
// coordinates whose weights sum to one.
func (p WENOPoly) Average(pts []r3.Vec, wts []float64, out []float64) {
	for v := 0; v < p.nVars; v++ {
		out[v] = 0
	}
	var vals [MaxVars]float64
	for i, x := range pts {
		p.Eval(x, vals[:])
		for v := 0; v < p.nVars; v++ {
			out[v] += wts[i] * vals[v]
		}
	}
}

// AddScaledVar adds a*q to component v. Both polynomials must share the
// frame; q may be of lower degree.
func (p *WENOPoly) AddScaledVar(v int, a float64, q WENOPoly) {
	if q.degree > p.degree {
		panic(fmt.Sprintf("cannot add degree %d into degree %d", q.degree, p.degree))
	}
	n := q.NDOF()
	for k := 0; k < n; k++ {
		p.coeffs[v*MaxCoeffs+k] += a * q.coeffs[v*MaxCoeffs+k]
	}
}

// ScaleVar multiplies component v by a.
func (p *WENOPoly) ScaleVar(v int, a float64) {
	for k := 0; k < p.NDOF(); k++ {
		p.coeffs[v*MaxCoeffs+k] *= a
	}
}

// WithDegree returns a copy with room for a different degree. Raising the
// degree pads with zero coefficients; lowering it drops terms.
func (p WENOPoly) WithDegree(degree int) (q WENOPoly) {
	q = NewWENOPoly(degree, p.nDims, p.nVars, p.frame)
	n := min(q.NDOF(), p.NDOF())
	for v := 0; v < p.nVars; v++ {
		copy(q.coeffs[v*MaxCoeffs:v*MaxCoeffs+n], p.coeffs[v*MaxCoeffs:v*MaxCoeffs+n])
	}
	return
}

// Reframe re-expresses the polynomial in the target frame without changing
// the function it represents.
func (p WENOPoly) Reframe(target Frame) (q WENOPoly) {
	if p.frame == target {
		return p
	}
	var (
		s    = target.Scale / p.frame.Scale
		t    = r3.Scale(1/p.frame.Scale, r3.Sub(target.Center, p.frame.Center))
		tt   = [3]float64{t.X, t.Y, t.Z}
		exps = Exponents(p.nDims)
		n    = p.NDOF()
	)
	q = NewWENOPoly(p.degree, p.nDims, p.nVars, target)
	// z = s z' + t, expand prod_i (s z'_i + t_i)^a_i
	for k := 0; k < n; k++ {
		a := exps[k]
		for b0 := 0; b0 <= a[0]; b0++ {
			for b1 := 0; b1 <= a[1]; b1++ {
				for b2 := 0; b2 <= a[2]; b2++ {
					var (
						b = [3]int{b0, b1, b2}
						c = 1.
					)
					for i := 0; i < 3; i++ {
						c *= utils.Binomial(a[i], b[i]) * utils.POW(s, b[i]) * utils.POW(tt[i], a[i]-b[i])
					}
					j := monomialIndex(p.nDims, b)
					for v := 0; v < p.nVars; v++ {
						q.coeffs[v*MaxCoeffs+j] += c * p.coeffs[v*MaxCoeffs+k]
					}
				}
			}
		}
	}
	return
}

// derivative returns the coefficients of d^alpha of component v in local
// coordinates.
func (p WENOPoly) derivative(v int, alpha [3]int) (d [MaxCoeffs]float64) {
	var (
		exps = Exponents(p.nDims)
		n    = p.NDOF()
	)
	for k := 0; k < n; k++ {
		e := exps[k]
		if e[0] < alpha[0] || e[1] < alpha[1] || e[2] < alpha[2] {
			continue
		}
		f := utils.FallingFactorial(e[0], alpha[0]) *
			utils.FallingFactorial(e[1], alpha[1]) *
			utils.FallingFactorial(e[2], alpha[2])
		j := monomialIndex(p.nDims, [3]int{e[0] - alpha[0], e[1] - alpha[1], e[2] - alpha[2]})
		d[j] += f * p.coeffs[v*MaxCoeffs+k]
	}
	return
}

// SmoothnessIndicator is the sum over 1 <= |alpha| <= degree of the average
// of (d^alpha p_v)^2, with derivatives taken in local coordinates. The rule
// is given in local coordinates with weights summing to one.
func (p WENOPoly) SmoothnessIndicator(v int, localPts []r3.Vec, wts []float64) (beta float64) {
	var (
		n    = p.NDOF()
		mono [MaxCoeffs]float64
	)
	for _, alpha := range DerivativeIndices(p.nDims, p.degree) {
		d := p.derivative(v, alpha)
		for i, z := range localPts {
			MonomialValues(p.nDims, p.degree, z, mono[:])
			var val float64
			for k := 0; k < n; k++ {
				val += d[k] * mono[k]
			}
			beta += wts[i] * val * val
		}
	}
	return
}

func (p WENOPoly) String() string {
	return fmt.Sprintf("WENOPoly{degree: %d, dims: %d, vars: %d, center: %v, scale: %g}",
		p.degree, p.nDims, p.nVars, p.frame.Center, p.frame.Scale)
}

// ScalarPoly is the single-field reconstruction polynomial.
type ScalarPoly struct {
	p WENOPoly
}

func NewScalarPoly(degree, nDims int, frame Frame) ScalarPoly {
	return ScalarPoly{NewWENOPoly(degree, nDims, 1, frame)}
}

// AsScalar views a one-component WENOPoly as a ScalarPoly.
func AsScalar(p WENOPoly) ScalarPoly {
	if p.nVars != 1 {
		panic(fmt.Sprintf("scalar polynomial from %d components", p.nVars))
	}
	return ScalarPoly{p}
}

func (s ScalarPoly) Degree() int                { return s.p.degree }
func (s ScalarPoly) Frame() Frame               { return s.p.frame }
func (s ScalarPoly) Coeffs() []float64          { return s.p.Coeffs(0) }
func (s ScalarPoly) Coeff(k int) float64        { return s.p.Coeff(0, k) }
func (s *ScalarPoly) SetCoeff(k int, c float64) { s.p.SetCoeff(0, k, c) }
func (s ScalarPoly) Eval(x r3.Vec) float64      { return s.p.EvalVar(x, 0) }
func (s ScalarPoly) Vector() WENOPoly           { return s.p }

func (s ScalarPoly) Reframe(target Frame) ScalarPoly {
	return ScalarPoly{s.p.Reframe(target)}
}

func (s ScalarPoly) Average(pts []r3.Vec, wts []float64) float64 {
	var out [1]float64
	s.p.Average(pts, wts, out[:])
	return out[0]
}

func (s ScalarPoly) SmoothnessIndicator(localPts []r3.Vec, wts []float64) float64 {
	return s.p.SmoothnessIndicator(0, localPts, wts)
}

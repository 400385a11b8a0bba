package grid

import (
	"fmt"

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/spatial/r3"
)

// QuadratureRule integrates over the reference simplex. Points are given in
// reference coordinates (xi, eta[, zeta]) and the weights sum to one, so a
// weighted sum of samples is a cell average.
type QuadratureRule struct {
	Degree  int
	Points  []r3.Vec
	Weights []float64
}

// QuadratureTable holds the rules for triangles and tetrahedra up to a
// maximum polynomial degree. It is filled once by NewQuadratureTable and is
// read-only afterwards.
type QuadratureTable struct {
	MaxDegree int
	tri       []QuadratureRule
	tet       []QuadratureRule
}

func NewQuadratureTable(maxDegree int) (qt *QuadratureTable) {
	if maxDegree < 0 {
		panic(fmt.Sprintf("negative quadrature degree %d", maxDegree))
	}
	qt = &QuadratureTable{
		MaxDegree: maxDegree,
		tri:       make([]QuadratureRule, maxDegree+1),
		tet:       make([]QuadratureRule, maxDegree+1),
	}
	for d := 0; d <= maxDegree; d++ {
		qt.tri[d] = collapsedTriangleRule(d)
		qt.tet[d] = collapsedTetrahedronRule(d)
	}
	return
}

// Rule returns the rule exact for polynomials of total degree <= degree on
// the reference simplex of dimension nDims.
func (qt *QuadratureTable) Rule(nDims, degree int) (QuadratureRule, error) {
	if degree < 0 {
		degree = 0
	}
	if degree > qt.MaxDegree {
		return QuadratureRule{}, fmt.Errorf("quadrature degree %d exceeds table maximum %d", degree, qt.MaxDegree)
	}
	switch nDims {
	case 2:
		return qt.tri[degree], nil
	case 3:
		return qt.tet[degree], nil
	default:
		return QuadratureRule{}, fmt.Errorf("no quadrature for dimension %d", nDims)
	}
}

func legendre01(n int) (x, w []float64) {
	x = make([]float64, n)
	w = make([]float64, n)
	quad.Legendre{}.FixedLocations(x, w, 0, 1)
	return
}

// collapsedTriangleRule maps a tensor Gauss-Legendre rule on the unit square
// onto the reference triangle with xi = u, eta = (1-u)v. The Jacobian adds one
// degree in u.
func collapsedTriangleRule(degree int) (qr QuadratureRule) {
	var (
		n      = (degree+2)/2 + 1
		xu, wu = legendre01(n)
	)
	qr.Degree = degree
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			u, v := xu[i], xu[j]
			qr.Points = append(qr.Points, r3.Vec{X: u, Y: (1 - u) * v})
			// Reference area is 1/2
			qr.Weights = append(qr.Weights, 2*(1-u)*wu[i]*wu[j])
		}
	}
	return
}

// collapsedTetrahedronRule uses xi = u, eta = (1-u)v, zeta = (1-u)(1-v)w.
func collapsedTetrahedronRule(degree int) (qr QuadratureRule) {
	var (
		n      = (degree+3)/2 + 1
		xu, wu = legendre01(n)
	)
	qr.Degree = degree
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				u, v, w := xu[i], xu[j], xu[k]
				qr.Points = append(qr.Points, r3.Vec{
					X: u,
					Y: (1 - u) * v,
					Z: (1 - u) * (1 - v) * w,
				})
				// Reference volume is 1/6
				qr.Weights = append(qr.Weights, 6*(1-u)*(1-u)*(1-v)*wu[i]*wu[j]*wu[k])
			}
		}
	}
	return
}

package polynomial

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/cweno/utils"
)

const (
	MaxDegree = 4
	MaxCoeffs = 35 // NDOF(MaxDegree, 3)
	MaxVars   = 5
)

// Exponent tables in graded order: all monomials of total degree d precede
// those of degree d+1, so a degree-d polynomial uses the first NDOF(d)
// coefficient slots. Immutable after init.
var (
	exponents2 [][3]int
	exponents3 [][3]int
	index2     map[[3]int]int
	index3     map[[3]int]int
)

func init() {
	exponents2, index2 = buildExponents(2)
	exponents3, index3 = buildExponents(3)
}

func buildExponents(nDims int) (exps [][3]int, index map[[3]int]int) {
	index = make(map[[3]int]int)
	for d := 0; d <= MaxDegree; d++ {
		switch nDims {
		case 2:
			for a := d; a >= 0; a-- {
				exps = append(exps, [3]int{a, d - a, 0})
			}
		case 3:
			for a := d; a >= 0; a-- {
				for b := d - a; b >= 0; b-- {
					exps = append(exps, [3]int{a, b, d - a - b})
				}
			}
		}
	}
	for i, e := range exps {
		index[e] = i
	}
	return
}

// NDOF is the number of monomials of total degree <= degree in nDims.
func NDOF(degree, nDims int) int {
	if degree < 0 {
		return 0
	}
	switch nDims {
	case 2:
		return (degree + 1) * (degree + 2) / 2
	case 3:
		return (degree + 1) * (degree + 2) * (degree + 3) / 6
	}
	panic(fmt.Sprintf("unsupported dimension %d", nDims))
}

// Exponents returns the graded exponent table for nDims. The result must not
// be modified.
func Exponents(nDims int) [][3]int {
	switch nDims {
	case 2:
		return exponents2
	case 3:
		return exponents3
	}
	panic(fmt.Sprintf("unsupported dimension %d", nDims))
}

func monomialIndex(nDims int, e [3]int) int {
	if nDims == 2 {
		return index2[e]
	}
	return index3[e]
}

// MonomialValues fills out[:NDOF(degree, nDims)] with the monomials at z.
func MonomialValues(nDims, degree int, z r3.Vec, out []float64) {
	var (
		exps = Exponents(nDims)
		n    = NDOF(degree, nDims)
	)
	for i := 0; i < n; i++ {
		e := exps[i]
		out[i] = utils.POW(z.X, e[0]) * utils.POW(z.Y, e[1]) * utils.POW(z.Z, e[2])
	}
}

// DerivativeIndices lists the multi-indices a with 1 <= |a| <= degree.
func DerivativeIndices(nDims, degree int) (alphas [][3]int) {
	exps := Exponents(nDims)
	for i := 1; i < NDOF(degree, nDims); i++ {
		alphas = append(alphas, exps[i])
	}
	return
}

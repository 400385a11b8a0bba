package stencil

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/cweno/grid"
	"github.com/notargets/cweno/utils"
)

// Cone is the set of points whose direction from Apex is within the half
// angle of Direction. Points coincident with the apex are inside.
type Cone struct {
	Apex         r3.Vec
	Direction    r3.Vec // unit length
	CosHalfAngle float64
}

func NewCone(apex, direction r3.Vec, cosHalfAngle float64) Cone {
	return Cone{
		Apex:         apex,
		Direction:    r3.Unit(direction),
		CosHalfAngle: cosHalfAngle,
	}
}

func (c Cone) IsInside(x r3.Vec) bool {
	var (
		d    = r3.Sub(x, c.Apex)
		dist = r3.Norm(d)
	)
	if dist <= 1.e-14*(1+r3.Norm(c.Apex)) {
		return true
	}
	return r3.Dot(d, c.Direction) >= (c.CosHalfAngle-utils.NODETOL)*dist
}

// FaceCone is the cone from the centroid of cell k through face f, wide
// enough to contain every vertex of the face.
func FaceCone(g *grid.Grid, k, f int) Cone {
	var (
		apex    = g.Centers[k]
		dir     = r3.Unit(r3.Sub(g.FaceCenter(k, f), apex))
		cosHalf = math.Inf(1)
	)
	for _, v := range g.FaceVertices(k, f) {
		cosHalf = math.Min(cosHalf, r3.Dot(dir, r3.Unit(r3.Sub(v, apex))))
	}
	return Cone{Apex: apex, Direction: dir, CosHalfAngle: cosHalf}
}

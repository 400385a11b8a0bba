package polynomial

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Frame is the local coordinate system z = (x - Center) / Scale the
// polynomial coefficients refer to. Reconstructions use the seed-cell
// centroid and circum-radius.
type Frame struct {
	Center r3.Vec
	Scale  float64
}

func (f Frame) ToLocal(x r3.Vec) r3.Vec {
	return r3.Scale(1/f.Scale, r3.Sub(x, f.Center))
}

func (f Frame) ToGlobal(z r3.Vec) r3.Vec {
	return r3.Add(f.Center, r3.Scale(f.Scale, z))
}

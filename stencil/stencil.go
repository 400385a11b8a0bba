// Package stencil selects the cells each reconstruction polynomial is fitted
// on. Stencils grow breadth first from a seed cell, either freely (central)
// or restricted to a cone (one-sided).
package stencil

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/cweno/grid"
)

var ErrStencilTooSmall = errors.New("unable to build stencil")

// Stencil is an ordered list of cells, seed first. Global indices refer to
// the grid the stencil was built on, Local indices to the grid it is used
// on; they coincide until the stencil is localized.
type Stencil struct {
	Order         int
	DeclaredOrder int
	Bias          Bias
	Global        []int
	Local         []int
}

func (s Stencil) Size() int { return len(s.Global) }

func (s Stencil) Seed() int { return s.Local[0] }

func (s Stencil) Equal(o Stencil) bool {
	if s.Order != o.Order || s.DeclaredOrder != o.DeclaredOrder || s.Bias != o.Bias ||
		len(s.Global) != len(o.Global) || len(s.Local) != len(o.Local) {
		return false
	}
	for i := range s.Global {
		if s.Global[i] != o.Global[i] {
			return false
		}
	}
	for i := range s.Local {
		if s.Local[i] != o.Local[i] {
			return false
		}
	}
	return true
}

// Localize maps the global indices through g2l.
func (s Stencil) Localize(g2l map[int]int) (ls Stencil, err error) {
	ls = s
	ls.Local = make([]int, len(s.Global))
	for i, gk := range s.Global {
		lk, ok := g2l[gk]
		if !ok {
			return Stencil{}, fmt.Errorf("stencil cell %d has no local index", gk)
		}
		ls.Local[i] = lk
	}
	ls.Global = append([]int(nil), s.Global...)
	return
}

// CentralStencil collects the nPoints cells nearest the seed in breadth
// first order.
func CentralStencil(g *grid.Grid, seed, nPoints int) (cells []int, err error) {
	cells = growStencil(g, seed, nPoints, func(int) bool { return true })
	if len(cells) < nPoints {
		return nil, fmt.Errorf("%w: central stencil of cell %d: want %d cells, grid has %d reachable",
			ErrStencilTooSmall, seed, nPoints, len(cells))
	}
	return
}

// BiasedStencil grows like CentralStencil but only through cells whose
// centroid lies inside the cone.
func BiasedStencil(g *grid.Grid, seed, nPoints int, cone Cone) (cells []int, err error) {
	cells = biasedCells(g, seed, nPoints, cone)
	if len(cells) < nPoints {
		return nil, fmt.Errorf("%w: one-sided stencil of cell %d: want %d cells, cone admits %d",
			ErrStencilTooSmall, seed, nPoints, len(cells))
	}
	return
}

func biasedCells(g *grid.Grid, seed, nPoints int, cone Cone) []int {
	return growStencil(g, seed, nPoints, func(k int) bool {
		return cone.IsInside(g.Centers[k])
	})
}

// growStencil adds whole breadth-first layers of admitted cells. Within a
// layer cells are taken by distance to the seed centroid, ties by ascending
// index, so the result does not depend on traversal history.
func growStencil(g *grid.Grid, seed, nPoints int, admit func(k int) bool) (cells []int) {
	var (
		x0       = g.Centers[seed]
		visited  = map[int]bool{seed: true}
		frontier = []int{seed}
	)
	cells = append(cells, seed)
	for len(cells) < nPoints {
		var layer []int
		for _, k := range frontier {
			for _, nbr := range g.Neighbors(k) {
				if visited[nbr] {
					continue
				}
				visited[nbr] = true
				if admit(nbr) {
					layer = append(layer, nbr)
				}
			}
		}
		if len(layer) == 0 {
			break
		}
		dist := make(map[int]float64, len(layer))
		for _, k := range layer {
			dist[k] = r3.Norm(r3.Sub(g.Centers[k], x0))
		}
		sort.Slice(layer, func(i, j int) bool {
			di, dj := dist[layer[i]], dist[layer[j]]
			if di != dj {
				return di < dj
			}
			return layer[i] < layer[j]
		})
		for _, k := range layer {
			if len(cells) == nPoints {
				break
			}
			cells = append(cells, k)
		}
		frontier = layer
	}
	return
}

// NewStencil builds the member stencil of cell k described by sp. One-sided
// stencils grow through face f of the seed. With reduceOrder set, a
// one-sided stencil that cannot reach its target size keeps the cells it
// found and lowers its order to what they support.
func NewStencil(g *grid.Grid, k int, sp StencilParams, f int, reduceOrder bool) (s Stencil, err error) {
	var (
		n     = TargetSize(sp.Order, sp.OverfitFactor, g.NDims)
		cells []int
		order = sp.Order
	)
	switch sp.Bias {
	case Central:
		if cells, err = CentralStencil(g, k, n); err != nil {
			return
		}
	case OneSided:
		cone := FaceCone(g, k, f)
		if !reduceOrder {
			if cells, err = BiasedStencil(g, k, n, cone); err != nil {
				return
			}
			break
		}
		cells = biasedCells(g, k, n, cone)
		for order > 1 && TargetSize(order, sp.OverfitFactor, g.NDims) > len(cells) {
			order--
		}
	default:
		return Stencil{}, fmt.Errorf("%w: bias %v", ErrInvalidParams, sp.Bias)
	}
	s = Stencil{
		Order:         order,
		DeclaredOrder: sp.Order,
		Bias:          sp.Bias,
		Global:        cells,
		Local:         append([]int(nil), cells...),
	}
	return
}

package stencil

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notargets/cweno/grid"
)

// StencilFamily holds the member stencils of one cell and the union of
// their cells.
type StencilFamily struct {
	stencils []Stencil
	l2g      []int
	order    int
	highest  int
}

type familyOptions struct {
	logger *zap.Logger
}

type Option func(*familyOptions)

func WithLogger(logger *zap.Logger) Option {
	return func(o *familyOptions) { o.logger = logger }
}

func newFamilyOptions(opts []Option) (fo familyOptions) {
	fo.logger = zap.NewNop()
	for _, opt := range opts {
		opt(&fo)
	}
	return
}

// NewStencilFamily builds every member stencil of cell. The j-th one-sided
// member grows through face j modulo the number of faces.
func NewStencilFamily(g *grid.Grid, cell int, params StencilFamilyParams, opts ...Option) (sf *StencilFamily, err error) {
	var sps []StencilParams
	if sps, err = params.Resolve(); err != nil {
		return nil, err
	}
	return newStencilFamily(g, cell, sps, params.ReduceOneSidedOrder, newFamilyOptions(opts))
}

func newStencilFamily(g *grid.Grid, cell int, sps []StencilParams, reduce bool, fo familyOptions) (sf *StencilFamily, err error) {
	if cell < 0 || cell >= g.NumCells() {
		return nil, fmt.Errorf("cell %d outside grid of %d cells", cell, g.NumCells())
	}
	sf = &StencilFamily{stencils: make([]Stencil, len(sps))}
	var oneSided int
	for k, sp := range sps {
		var face int
		if sp.Bias == OneSided {
			face = oneSided % g.NumFaces()
			oneSided++
		}
		if sf.stencils[k], err = NewStencil(g, cell, sp, face, reduce); err != nil {
			return nil, fmt.Errorf("stencil %d of cell %d: %w", k, cell, err)
		}
		if s := sf.stencils[k]; s.Order < s.DeclaredOrder {
			fo.logger.Warn("reduced one-sided stencil order",
				zap.Int("cell", cell), zap.Int("stencil", k),
				zap.Int("declared", s.DeclaredOrder), zap.Int("order", s.Order),
				zap.Int("size", s.Size()))
		}
	}
	sf.finish()
	return
}

func (sf *StencilFamily) finish() {
	seen := make(map[int]bool)
	sf.l2g = sf.l2g[:0]
	sf.order = MaxOrder + 1
	sf.highest = 0
	for k, s := range sf.stencils {
		for _, gk := range s.Global {
			if !seen[gk] {
				seen[gk] = true
				sf.l2g = append(sf.l2g, gk)
			}
		}
		sf.order = min(sf.order, s.Order)
		h := sf.stencils[sf.highest]
		switch {
		case s.DeclaredOrder > h.DeclaredOrder:
			sf.highest = k
		case s.DeclaredOrder == h.DeclaredOrder && s.Bias == Central && h.Bias != Central:
			sf.highest = k
		}
	}
}

func (sf *StencilFamily) Len() int { return len(sf.stencils) }

func (sf *StencilFamily) Stencil(k int) Stencil { return sf.stencils[k] }

func (sf *StencilFamily) Stencils() []Stencil { return sf.stencils }

// L2G is the union of the member cells in first-seen order, seed first.
func (sf *StencilFamily) L2G() []int { return sf.l2g }

func (sf *StencilFamily) CombinedSize() int { return len(sf.l2g) }

// Order is the lowest order among the members.
func (sf *StencilFamily) Order() int { return sf.order }

// HighestOrderStencil is the index of the member with the highest declared
// order; ties go to a central member, then to the lowest index.
func (sf *StencilFamily) HighestOrderStencil() int { return sf.highest }

func (sf *StencilFamily) Seed() int { return sf.stencils[0].Global[0] }

func (sf *StencilFamily) Equal(o *StencilFamily) bool {
	if sf == nil || o == nil {
		return sf == o
	}
	if len(sf.stencils) != len(o.stencils) {
		return false
	}
	for k := range sf.stencils {
		if !sf.stencils[k].Equal(o.stencils[k]) {
			return false
		}
	}
	return true
}

// Localize returns a copy whose stencils carry local indices from g2l.
func (sf *StencilFamily) Localize(g2l map[int]int) (lf *StencilFamily, err error) {
	lf = &StencilFamily{stencils: make([]Stencil, len(sf.stencils))}
	for k, s := range sf.stencils {
		if lf.stencils[k], err = s.Localize(g2l); err != nil {
			return nil, fmt.Errorf("stencil %d: %w", k, err)
		}
	}
	lf.finish()
	return
}

// BuildFamilies builds the families of cells concurrently. A nil cells slice
// means every cell of the grid.
func BuildFamilies(ctx context.Context, g *grid.Grid, cells []int, params StencilFamilyParams,
	opts ...Option) (families []*StencilFamily, err error) {
	var (
		sps []StencilParams
		fo  = newFamilyOptions(opts)
	)
	if sps, err = params.Resolve(); err != nil {
		return nil, err
	}
	if cells == nil {
		cells = make([]int, g.NumCells())
		for k := range cells {
			cells[k] = k
		}
	}
	families = make([]*StencilFamily, len(cells))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.NumCPU())
	for i, cell := range cells {
		i, cell := i, cell
		eg.Go(func() (err error) {
			if err = ctx.Err(); err != nil {
				return
			}
			families[i], err = newStencilFamily(g, cell, sps, params.ReduceOneSidedOrder, fo)
			return
		})
	}
	if err = eg.Wait(); err != nil {
		return nil, err
	}
	fo.logger.Debug("built stencil families",
		zap.Int("cells", len(cells)), zap.Int("stencils", len(sps)))
	return
}

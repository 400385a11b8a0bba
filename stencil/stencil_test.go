package stencil

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/cweno/grid"
)

func unitSquare(t *testing.T, n int) *grid.Grid {
	g, err := grid.NewRectangleGrid(n, n, 0, 1, 0, 1, grid.NewQuadratureTable(8))
	require.NoError(t, err)
	return g
}

func TestCone(t *testing.T) {
	c := NewCone(r3.Vec{}, r3.Vec{X: 2}, math.Cos(math.Pi/4))
	assert.InDelta(t, 1., r3.Norm(c.Direction), 1.e-15)
	assert.True(t, c.IsInside(r3.Vec{X: 1, Y: 0.5}))
	assert.True(t, c.IsInside(r3.Vec{X: 1, Y: 1}))  // on the boundary
	assert.True(t, c.IsInside(r3.Vec{}))            // apex
	assert.False(t, c.IsInside(r3.Vec{X: 1, Y: 2})) // too wide
	assert.False(t, c.IsInside(r3.Vec{X: -1}))      // behind
	assert.False(t, c.IsInside(r3.Vec{Y: 1, Z: 1})) // orthogonal
}

func TestFaceCone(t *testing.T) {
	for _, g := range []*grid.Grid{unitSquare(t, 4), boxGrid(t)} {
		for k := 0; k < g.NumCells(); k++ {
			for f := 0; f < g.NumFaces(); f++ {
				c := FaceCone(g, k, f)
				assert.True(t, c.IsInside(g.FaceCenter(k, f)))
				for _, v := range g.FaceVertices(k, f) {
					assert.Truef(t, c.IsInside(v), "cell %d face %d", k, f)
				}
				// The opposite vertex is behind the face
				assert.False(t, c.IsInside(g.Vertices[g.Cells[k][f]]))
			}
		}
	}
}

func boxGrid(t *testing.T) *grid.Grid {
	g, err := grid.NewBoxGrid(2, 2, 2, r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1}, grid.NewQuadratureTable(6))
	require.NoError(t, err)
	return g
}

func TestCentralStencil(t *testing.T) {
	var (
		g    = unitSquare(t, 10)
		seed = 2 * (4*10 + 4) // lower triangle of square (4,4)
	)
	cells, err := CentralStencil(g, seed, 4)
	require.NoError(t, err)
	require.Len(t, cells, 4)
	assert.Equal(t, seed, cells[0])
	assert.Equal(t, seed+1, cells[1]) // across the diagonal, closest
	assert.ElementsMatch(t, g.Neighbors(seed), cells[1:])

	cells, err = CentralStencil(g, seed, 20)
	require.NoError(t, err)
	assert.Len(t, cells, 20)
	assertUnique(t, cells)
	again, err := CentralStencil(g, seed, 20)
	require.NoError(t, err)
	assert.Equal(t, cells, again)

	_, err = CentralStencil(g, seed, g.NumCells()+1)
	assert.ErrorIs(t, err, ErrStencilTooSmall)
}

func TestBiasedStencil(t *testing.T) {
	var (
		g    = unitSquare(t, 10)
		seed = 2 * (4*10 + 4)
	)
	for f := 0; f < g.NumFaces(); f++ {
		c := FaceCone(g, seed, f)
		cells, err := BiasedStencil(g, seed, 5, c)
		require.NoError(t, err)
		require.Len(t, cells, 5)
		assert.Equal(t, seed, cells[0])
		assertUnique(t, cells)
		for _, k := range cells[1:] {
			assert.Truef(t, c.IsInside(g.Centers[k]), "face %d cell %d", f, k)
		}
		// The first cell added is the neighbor across the face
		assert.Equal(t, g.EToE[seed][f], cells[1])
	}
	// Cell 0 sits in the corner, its left face is on the boundary
	_, err := BiasedStencil(g, 0, 5, FaceCone(g, 0, 1))
	assert.ErrorIs(t, err, ErrStencilTooSmall)
}

func assertUnique(t *testing.T, cells []int) {
	seen := make(map[int]bool)
	for _, k := range cells {
		assert.Falsef(t, seen[k], "cell %d repeated", k)
		seen[k] = true
	}
}

func TestStencilFamilyParams(t *testing.T) {
	good := StencilFamilyParams{
		Orders:         []int{3, 2, 2, 2},
		Biases:         []string{"c", "b", "b", "b"},
		OverfitFactors: []float64{1.5, 1.5, 1.5, 1.5},
	}
	sps, err := good.Resolve()
	require.NoError(t, err)
	require.Len(t, sps, 4)
	assert.Equal(t, Central, sps[0].Bias)
	assert.Equal(t, OneSided, sps[3].Bias)
	assert.Equal(t, 3, good.MaxDeclaredOrder())

	bad := StencilFamilyParams{
		Orders:         []int{0, 3},
		Biases:         []string{"c", "x"},
		OverfitFactors: []float64{0.5},
	}
	err = bad.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidParams)
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 4) // lengths, order, bias, overfit
	assert.NotPanics(t, func() { _, err = bad.Resolve() })
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = StencilFamilyParams{}.Resolve()
	assert.ErrorIs(t, err, ErrInvalidParams)

	b, err := ParseBias("b")
	require.NoError(t, err)
	assert.Equal(t, "b", b.String())
}

func TestTargetSize(t *testing.T) {
	assert.Equal(t, 9, TargetSize(3, 1.5, 2))
	assert.Equal(t, 5, TargetSize(2, 1.5, 2))
	assert.Equal(t, 2, TargetSize(1, 1.5, 2))
	assert.Equal(t, 35, TargetSize(5, 1, 3))
	assert.Equal(t, 15, TargetSize(3, 1.5, 3))
}

func familyParams() StencilFamilyParams {
	return StencilFamilyParams{
		Orders:         []int{3, 2, 2, 2},
		Biases:         []string{"c", "b", "b", "b"},
		OverfitFactors: []float64{1.5, 1.5, 1.5, 1.5},
	}
}

func TestStencilFamily(t *testing.T) {
	var (
		g    = unitSquare(t, 10)
		seed = 2 * (4*10 + 4)
	)
	sf, err := NewStencilFamily(g, seed, familyParams())
	require.NoError(t, err)
	assert.Equal(t, 4, sf.Len())
	assert.Equal(t, 2, sf.Order())
	assert.Equal(t, 0, sf.HighestOrderStencil())
	assert.Equal(t, seed, sf.Seed())
	assert.Equal(t, 9, sf.Stencil(0).Size())
	for k := 1; k < 4; k++ {
		s := sf.Stencil(k)
		assert.Equal(t, 5, s.Size())
		assert.Equal(t, OneSided, s.Bias)
		// Member k grows through face k-1
		c := FaceCone(g, seed, k-1)
		for _, cell := range s.Global {
			assert.True(t, c.IsInside(g.Centers[cell]))
		}
	}
	l2g := sf.L2G()
	assert.Equal(t, seed, l2g[0])
	assertUnique(t, l2g)
	assert.Equal(t, len(l2g), sf.CombinedSize())
	for _, s := range sf.Stencils() {
		assert.Subset(t, l2g, s.Global)
	}

	again, err := NewStencilFamily(g, seed, familyParams())
	require.NoError(t, err)
	assert.True(t, sf.Equal(again))
	other, err := NewStencilFamily(g, seed+1, familyParams())
	require.NoError(t, err)
	assert.False(t, sf.Equal(other))
}

func TestHighestOrderTies(t *testing.T) {
	var (
		g    = unitSquare(t, 10)
		seed = 2 * (4*10 + 4)
	)
	sf, err := NewStencilFamily(g, seed, StencilFamilyParams{
		Orders:         []int{2, 2, 2},
		Biases:         []string{"b", "c", "c"},
		OverfitFactors: []float64{1.5, 1.5, 1.5},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sf.HighestOrderStencil())
}

func TestStencilFamilyBoundary(t *testing.T) {
	g := unitSquare(t, 10)
	params := StencilFamilyParams{
		Orders:         []int{2, 2, 2},
		Biases:         []string{"c", "b", "b"},
		OverfitFactors: []float64{1.5, 1.5, 1.5},
	}
	// The second one-sided member of corner cell 0 faces the left boundary
	_, err := NewStencilFamily(g, 0, params)
	assert.ErrorIs(t, err, ErrStencilTooSmall)

	params.ReduceOneSidedOrder = true
	sf, err := NewStencilFamily(g, 0, params)
	require.NoError(t, err)
	s := sf.Stencil(2)
	assert.Equal(t, 2, s.DeclaredOrder)
	assert.Equal(t, 1, s.Order)
	assert.Equal(t, []int{0}, s.Global)
	assert.Equal(t, 1, sf.Order())
}

func TestBuildFamilies(t *testing.T) {
	g := unitSquare(t, 6)
	params := StencilFamilyParams{
		Orders:         []int{3, 2},
		Biases:         []string{"c", "c"},
		OverfitFactors: []float64{1.5, 2},
	}
	families, err := BuildFamilies(context.Background(), g, nil, params)
	require.NoError(t, err)
	require.Len(t, families, g.NumCells())
	for k, sf := range families {
		one, err := NewStencilFamily(g, k, params)
		require.NoError(t, err)
		assert.True(t, one.Equal(sf))
	}

	_, err = BuildFamilies(context.Background(), g, []int{0, 1}, familyParams())
	assert.ErrorIs(t, err, ErrStencilTooSmall)
}

func TestLocalize(t *testing.T) {
	var (
		g    = unitSquare(t, 10)
		seed = 2 * (4*10 + 4)
	)
	sf, err := NewStencilFamily(g, seed, familyParams())
	require.NoError(t, err)
	g2l := make(map[int]int)
	for i, gk := range sf.L2G() {
		g2l[gk] = i
	}
	lf, err := sf.Localize(g2l)
	require.NoError(t, err)
	for k, s := range lf.Stencils() {
		assert.Equal(t, sf.Stencil(k).Global, s.Global)
		for i, lk := range s.Local {
			assert.Equal(t, s.Global[i], sf.L2G()[lk])
		}
	}
	assert.Equal(t, 0, lf.Stencil(0).Seed())

	delete(g2l, sf.L2G()[1])
	_, err = sf.Localize(g2l)
	assert.Error(t, err)
}

// Package grid holds the immutable unstructured simplex mesh the
// reconstruction runs on: triangles in 2D, tetrahedra in 3D.
package grid

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	ErrDegenerateCell  = errors.New("degenerate cell")
	ErrBadConnectivity = errors.New("bad cell connectivity")
)

// Grid is read-only once built. Stencils, families and halos refer to its
// cells by index only.
type Grid struct {
	NDims    int
	Vertices []r3.Vec // 2D grids carry Z = 0
	Cells    [][]int  // Cell to vertex connectivity [ncells][ndims+1]

	// EToE[k][f] is the cell across face f of cell k, -1 on the boundary.
	// Face f is the face opposite local vertex f.
	EToE [][]int

	Centers     []r3.Vec
	Volumes     []float64
	CircumRadii []float64

	// Adjacency is the symmetric cell graph; column indices are ascending
	// within each row.
	Adjacency *sparse.CSR

	Quadrature *QuadratureTable
}

// NewGrid validates the connectivity and computes all derived geometry. The
// grid keeps the passed slices; callers must not modify them afterwards.
func NewGrid(nDims int, vertices []r3.Vec, cells [][]int, qt *QuadratureTable) (g *Grid, err error) {
	if nDims != 2 && nDims != 3 {
		return nil, fmt.Errorf("%w: unsupported dimension %d", ErrBadConnectivity, nDims)
	}
	if qt == nil {
		return nil, fmt.Errorf("grid needs a quadrature table")
	}
	g = &Grid{
		NDims:       nDims,
		Vertices:    vertices,
		Cells:       cells,
		Centers:     make([]r3.Vec, len(cells)),
		Volumes:     make([]float64, len(cells)),
		CircumRadii: make([]float64, len(cells)),
		Quadrature:  qt,
	}
	for k, cell := range cells {
		if len(cell) != nDims+1 {
			return nil, fmt.Errorf("%w: cell %d has %d vertices, want %d",
				ErrBadConnectivity, k, len(cell), nDims+1)
		}
		for _, v := range cell {
			if v < 0 || v >= len(vertices) {
				return nil, fmt.Errorf("%w: cell %d references vertex %d of %d",
					ErrBadConnectivity, k, v, len(vertices))
			}
		}
		g.Centers[k] = centroid(g.CellVertices(k))
		g.Volumes[k] = simplexVolume(nDims, g.CellVertices(k))
		if g.Volumes[k] <= 0 {
			return nil, fmt.Errorf("%w: cell %d has volume %g", ErrDegenerateCell, k, g.Volumes[k])
		}
		if g.CircumRadii[k], err = circumRadius(nDims, g.CellVertices(k)); err != nil {
			return nil, fmt.Errorf("cell %d: %w", k, err)
		}
	}
	if err = g.buildConnectivity(); err != nil {
		return nil, err
	}
	return
}

func (g *Grid) NumCells() int { return len(g.Cells) }

// NumFaces is the number of faces per cell.
func (g *Grid) NumFaces() int { return g.NDims + 1 }

func (g *Grid) CellVertices(k int) (verts []r3.Vec) {
	verts = make([]r3.Vec, len(g.Cells[k]))
	for i, v := range g.Cells[k] {
		verts[i] = g.Vertices[v]
	}
	return
}

// FaceVertices returns the vertices of the face opposite local vertex f.
func (g *Grid) FaceVertices(k, f int) (verts []r3.Vec) {
	for i, v := range g.Cells[k] {
		if i != f {
			verts = append(verts, g.Vertices[v])
		}
	}
	return
}

func (g *Grid) FaceCenter(k, f int) r3.Vec {
	return centroid(g.FaceVertices(k, f))
}

// Neighbors returns the cells sharing a face with cell k in ascending order.
// The returned slice aliases the adjacency storage.
func (g *Grid) Neighbors(k int) []int {
	raw := g.Adjacency.RawMatrix()
	return raw.Ind[raw.Indptr[k]:raw.Indptr[k+1]]
}

func (g *Grid) IsBoundaryCell(k int) bool {
	for _, nbr := range g.EToE[k] {
		if nbr < 0 {
			return true
		}
	}
	return false
}

// QuadraturePoints maps the reference rule of the requested degree onto cell
// k. The weights sum to one.
func (g *Grid) QuadraturePoints(k, degree int) (pts []r3.Vec, wts []float64, err error) {
	var qr QuadratureRule
	if qr, err = g.Quadrature.Rule(g.NDims, degree); err != nil {
		return
	}
	var (
		verts = g.CellVertices(k)
		v0    = verts[0]
		e1    = r3.Sub(verts[1], v0)
		e2    = r3.Sub(verts[2], v0)
		e3    r3.Vec
	)
	if g.NDims == 3 {
		e3 = r3.Sub(verts[3], v0)
	}
	pts = make([]r3.Vec, len(qr.Points))
	wts = make([]float64, len(qr.Weights))
	copy(wts, qr.Weights)
	for i, p := range qr.Points {
		x := r3.Add(v0, r3.Add(r3.Scale(p.X, e1), r3.Scale(p.Y, e2)))
		if g.NDims == 3 {
			x = r3.Add(x, r3.Scale(p.Z, e3))
		}
		pts[i] = x
	}
	return
}

// CellAverage integrates f over cell k with a rule of the given degree.
func (g *Grid) CellAverage(k, degree int, f func(x r3.Vec) float64) (avg float64, err error) {
	var (
		pts []r3.Vec
		wts []float64
	)
	if pts, wts, err = g.QuadraturePoints(k, degree); err != nil {
		return
	}
	for i, x := range pts {
		avg += wts[i] * f(x)
	}
	return
}

// CellAverages samples f on every cell into a one-column state array.
func (g *Grid) CellAverages(degree int, f func(x r3.Vec) float64) (qbar *mat.Dense, err error) {
	qbar = mat.NewDense(g.NumCells(), 1, nil)
	for k := 0; k < g.NumCells(); k++ {
		var avg float64
		if avg, err = g.CellAverage(k, degree, f); err != nil {
			return nil, err
		}
		qbar.Set(k, 0, avg)
	}
	return
}

func (g *Grid) buildConnectivity() (err error) {
	type faceRef struct {
		cell, face int
	}
	var (
		nc      = g.NumCells()
		faceMap = make(map[[3]int]faceRef, nc*g.NumFaces())
	)
	g.EToE = make([][]int, nc)
	for k := 0; k < nc; k++ {
		g.EToE[k] = make([]int, g.NumFaces())
		for f := range g.EToE[k] {
			g.EToE[k][f] = -1
		}
	}
	for k := 0; k < nc; k++ {
		for f := 0; f < g.NumFaces(); f++ {
			key := g.faceKey(k, f)
			if other, exists := faceMap[key]; exists {
				if other.cell < 0 {
					return fmt.Errorf("%w: face %v shared by more than two cells", ErrBadConnectivity, key)
				}
				g.EToE[k][f] = other.cell
				g.EToE[other.cell][other.face] = k
				// Mark the face as closed
				faceMap[key] = faceRef{-1, -1}
			} else {
				faceMap[key] = faceRef{k, f}
			}
		}
	}
	// CSR adjacency with sorted column indices
	var (
		ia = make([]int, nc+1)
		ja []int
	)
	for k := 0; k < nc; k++ {
		var nbrs []int
		for _, nbr := range g.EToE[k] {
			if nbr >= 0 {
				nbrs = append(nbrs, nbr)
			}
		}
		sort.Ints(nbrs)
		ja = append(ja, nbrs...)
		ia[k+1] = len(ja)
	}
	data := make([]float64, len(ja))
	for i := range data {
		data[i] = 1
	}
	g.Adjacency = sparse.NewCSR(nc, nc, ia, ja, data)
	return
}

// faceKey is the sorted vertex tuple of a face, padded with -1 in 2D.
func (g *Grid) faceKey(k, f int) (key [3]int) {
	key = [3]int{-1, -1, -1}
	var i int
	for lv, v := range g.Cells[k] {
		if lv != f {
			key[i] = v
			i++
		}
	}
	sort.Ints(key[:i])
	return
}

func centroid(verts []r3.Vec) (c r3.Vec) {
	for _, v := range verts {
		c = r3.Add(c, v)
	}
	c = r3.Scale(1/float64(len(verts)), c)
	return
}

func simplexVolume(nDims int, verts []r3.Vec) float64 {
	var (
		e1 = r3.Sub(verts[1], verts[0])
		e2 = r3.Sub(verts[2], verts[0])
	)
	if nDims == 2 {
		return 0.5 * math.Abs(e1.X*e2.Y-e1.Y*e2.X)
	}
	e3 := r3.Sub(verts[3], verts[0])
	return math.Abs(r3.Dot(e1, r3.Cross(e2, e3))) / 6
}

// circumRadius solves for the point equidistant from all vertices.
func circumRadius(nDims int, verts []r3.Vec) (R float64, err error) {
	var (
		A = mat.NewDense(nDims, nDims, nil)
		b = mat.NewVecDense(nDims, nil)
		x = mat.NewVecDense(nDims, nil)
	)
	for i := 0; i < nDims; i++ {
		e := r3.Sub(verts[i+1], verts[0])
		row := []float64{e.X, e.Y, e.Z}[:nDims]
		A.SetRow(i, row)
		b.SetVec(i, 0.5*r3.Dot(e, e))
	}
	if err = x.SolveVec(A, b); err != nil {
		return 0, fmt.Errorf("%w: circumcenter: %v", ErrDegenerateCell, err)
	}
	var c r3.Vec
	c.X, c.Y = x.AtVec(0), x.AtVec(1)
	if nDims == 3 {
		c.Z = x.AtVec(2)
	}
	R = r3.Norm(c)
	return
}

// Subset builds the grid of the listed cells, cell i of the result being
// cells[i] of g. Unused vertices are dropped and the rest keep their
// relative order.
func (g *Grid) Subset(cells []int) (sg *Grid, err error) {
	var (
		vmap     = make(map[int]int)
		used     []int
		subCells = make([][]int, len(cells))
	)
	for i, k := range cells {
		if k < 0 || k >= g.NumCells() {
			return nil, fmt.Errorf("%w: cell %d outside grid of %d cells", ErrBadConnectivity, k, g.NumCells())
		}
		for _, v := range g.Cells[k] {
			if _, ok := vmap[v]; !ok {
				vmap[v] = -1
				used = append(used, v)
			}
		}
		subCells[i] = g.Cells[k]
	}
	sort.Ints(used)
	vertices := make([]r3.Vec, len(used))
	for i, v := range used {
		vmap[v] = i
		vertices[i] = g.Vertices[v]
	}
	for i, cell := range subCells {
		sc := make([]int, len(cell))
		for lv, v := range cell {
			sc[lv] = vmap[v]
		}
		subCells[i] = sc
	}
	return NewGrid(g.NDims, vertices, subCells, g.Quadrature)
}

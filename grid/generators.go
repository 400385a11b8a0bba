package grid

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// NewRectangleGrid splits an nx by ny array of rectangles over
// [xmin,xmax]x[ymin,ymax] into two triangles each. Square (i,j) holds cells
// 2*(j*nx+i) (lower-left) and 2*(j*nx+i)+1 (upper-right).
func NewRectangleGrid(nx, ny int, xmin, xmax, ymin, ymax float64, qt *QuadratureTable) (g *Grid, err error) {
	if nx < 1 || ny < 1 {
		return nil, fmt.Errorf("rectangle grid needs at least one square, have %dx%d", nx, ny)
	}
	var (
		dx       = (xmax - xmin) / float64(nx)
		dy       = (ymax - ymin) / float64(ny)
		vertices = make([]r3.Vec, 0, (nx+1)*(ny+1))
		cells    = make([][]int, 0, 2*nx*ny)
		vid      = func(i, j int) int { return j*(nx+1) + i }
	)
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			vertices = append(vertices, r3.Vec{X: xmin + float64(i)*dx, Y: ymin + float64(j)*dy})
		}
	}
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			cells = append(cells,
				[]int{vid(i, j), vid(i+1, j), vid(i, j+1)},
				[]int{vid(i+1, j+1), vid(i, j+1), vid(i+1, j)},
			)
		}
	}
	return NewGrid(2, vertices, cells, qt)
}

// NewBoxGrid splits each of nx*ny*nz boxes into six tetrahedra sharing the
// main diagonal, which keeps neighbouring boxes conforming.
func NewBoxGrid(nx, ny, nz int, lo, hi r3.Vec, qt *QuadratureTable) (g *Grid, err error) {
	if nx < 1 || ny < 1 || nz < 1 {
		return nil, fmt.Errorf("box grid needs at least one box, have %dx%dx%d", nx, ny, nz)
	}
	var (
		d = r3.Vec{
			X: (hi.X - lo.X) / float64(nx),
			Y: (hi.Y - lo.Y) / float64(ny),
			Z: (hi.Z - lo.Z) / float64(nz),
		}
		vertices []r3.Vec
		cells    [][]int
		vid      = func(i, j, k int) int { return (k*(ny+1)+j)*(nx+1) + i }
		// Axis orderings of the Kuhn subdivision
		perms = [6][3]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	)
	for k := 0; k <= nz; k++ {
		for j := 0; j <= ny; j++ {
			for i := 0; i <= nx; i++ {
				vertices = append(vertices, r3.Vec{
					X: lo.X + float64(i)*d.X,
					Y: lo.Y + float64(j)*d.Y,
					Z: lo.Z + float64(k)*d.Z,
				})
			}
		}
	}
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				for _, perm := range perms {
					var (
						ijk  = [3]int{i, j, k}
						cell = []int{vid(i, j, k)}
					)
					for _, axis := range perm {
						ijk[axis]++
						cell = append(cell, vid(ijk[0], ijk[1], ijk[2]))
					}
					cells = append(cells, cell)
				}
			}
		}
	}
	return NewGrid(3, vertices, cells, qt)
}

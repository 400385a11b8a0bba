package weno

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/cweno/grid"
	"github.com/notargets/cweno/lsq"
	"github.com/notargets/cweno/polynomial"
	"github.com/notargets/cweno/stencil"
	"github.com/notargets/cweno/utils"
)

// Reconstruction owns the factorized systems and hybridizers of a set of
// cells. Setup reads geometry only; Compute reads the state array and
// writes one output slot per cell, so the per-cell work runs in parallel
// without locks.
type Reconstruction struct {
	grid           *grid.Grid
	families       []*stencil.StencilFamily
	solvers        [][]*lsq.Solver
	hybridizers    []*Hybridizer
	seedPts        [][]r3.Vec
	seedWts        [][]float64
	parallelDegree int
	logger         *zap.Logger
}

type reconstructionOptions struct {
	parallelDegree int
	logger         *zap.Logger
}

type Option func(*reconstructionOptions)

func WithLogger(logger *zap.Logger) Option {
	return func(o *reconstructionOptions) { o.logger = logger }
}

// WithParallelDegree sets the number of cell chunks worked on concurrently.
func WithParallelDegree(n int) Option {
	return func(o *reconstructionOptions) { o.parallelDegree = n }
}

// NewReconstruction factorizes the member systems of every family. Families
// must carry indices local to g; the seed of family i is the cell whose
// polynomial lands in slot i of Compute's result.
func NewReconstruction(ctx context.Context, g *grid.Grid, families []*stencil.StencilFamily,
	params HybridWENOParams, opts ...Option) (rc *Reconstruction, err error) {
	ro := reconstructionOptions{
		parallelDegree: runtime.NumCPU(),
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&ro)
	}
	if ro.parallelDegree < 1 {
		ro.parallelDegree = 1
	}
	nc := len(families)
	rc = &Reconstruction{
		grid:           g,
		families:       families,
		solvers:        make([][]*lsq.Solver, nc),
		hybridizers:    make([]*Hybridizer, nc),
		seedPts:        make([][]r3.Vec, nc),
		seedWts:        make([][]float64, nc),
		parallelDegree: ro.parallelDegree,
		logger:         ro.logger,
	}
	if nc == 0 {
		return
	}
	eg, ctx := errgroup.WithContext(ctx)
	rc.forEachChunk(eg, nc, func(i int) (err error) {
		if err = ctx.Err(); err != nil {
			return
		}
		return rc.setupCell(i, params)
	})
	if err = eg.Wait(); err != nil {
		return nil, err
	}
	rc.logger.Info("factorized reconstruction systems",
		zap.Int("cells", nc), zap.Int("stencils", families[0].Len()),
		zap.Int("parallel_degree", rc.parallelDegree), zap.String("blas", utils.BLASBackend))
	return
}

func (rc *Reconstruction) setupCell(i int, params HybridWENOParams) (err error) {
	var (
		sf     = rc.families[i]
		seed   = sf.Stencil(0).Seed()
		degree int
	)
	rc.solvers[i] = make([]*lsq.Solver, sf.Len())
	for k, s := range sf.Stencils() {
		if rc.solvers[i][k], err = lsq.NewSolver(rc.grid, s); err != nil {
			return fmt.Errorf("stencil %d: %w", k, err)
		}
		degree = max(degree, s.Order-1)
	}
	if rc.hybridizers[i], err = NewHybridizer(params, sf); err != nil {
		return
	}
	// Squared derivatives of the members are of degree 2(degree-1)
	rc.seedPts[i], rc.seedWts[i], err = rc.grid.QuadraturePoints(seed, max(2*(degree-1), 0))
	return
}

// forEachChunk runs fn over [0, n) split into contiguous chunks, one
// goroutine per chunk.
func (rc *Reconstruction) forEachChunk(eg *errgroup.Group, n int, fn func(i int) error) {
	pm := utils.NewPartitionMap(min(rc.parallelDegree, n), n)
	for bn := 0; bn < pm.ParallelDegree; bn++ {
		kMin, kMax := pm.GetBucketRange(bn)
		eg.Go(func() (err error) {
			for i := kMin; i < kMax; i++ {
				if err = fn(i); err != nil {
					return
				}
			}
			return
		})
	}
}

func (rc *Reconstruction) NumCells() int { return len(rc.families) }

func (rc *Reconstruction) Families() []*stencil.StencilFamily { return rc.families }

// Cell fits and blends the polynomial of slot i.
func (rc *Reconstruction) Cell(i int, qbar *mat.Dense) (p polynomial.WENOPoly, err error) {
	polys := make([]polynomial.WENOPoly, len(rc.solvers[i]))
	for k, sv := range rc.solvers[i] {
		if polys[k], err = sv.Solve(qbar); err != nil {
			return
		}
	}
	return rc.hybridizers[i].Hybridize(polys, rc.seedPts[i], rc.seedWts[i])
}

// Weights returns the nonlinear weights of slot i, omega[v][k].
func (rc *Reconstruction) Weights(i int, qbar *mat.Dense) (omega [][]float64, err error) {
	polys := make([]polynomial.WENOPoly, len(rc.solvers[i]))
	for k, sv := range rc.solvers[i] {
		if polys[k], err = sv.Solve(qbar); err != nil {
			return
		}
	}
	return rc.hybridizers[i].Weights(polys, rc.seedPts[i], rc.seedWts[i])
}

// Compute reconstructs every cell from qbar, rows indexed by local cell.
// Ghost rows must be current before the call.
func (rc *Reconstruction) Compute(ctx context.Context, qbar *mat.Dense) (polys []polynomial.WENOPoly, err error) {
	if r, _ := qbar.Dims(); r < rc.grid.NumCells() {
		return nil, fmt.Errorf("state has %d rows, grid has %d cells", r, rc.grid.NumCells())
	}
	polys = make([]polynomial.WENOPoly, rc.NumCells())
	if rc.NumCells() == 0 {
		return
	}
	eg, ctx := errgroup.WithContext(ctx)
	rc.forEachChunk(eg, rc.NumCells(), func(i int) (err error) {
		if err = ctx.Err(); err != nil {
			return
		}
		if polys[i], err = rc.Cell(i, qbar); err != nil {
			return fmt.Errorf("cell %d: %w", rc.families[i].Seed(), err)
		}
		return
	})
	if err = eg.Wait(); err != nil {
		return nil, err
	}
	return
}

func (rc *Reconstruction) ComputeScalar(ctx context.Context, qbar []float64) (polys []polynomial.ScalarPoly, err error) {
	var wps []polynomial.WENOPoly
	if wps, err = rc.Compute(ctx, mat.NewDense(len(qbar), 1, qbar)); err != nil {
		return
	}
	polys = make([]polynomial.ScalarPoly, len(wps))
	for i, wp := range wps {
		polys[i] = polynomial.AsScalar(wp)
	}
	return
}

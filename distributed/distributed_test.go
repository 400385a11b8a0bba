package distributed

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/cweno/grid"
	"github.com/notargets/cweno/stencil"
	"github.com/notargets/cweno/weno"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDistributedArrayInfo(t *testing.T) {
	info := BlockArrayInfo(10, 3)
	assert.Equal(t, []int{0, 4, 7, 10}, info.Partition)
	assert.Equal(t, 3, info.NRanks())
	assert.Equal(t, 10, info.NGlobal())
	for k, want := range []int{0, 0, 0, 0, 1, 1, 1, 2, 2, 2} {
		assert.Equal(t, want, info.Owner(k))
	}
	assert.Equal(t, -1, info.Owner(10))
	assert.Equal(t, -1, info.Owner(-1))
	start, end := info.Range(1)
	assert.Equal(t, [2]int{4, 7}, [2]int{start, end})

	// A rank owning nothing is skipped
	info, err := NewDistributedArrayInfo([]int{0, 5, 5, 8})
	require.NoError(t, err)
	assert.Equal(t, 2, info.Owner(5))
	assert.Equal(t, 0, info.NOwned(1))

	_, err = NewDistributedArrayInfo([]int{0, 5, 3})
	assert.Error(t, err)
	_, err = NewDistributedArrayInfo([]int{1, 5})
	assert.Error(t, err)
}

func TestHaloValidate(t *testing.T) {
	good := Halo{
		NOwned: 4,
		NTotal: 7,
		Remote: []RemoteInfo{{Rank: 0, Global: []int{1, 3}}, {Rank: 2, Global: []int{20}}},
		Local:  []LocalInfo{{Rank: 0, Start: 4, End: 6}, {Rank: 2, Start: 6, End: 7}},
	}
	require.NoError(t, good.Validate())
	assert.Equal(t, 3, good.NGhosts())
	require.NoError(t, Halo{NOwned: 3, NTotal: 3}.Validate())

	gap := good
	gap.Local = []LocalInfo{{Rank: 0, Start: 4, End: 6}, {Rank: 2, Start: 7, End: 8}}
	assert.Error(t, gap.Validate())

	order := good
	order.Remote = []RemoteInfo{{Rank: 2, Global: []int{1, 3}}, {Rank: 0, Global: []int{20}}}
	order.Local = []LocalInfo{{Rank: 2, Start: 4, End: 6}, {Rank: 0, Start: 6, End: 7}}
	assert.Error(t, order.Validate())

	count := good
	count.Remote = []RemoteInfo{{Rank: 0, Global: []int{1}}, {Rank: 2, Global: []int{20}}}
	assert.Error(t, count.Validate())

	short := good
	short.NTotal = 8
	assert.Error(t, short.Validate())
}

func TestComm(t *testing.T) {
	ctx := context.Background()
	err := RunWorld(ctx, 3, func(ctx context.Context, c *Comm) error {
		var (
			right = (c.Rank() + 1) % c.Size()
			left  = (c.Rank() + c.Size() - 1) % c.Size()
			buf   = make([]float64, 2)
		)
		recv := c.Irecv(left, Tag(TagCellAverages, 0), buf)
		send := c.Isend(right, Tag(TagCellAverages, 0), []float64{float64(c.Rank()), 1})
		if err := WaitAll([]*Request{send, recv}); err != nil {
			return err
		}
		assert.Equal(t, []float64{float64(left), 1}, buf)

		ints := c.IrecvInts(left, Tag(TagSetup, 0))
		if err := c.IsendInts(right, Tag(TagSetup, 0), []int{c.Rank(), 7, 9}).Wait(); err != nil {
			return err
		}
		if err := ints.Wait(); err != nil {
			return err
		}
		assert.Equal(t, []int{left, 7, 9}, ints.Ints())
		return nil
	})
	require.NoError(t, err)

	// A long run of sends posted before any receive arrives in order
	const nMsg = 40
	got := make([]float64, nMsg)
	err = RunWorld(ctx, 2, func(ctx context.Context, c *Comm) error {
		tag := Tag(TagCellAverages, 0)
		if c.Rank() == 0 {
			reqs := make([]*Request, nMsg)
			for i := range reqs {
				reqs[i] = c.Isend(1, tag, []float64{float64(i)})
			}
			return WaitAll(reqs)
		}
		reqs := make([]*Request, nMsg)
		for i := range reqs {
			reqs[i] = c.Irecv(0, tag, got[i:i+1])
		}
		return WaitAll(reqs)
	})
	require.NoError(t, err)
	for i, v := range got {
		assert.Equal(t, float64(i), v)
	}

	// The same after the sender has finished
	w := NewWorld(2)
	from, to := w.Comm(0), w.Comm(1)
	for i := 0; i < nMsg; i++ {
		require.NoError(t, from.Isend(1, Tag(TagCellAverages, 1), []float64{float64(i)}).Wait())
	}
	buf := make([]float64, 1)
	for i := 0; i < nMsg; i++ {
		require.NoError(t, to.Irecv(0, Tag(TagCellAverages, 1), buf).Wait())
		assert.Equal(t, float64(i), buf[0])
	}
	w.Abort(errors.New("done"))
	assert.ErrorIs(t, to.Irecv(0, Tag(TagCellAverages, 1), buf).Wait(), ErrWorldAborted)
}

func TestCommSizeMismatch(t *testing.T) {
	ctx := context.Background()
	err := RunWorld(ctx, 2, func(ctx context.Context, c *Comm) error {
		tag := Tag(TagCellAverages, 3)
		if c.Rank() == 0 {
			return c.Isend(1, tag, []float64{1, 2, 3}).Wait()
		}
		return c.Irecv(0, tag, make([]float64, 4)).Wait()
	})
	require.Error(t, err)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 1, te.Rank)
	assert.Equal(t, 0, te.Peer)
	assert.Equal(t, 203, te.Tag)
	assert.Equal(t, 4, te.Expected)
	assert.Equal(t, 3, te.Actual)
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestCommAbort(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	err := RunWorld(ctx, 2, func(ctx context.Context, c *Comm) error {
		if c.Rank() == 0 {
			return boom
		}
		// Never sent; the failure of rank 0 releases the wait
		return c.Irecv(0, Tag(TagGather, 0), make([]float64, 1)).Wait()
	})
	assert.ErrorIs(t, err, boom)

	err = RunWorld(ctx, 1, func(ctx context.Context, c *Comm) error {
		return c.Isend(5, TagScatter, nil).Wait()
	})
	assert.ErrorIs(t, err, ErrBadPeer)
}

func TestNoHaloExchange(t *testing.T) {
	var (
		nh HaloExchange = &NoHaloExchange{}
		u               = mat.NewDense(3, 1, nil)
	)
	assert.ErrorIs(t, nh.Wait(), ErrExchangeNotPosted)
	require.NoError(t, nh.Post(u))
	assert.ErrorIs(t, nh.Post(u), ErrExchangePending)
	require.NoError(t, nh.Wait())
	assert.ErrorIs(t, nh.Wait(), ErrExchangeNotPosted)
}

func TestBlockPartitioner(t *testing.T) {
	g := rectangle(t)
	partition, err := BlockPartitioner{}.Partition(g, 4)
	require.NoError(t, err)
	for k, r := range partition {
		assert.Equal(t, k/25, r)
	}
	ps := AnalyzePartition(g, partition, 4, zap.NewNop())
	assert.Equal(t, []int{25, 25, 25, 25}, ps.Cells)
	assert.Equal(t, 0., ps.Imbalance)
	assert.Greater(t, ps.CutFaces, 0)
	var interfaces int
	for _, n := range ps.Interface {
		interfaces += n
	}
	assert.Equal(t, ps.CutFaces, interfaces)
	for r, nbrs := range ps.Neighbors {
		for _, n := range nbrs {
			assert.Contains(t, ps.Neighbors[n], r)
		}
	}

	_, err = BlockPartitioner{}.Partition(g, 0)
	assert.Error(t, err)

	p, err := NewPartitioner("block")
	require.NoError(t, err)
	assert.Equal(t, BlockPartitioner{}, p)
	assert.Contains(t, PartitionerNames(), "block")
	_, err = NewPartitioner("scotch")
	assert.Error(t, err)
}

// rectangle is a 5x10 grid of squares, 100 triangles.
func rectangle(t *testing.T) *grid.Grid {
	g, err := grid.NewRectangleGrid(5, 10, 0, 1, 0, 2, grid.NewQuadratureTable(8))
	require.NoError(t, err)
	return g
}

func familyParams() stencil.StencilFamilyParams {
	return stencil.StencilFamilyParams{
		Orders:              []int{3, 2, 2, 2},
		Biases:              []string{"c", "b", "b", "b"},
		OverfitFactors:      []float64{1.5, 1.5, 1.5, 1.5},
		ReduceOneSidedOrder: true,
	}
}

// striped assigns cells round robin, so renumbering has work to do.
func striped(n, nRanks int) (partition []int) {
	partition = make([]int, n)
	for k := range partition {
		partition[k] = (k / 3) % nRanks
	}
	return
}

func TestRenumber(t *testing.T) {
	var (
		g         = rectangle(t)
		partition = striped(g.NumCells(), 4)
	)
	rg, perm, info, err := Renumber(g, partition, 4)
	require.NoError(t, err)
	require.Equal(t, g.NumCells(), rg.NumCells())
	assert.Equal(t, 4, info.NRanks())
	for nk, ok := range perm.NewToOld {
		assert.Equal(t, partition[ok], info.Owner(nk))
		assert.Equal(t, nk, perm.OldToNew[ok])
		assert.Equal(t, g.Centers[ok], rg.Centers[nk])
		if nk > 0 && info.Owner(nk) == info.Owner(nk-1) {
			assert.Less(t, perm.NewToOld[nk-1], ok)
		}
	}
	u := mat.NewDense(g.NumCells(), 2, nil)
	for k := 0; k < g.NumCells(); k++ {
		u.SetRow(k, []float64{float64(k), -float64(k)})
	}
	assert.True(t, mat.Equal(u, perm.ToOld(perm.ToNew(u))))
	assert.Equal(t, float64(perm.NewToOld[7]), perm.ToNew(u).At(7, 0))

	_, _, _, err = Renumber(g, partition[:10], 4)
	assert.Error(t, err)
	_, err = NewPermutation([]int{0, 0, 1})
	assert.Error(t, err)
}

type setup struct {
	grid     *grid.Grid
	info     DistributedArrayInfo
	families []*stencil.StencilFamily
}

func newSetup(t *testing.T, partition []int, nRanks int) (s setup) {
	var err error
	s.grid, _, s.info, err = Renumber(rectangle(t), partition, nRanks)
	require.NoError(t, err)
	s.families, err = stencil.BuildFamilies(context.Background(), s.grid, nil, familyParams())
	require.NoError(t, err)
	return
}

func TestDecompose(t *testing.T) {
	s := newSetup(t, striped(100, 4), 4)
	for rank := 0; rank < 4; rank++ {
		ld, err := Decompose(s.grid, s.info, s.families, rank)
		require.NoError(t, err)
		start, end := s.info.Range(rank)
		assert.Equal(t, end-start, ld.NOwned())
		assert.Equal(t, len(ld.L2G), ld.NTotal())
		assert.Equal(t, ld.NTotal(), ld.Grid.NumCells())
		for lk, gk := range ld.L2G {
			assert.Equal(t, lk, ld.G2L[gk])
			assert.Equal(t, s.grid.Centers[gk], ld.Grid.Centers[lk])
		}
		for lk := ld.NOwned() + 1; lk < ld.NTotal(); lk++ {
			prev, cur := ld.L2G[lk-1], ld.L2G[lk]
			po, co := s.info.Owner(prev), s.info.Owner(cur)
			assert.NotEqual(t, rank, co)
			assert.True(t, po < co || (po == co && prev < cur))
		}
		require.Len(t, ld.Families, ld.NOwned())
		for i, sf := range ld.Families {
			assert.Equal(t, i, sf.Stencil(0).Seed())
			for _, st := range sf.Stencils() {
				for j, lk := range st.Local {
					assert.Equal(t, st.Global[j], ld.L2G[lk])
				}
			}
		}
		again, err := Decompose(s.grid, s.info, s.families, rank)
		require.NoError(t, err)
		assert.Equal(t, ld.L2G, again.L2G)
		assert.Equal(t, ld.Halo, again.Halo)
	}
	_, err := Decompose(s.grid, s.info, s.families[:10], 3)
	assert.Error(t, err)
}

// Ghost rows hold their global index after each exchange.
func TestHaloExchangeGlobalIndex(t *testing.T) {
	ctx := context.Background()
	partition, err := BlockPartitioner{}.Partition(rectangle(t), 4)
	require.NoError(t, err)
	s := newSetup(t, partition, 4)
	err = RunWorld(ctx, 4, func(ctx context.Context, c *Comm) error {
		ld, err := Decompose(s.grid, s.info, s.families, c.Rank())
		if err != nil {
			return err
		}
		he, err := NewCommHaloExchange(c, s.info, ld.Halo, 0)
		if err != nil {
			return err
		}
		u := mat.NewDense(ld.NTotal(), 2, nil)
		for lk := 0; lk < ld.NTotal(); lk++ {
			if lk < ld.NOwned() {
				u.SetRow(lk, []float64{float64(ld.L2G[lk]), -float64(ld.L2G[lk])})
			} else {
				u.SetRow(lk, []float64{-1, -1})
			}
		}
		for round := 0; round < 2; round++ {
			if err = he.Post(u); err != nil {
				return err
			}
			if err = he.Wait(); err != nil {
				return err
			}
			for lk := ld.NOwned(); lk < ld.NTotal(); lk++ {
				assert.Equal(t, float64(ld.L2G[lk]), u.At(lk, 0))
				assert.Equal(t, -float64(ld.L2G[lk]), u.At(lk, 1))
			}
		}
		assert.Greater(t, ld.Halo.NGhosts(), 0)
		return nil
	})
	require.NoError(t, err)
}

func TestHaloExchangeState(t *testing.T) {
	s := newSetup(t, striped(100, 2), 2)
	err := RunWorld(context.Background(), 2, func(ctx context.Context, c *Comm) error {
		ld, err := Decompose(s.grid, s.info, s.families, c.Rank())
		if err != nil {
			return err
		}
		he, err := NewCommHaloExchange(c, s.info, ld.Halo, 1)
		if err != nil {
			return err
		}
		u := mat.NewDense(ld.NTotal(), 1, nil)
		assert.ErrorIs(t, he.Wait(), ErrExchangeNotPosted)
		if err = he.Post(u); err != nil {
			return err
		}
		assert.ErrorIs(t, he.Post(u), ErrExchangePending)
		if err = he.Wait(); err != nil {
			return err
		}
		assert.Error(t, he.Post(mat.NewDense(1, 1, nil)))
		assert.ErrorIs(t, he.Wait(), ErrExchangeNotPosted)
		return nil
	})
	require.NoError(t, err)
}

// Ranks disagreeing on the number of state variables fail instead of
// exchanging garbage.
func TestHaloExchangeSizeMismatch(t *testing.T) {
	s := newSetup(t, striped(100, 2), 2)
	err := RunWorld(context.Background(), 2, func(ctx context.Context, c *Comm) error {
		ld, err := Decompose(s.grid, s.info, s.families, c.Rank())
		if err != nil {
			return err
		}
		he, err := NewCommHaloExchange(c, s.info, ld.Halo, 2)
		if err != nil {
			return err
		}
		if err = he.Post(mat.NewDense(ld.NTotal(), 1+c.Rank(), nil)); err != nil {
			return err
		}
		return he.Wait()
	})
	require.Error(t, err)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, Tag(TagCellAverages, 2), te.Tag)
	assert.NotEqual(t, te.Expected, te.Actual)
}

func TestGatherScatter(t *testing.T) {
	var (
		info   = DistributedArrayInfo{Partition: []int{0, 30, 30, 70, 100}}
		global = mat.NewDense(100, 3, nil)
	)
	for k := 0; k < 100; k++ {
		global.SetRow(k, []float64{math.Sin(float64(k)), float64(k), 1 / float64(k+1)})
	}
	err := RunWorld(context.Background(), 4, func(ctx context.Context, c *Comm) error {
		var in *mat.Dense
		if c.Rank() == 2 {
			in = global
		}
		local, err := NewCommScatterer(c, info, 2, 0, 3).Scatter(in)
		if err != nil {
			return err
		}
		start, end := info.Range(c.Rank())
		r, _ := local.Dims()
		if end > start {
			assert.Equal(t, end-start, r)
			assert.Equal(t, global.RawRowView(start), local.RawRowView(0))
		}
		out, err := NewCommGatherer(c, info, 2, 0).Gather(local)
		if err != nil {
			return err
		}
		if c.Rank() == 2 {
			assert.True(t, mat.Equal(global, out))
		} else {
			assert.Nil(t, out)
		}
		return nil
	})
	require.NoError(t, err)

	local, err := NoScatterer{NOwned: 100}.Scatter(global)
	require.NoError(t, err)
	out, err := NoGatherer{NOwned: 100}.Gather(local)
	require.NoError(t, err)
	assert.True(t, mat.Equal(global, out))
}

// The decomposed reconstruction matches the single-rank one.
func TestDistributedReconstruction(t *testing.T) {
	var (
		ctx = context.Background()
		s   = newSetup(t, striped(100, 3), 3)
		f   = func(x r3.Vec) float64 { return math.Sin(3*x.X) + x.Y*x.Y }
		hp  = weno.CentralWeighted(4, 0, 0.85)
	)
	qbar, err := s.grid.CellAverages(8, f)
	require.NoError(t, err)
	serial, err := weno.NewReconstruction(ctx, s.grid, s.families, hp)
	require.NoError(t, err)
	want, err := serial.Compute(ctx, qbar)
	require.NoError(t, err)

	err = RunWorld(ctx, 3, func(ctx context.Context, c *Comm) error {
		ld, err := Decompose(s.grid, s.info, s.families, c.Rank())
		if err != nil {
			return err
		}
		var (
			full   *mat.Dense
			nOwned = ld.NOwned()
		)
		if c.Rank() == 0 {
			full = qbar
		}
		owned, err := NewCommScatterer(c, s.info, 0, 0, 1).Scatter(full)
		if err != nil {
			return err
		}
		u := mat.NewDense(ld.NTotal(), 1, nil)
		u.Slice(0, nOwned, 0, 1).(*mat.Dense).Copy(owned)
		he, err := NewCommHaloExchange(c, s.info, ld.Halo, 0)
		if err != nil {
			return err
		}
		if err = he.Post(u); err != nil {
			return err
		}
		if err = he.Wait(); err != nil {
			return err
		}
		rc, err := weno.NewReconstruction(ctx, ld.Grid, ld.Families, hp)
		if err != nil {
			return err
		}
		got, err := rc.Compute(ctx, u)
		if err != nil {
			return err
		}
		for i, p := range got {
			q := want[ld.L2G[i]]
			assert.Equal(t, q.Frame(), p.Frame())
			assert.InDeltaSlice(t, q.Coeffs(0), p.Coeffs(0), 1.e-12)
		}
		return nil
	})
	require.NoError(t, err)
}

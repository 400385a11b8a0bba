package distributed

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// AllVariablesGatherer collects the owned rows of every rank, all state
// variables, into one global array on the root rank. Other ranks get nil.
type AllVariablesGatherer interface {
	Gather(local *mat.Dense) (global *mat.Dense, err error)
}

// AllVariablesScatterer distributes a global array held by the root rank,
// returning each rank its owned rows. Only the root's argument is read.
type AllVariablesScatterer interface {
	Scatter(global *mat.Dense) (local *mat.Dense, err error)
}

// NoGatherer and NoScatterer serve single-rank runs: the owned rows are
// the global array.
type NoGatherer struct{ NOwned int }

func (ng NoGatherer) Gather(local *mat.Dense) (*mat.Dense, error) {
	return ownedRows(local, ng.NOwned)
}

type NoScatterer struct{ NOwned int }

func (ns NoScatterer) Scatter(global *mat.Dense) (*mat.Dense, error) {
	return ownedRows(global, ns.NOwned)
}

func ownedRows(u *mat.Dense, n int) (*mat.Dense, error) {
	r, c := u.Dims()
	if r < n {
		return nil, fmt.Errorf("array has %d rows, want at least %d", r, n)
	}
	out := newRows(n, c, nil)
	for row := 0; row < n; row++ {
		out.SetRow(row, u.RawRowView(row))
	}
	return out, nil
}

// newRows is mat.NewDense allowing zero rows.
func newRows(n, c int, data []float64) *mat.Dense {
	if n == 0 {
		return &mat.Dense{}
	}
	return mat.NewDense(n, c, data)
}

// CommGatherer gathers over a World.
type CommGatherer struct {
	comm *Comm
	info DistributedArrayInfo
	root int
	tag  int
}

func NewCommGatherer(comm *Comm, info DistributedArrayInfo, root, tagOffset int) *CommGatherer {
	return &CommGatherer{comm: comm, info: info, root: root, tag: Tag(TagGather, tagOffset)}
}

func (cg *CommGatherer) Gather(local *mat.Dense) (global *mat.Dense, err error) {
	var (
		me       = cg.comm.Rank()
		nOwned   = cg.info.NOwned(me)
		r, nVars = local.Dims()
	)
	if r < nOwned {
		return nil, fmt.Errorf("rank %d: array has %d rows, owns %d", me, r, nOwned)
	}
	if me != cg.root {
		buf := make([]float64, 0, nOwned*nVars)
		for row := 0; row < nOwned; row++ {
			buf = append(buf, local.RawRowView(row)...)
		}
		return nil, cg.comm.Isend(cg.root, cg.tag, buf).Wait()
	}
	global = mat.NewDense(cg.info.NGlobal(), nVars, nil)
	var (
		reqs = make([]*Request, 0, cg.info.NRanks())
		bufs = make([][]float64, cg.info.NRanks())
	)
	for rank := 0; rank < cg.info.NRanks(); rank++ {
		if rank == me {
			continue
		}
		bufs[rank] = make([]float64, cg.info.NOwned(rank)*nVars)
		reqs = append(reqs, cg.comm.Irecv(rank, cg.tag, bufs[rank]))
	}
	start, _ := cg.info.Range(me)
	for row := 0; row < nOwned; row++ {
		global.SetRow(start+row, local.RawRowView(row))
	}
	if err = WaitAll(reqs); err != nil {
		return nil, err
	}
	for rank, buf := range bufs {
		if rank == me {
			continue
		}
		start, end := cg.info.Range(rank)
		for row := start; row < end; row++ {
			off := (row - start) * nVars
			global.SetRow(row, buf[off:off+nVars])
		}
	}
	return
}

// CommScatterer scatters over a World. Every rank must know the number of
// state variables.
type CommScatterer struct {
	comm  *Comm
	info  DistributedArrayInfo
	root  int
	tag   int
	nVars int
}

func NewCommScatterer(comm *Comm, info DistributedArrayInfo, root, tagOffset, nVars int) *CommScatterer {
	return &CommScatterer{comm: comm, info: info, root: root, tag: Tag(TagScatter, tagOffset), nVars: nVars}
}

func (cs *CommScatterer) Scatter(global *mat.Dense) (local *mat.Dense, err error) {
	var (
		me     = cs.comm.Rank()
		nOwned = cs.info.NOwned(me)
	)
	if me != cs.root {
		buf := make([]float64, nOwned*cs.nVars)
		if err = cs.comm.Irecv(cs.root, cs.tag, buf).Wait(); err != nil {
			return nil, err
		}
		return newRows(nOwned, cs.nVars, buf), nil
	}
	if r, c := global.Dims(); r != cs.info.NGlobal() || c != cs.nVars {
		return nil, fmt.Errorf("rank %d: global array is %dx%d, want %dx%d",
			me, r, c, cs.info.NGlobal(), cs.nVars)
	}
	var reqs []*Request
	local = newRows(nOwned, cs.nVars, nil)
	for rank := 0; rank < cs.info.NRanks(); rank++ {
		start, end := cs.info.Range(rank)
		if rank == me {
			for row := start; row < end; row++ {
				local.SetRow(row-start, global.RawRowView(row))
			}
			continue
		}
		buf := make([]float64, 0, (end-start)*cs.nVars)
		for row := start; row < end; row++ {
			buf = append(buf, global.RawRowView(row)...)
		}
		reqs = append(reqs, cs.comm.Isend(rank, cs.tag, buf))
	}
	err = WaitAll(reqs)
	return
}

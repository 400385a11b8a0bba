package distributed

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrExchangePending   = errors.New("halo exchange already posted")
	ErrExchangeNotPosted = errors.New("halo exchange not posted")
)

// HaloExchange refreshes the ghost rows of a state array. Post starts the
// transfer from the owned rows; after Wait returns the ghost rows hold the
// owners' values. Neither the owned rows nor the ghost rows may be touched
// in between.
type HaloExchange interface {
	Post(u *mat.Dense) error
	Wait() error
}

// NoHaloExchange is the exchange of a single-rank run, which has no ghosts.
type NoHaloExchange struct {
	posted bool
}

func (nh *NoHaloExchange) Post(*mat.Dense) error {
	if nh.posted {
		return ErrExchangePending
	}
	nh.posted = true
	return nil
}

func (nh *NoHaloExchange) Wait() error {
	if !nh.posted {
		return ErrExchangeNotPosted
	}
	nh.posted = false
	return nil
}

// CommHaloExchange moves ghost rows between ranks of a World.
type CommHaloExchange struct {
	comm     *Comm
	halo     Halo
	tag      int
	sendTo   []int   // peer ranks, ascending
	sendRows [][]int // local owned rows to send to each peer
	sendBufs [][]float64
	recvBufs [][]float64
	reqs     []*Request
	u        *mat.Dense
}

// NewCommHaloExchange is collective over the world: every rank tells every
// other rank which of its cells it needs, so owners learn what to send.
// tagOffset separates concurrent exchanges.
func NewCommHaloExchange(comm *Comm, info DistributedArrayInfo, halo Halo, tagOffset int) (he *CommHaloExchange, err error) {
	if err = halo.Validate(); err != nil {
		return nil, fmt.Errorf("rank %d: %w", comm.Rank(), err)
	}
	if info.NRanks() != comm.Size() {
		return nil, fmt.Errorf("rank %d: partition of %d ranks in a world of %d",
			comm.Rank(), info.NRanks(), comm.Size())
	}
	he = &CommHaloExchange{
		comm: comm,
		halo: halo,
		tag:  Tag(TagCellAverages, tagOffset),
	}
	var (
		me       = comm.Rank()
		setupTag = Tag(TagSetup, tagOffset)
		needs    = make(map[int][]int, len(halo.Remote))
		sends    []*Request
		recvs    = make(map[int]*Request)
		start, _ = info.Range(me)
		nOwned   = info.NOwned(me)
	)
	for _, ri := range halo.Remote {
		needs[ri.Rank] = ri.Global
	}
	for peer := 0; peer < comm.Size(); peer++ {
		if peer == me {
			continue
		}
		sends = append(sends, comm.IsendInts(peer, setupTag, needs[peer]))
		recvs[peer] = comm.IrecvInts(peer, setupTag)
	}
	if err = WaitAll(sends); err != nil {
		return nil, err
	}
	for peer := 0; peer < comm.Size(); peer++ {
		req, ok := recvs[peer]
		if !ok {
			continue
		}
		if err = req.Wait(); err != nil {
			return nil, err
		}
		wanted := req.Ints()
		if len(wanted) == 0 {
			continue
		}
		rows := make([]int, len(wanted))
		for i, gk := range wanted {
			if rows[i] = gk - start; rows[i] < 0 || rows[i] >= nOwned {
				return nil, fmt.Errorf("rank %d: rank %d asks for cell %d, owned range is [%d, %d)",
					me, peer, gk, start, start+nOwned)
			}
		}
		he.sendTo = append(he.sendTo, peer)
		he.sendRows = append(he.sendRows, rows)
	}
	he.sendBufs = make([][]float64, len(he.sendTo))
	he.recvBufs = make([][]float64, len(halo.Local))
	return
}

// Post packs the owned rows wanted by each peer and starts all transfers.
func (he *CommHaloExchange) Post(u *mat.Dense) (err error) {
	if he.u != nil {
		return ErrExchangePending
	}
	r, nVars := u.Dims()
	if r < he.halo.NTotal {
		return fmt.Errorf("rank %d: state has %d rows, halo needs %d", he.comm.Rank(), r, he.halo.NTotal)
	}
	he.reqs = he.reqs[:0]
	for i, li := range he.halo.Local {
		n := (li.End - li.Start) * nVars
		if cap(he.recvBufs[i]) < n {
			he.recvBufs[i] = make([]float64, n)
		}
		he.recvBufs[i] = he.recvBufs[i][:n]
		he.reqs = append(he.reqs, he.comm.Irecv(li.Rank, he.tag, he.recvBufs[i]))
	}
	for i, peer := range he.sendTo {
		buf := he.sendBufs[i][:0]
		for _, row := range he.sendRows[i] {
			buf = append(buf, u.RawRowView(row)...)
		}
		he.sendBufs[i] = buf
		he.reqs = append(he.reqs, he.comm.Isend(peer, he.tag, buf))
	}
	he.u = u
	return
}

// Wait completes the round and unpacks the ghost rows.
func (he *CommHaloExchange) Wait() (err error) {
	if he.u == nil {
		return ErrExchangeNotPosted
	}
	defer func() { he.u = nil }()
	if err = WaitAll(he.reqs); err != nil {
		return
	}
	_, nVars := he.u.Dims()
	for i, li := range he.halo.Local {
		buf := he.recvBufs[i]
		for row := li.Start; row < li.End; row++ {
			off := (row - li.Start) * nVars
			he.u.SetRow(row, buf[off:off+nVars])
		}
	}
	return
}

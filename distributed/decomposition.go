package distributed

import (
	"fmt"
	"sort"

	"github.com/notargets/cweno/grid"
	"github.com/notargets/cweno/stencil"
)

// LocalDomain is one rank's view of a decomposed grid. Local cells are the
// owned cells in global order followed by the ghosts, grouped by owning
// rank ascending and ascending global index within a group.
type LocalDomain struct {
	Rank     int
	Info     DistributedArrayInfo
	Grid     *grid.Grid
	L2G      []int
	G2L      map[int]int
	Families []*stencil.StencilFamily // owned cells, local indices
	Halo     Halo
}

func (ld *LocalDomain) NOwned() int { return ld.Halo.NOwned }

func (ld *LocalDomain) NTotal() int { return ld.Halo.NTotal }

// Decompose extracts the domain of rank from a grid numbered so that ranks
// own contiguous ranges (see Renumber). families is indexed by global cell
// and must hold the family of every cell the rank owns; the ghosts are the
// cells those families reach outside the owned range.
func Decompose(g *grid.Grid, info DistributedArrayInfo, families []*stencil.StencilFamily, rank int) (ld *LocalDomain, err error) {
	if info.NGlobal() != g.NumCells() {
		return nil, fmt.Errorf("partition covers %d cells, grid has %d", info.NGlobal(), g.NumCells())
	}
	if rank < 0 || rank >= info.NRanks() {
		return nil, fmt.Errorf("rank %d outside partition of %d ranks", rank, info.NRanks())
	}
	var (
		start, end = info.Range(rank)
		seen       = make(map[int]bool)
		ghosts     []int
	)
	for gk := start; gk < end; gk++ {
		if gk >= len(families) || families[gk] == nil {
			return nil, fmt.Errorf("rank %d: no stencil family for owned cell %d", rank, gk)
		}
		for _, nk := range families[gk].L2G() {
			if (nk < start || nk >= end) && !seen[nk] {
				seen[nk] = true
				ghosts = append(ghosts, nk)
			}
		}
	}
	sort.Slice(ghosts, func(i, j int) bool {
		oi, oj := info.Owner(ghosts[i]), info.Owner(ghosts[j])
		if oi != oj {
			return oi < oj
		}
		return ghosts[i] < ghosts[j]
	})
	ld = &LocalDomain{
		Rank:     rank,
		Info:     info,
		L2G:      make([]int, 0, end-start+len(ghosts)),
		G2L:      make(map[int]int, end-start+len(ghosts)),
		Families: make([]*stencil.StencilFamily, end-start),
	}
	for gk := start; gk < end; gk++ {
		ld.L2G = append(ld.L2G, gk)
	}
	ld.L2G = append(ld.L2G, ghosts...)
	for lk, gk := range ld.L2G {
		ld.G2L[gk] = lk
	}
	ld.Halo = buildHalo(info, end-start, ghosts)
	if err = ld.Halo.Validate(); err != nil {
		return nil, fmt.Errorf("rank %d: %w", rank, err)
	}
	if ld.Grid, err = g.Subset(ld.L2G); err != nil {
		return nil, err
	}
	for gk := start; gk < end; gk++ {
		if ld.Families[gk-start], err = families[gk].Localize(ld.G2L); err != nil {
			return nil, fmt.Errorf("rank %d, cell %d: %w", rank, gk, err)
		}
	}
	return
}

// buildHalo groups the sorted ghosts into one block per owning rank.
func buildHalo(info DistributedArrayInfo, nOwned int, ghosts []int) (h Halo) {
	h = Halo{NOwned: nOwned, NTotal: nOwned + len(ghosts)}
	for i, gk := range ghosts {
		owner := info.Owner(gk)
		if n := len(h.Local); n == 0 || h.Local[n-1].Rank != owner {
			h.Local = append(h.Local, LocalInfo{Rank: owner, Start: nOwned + i, End: nOwned + i})
			h.Remote = append(h.Remote, RemoteInfo{Rank: owner})
		}
		n := len(h.Local)
		h.Local[n-1].End++
		h.Remote[n-1].Global = append(h.Remote[n-1].Global, gk)
	}
	return
}

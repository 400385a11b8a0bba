//go:build metis

package distributed

import (
	"fmt"

	metis "github.com/notargets/go-metis"

	"github.com/notargets/cweno/grid"
)

// MetisPartitioner splits the face graph of the grid with METIS k-way
// partitioning.
type MetisPartitioner struct {
	ImbalanceFactor float32 // e.g. 1.05 for 5% imbalance
	Objective       string  // "cut" or "vol"
}

func init() {
	partitioners["metis"] = func() Partitioner { return DefaultMetisPartitioner() }
}

func DefaultMetisPartitioner() MetisPartitioner {
	return MetisPartitioner{ImbalanceFactor: 1.05, Objective: "vol"}
}

func (mp MetisPartitioner) Partition(g *grid.Grid, nRanks int) (partition []int, err error) {
	if nRanks < 1 || nRanks > g.NumCells() {
		return nil, fmt.Errorf("cannot split %d cells over %d ranks", g.NumCells(), nRanks)
	}
	partition = make([]int, g.NumCells())
	if nRanks == 1 {
		return
	}
	var (
		raw    = g.Adjacency.RawMatrix()
		xadj   = make([]int32, len(raw.Indptr))
		adjncy = make([]int32, len(raw.Ind))
	)
	for i, v := range raw.Indptr {
		xadj[i] = int32(v)
	}
	for i, v := range raw.Ind {
		adjncy[i] = int32(v)
	}
	opts := make([]int32, metis.NoOptions)
	if err = metis.SetDefaultOptions(opts); err != nil {
		return nil, fmt.Errorf("failed to set METIS options: %w", err)
	}
	if mp.Objective == "cut" {
		opts[metis.OptionObjType] = metis.ObjTypeCut
	} else {
		opts[metis.OptionObjType] = metis.ObjTypeVol
	}
	imbalance := mp.ImbalanceFactor
	if imbalance == 0 {
		imbalance = 1.05
	}
	part, _, err := metis.PartGraphKwayWeighted(xadj, adjncy, nil, nil,
		int32(nRanks), nil, []float32{imbalance}, opts)
	if err != nil {
		return nil, fmt.Errorf("METIS partitioning failed: %w", err)
	}
	for k := range partition {
		partition[k] = int(part[k])
	}
	return
}

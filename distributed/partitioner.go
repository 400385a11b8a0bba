package distributed

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/notargets/cweno/grid"
	"github.com/notargets/cweno/utils"
)

// Partitioner assigns every cell of a grid to a rank.
type Partitioner interface {
	Partition(g *grid.Grid, nRanks int) (partition []int, err error)
}

// BlockPartitioner hands out contiguous blocks of the current numbering.
type BlockPartitioner struct{}

func (BlockPartitioner) Partition(g *grid.Grid, nRanks int) (partition []int, err error) {
	if nRanks < 1 || nRanks > g.NumCells() {
		return nil, fmt.Errorf("cannot split %d cells over %d ranks", g.NumCells(), nRanks)
	}
	pm := utils.NewPartitionMap(nRanks, g.NumCells())
	partition = make([]int, g.NumCells())
	for k := range partition {
		partition[k], _, _ = pm.GetBucket(k)
	}
	return
}

var partitioners = map[string]func() Partitioner{
	"block": func() Partitioner { return BlockPartitioner{} },
}

// PartitionerNames lists the partitioners available in this build.
func PartitionerNames() (names []string) {
	for name := range partitioners {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

// NewPartitioner looks up a partitioner by name.
func NewPartitioner(name string) (Partitioner, error) {
	newFn, ok := partitioners[name]
	if !ok {
		return nil, fmt.Errorf("unknown partitioner %q, have %v", name, PartitionerNames())
	}
	return newFn(), nil
}

// PartitionStats summarizes the quality of a partition.
type PartitionStats struct {
	NumRanks  int
	Cells     []int   // cells per rank
	CutFaces  int     // interior faces between ranks
	Imbalance float64 // max load over mean load, minus one
	Neighbors [][]int // ranks sharing a face with each rank, ascending
	Interface map[[2]int]int
}

// AnalyzePartition computes and logs partition statistics.
func AnalyzePartition(g *grid.Grid, partition []int, nRanks int, logger *zap.Logger) (ps PartitionStats) {
	ps = PartitionStats{
		NumRanks:  nRanks,
		Cells:     make([]int, nRanks),
		Neighbors: make([][]int, nRanks),
		Interface: make(map[[2]int]int),
	}
	nbrSets := make([]map[int]bool, nRanks)
	for r := range nbrSets {
		nbrSets[r] = make(map[int]bool)
	}
	for k := 0; k < g.NumCells(); k++ {
		pk := partition[k]
		ps.Cells[pk]++
		for _, nbr := range g.Neighbors(k) {
			pn := partition[nbr]
			// Count each face once
			if nbr < k || pn == pk {
				continue
			}
			ps.CutFaces++
			nbrSets[pk][pn], nbrSets[pn][pk] = true, true
			ps.Interface[[2]int{min(pk, pn), max(pk, pn)}]++
		}
	}
	var (
		maxLoad int
		minLoad = math.MaxInt
	)
	for r := 0; r < nRanks; r++ {
		maxLoad = max(maxLoad, ps.Cells[r])
		minLoad = min(minLoad, ps.Cells[r])
		for n := range nbrSets[r] {
			ps.Neighbors[r] = append(ps.Neighbors[r], n)
		}
		sort.Ints(ps.Neighbors[r])
	}
	avgLoad := float64(g.NumCells()) / float64(nRanks)
	ps.Imbalance = float64(maxLoad)/avgLoad - 1

	logger.Info("partition analysis",
		zap.Int("ranks", nRanks),
		zap.Int("cut_faces", ps.CutFaces),
		zap.Float64("imbalance", ps.Imbalance),
		zap.Int("min_cells", minLoad),
		zap.Int("max_cells", maxLoad))
	for r := 0; r < nRanks; r++ {
		logger.Debug("partition",
			zap.Int("rank", r),
			zap.Int("cells", ps.Cells[r]),
			zap.Ints("neighbors", ps.Neighbors[r]))
	}
	return
}

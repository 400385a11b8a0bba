package distributed

import (
	"fmt"
	"sort"

	"github.com/notargets/cweno/utils"
)

// DistributedArrayInfo records which contiguous range of global cells each
// rank owns: rank r owns [Partition[r], Partition[r+1]).
type DistributedArrayInfo struct {
	Partition []int
}

func NewDistributedArrayInfo(partition []int) (info DistributedArrayInfo, err error) {
	if len(partition) < 2 || partition[0] != 0 {
		return info, fmt.Errorf("partition array %v must start at 0 and name at least one rank", partition)
	}
	for r := 1; r < len(partition); r++ {
		if partition[r] < partition[r-1] {
			return info, fmt.Errorf("partition array %v is not monotonic at rank %d", partition, r-1)
		}
	}
	info.Partition = append([]int(nil), partition...)
	return
}

// BlockArrayInfo splits nGlobal cells over nRanks with an imbalance of at
// most one cell.
func BlockArrayInfo(nGlobal, nRanks int) DistributedArrayInfo {
	return DistributedArrayInfo{Partition: utils.NewPartitionMap(nRanks, nGlobal).Offsets()}
}

func (info DistributedArrayInfo) NRanks() int { return len(info.Partition) - 1 }

func (info DistributedArrayInfo) NGlobal() int { return info.Partition[len(info.Partition)-1] }

func (info DistributedArrayInfo) Range(rank int) (start, end int) {
	return info.Partition[rank], info.Partition[rank+1]
}

func (info DistributedArrayInfo) NOwned(rank int) int {
	return info.Partition[rank+1] - info.Partition[rank]
}

// Owner returns the rank owning global cell k, or -1 when k is out of range.
func (info DistributedArrayInfo) Owner(k int) int {
	if k < 0 || k >= info.NGlobal() {
		return -1
	}
	// First boundary above k, skipping ranks that own nothing
	return sort.SearchInts(info.Partition, k+1) - 1
}

package distributed

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// RemoteInfo lists the global cells a rank needs from Rank, in the order
// they are stored locally.
type RemoteInfo struct {
	Rank   int
	Global []int
}

// LocalInfo is the block of local rows [Start, End) filled from Rank.
type LocalInfo struct {
	Rank, Start, End int
}

// Halo describes the ghost rows of one rank. Owned rows come first; the
// ghosts follow in one block per owning rank, ranks ascending.
type Halo struct {
	NOwned, NTotal int
	Remote         []RemoteInfo
	Local          []LocalInfo
}

func (h Halo) NGhosts() int { return h.NTotal - h.NOwned }

func (h Halo) Validate() (err error) {
	var result *multierror.Error
	if h.NOwned < 0 || h.NTotal < h.NOwned {
		result = multierror.Append(result, fmt.Errorf("halo sizes: %d owned, %d total", h.NOwned, h.NTotal))
	}
	if len(h.Remote) != len(h.Local) {
		result = multierror.Append(result, fmt.Errorf("halo has %d remote and %d local blocks",
			len(h.Remote), len(h.Local)))
		return result.ErrorOrNil()
	}
	next := h.NOwned
	for i, li := range h.Local {
		ri := h.Remote[i]
		if ri.Rank != li.Rank {
			result = multierror.Append(result, fmt.Errorf("halo block %d: remote rank %d, local rank %d",
				i, ri.Rank, li.Rank))
		}
		if i > 0 && li.Rank <= h.Local[i-1].Rank {
			result = multierror.Append(result, fmt.Errorf("halo block %d: rank %d not ascending", i, li.Rank))
		}
		if li.Start != next || li.End <= li.Start {
			result = multierror.Append(result, fmt.Errorf("halo block %d: rows [%d, %d) do not continue at %d",
				i, li.Start, li.End, next))
		}
		if len(ri.Global) != li.End-li.Start {
			result = multierror.Append(result, fmt.Errorf("halo block %d: %d cells for %d rows",
				i, len(ri.Global), li.End-li.Start))
		}
		for j := 1; j < len(ri.Global); j++ {
			if ri.Global[j] <= ri.Global[j-1] {
				result = multierror.Append(result, fmt.Errorf("halo block %d: cells not ascending at %d", i, j))
				break
			}
		}
		next = li.End
	}
	if next != h.NTotal {
		result = multierror.Append(result, fmt.Errorf("halo blocks end at %d, want %d", next, h.NTotal))
	}
	return result.ErrorOrNil()
}

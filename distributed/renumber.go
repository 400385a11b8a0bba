package distributed

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/notargets/cweno/grid"
)

// Permutation maps cells between two numberings of the same grid.
type Permutation struct {
	NewToOld []int
	OldToNew []int
}

func NewPermutation(newToOld []int) (p Permutation, err error) {
	p = Permutation{
		NewToOld: newToOld,
		OldToNew: make([]int, len(newToOld)),
	}
	for i := range p.OldToNew {
		p.OldToNew[i] = -1
	}
	for nk, ok := range newToOld {
		if ok < 0 || ok >= len(newToOld) || p.OldToNew[ok] >= 0 {
			return Permutation{}, fmt.Errorf("not a permutation: entry %d is %d", nk, ok)
		}
		p.OldToNew[ok] = nk
	}
	return
}

// ToNew reorders the rows of a field given in the old numbering.
func (p Permutation) ToNew(u *mat.Dense) *mat.Dense {
	return permuteRows(u, p.NewToOld)
}

// ToOld reorders the rows of a field given in the new numbering.
func (p Permutation) ToOld(u *mat.Dense) *mat.Dense {
	return permuteRows(u, p.OldToNew)
}

// permuteRows returns v with v[i] = u[from[i]].
func permuteRows(u *mat.Dense, from []int) (v *mat.Dense) {
	_, nc := u.Dims()
	v = mat.NewDense(len(from), nc, nil)
	for i, k := range from {
		v.SetRow(i, u.RawRowView(k))
	}
	return
}

// Renumber orders the cells by (rank, original index) so that every rank
// owns one contiguous range of the new numbering.
func Renumber(g *grid.Grid, partition []int, nRanks int) (rg *grid.Grid, perm Permutation,
	info DistributedArrayInfo, err error) {
	if len(partition) != g.NumCells() {
		err = fmt.Errorf("partition has %d entries for %d cells", len(partition), g.NumCells())
		return
	}
	counts := make([]int, nRanks+1)
	for k, r := range partition {
		if r < 0 || r >= nRanks {
			err = fmt.Errorf("cell %d assigned to rank %d of %d", k, r, nRanks)
			return
		}
		counts[r+1]++
	}
	for r := 0; r < nRanks; r++ {
		counts[r+1] += counts[r]
	}
	if info, err = NewDistributedArrayInfo(counts); err != nil {
		return
	}
	var (
		newToOld = make([]int, g.NumCells())
		next     = append([]int(nil), counts[:nRanks]...)
	)
	for k, r := range partition {
		newToOld[next[r]] = k
		next[r]++
	}
	if perm, err = NewPermutation(newToOld); err != nil {
		return
	}
	rg, err = g.Subset(newToOld)
	return
}

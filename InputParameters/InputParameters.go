package InputParameters

import (
	"fmt"

	"github.com/ghodss/yaml"
	"github.com/hashicorp/go-multierror"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/cweno/grid"
	"github.com/notargets/cweno/stencil"
	"github.com/notargets/cweno/weno"
)

// GridParameters describes a structured simplex grid over a box.
type GridParameters struct {
	Dims int       `json:"Dims"`
	NX   int       `json:"NX"`
	NY   int       `json:"NY"`
	NZ   int       `json:"NZ"`
	Min  []float64 `json:"Min"`
	Max  []float64 `json:"Max"`
}

// Parameters obtained from the YAML input file
type ReconstructionParameters struct {
	Title            string                      `json:"Title"`
	Grid             GridParameters              `json:"Grid"`
	Stencils         stencil.StencilFamilyParams `json:"Stencils"`
	Hybrid           weno.HybridWENOParams       `json:"Hybrid"`
	Ranks            int                         `json:"Ranks"`
	Partitioner      string                      `json:"Partitioner"`
	Field            string                      `json:"Field"`
	QuadratureDegree int                         `json:"QuadratureDegree"` // for the cell averages of Field
}

// Default blends a third and a second order central stencil on a 2D unit
// square split over four ranks. One-sided stencils are never reduced unless
// the input asks for it.
func Default() (rp *ReconstructionParameters) {
	return &ReconstructionParameters{
		Title: "CWENO-AO reconstruction",
		Grid: GridParameters{
			Dims: 2, NX: 16, NY: 16,
			Min: []float64{0, 0}, Max: []float64{1, 1},
		},
		Stencils: stencil.StencilFamilyParams{
			Orders:         []int{3, 2},
			Biases:         []string{"c", "c"},
			OverfitFactors: []float64{1.5, 1.5},
		},
		Hybrid:           weno.CentralWeighted(2, 0, 0.85),
		Ranks:            4,
		Partitioner:      "block",
		Field:            "smooth",
		QuadratureDegree: 8,
	}
}

func (rp *ReconstructionParameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, rp)
}

// Validate reports every problem with the parameters at once.
func (rp *ReconstructionParameters) Validate() (err error) {
	var result *multierror.Error
	if err = rp.Grid.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err = rp.Stencils.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err = rp.Hybrid.Validate(rp.Stencils.Len()); err != nil {
		result = multierror.Append(result, err)
	}
	if rp.Ranks < 1 {
		result = multierror.Append(result, fmt.Errorf("ranks must be positive, have %d", rp.Ranks))
	}
	if rp.QuadratureDegree < 0 {
		result = multierror.Append(result, fmt.Errorf("negative quadrature degree %d", rp.QuadratureDegree))
	}
	return result.ErrorOrNil()
}

func (gp GridParameters) Validate() (err error) {
	var result *multierror.Error
	if gp.Dims != 2 && gp.Dims != 3 {
		result = multierror.Append(result, fmt.Errorf("grid dimension %d, want 2 or 3", gp.Dims))
	}
	counts := []int{gp.NX, gp.NY, gp.NZ}
	for d := 0; d < gp.Dims && d < 3; d++ {
		if counts[d] < 1 {
			result = multierror.Append(result, fmt.Errorf("grid needs at least one division in direction %d", d))
		}
	}
	if len(gp.Min) != gp.Dims || len(gp.Max) != gp.Dims {
		result = multierror.Append(result, fmt.Errorf("grid bounds have %d and %d entries for %d dimensions",
			len(gp.Min), len(gp.Max), gp.Dims))
	} else {
		for d := range gp.Min {
			if !(gp.Min[d] < gp.Max[d]) {
				result = multierror.Append(result, fmt.Errorf("grid bounds empty in direction %d: [%g, %g]",
					d, gp.Min[d], gp.Max[d]))
			}
		}
	}
	return result.ErrorOrNil()
}

// NewGrid generates the grid. The quadrature table must reach the degree
// the reconstruction and the field averages need.
func (gp GridParameters) NewGrid(qt *grid.QuadratureTable) (g *grid.Grid, err error) {
	if err = gp.Validate(); err != nil {
		return
	}
	if gp.Dims == 2 {
		return grid.NewRectangleGrid(gp.NX, gp.NY, gp.Min[0], gp.Max[0], gp.Min[1], gp.Max[1], qt)
	}
	return grid.NewBoxGrid(gp.NX, gp.NY, gp.NZ,
		r3.Vec{X: gp.Min[0], Y: gp.Min[1], Z: gp.Min[2]},
		r3.Vec{X: gp.Max[0], Y: gp.Max[1], Z: gp.Max[2]}, qt)
}

func (rp *ReconstructionParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", rp.Title)
	switch rp.Grid.Dims {
	case 3:
		fmt.Printf("[%dx%dx%d]\t\t\t= Grid Divisions\n", rp.Grid.NX, rp.Grid.NY, rp.Grid.NZ)
	default:
		fmt.Printf("[%dx%d]\t\t\t= Grid Divisions\n", rp.Grid.NX, rp.Grid.NY)
	}
	fmt.Printf("%v - %v\t= Grid Bounds\n", rp.Grid.Min, rp.Grid.Max)
	fmt.Printf("%v\t\t= Stencil Orders\n", rp.Stencils.Orders)
	fmt.Printf("%v\t\t= Stencil Biases\n", rp.Stencils.Biases)
	fmt.Printf("%v\t= Overfit Factors\n", rp.Stencils.OverfitFactors)
	fmt.Printf("[%t]\t\t\t= Reduce One Sided Order\n", rp.Stencils.ReduceOneSidedOrder)
	fmt.Printf("%v\t= Linear Weights\n", rp.Hybrid.LinearWeights)
	fmt.Printf("%8.2e\t\t= Epsilon\n", rp.epsilon())
	fmt.Printf("[%d]\t\t\t\t= Exponent\n", rp.exponent())
	fmt.Printf("[%d]\t\t\t\t= Ranks\n", rp.Ranks)
	fmt.Printf("[%s]\t\t\t= Partitioner\n", rp.Partitioner)
	fmt.Printf("[%s]\t\t\t= Field\n", rp.Field)
}

func (rp *ReconstructionParameters) epsilon() float64 {
	if rp.Hybrid.Epsilon == 0 {
		return weno.DefaultEpsilon
	}
	return rp.Hybrid.Epsilon
}

func (rp *ReconstructionParameters) exponent() int {
	if rp.Hybrid.Exponent == 0 {
		return weno.DefaultExponent
	}
	return rp.Hybrid.Exponent
}

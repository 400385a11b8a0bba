package stencil

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/notargets/cweno/polynomial"
)

var ErrInvalidParams = errors.New("invalid stencil parameters")

// Bias selects how a stencil grows from its seed.
type Bias uint8

const (
	Central Bias = iota
	OneSided
)

func ParseBias(s string) (b Bias, err error) {
	switch s {
	case "c":
		b = Central
	case "b":
		b = OneSided
	default:
		err = fmt.Errorf("%w: unknown bias %q, want \"c\" or \"b\"", ErrInvalidParams, s)
	}
	return
}

func (b Bias) String() string {
	switch b {
	case Central:
		return "c"
	case OneSided:
		return "b"
	}
	return fmt.Sprintf("Bias(%d)", uint8(b))
}

// MaxOrder is the highest reconstruction order, one more than the highest
// polynomial degree.
const MaxOrder = polynomial.MaxDegree + 1

// StencilParams configures a single member stencil.
type StencilParams struct {
	Order         int
	Bias          Bias
	OverfitFactor float64
}

// StencilFamilyParams lists one entry per member stencil in parallel arrays.
type StencilFamilyParams struct {
	Orders         []int     `json:"orders"`
	Biases         []string  `json:"biases"`
	OverfitFactors []float64 `json:"overfit_factors"`

	// ReduceOneSidedOrder lets a one-sided stencil that runs out of cells
	// fall back to the highest order its cells support instead of failing.
	ReduceOneSidedOrder bool `json:"reduce_one_sided_order"`
}

func (sfp StencilFamilyParams) Len() int { return len(sfp.Orders) }

// Validate reports every problem with the parameters at once.
func (sfp StencilFamilyParams) Validate() (err error) {
	var result *multierror.Error
	if len(sfp.Orders) == 0 {
		result = multierror.Append(result, fmt.Errorf("%w: no stencils", ErrInvalidParams))
	}
	if len(sfp.Biases) != len(sfp.Orders) || len(sfp.OverfitFactors) != len(sfp.Orders) {
		result = multierror.Append(result, fmt.Errorf(
			"%w: array lengths differ: %d orders, %d biases, %d overfit factors",
			ErrInvalidParams, len(sfp.Orders), len(sfp.Biases), len(sfp.OverfitFactors)))
	}
	for k, order := range sfp.Orders {
		if order < 1 || order > MaxOrder {
			result = multierror.Append(result, fmt.Errorf("%w: stencil %d: order %d outside [1, %d]",
				ErrInvalidParams, k, order, MaxOrder))
		}
	}
	for k, bias := range sfp.Biases {
		if _, err := ParseBias(bias); err != nil {
			result = multierror.Append(result, fmt.Errorf("stencil %d: %w", k, err))
		}
	}
	for k, factor := range sfp.OverfitFactors {
		if !(factor >= 1) {
			result = multierror.Append(result, fmt.Errorf("%w: stencil %d: overfit factor %g below 1",
				ErrInvalidParams, k, factor))
		}
	}
	return result.ErrorOrNil()
}

// extract returns the parameters of member k of validated parameters.
func (sfp StencilFamilyParams) extract(k int) (sp StencilParams) {
	bias, err := ParseBias(sfp.Biases[k])
	if err != nil {
		panic(err)
	}
	return StencilParams{
		Order:         sfp.Orders[k],
		Bias:          bias,
		OverfitFactor: sfp.OverfitFactors[k],
	}
}

// Resolve validates and converts every member once, so bias strings are
// never parsed again after setup.
func (sfp StencilFamilyParams) Resolve() (sps []StencilParams, err error) {
	if err = sfp.Validate(); err != nil {
		return nil, err
	}
	sps = make([]StencilParams, sfp.Len())
	for k := range sps {
		sps[k] = sfp.extract(k)
	}
	return
}

// MaxDeclaredOrder is the highest order any member asks for.
func (sfp StencilFamilyParams) MaxDeclaredOrder() (order int) {
	for _, o := range sfp.Orders {
		order = max(order, o)
	}
	return
}

// NDOF is the number of polynomial coefficients of a given order.
func NDOF(order, nDims int) int {
	return polynomial.NDOF(order-1, nDims)
}

// TargetSize is the number of cells a stencil of this order collects.
func TargetSize(order int, overfit float64, nDims int) int {
	return ceilInt(overfit * float64(NDOF(order, nDims)))
}

func ceilInt(x float64) (n int) {
	n = int(x)
	if float64(n) < x-1.e-12 {
		n++
	}
	return
}

package weno

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"gonum.org/v1/gonum/floats"

	"github.com/notargets/cweno/stencil"
)

const (
	DefaultEpsilon  = 1.e-6
	DefaultExponent = 4
)

// HybridWENOParams configures the blend, one linear weight per member
// stencil. Zero Epsilon and Exponent select the defaults.
type HybridWENOParams struct {
	LinearWeights []float64 `json:"linear_weights"`
	Epsilon       float64   `json:"epsilon,omitempty"`
	Exponent      int       `json:"exponent,omitempty"`
}

func (hp HybridWENOParams) Validate(nStencils int) (err error) {
	var result *multierror.Error
	if len(hp.LinearWeights) != nStencils {
		result = multierror.Append(result, fmt.Errorf("%w: %d linear weights for %d stencils",
			stencil.ErrInvalidParams, len(hp.LinearWeights), nStencils))
	}
	for k, w := range hp.LinearWeights {
		if !(w > 0) {
			result = multierror.Append(result, fmt.Errorf("%w: linear weight %d is %g, must be positive",
				stencil.ErrInvalidParams, k, w))
		}
	}
	if hp.Epsilon < 0 {
		result = multierror.Append(result, fmt.Errorf("%w: negative epsilon %g", stencil.ErrInvalidParams, hp.Epsilon))
	}
	if hp.Exponent < 0 {
		result = multierror.Append(result, fmt.Errorf("%w: negative exponent %d", stencil.ErrInvalidParams, hp.Exponent))
	}
	return result.ErrorOrNil()
}

// normalized returns a copy with defaults filled in and linear weights
// summing to one.
func (hp HybridWENOParams) normalized() (np HybridWENOParams) {
	np = HybridWENOParams{
		LinearWeights: append([]float64(nil), hp.LinearWeights...),
		Epsilon:       hp.Epsilon,
		Exponent:      hp.Exponent,
	}
	if np.Epsilon == 0 {
		np.Epsilon = DefaultEpsilon
	}
	if np.Exponent == 0 {
		np.Exponent = DefaultExponent
	}
	floats.Scale(1/floats.Sum(np.LinearWeights), np.LinearWeights)
	return
}

// CentralWeighted puts weight on the highest-order member and spreads the
// remainder evenly over the others, the usual CWENO-AO choice.
func CentralWeighted(nStencils, highest int, gammaHigh float64) (hp HybridWENOParams) {
	hp.LinearWeights = make([]float64, nStencils)
	if nStencils == 1 {
		hp.LinearWeights[0] = 1
		return
	}
	for k := range hp.LinearWeights {
		hp.LinearWeights[k] = (1 - gammaHigh) / float64(nStencils-1)
	}
	hp.LinearWeights[highest] = gammaHigh
	return
}

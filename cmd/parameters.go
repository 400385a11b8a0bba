package cmd

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/cweno/InputParameters"
)

// Test fields for the reconstruct command
var fields = map[string]func(x r3.Vec) float64{
	"constant": func(r3.Vec) float64 { return 1 },
	"linear":   func(x r3.Vec) float64 { return 1 + 2*x.X - x.Y + 0.5*x.Z },
	"smooth": func(x r3.Vec) float64 {
		return math.Sin(2*math.Pi*x.X)*math.Cos(math.Pi*x.Y) + x.Z*x.Z
	},
	"jump": func(x r3.Vec) float64 {
		if x.X < 0.5 {
			return 1
		}
		return 0.125
	},
}

func fieldNames() (names []string) {
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

func lookupField(name string) (func(x r3.Vec) float64, error) {
	f, ok := fields[name]
	if !ok {
		return nil, fmt.Errorf("unknown field %q, have %v", name, fieldNames())
	}
	return f, nil
}

func addExperimentFlags(c *cobra.Command) {
	c.Flags().StringP("inputConditionsFile", "I", "", "YAML file for the experiment parameters, see InputParameters.ReconstructionParameters")
	c.Flags().IntP("ranks", "r", 0, "number of ranks, overrides the input file")
	c.Flags().StringP("partitioner", "p", "", "partitioner name, overrides the input file")
	c.Flags().StringP("field", "f", "", "test field: constant, linear, smooth or jump")
	c.Flags().Bool("reduceOneSidedOrder", false, "let one-sided stencils that cannot grow drop to a lower order")
	c.PreRunE = func(cmd *cobra.Command, args []string) error {
		return viper.BindPFlags(cmd.Flags())
	}
}

// loadParameters starts from the defaults, applies the input file and then
// any flag, config file or CWENO_* environment setting.
func loadParameters() (rp *InputParameters.ReconstructionParameters, err error) {
	rp = InputParameters.Default()
	if file := viper.GetString("inputConditionsFile"); file != "" {
		var data []byte
		if data, err = os.ReadFile(file); err != nil {
			return nil, err
		}
		if err = rp.Parse(data); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
	}
	if viper.IsSet("ranks") && viper.GetInt("ranks") > 0 {
		rp.Ranks = viper.GetInt("ranks")
	}
	if viper.IsSet("partitioner") && viper.GetString("partitioner") != "" {
		rp.Partitioner = viper.GetString("partitioner")
	}
	if viper.IsSet("field") && viper.GetString("field") != "" {
		rp.Field = viper.GetString("field")
	}
	if viper.GetBool("reduceOneSidedOrder") {
		rp.Stencils.ReduceOneSidedOrder = true
	}
	if err = rp.Validate(); err != nil {
		return nil, err
	}
	return
}

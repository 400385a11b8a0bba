/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/notargets/cweno/InputParameters"
)

// ConvergeCmd represents the converge command
var ConvergeCmd = &cobra.Command{
	Use:   "converge",
	Short: "Refine the grid repeatedly and report the observed order of accuracy",
	Long: `
Runs the reconstruct experiment on a sequence of grids, doubling the divisions in
every direction at each level, and prints the errors with the observed order
log2(e[i-1]/e[i]).

cweno converge -I experiment.yaml --levels 4 --csvFile study.csv`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var rp *InputParameters.ReconstructionParameters
		if rp, err = loadParameters(); err != nil {
			return
		}
		rp.Print()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		var cs *ConvergenceStudy
		if cs, err = RunConvergenceStudy(ctx, rp, viper.GetInt("levels"), logger); err != nil {
			return
		}
		cs.Print(os.Stdout)
		if file := viper.GetString("csvFile"); file != "" {
			err = cs.SaveCSV(file)
		}
		return
	},
}

func init() {
	rootCmd.AddCommand(ConvergeCmd)
	addExperimentFlags(ConvergeCmd)
	ConvergeCmd.Flags().IntP("levels", "l", 3, "number of grid levels")
	ConvergeCmd.Flags().String("csvFile", "", "file to write the study to")
}

type ConvergenceStudy struct {
	Title     string
	Field     string
	Orders    []int // stencil orders of the family
	NumCells  []int
	L1, LInf  []float64
	L1Order   []float64 // observed orders, NaN on the coarsest level
	LInfOrder []float64
}

func NewConvergenceStudy(rp *InputParameters.ReconstructionParameters) *ConvergenceStudy {
	return &ConvergenceStudy{
		Title:  rp.Title,
		Field:  rp.Field,
		Orders: append([]int(nil), rp.Stencils.Orders...),
	}
}

// Add appends a level. Levels must come coarse to fine, each halving the
// mesh spacing of the previous one.
func (cs *ConvergenceStudy) Add(numCells int, l1, lInf float64) {
	cs.NumCells = append(cs.NumCells, numCells)
	cs.L1 = append(cs.L1, l1)
	cs.LInf = append(cs.LInf, lInf)
	cs.L1Order = append(cs.L1Order, observedOrder(cs.L1))
	cs.LInfOrder = append(cs.LInfOrder, observedOrder(cs.LInf))
}

func observedOrder(errs []float64) float64 {
	n := len(errs)
	if n < 2 {
		return math.NaN()
	}
	return math.Log2(errs[n-2] / errs[n-1])
}

// RunConvergenceStudy runs the experiment on levels grids, the first one
// being the grid of rp.
func RunConvergenceStudy(ctx context.Context, rp *InputParameters.ReconstructionParameters, levels int,
	logger *zap.Logger) (cs *ConvergenceStudy, err error) {
	if levels < 1 {
		return nil, fmt.Errorf("convergence study needs at least one level, have %d", levels)
	}
	var (
		level = *rp
		res   *ReconstructionResult
	)
	cs = NewConvergenceStudy(rp)
	for l := 0; l < levels; l++ {
		if res, err = Reconstruct(ctx, &level, logger); err != nil {
			return nil, fmt.Errorf("level %d: %w", l, err)
		}
		cs.Add(res.NumCells, res.L1, res.LInf)
		logger.Info("convergence level",
			zap.Int("level", l),
			zap.Int("cells", res.NumCells),
			zap.Float64("l1Order", cs.L1Order[l]),
			zap.Float64("linfOrder", cs.LInfOrder[l]))
		level.Grid.NX *= 2
		level.Grid.NY *= 2
		level.Grid.NZ *= 2
	}
	return
}

func (cs *ConvergenceStudy) Print(w io.Writer) {
	fmt.Fprintf(w, "Title = %s, Field = %s, Orders = %v\n", cs.Title, cs.Field, cs.Orders)
	fmt.Fprintf(w, "%10s %14s %8s %14s %8s\n", "Cells", "L1", "Order", "LInf", "Order")
	for i := range cs.NumCells {
		fmt.Fprintf(w, "%10d %14.6e %8.3f %14.6e %8.3f\n",
			cs.NumCells[i], cs.L1[i], cs.L1Order[i], cs.LInf[i], cs.LInfOrder[i])
	}
}

// SaveCSV writes the study to a new file, reporting a failed close.
func (cs *ConvergenceStudy) SaveCSV(file string) (err error) {
	f, err := os.Create(file)
	if err != nil {
		return
	}
	if err = cs.WriteCSV(f); err != nil {
		f.Close()
		return
	}
	return f.Close()
}

func (cs *ConvergenceStudy) WriteCSV(w io.Writer) (err error) {
	cw := csv.NewWriter(w)
	if err = cw.Write([]string{"title", "field", "cells", "l1", "l1_order", "linf", "linf_order"}); err != nil {
		return
	}
	ff := func(x float64) string { return strconv.FormatFloat(x, 'g', -1, 64) }
	for i := range cs.NumCells {
		rec := []string{cs.Title, cs.Field, strconv.Itoa(cs.NumCells[i]),
			ff(cs.L1[i]), ff(cs.L1Order[i]), ff(cs.LInf[i]), ff(cs.LInfOrder[i])}
		if err = cw.Write(rec); err != nil {
			return
		}
	}
	cw.Flush()
	return cw.Error()
}

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
	"fmt"
	"math"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/cweno/InputParameters"
	"github.com/notargets/cweno/distributed"
	"github.com/notargets/cweno/grid"
	"github.com/notargets/cweno/polynomial"
	"github.com/notargets/cweno/stencil"
	"github.com/notargets/cweno/utils"
	"github.com/notargets/cweno/weno"
)

// ReconstructCmd represents the reconstruct command
var ReconstructCmd = &cobra.Command{
	Use:   "reconstruct",
	Short: "Reconstruct a test field on a decomposed grid and report the point errors",
	Long: `
Generates the grid, partitions and renumbers it, scatters the cell averages of a
test field from rank 0, exchanges halos, reconstructs on every rank and gathers
the centroid values back to rank 0 to compare against the exact field.

cweno reconstruct -I experiment.yaml --ranks 4 --field smooth`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var rp *InputParameters.ReconstructionParameters
		if rp, err = loadParameters(); err != nil {
			return
		}
		if viper.GetBool("profile") {
			defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
		}
		rp.Print()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		var res *ReconstructionResult
		if res, err = Reconstruct(ctx, rp, logger); err != nil {
			return
		}
		res.Print()
		return
	},
}

func init() {
	rootCmd.AddCommand(ReconstructCmd)
	addExperimentFlags(ReconstructCmd)
	ReconstructCmd.Flags().Bool("profile", false, "write a CPU profile to the current directory")
}

// ReconstructionResult holds the centroid values in the input numbering.
type ReconstructionResult struct {
	NumCells  int
	Stats     distributed.PartitionStats
	Values    []float64 // reconstructed value at each cell centroid
	Exact     []float64
	L1, LInf  float64 // L1 is volume weighted
	Elapsed   time.Duration
	MemReport string
}

func (res *ReconstructionResult) Print() {
	fmt.Printf("[%d]\t\t\t\t= Cells\n", res.NumCells)
	fmt.Printf("[%d]\t\t\t\t= Cut Faces\n", res.Stats.CutFaces)
	fmt.Printf("%8.5f\t\t= Load Imbalance\n", res.Stats.Imbalance)
	fmt.Printf("%12.5e\t\t= L1 Error\n", res.L1)
	fmt.Printf("%12.5e\t\t= LInf Error\n", res.LInf)
	fmt.Printf("%v\t\t= Elapsed\n", res.Elapsed)
	fmt.Println(res.MemReport)
}

// Reconstruct runs one experiment end to end.
func Reconstruct(ctx context.Context, rp *InputParameters.ReconstructionParameters,
	logger *zap.Logger) (res *ReconstructionResult, err error) {
	start := time.Now()
	f, err := lookupField(rp.Field)
	if err != nil {
		return
	}
	qt := grid.NewQuadratureTable(max(rp.QuadratureDegree, 2*polynomial.MaxDegree))
	g, err := rp.Grid.NewGrid(qt)
	if err != nil {
		return
	}
	part, err := distributed.NewPartitioner(rp.Partitioner)
	if err != nil {
		return
	}
	partition, err := part.Partition(g, rp.Ranks)
	if err != nil {
		return
	}
	res = &ReconstructionResult{
		NumCells: g.NumCells(),
		Stats:    distributed.AnalyzePartition(g, partition, rp.Ranks, logger),
	}
	rg, perm, info, err := distributed.Renumber(g, partition, rp.Ranks)
	if err != nil {
		return nil, err
	}
	families, err := stencil.BuildFamilies(ctx, rg, nil, rp.Stencils, stencil.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	qbar, err := g.CellAverages(rp.QuadratureDegree, f)
	if err != nil {
		return nil, err
	}
	var (
		global *mat.Dense
		input  = perm.ToNew(qbar)
	)
	err = distributed.RunWorld(ctx, rp.Ranks, func(ctx context.Context, c *distributed.Comm) error {
		values, err := reconstructRank(ctx, c, rg, info, families, rp.Hybrid, input, logger)
		if err == nil && values != nil {
			global = values
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	values := perm.ToOld(global)
	res.Values = make([]float64, g.NumCells())
	res.Exact = make([]float64, g.NumCells())
	diff := make([]float64, g.NumCells())
	for k := range res.Values {
		res.Values[k] = values.At(k, 0)
		res.Exact[k] = f(g.Centers[k])
		diff[k] = math.Abs(res.Values[k] - res.Exact[k])
	}
	res.L1 = floats.Dot(diff, g.Volumes) / floats.Sum(g.Volumes)
	res.LInf = floats.Max(diff)
	res.Elapsed = time.Since(start)
	res.MemReport = utils.GetMemUsage()
	logger.Info("reconstruction complete",
		zap.Int("cells", res.NumCells),
		zap.Float64("l1", res.L1),
		zap.Float64("linf", res.LInf),
		zap.Duration("elapsed", res.Elapsed))
	return
}

// reconstructRank is the work of one rank. Rank 0 returns the gathered
// centroid values in the renumbered ordering; other ranks return nil.
func reconstructRank(ctx context.Context, c *distributed.Comm, g *grid.Grid, info distributed.DistributedArrayInfo,
	families []*stencil.StencilFamily, hp weno.HybridWENOParams, input *mat.Dense,
	logger *zap.Logger) (values *mat.Dense, err error) {
	const root = 0
	ld, err := distributed.Decompose(g, info, families, c.Rank())
	if err != nil {
		return
	}
	var (
		nOwned = ld.NOwned()
		_, nv  = input.Dims()
		sc     distributed.AllVariablesScatterer
		ga     distributed.AllVariablesGatherer
		he     distributed.HaloExchange
		rlog   = logger.With(zap.Int("rank", c.Rank()))
	)
	if c.Size() == 1 {
		sc = distributed.NoScatterer{NOwned: nOwned}
		ga = distributed.NoGatherer{NOwned: nOwned}
		he = &distributed.NoHaloExchange{}
	} else {
		sc = distributed.NewCommScatterer(c, info, root, 0, nv)
		ga = distributed.NewCommGatherer(c, info, root, 0)
		if he, err = distributed.NewCommHaloExchange(c, info, ld.Halo, 0); err != nil {
			return
		}
	}
	var full *mat.Dense
	if c.Rank() == root {
		full = input
	}
	owned, err := sc.Scatter(full)
	if err != nil {
		return
	}
	u := mat.NewDense(ld.NTotal(), nv, nil)
	if nOwned > 0 {
		u.Slice(0, nOwned, 0, nv).(*mat.Dense).Copy(owned)
	}
	if err = he.Post(u); err != nil {
		return
	}
	if err = he.Wait(); err != nil {
		return
	}
	rc, err := weno.NewReconstruction(ctx, ld.Grid, ld.Families, hp, weno.WithLogger(rlog))
	if err != nil {
		return
	}
	polys, err := rc.Compute(ctx, u)
	if err != nil {
		return
	}
	local := mat.NewDense(max(nOwned, 1), nv, nil)
	row := make([]float64, nv)
	for i, p := range polys {
		p.Eval(ld.Grid.Centers[i], row)
		local.SetRow(i, row)
	}
	rlog.Debug("rank reconstructed", zap.Int("owned", nOwned), zap.Int("ghosts", ld.Halo.NGhosts()))
	return ga.Gather(local)
}

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
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/notargets/cweno/InputParameters"
	"github.com/notargets/cweno/distributed"
	"github.com/notargets/cweno/grid"
	"github.com/notargets/cweno/polynomial"
	"github.com/notargets/cweno/stencil"
)

// DecomposeCmd represents the decompose command
var DecomposeCmd = &cobra.Command{
	Use:   "decompose",
	Short: "Print partition statistics and the halo layout of every rank",
	Long: `
Partitions and renumbers the grid, builds the stencil families and decomposes
the grid for every rank without running a reconstruction.

cweno decompose --ranks 8 --partitioner metis`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var rp *InputParameters.ReconstructionParameters
		if rp, err = loadParameters(); err != nil {
			return
		}
		rp.Print()
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		var dc *Decomposition
		if dc, err = Decompose(ctx, rp, logger); err != nil {
			return
		}
		dc.Print()
		return
	},
}

func init() {
	rootCmd.AddCommand(DecomposeCmd)
	addExperimentFlags(DecomposeCmd)
}

type Decomposition struct {
	Stats   distributed.PartitionStats
	Info    distributed.DistributedArrayInfo
	Domains []*distributed.LocalDomain
}

// Decompose builds the local domain of every rank serially.
func Decompose(ctx context.Context, rp *InputParameters.ReconstructionParameters,
	logger *zap.Logger) (dc *Decomposition, err error) {
	g, err := rp.Grid.NewGrid(grid.NewQuadratureTable(2 * polynomial.MaxDegree))
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
	dc = &Decomposition{Stats: distributed.AnalyzePartition(g, partition, rp.Ranks, logger)}
	rg, _, info, err := distributed.Renumber(g, partition, rp.Ranks)
	if err != nil {
		return nil, err
	}
	dc.Info = info
	families, err := stencil.BuildFamilies(ctx, rg, nil, rp.Stencils, stencil.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	dc.Domains = make([]*distributed.LocalDomain, rp.Ranks)
	for rank := range dc.Domains {
		if dc.Domains[rank], err = distributed.Decompose(rg, info, families, rank); err != nil {
			return nil, err
		}
	}
	return
}

func (dc *Decomposition) Print() {
	fmt.Printf("[%d]\t\t\t\t= Ranks\n", dc.Stats.NumRanks)
	fmt.Printf("[%d]\t\t\t\t= Cut Faces\n", dc.Stats.CutFaces)
	fmt.Printf("%8.5f\t\t= Load Imbalance\n", dc.Stats.Imbalance)
	for _, ld := range dc.Domains {
		start, end := dc.Info.Range(ld.Rank)
		fmt.Printf("Rank %d: owns [%d, %d), %d ghosts, neighbors %v\n",
			ld.Rank, start, end, ld.Halo.NGhosts(), dc.Stats.Neighbors[ld.Rank])
		for i, ri := range ld.Halo.Remote {
			li := ld.Halo.Local[i]
			fmt.Printf("\tfrom rank %d: %d cells -> local rows [%d, %d)\n",
				ri.Rank, len(ri.Global), li.Start, li.End)
		}
	}
}

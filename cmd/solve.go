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
	"fmt"
	"io/ioutil"
	"log"
	"time"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/eirikurj/tacs/InputParameters"
	"github.com/eirikurj/tacs/bpmat"
	"github.com/eirikurj/tacs/comm"
	"github.com/eirikurj/tacs/ksm"
	"github.com/eirikurj/tacs/model"
	"github.com/eirikurj/tacs/ordering"
	"github.com/eirikurj/tacs/partition"
)

// solveCmd represents the solve command
var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Assemble and solve a model problem in parallel",
	Long: `
Assembles one of the built-in finite element model problems across a set
of processes, applies its boundary conditions and solves the linear
system, either by the direct Schur complement factorization or by
additive Schwarz preconditioned GMRES.

tacs solve --problem grid --nx 16 --ny 8 -n 4 --method gmres`,
	Run: func(cmd *cobra.Command, args []string) {
		ip := InputParameters.DefaultParameters()
		if inputFile, _ := cmd.Flags().GetString("input"); inputFile != "" {
			data, err := ioutil.ReadFile(inputFile)
			if err != nil {
				log.Fatalf("solve: %v", err)
			}
			if err := ip.Parse(data); err != nil {
				log.Fatalf("solve: parameter file: %v", err)
			}
		}
		overrideFromFlags(cmd, ip)
		if prof, _ := cmd.Flags().GetBool("profile"); prof {
			defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
		}
		useMetis, _ := cmd.Flags().GetBool("metis")
		if err := RunSolve(ip, useMetis); err != nil {
			log.Fatalf("solve: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(solveCmd)
	solveCmd.Flags().StringP("input", "i", "", "YAML parameter file")
	solveCmd.Flags().StringP("problem", "p", "rod", "model problem: rod or grid")
	solveCmd.Flags().IntP("nodes", "k", 32, "rod node count")
	solveCmd.Flags().Int("nx", 8, "grid nodes in x")
	solveCmd.Flags().Int("ny", 8, "grid nodes in y")
	solveCmd.Flags().IntP("nprocs", "n", 2, "number of processes")
	solveCmd.Flags().StringP("method", "m", "direct", "solution method: direct or gmres")
	solveCmd.Flags().String("ordering", "rcm", "interior ordering: natural or rcm")
	solveCmd.Flags().String("mode", "redundant", "interface factorization: redundant or root")
	solveCmd.Flags().Int("fill", -1, "preconditioner fill level, negative for complete fill")
	solveCmd.Flags().Float64("rtol", 1.e-10, "relative convergence tolerance")
	solveCmd.Flags().Int("restart", 30, "GMRES restart length")
	solveCmd.Flags().Int("maxiters", 500, "iteration cap")
	solveCmd.Flags().Bool("metis", false, "partition the node graph with METIS")
	solveCmd.Flags().Bool("profile", false, "write a CPU profile to the working directory")
}

// overrideFromFlags lets explicit flags win over the parameter file.
func overrideFromFlags(cmd *cobra.Command, ip *InputParameters.Parameters) {
	flags := cmd.Flags()
	if flags.Changed("problem") {
		ip.Problem, _ = flags.GetString("problem")
	}
	if flags.Changed("nodes") {
		ip.Nodes, _ = flags.GetInt("nodes")
	}
	if flags.Changed("nx") {
		ip.NX, _ = flags.GetInt("nx")
	}
	if flags.Changed("ny") {
		ip.NY, _ = flags.GetInt("ny")
	}
	if flags.Changed("nprocs") {
		ip.Procs, _ = flags.GetInt("nprocs")
	}
	if flags.Changed("method") {
		ip.Method, _ = flags.GetString("method")
	}
	if flags.Changed("ordering") {
		ip.Ordering, _ = flags.GetString("ordering")
	}
	if flags.Changed("mode") {
		ip.SchurMode, _ = flags.GetString("mode")
	}
	if flags.Changed("fill") {
		ip.FillLevel, _ = flags.GetInt("fill")
	}
	if flags.Changed("rtol") {
		ip.RelTol, _ = flags.GetFloat64("rtol")
	}
	if flags.Changed("restart") {
		ip.Restart, _ = flags.GetInt("restart")
	}
	if flags.Changed("maxiters") {
		ip.MaxIterations, _ = flags.GetInt("maxiters")
	}
}

func buildProblem(ip *InputParameters.Parameters) (*model.Problem, error) {
	switch ip.Problem {
	case "rod":
		return model.NewRod(ip.Nodes)
	case "grid":
		return model.NewGrid(ip.NX, ip.NY)
	default:
		return nil, fmt.Errorf("cmd: unknown problem %q", ip.Problem)
	}
}

func orderingFunc(name string) (ordering.Func, error) {
	switch name {
	case "natural":
		return ordering.Natural, nil
	case "rcm":
		return ordering.RCM, nil
	default:
		return nil, fmt.Errorf("cmd: unknown ordering %q", name)
	}
}

func schurMode(name string) (bpmat.SchurMode, error) {
	switch name {
	case "redundant":
		return bpmat.Redundant, nil
	case "root":
		return bpmat.RootOnly, nil
	default:
		return bpmat.Redundant, fmt.Errorf("cmd: unknown interface mode %q", name)
	}
}

// problemBCs pins the problem's fixed nodes and layers the parameter
// file's entries on top. A file entry names the node; "value" and
// "weight" default to 0 and 1, "comp" to every component.
func problemBCs(p *model.Problem, ip *InputParameters.Parameters) *bpmat.BCMap {
	bcs := p.BCs()
	for node, prm := range ip.BCs {
		value := prm["value"]
		weight, ok := prm["weight"]
		if !ok {
			weight = 1
		}
		if comp, ok := prm["comp"]; ok {
			bcs.Add(node, int(comp), value, weight)
			continue
		}
		for c := 0; c < p.BlockSize; c++ {
			bcs.Add(node, c, value, weight)
		}
	}
	return bcs
}

// RunSolve assembles the configured model problem on every process and
// solves it, reporting residual norms and timings.
func RunSolve(ip *InputParameters.Parameters, useMetis bool) error {
	p, err := buildProblem(ip)
	if err != nil {
		return err
	}
	ip.Print()

	// Partitioning happens once, before the processes launch, the way a
	// mesh is read and split ahead of a run.
	var counts []int
	if useMetis && ip.Procs > 1 {
		g, err := partition.BuildGraph(p.NumNodes, p.Elems)
		if err != nil {
			return err
		}
		part, err := g.Partition(partition.DefaultConfig(ip.Procs))
		if err != nil {
			return err
		}
		perm, cnt, err := partition.Renumber(part, ip.Procs)
		if err != nil {
			return err
		}
		if p, err = p.Renumber(perm); err != nil {
			return err
		}
		counts = cnt
	}

	ord, err := orderingFunc(ip.Ordering)
	if err != nil {
		return err
	}
	mode, err := schurMode(ip.SchurMode)
	if err != nil {
		return err
	}

	start := time.Now()
	err = comm.Run(ip.Procs, func(c *comm.Comm) error {
		vm, err := problemMap(c, p, counts)
		if err != nil {
			return err
		}
		switch ip.Method {
		case "direct":
			return solveDirect(c, vm, p, ord, mode, ip)
		case "gmres":
			return solveGMRES(c, vm, p, ip)
		default:
			return fmt.Errorf("cmd: unknown method %q", ip.Method)
		}
	})
	if err != nil {
		return err
	}
	fmt.Printf("total      %8.3f s\n", time.Since(start).Seconds())
	return nil
}

func problemMap(c *comm.Comm, p *model.Problem, counts []int) (*bpmat.VarMap, error) {
	if counts != nil {
		return bpmat.NewVarMapFromCounts(counts)
	}
	return bpmat.NewVarMap(c.Size(), p.NumNodes)
}

func solveDirect(c *comm.Comm, vm *bpmat.VarMap, p *model.Problem,
	ord ordering.Func, mode bpmat.SchurMode, ip *InputParameters.Parameters) error {
	m, err := p.BuildFEMat(c, vm, ord, mode)
	if err != nil {
		return err
	}
	bcs := problemBCs(p, ip)
	if err := m.ApplyBCs(bcs); err != nil {
		return err
	}

	tf := time.Now()
	if err := m.Factor(); err != nil {
		return err
	}
	factorTime := time.Since(tf)

	f, x := m.CreateVec(), m.CreateVec()
	p.FillLoad(c.Rank(), f)
	bcs.ApplyToRHS(f)

	ts := time.Now()
	if err := m.Solve(f, x); err != nil {
		return err
	}
	solveTime := time.Since(ts)

	rn, fn, err := residual(m, f, x)
	if err != nil {
		return err
	}
	if c.Rank() == 0 {
		fmt.Printf("direct %s, %d nodes on %d procs, %d interface blocks\n",
			p.Name, p.NumNodes, c.Size(), m.NumInterface())
		fmt.Printf("factor     %8.3f s\n", factorTime.Seconds())
		fmt.Printf("solve      %8.3f s\n", solveTime.Seconds())
		fmt.Printf("residual   %8.3e  (rhs %8.3e)\n", rn, fn)
	}
	return nil
}

func solveGMRES(c *comm.Comm, vm *bpmat.VarMap, p *model.Problem, ip *InputParameters.Parameters) error {
	m, err := p.BuildDistMat(c, vm)
	if err != nil {
		return err
	}
	bcs := problemBCs(p, ip)
	if err := m.ApplyBCs(bcs); err != nil {
		return err
	}

	tf := time.Now()
	if err := m.FactorLocal(ip.FillLevel); err != nil {
		return err
	}
	factorTime := time.Since(tf)

	f, x := m.CreateVec(), m.CreateVec()
	p.FillLoad(c.Rank(), f)
	bcs.ApplyToRHS(f)

	g := ksm.NewGMRES(m)
	g.M = m
	g.Restart = ip.Restart
	g.MaxIters = ip.MaxIterations
	g.RelTol = ip.RelTol
	if c.Rank() == 0 {
		g.Monitor = func(iter int, res float64) {
			if iter%10 == 0 {
				fmt.Printf("iter %4d  residual %8.3e\n", iter, res)
			}
		}
	}

	ts := time.Now()
	res, err := g.Solve(f, x)
	if err != nil {
		return err
	}
	solveTime := time.Since(ts)

	rn, fn, err := residual(m, f, x)
	if err != nil {
		return err
	}
	if c.Rank() == 0 {
		fmt.Printf("gmres %s, %d nodes on %d procs: %s after %d iterations\n",
			p.Name, p.NumNodes, c.Size(), res.Outcome, res.Iterations)
		fmt.Printf("factor     %8.3f s\n", factorTime.Seconds())
		fmt.Printf("solve      %8.3f s\n", solveTime.Seconds())
		fmt.Printf("residual   %8.3e  (rhs %8.3e)\n", rn, fn)
	}
	return nil
}

type multiplier interface {
	Mult(x, y *bpmat.Vec) error
	CreateVec() *bpmat.Vec
}

// residual returns the true residual norm of A*x = f and the norm of f.
func residual(m multiplier, f, x *bpmat.Vec) (rn, fn float64, err error) {
	r := m.CreateVec()
	if err = x.ScatterGhosts(); err != nil {
		return 0, 0, err
	}
	if err = m.Mult(x, r); err != nil {
		return 0, 0, err
	}
	if err = r.Axpy(-1, f); err != nil {
		return 0, 0, err
	}
	if rn, err = r.Norm(); err != nil {
		return 0, 0, err
	}
	if fn, err = f.Norm(); err != nil {
		return 0, 0, err
	}
	return rn, fn, nil
}

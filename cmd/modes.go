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
	"log"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/eirikurj/tacs/InputParameters"
	"github.com/eirikurj/tacs/bpmat"
	"github.com/eirikurj/tacs/comm"
	"github.com/eirikurj/tacs/eigen"
	"github.com/eirikurj/tacs/model"
)

// modesCmd represents the modes command
var modesCmd = &cobra.Command{
	Use:   "modes",
	Short: "Compute the lowest vibration modes of a model problem",
	Long: `
Assembles the stiffness and lumped mass of a model problem and runs the
Jacobi-Davidson eigensolver on the generalized pencil, reporting the
lowest eigenvalues and their frequencies.

tacs modes --problem grid --nx 12 --ny 6 -n 2 --nev 6`,
	Run: func(cmd *cobra.Command, args []string) {
		ip := InputParameters.DefaultParameters()
		overrideFromFlags(cmd, ip)
		if cmd.Flags().Changed("nev") {
			ip.NumEigenpairs, _ = cmd.Flags().GetInt("nev")
		}
		tol, _ := cmd.Flags().GetFloat64("tol")
		if err := RunModes(ip, tol); err != nil {
			log.Fatalf("modes: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(modesCmd)
	modesCmd.Flags().StringP("problem", "p", "rod", "model problem: rod or grid")
	modesCmd.Flags().IntP("nodes", "k", 32, "rod node count")
	modesCmd.Flags().Int("nx", 8, "grid nodes in x")
	modesCmd.Flags().Int("ny", 8, "grid nodes in y")
	modesCmd.Flags().IntP("nprocs", "n", 2, "number of processes")
	modesCmd.Flags().Int("nev", 4, "number of eigenpairs")
	modesCmd.Flags().Float64("tol", 1.e-9, "eigenpair residual tolerance")
	modesCmd.Flags().Int("maxiters", 200, "outer iteration cap")
	modesCmd.Flags().Int("fill", -1, "preconditioner fill level, negative for complete fill")
}

// RunModes assembles the stiffness and mass pencil on every process and
// extracts the lowest eigenpairs.
func RunModes(ip *InputParameters.Parameters, tol float64) error {
	p, err := buildProblem(ip)
	if err != nil {
		return err
	}

	start := time.Now()
	err = comm.Run(ip.Procs, func(c *comm.Comm) error {
		vm, err := bpmat.NewVarMap(c.Size(), p.NumNodes)
		if err != nil {
			return err
		}
		res, err := lowestModes(c, vm, p, ip.NumEigenpairs, tol, ip.MaxIterations, ip.FillLevel)
		if err != nil {
			return err
		}
		if c.Rank() == 0 {
			fmt.Printf("modes %s, %d nodes on %d procs: %s, %d of %d pairs in %d iterations\n",
				p.Name, p.NumNodes, c.Size(), res.Outcome, res.Converged, ip.NumEigenpairs, res.Iterations)
			for i, lam := range res.Values {
				freq := math.Sqrt(math.Max(lam, 0)) / (2 * math.Pi)
				fmt.Printf("mode %2d  eigenvalue %12.6e  frequency %12.6e  residual %8.2e\n",
					i, lam, freq, res.Residuals[i])
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Printf("total      %8.3f s\n", time.Since(start).Seconds())
	return nil
}

// lowestModes builds the pinned stiffness and the lumped mass with
// massless pinned DOFs, then runs Jacobi-Davidson preconditioned by the
// local stiffness factorization.
func lowestModes(c *comm.Comm, vm *bpmat.VarMap, p *model.Problem,
	nev int, tol float64, maxIters, fill int) (eigen.Result, error) {
	k, err := p.BuildDistMat(c, vm)
	if err != nil {
		return eigen.Result{}, err
	}
	if err := k.ApplyBCs(p.BCs()); err != nil {
		return eigen.Result{}, err
	}
	m, err := p.BuildMassMat(c, vm)
	if err != nil {
		return eigen.Result{}, err
	}
	if err := m.ApplyBCs(p.MassBCs()); err != nil {
		return eigen.Result{}, err
	}
	if err := k.FactorLocal(fill); err != nil {
		return eigen.Result{}, err
	}

	jd := eigen.NewJacobiDavidson(k, m, nev)
	jd.Prec = k
	jd.Tol = tol
	jd.MaxIters = maxIters
	if c.Rank() == 0 {
		jd.Monitor = func(iter, nconv int, resNorm float64) {
			if iter%10 == 0 {
				fmt.Printf("iter %4d  locked %2d  residual %8.3e\n", iter, nconv, resNorm)
			}
		}
	}
	return jd.Solve()
}

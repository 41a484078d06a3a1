package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eirikurj/tacs/InputParameters"
	"github.com/eirikurj/tacs/bpmat"
)

func TestRunSolveFromInput(t *testing.T) {
	fileInput := []byte(`
Title: Test Case
Problem: rod
Nodes: 9
Procs: 2
Method: direct
Ordering: rcm
BCs:
  8:
    value: 0.5
`)
	ip := InputParameters.DefaultParameters()
	require.NoError(t, ip.Parse(fileInput))
	// Check the pinned far end
	assert.Equal(t, 0.5, ip.BCs[8]["value"])

	require.NoError(t, RunSolve(ip, false))
}

func TestRunSolveGMRES(t *testing.T) {
	ip := InputParameters.DefaultParameters()
	ip.Problem = "grid"
	ip.NX, ip.NY = 4, 3
	ip.Procs = 2
	ip.Method = "gmres"

	require.NoError(t, RunSolve(ip, false))
}

func TestRunModes(t *testing.T) {
	ip := InputParameters.DefaultParameters()
	ip.Nodes = 16
	ip.Procs = 2
	ip.NumEigenpairs = 2
	ip.MaxIterations = 200

	require.NoError(t, RunModes(ip, 1.e-8))
}

func TestDispatchRejectsUnknownNames(t *testing.T) {
	ip := InputParameters.DefaultParameters()
	_, err := buildProblem(ip)
	require.NoError(t, err)

	ip.Problem = "torus"
	_, err = buildProblem(ip)
	assert.Error(t, err)

	_, err = orderingFunc("zigzag")
	assert.Error(t, err)

	mode, err := schurMode("root")
	require.NoError(t, err)
	assert.Equal(t, bpmat.RootOnly, mode)
	_, err = schurMode("everywhere")
	assert.Error(t, err)

	ip = InputParameters.DefaultParameters()
	ip.Method = "cg"
	assert.Error(t, RunSolve(ip, false))
}

package InputParameters

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOverridesDefaults(t *testing.T) {
	yml := []byte(`
Title: cantilever
Problem: grid
NX: 12
NY: 5
Method: gmres
RelTol: 1.e-8
BCs:
  0:
    value: 0.
    weight: 1.
  12:
    value: 0.25
`)
	ip := DefaultParameters()
	require.NoError(t, ip.Parse(yml))

	assert.Equal(t, "cantilever", ip.Title)
	assert.Equal(t, "grid", ip.Problem)
	assert.Equal(t, 12, ip.NX)
	assert.Equal(t, 5, ip.NY)
	assert.Equal(t, "gmres", ip.Method)
	assert.InDelta(t, 1.e-8, ip.RelTol, 1e-20)
	// Untouched keys keep their defaults.
	assert.Equal(t, "rcm", ip.Ordering)
	assert.Equal(t, 500, ip.MaxIterations)

	require.Len(t, ip.BCs, 2)
	assert.Equal(t, 0.25, ip.BCs[12]["value"])
	assert.Equal(t, 1., ip.BCs[0]["weight"])
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	ip := DefaultParameters()
	assert.Error(t, ip.Parse([]byte("Title: [unclosed")))
}

func TestPrintReportsEveryParameter(t *testing.T) {
	ip := DefaultParameters()
	ip.BCs = map[int]map[string]float64{3: {"value": 1}}

	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	ip.Print()
	w.Close()
	os.Stdout = old
	out, err := io.ReadAll(r)
	require.NoError(t, err)

	for _, field := range []string{
		"Title", "Problem", "Nodes", "NX", "NY", "Procs",
		"Method", "Ordering", "SchurMode", "FillLevel",
		"RelTol", "Restart", "MaxIterations", "NumEigenpairs",
		"BCs[3]",
	} {
		assert.Contains(t, string(out), field)
	}
}

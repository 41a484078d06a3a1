package InputParameters

import (
	"fmt"
	"sort"

	"github.com/ghodss/yaml"
)

// Parameters obtained from the YAML input file
type Parameters struct {
	Title         string                     `yaml:"Title"`
	Problem       string                     `yaml:"Problem"` // rod or grid
	Nodes         int                        `yaml:"Nodes"`   // rod node count
	NX            int                        `yaml:"NX"`      // grid extents
	NY            int                        `yaml:"NY"`
	Procs         int                        `yaml:"Procs"`
	Method        string                     `yaml:"Method"`   // direct or gmres
	Ordering      string                     `yaml:"Ordering"` // natural or rcm
	SchurMode     string                     `yaml:"SchurMode"`
	FillLevel     int                        `yaml:"FillLevel"`
	RelTol        float64                    `yaml:"RelTol"`
	Restart       int                        `yaml:"Restart"`
	MaxIterations int                        `yaml:"MaxIterations"`
	NumEigenpairs int                        `yaml:"NumEigenpairs"`
	BCs           map[int]map[string]float64 `yaml:"BCs"` // First key is the node index, second is parameter name
}

// DefaultParameters fills the values the solver runs with when the
// input file leaves them out.
func DefaultParameters() *Parameters {
	return &Parameters{
		Title:         "model problem",
		Problem:       "rod",
		Nodes:         32,
		NX:            8,
		NY:            8,
		Procs:         2,
		Method:        "direct",
		Ordering:      "rcm",
		SchurMode:     "redundant",
		FillLevel:     -1,
		RelTol:        1.e-10,
		Restart:       30,
		MaxIterations: 500,
		NumEigenpairs: 4,
	}
}

func (ip *Parameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, ip)
}

func (ip *Parameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("[%s]\t\t\t= Problem\n", ip.Problem)
	fmt.Printf("[%d]\t\t\t= Nodes\n", ip.Nodes)
	fmt.Printf("[%d]\t\t\t= NX\n", ip.NX)
	fmt.Printf("[%d]\t\t\t= NY\n", ip.NY)
	fmt.Printf("[%s]\t\t\t= Method\n", ip.Method)
	fmt.Printf("[%s]\t\t\t= Ordering\n", ip.Ordering)
	fmt.Printf("[%s]\t\t= SchurMode\n", ip.SchurMode)
	fmt.Printf("[%d]\t\t\t= FillLevel\n", ip.FillLevel)
	fmt.Printf("[%d]\t\t\t= Procs\n", ip.Procs)
	fmt.Printf("%8.2e\t\t= RelTol\n", ip.RelTol)
	fmt.Printf("[%d]\t\t\t= Restart\n", ip.Restart)
	fmt.Printf("[%d]\t\t\t= MaxIterations\n", ip.MaxIterations)
	fmt.Printf("[%d]\t\t\t= NumEigenpairs\n", ip.NumEigenpairs)
	keys := make([]int, 0, len(ip.BCs))
	for k := range ip.BCs {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, key := range keys {
		fmt.Printf("BCs[%d] = %v\n", key, ip.BCs[key])
	}
}

package maskUtils

import (
	"fmt"

	"github.com/iamanigeeit/sniper/network"
	"github.com/iamanigeeit/sniper/plainUtils"
	"gonum.org/v1/gonum/mat"
)

type ParamStat struct {
	Name    string
	Nonzero int
	Numel   int
}

func (s ParamStat) Sparsity() float64 {
	return 100.0 * (1.0 - float64(s.Nonzero)/float64(s.Numel))
}

//Report counts the nonzero weights of a network, per param and overall
type Report struct {
	Params  []ParamStat
	Nonzero int
	Numel   int
}

func NewReport(params []*network.Param) Report {
	var r Report
	for _, p := range params {
		stat := ParamStat{Name: p.Name, Nonzero: plainUtils.CountNonzeroDense(p.W), Numel: p.Size()}
		r.Params = append(r.Params, stat)
		r.Nonzero += stat.Nonzero
		r.Numel += stat.Numel
	}
	return r
}

//MaskReport counts the kept weights of a mask set
func MaskReport(masks map[string]*mat.Dense) Report {
	var r Report
	for _, name := range sortedNames(masks) {
		m := masks[name]
		rows, cols := m.Dims()
		stat := ParamStat{Name: name, Nonzero: plainUtils.CountNonzeroDense(m), Numel: rows * cols}
		r.Params = append(r.Params, stat)
		r.Nonzero += stat.Nonzero
		r.Numel += stat.Numel
	}
	return r
}

func (r Report) Sparsity() float64 {
	return 100.0 * (1.0 - float64(r.Nonzero)/float64(r.Numel))
}

//Print logs one line per param plus the total, like:
//dense_1.weight has 30 / 100 parameters (sparsity 70.00%)
func (r Report) Print() {
	for _, s := range r.Params {
		fmt.Printf("%s has %d / %d parameters (sparsity %.2f%%)\n", s.Name, s.Nonzero, s.Numel, s.Sparsity())
	}
	fmt.Printf("Network has %d / %d parameters (sparsity %.2f%%)\n", r.Nonzero, r.Numel, r.Sparsity())
}

//Density is the kept fraction of a single mask
func Density(mask *mat.Dense) float64 {
	rows, cols := mask.Dims()
	return float64(plainUtils.CountNonzeroDense(mask)) / float64(rows*cols)
}

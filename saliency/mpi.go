package saliency

import (
	"github.com/emer/empi/mpi"
	"github.com/iamanigeeit/sniper/plainUtils"
)

//AllReduce sums the running totals across mpi ranks, so ranks that each saw
//a slice of the data end up with the saliency of all of it. Single-process
//worlds are left untouched
func (a *Accumulator) AllReduce(comm *mpi.Comm) error {
	if comm == nil || mpi.WorldSize() <= 1 {
		return nil
	}
	n := 0
	for _, name := range a.names {
		rows, cols := a.total[name].Dims()
		n += rows * cols
	}
	src := make([]float64, 0, n)
	for _, name := range a.names {
		src = append(src, plainUtils.RowFlatten(a.total[name])...)
	}
	dst := make([]float64, len(src))
	if err := comm.AllReduceF64(mpi.OpSum, dst, src); err != nil {
		return err
	}
	at := 0
	for _, name := range a.names {
		m := a.total[name]
		rows, cols := m.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				m.Set(i, j, dst[at])
				at++
			}
		}
	}
	return nil
}

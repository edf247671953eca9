//Package saliency accumulates connection importances the SNIP way: the
//gradient of the loss wrt an all-ones multiplicative mask on each weight.
//With weights held at their initial values that gradient is grad * weight,
//summed over batches and taken absolute only at the end
package saliency

import (
	"errors"
	"math"
	"sync"

	"github.com/iamanigeeit/sniper/data"
	"github.com/iamanigeeit/sniper/network"
	"github.com/iamanigeeit/sniper/plainUtils"
	"gonum.org/v1/gonum/mat"
)

type Accumulator struct {
	net      network.NetworkI
	loss     network.Loss
	names    []string
	poolSize int
	total    map[string]*mat.Dense
	batches  int

	//optional callback after every batch, e.g for a progress bar
	Progress func(done, total int)
}

//feeded to the workers to tell them what to do
type gradTask struct {
	total, grad, w *mat.Dense
}

//NewAccumulator tracks importances for the named params of net. The weights
//must stay untouched while batches are added
func NewAccumulator(net network.NetworkI, loss network.Loss, names []string, poolSize int) (*Accumulator, error) {
	if poolSize < 1 {
		return nil, errors.New("poolSize must be >= 1")
	}
	a := &Accumulator{net: net, loss: loss, names: names, poolSize: poolSize}
	a.total = make(map[string]*mat.Dense, len(names))
	for _, name := range names {
		p := net.Param(name)
		if p == nil {
			return nil, errors.New("no param named " + name)
		}
		rows, cols := p.W.Dims()
		a.total[name] = mat.NewDense(rows, cols, nil)
	}
	return a, nil
}

func (a *Accumulator) spawnAccumulators(ch chan gradTask) {
	for {
		task, ok := <-ch //feed the goroutines
		if !ok {
			//if channel is closed
			return
		}
		accumulate(task)
	}
}

func accumulate(task gradTask) {
	rows, cols := task.total.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			task.total.Set(i, j, task.total.At(i, j)+task.grad.At(i, j)*task.w.At(i, j))
		}
	}
}

//AddBatch backprops one batch and folds grad * weight into the running
//totals. Returns the batch loss
func (a *Accumulator) AddBatch(X, Y *mat.Dense) float64 {
	grads, lossVal := a.net.Gradients(X, Y, a.loss)
	if a.poolSize == 1 {
		//single thread
		for _, name := range a.names {
			accumulate(gradTask{total: a.total[name], grad: grads[name], w: a.net.Param(name).W})
		}
	} else {
		//bounded threading
		ch := make(chan gradTask)
		var wg sync.WaitGroup
		//spawn consumers
		for i := 0; i < a.poolSize; i++ {
			wg.Add(1)
			go func() {
				a.spawnAccumulators(ch)
				defer wg.Done()
			}()
		}
		//feed consumers
		for _, name := range a.names {
			ch <- gradTask{total: a.total[name], grad: grads[name], w: a.net.Param(name).W}
		}
		close(ch)
		wg.Wait()
	}
	a.batches++
	return lossVal
}

//Run pulls up to maxBatches batches from d. maxBatches <= 0 means every
//complete batch. Returns how many batches went in
func (a *Accumulator) Run(d *data.Data, maxBatches int) (int, error) {
	total := d.NumBatches - d.CurrentBatch
	if maxBatches > 0 {
		total = plainUtils.Min(total, maxBatches)
	}
	for i := 0; i < total; i++ {
		X, Y, _, err := d.BatchDense()
		if err != nil {
			return i, err
		}
		a.AddBatch(X, Y)
		if a.Progress != nil {
			a.Progress(i+1, total)
		}
	}
	return total, nil
}

func (a *Accumulator) Batches() int {
	return a.batches
}

//Total returns |sum of grad * weight| per param, ready for mask building
func (a *Accumulator) Total() map[string]*mat.Dense {
	out := make(map[string]*mat.Dense, len(a.total))
	for name, m := range a.total {
		out[name] = plainUtils.ApplyFuncDense(math.Abs, m)
	}
	return out
}

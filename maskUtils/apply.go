package maskUtils

import (
	"sync"

	"github.com/iamanigeeit/sniper/network"
	"gonum.org/v1/gonum/mat"
)

//Applier multiplies masks into tensors, optionally with a bounded pool of
//workers. Masking is cheap per entry, so the pool only pays off on big nets
type Applier struct {
	poolSize int
}

//feeded to the workers to tell them what to do
type maskTask struct {
	target *mat.Dense
	mask   *mat.Dense
}

func NewApplier(poolSize int) *Applier {
	a := new(Applier)
	a.poolSize = poolSize
	return a
}

func (a *Applier) spawnMaskers(ch chan maskTask) {
	for {
		task, ok := <-ch //feed the goroutines
		if !ok {
			//if channel is closed
			return
		}
		task.target.MulElem(task.target, task.mask)
	}
}

func (a *Applier) run(tasks []maskTask) {
	if a.poolSize == 1 {
		//single thread
		for _, task := range tasks {
			task.target.MulElem(task.target, task.mask)
		}
	} else if a.poolSize > 1 {
		//bounded threading
		ch := make(chan maskTask)
		var wg sync.WaitGroup
		//spawn consumers
		for i := 0; i < a.poolSize; i++ {
			wg.Add(1)
			go func() {
				a.spawnMaskers(ch)
				defer wg.Done()
			}()
		}
		//feed consumers
		for _, task := range tasks {
			ch <- task
		}
		close(ch)
		wg.Wait()
	}
}

//Apply zeroes the masked weights of net in place. Params without a mask are
//left alone
func (a *Applier) Apply(net network.NetworkI, masks map[string]*mat.Dense) {
	if len(masks) == 0 {
		return
	}
	tasks := make([]maskTask, 0, len(masks))
	for _, p := range net.Params() {
		if mask, ok := masks[p.Name]; ok {
			tasks = append(tasks, maskTask{target: p.W, mask: mask})
		}
	}
	a.run(tasks)
}

//MaskGrads zeroes the gradients of pruned weights so sgd cannot revive them
func (a *Applier) MaskGrads(grads, masks map[string]*mat.Dense) {
	if len(masks) == 0 {
		return
	}
	tasks := make([]maskTask, 0, len(masks))
	for name, g := range grads {
		if mask, ok := masks[name]; ok {
			tasks = append(tasks, maskTask{target: g, mask: mask})
		}
	}
	a.run(tasks)
}

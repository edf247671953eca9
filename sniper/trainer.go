//Package sniper progressively prunes a network while it trains. Importances
//are accumulated once at the initial weights, masks for every scheduled
//sparsity are cut from them up front, and the trainer swaps masks in and out
//as the schedule says. Artifacts are cached under the sniper dir so reruns
//skip the expensive parts
package sniper

import (
	"errors"
	"math"
	"os"
	"sort"
	"time"

	"github.com/emer/empi/mpi"
	"github.com/iamanigeeit/sniper/data"
	"github.com/iamanigeeit/sniper/maskUtils"
	"github.com/iamanigeeit/sniper/network"
	"github.com/iamanigeeit/sniper/plainUtils"
	"github.com/iamanigeeit/sniper/saliency"
	"github.com/iamanigeeit/sniper/store"
	"github.com/iamanigeeit/sniper/utils"
	"gonum.org/v1/gonum/mat"
)

type Trainer struct {
	cfg     *Config
	net     network.NetworkI
	loss    network.Loss
	applier *maskUtils.Applier

	epoch           int
	currentSparsity float64
	currentMasks    map[string]*mat.Dense
	initValues      map[string]*mat.Dense
	pruneNames      []string

	baseLR    float64
	lrFactor  float64
	lrFactors map[string]float64

	//set before Setup to sum importances across mpi ranks
	Comm *mpi.Comm
	//reports importance accumulation progress, e.g to drive a progress bar
	Progress func(done, total int)
}

func NewTrainer(cfg *Config, net network.NetworkI, loss network.Loss) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tr := &Trainer{
		cfg:      cfg,
		net:      net,
		loss:     loss,
		applier:  maskUtils.NewApplier(cfg.PoolSize),
		baseLR:   cfg.OptimLR,
		lrFactor: 1.0,
	}
	for _, p := range net.Params() {
		if willPrune(p.Name, cfg.ExcludeParams) {
			tr.pruneNames = append(tr.pruneNames, p.Name)
		}
	}
	if len(tr.pruneNames) == 0 {
		return nil, errors.New("every param is excluded from pruning")
	}
	return tr, nil
}

func (tr *Trainer) Epoch() int {
	return tr.epoch
}

func (tr *Trainer) Sparsity() float64 {
	return tr.currentSparsity
}

//Report counts the nonzero weights currently in the network
func (tr *Trainer) Report() maskUtils.Report {
	return maskUtils.NewReport(tr.net.Params())
}

//Setup prepares everything training needs: the initial weight snapshot, the
//accumulated importances and one mask file per scheduled sparsity. Whatever
//already sits in the sniper dir is reused, so only missing pieces get
//computed. d feeds the importance accumulation and should be the training
//set. Finally the trainer is put at its start (or resume) epoch
func (tr *Trainer) Setup(d *data.Data) error {
	cfg := tr.cfg
	if err := os.MkdirAll(cfg.SniperDir, 0755); err != nil {
		return err
	}

	initPath := store.InitValuesPath(cfg.SniperDir)
	if store.Exists(initPath) {
		mpi.Printf("Loading initial model state from %s\n", initPath)
		initValues, err := store.LoadTensors(initPath)
		if err != nil {
			return err
		}
		tr.initValues = initValues
		//when resuming, the caller has already reloaded the trained model
		if cfg.ResumeEpoch == 0 {
			tr.net.Restore(initValues)
		}
	} else {
		mpi.Printf("Saving initial model state to %s\n", initPath)
		tr.initValues = tr.net.Snapshot()
		if err := store.SaveTensors(initPath, tr.initValues); err != nil {
			return err
		}
	}

	if missing := tr.missingSparsities(); len(missing) > 0 {
		totalGrads, err := tr.totalGrads(d)
		if err != nil {
			return err
		}
		for _, sparsity := range missing {
			masks := maskUtils.Build(totalGrads, sparsity, cfg.MaxParamSparsity)
			report := maskUtils.MaskReport(masks)
			for _, s := range report.Params {
				mpi.Printf("%s: %d -> %d\n", s.Name, s.Numel, s.Nonzero)
			}
			path := store.MaskPath(cfg.SniperDir, sparsity, cfg.MaxParamSparsity)
			if err := store.SaveMasks(path, masks); err != nil {
				return err
			}
			mpi.Printf("Saved masks at sparsity %s to %s\n", store.FormatSparsity(sparsity), path)
		}
	}
	mpi.Printf("All required sparsities present\n")

	if cfg.ResumeEpoch > 0 {
		return tr.Resume(cfg.ResumeEpoch)
	}
	startSparsity := cfg.Schedule.At(0)
	tr.currentSparsity = startSparsity
	if startSparsity > 0.0 {
		mpi.Printf("Loading sparsity %s...\n", store.FormatSparsity(startSparsity))
		masks, err := tr.loadMasks(startSparsity)
		if err != nil {
			return err
		}
		tr.currentMasks = masks
		tr.updateLRs(startSparsity)
		if cfg.ForwardMask {
			tr.applier.Apply(tr.net, tr.currentMasks)
		}
	}
	return nil
}

//scheduled sparsities without a mask file, in increasing order
func (tr *Trainer) missingSparsities() []float64 {
	levels := tr.cfg.Schedule.Levels()
	sort.Float64s(levels)
	missing := make([]float64, 0, len(levels))
	for _, sparsity := range levels {
		if !store.Exists(store.MaskPath(tr.cfg.SniperDir, sparsity, tr.cfg.MaxParamSparsity)) {
			missing = append(missing, sparsity)
		}
	}
	return missing
}

//the accumulated importances, loaded from the sniper dir or computed fresh
func (tr *Trainer) totalGrads(d *data.Data) (map[string]*mat.Dense, error) {
	gradsPath := store.TotalGradsPath(tr.cfg.SniperDir)
	if store.Exists(gradsPath) {
		mpi.Printf("Loading gradients from %s\n", gradsPath)
		return store.LoadTensors(gradsPath)
	}
	mpi.Printf("Computing gradients...\n")
	totalGrads, err := tr.ComputeGradients(d)
	if err != nil {
		return nil, err
	}
	if err := store.SaveTensors(gradsPath, totalGrads); err != nil {
		return nil, err
	}
	mpi.Printf("Saved gradients to %s\n", gradsPath)
	return totalGrads, nil
}

//ComputeGradients accumulates |sum of grad * weight| per prunable param over
//the batches of d. The network must still hold its initial weights: the
//importances are meant to be taken at init, before any training moves them
func (tr *Trainer) ComputeGradients(d *data.Data) (map[string]*mat.Dense, error) {
	start := time.Now()
	total := 0
	for _, p := range tr.net.Params() {
		total += p.Size()
	}
	mpi.Printf("Total trainable params: %d\n", total)
	prunable := 0
	for _, name := range tr.pruneNames {
		prunable += tr.net.Param(name).Size()
	}
	mpi.Printf("Total params eligible to prune: %d\n", prunable)

	acc, err := saliency.NewAccumulator(tr.net, tr.loss, tr.pruneNames, tr.cfg.PoolSize)
	if err != nil {
		return nil, err
	}
	acc.Progress = tr.Progress
	d.Reset()
	batches, err := acc.Run(d, tr.cfg.SnipBatches)
	if err != nil {
		return nil, err
	}
	if batches == 0 {
		return nil, errors.New("no complete batches to accumulate gradients from")
	}
	if err := acc.AllReduce(tr.Comm); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	mpi.Printf("SNIP time: %v\n", elapsed)
	mpi.Printf("SNIP time/batch: %v\n", elapsed/time.Duration(batches))
	return acc.Total(), nil
}

//reads a mask file and drops the params excluded from pruning
func (tr *Trainer) loadMasks(sparsity float64) (map[string]*mat.Dense, error) {
	path := store.MaskPath(tr.cfg.SniperDir, sparsity, tr.cfg.MaxParamSparsity)
	masks, err := store.LoadMasks(path)
	if err != nil {
		return nil, err
	}
	for name := range masks {
		if !willPrune(name, tr.cfg.ExcludeParams) {
			delete(masks, name)
		}
	}
	mpi.Printf("Loaded mask from %s\n", path)
	return masks, nil
}

//Step ends an epoch. On epochs the schedule names it swaps in the masks of
//the new sparsity, rescales the learning rates and zeroes or revives weights
//accordingly. Between scheduled epochs it is a no-op
func (tr *Trainer) Step() error {
	tr.epoch++
	newSparsity, ok := tr.cfg.Schedule[tr.epoch]
	if !ok {
		return nil
	}
	tr.currentSparsity = newSparsity
	if newSparsity > 0.0 {
		mpi.Printf("New sparsity scheduled: %s, replacing masks\n", store.FormatSparsity(newSparsity))
		masks, err := tr.loadMasks(newSparsity)
		if err != nil {
			return err
		}
		tr.currentMasks = masks
		tr.updateLRs(newSparsity)
	} else {
		mpi.Printf("New sparsity is 0, removing masks\n")
		tr.currentMasks = nil
		tr.resetLRs()
	}
	if tr.cfg.ForwardMask {
		tr.applier.Apply(tr.net, tr.currentMasks)
	}
	if tr.cfg.RestoreInitValues {
		tr.restoreInit()
	} else {
		tr.logNonzerosCount()
	}
	return nil
}

//Resume rewinds the trainer to epoch as if it had stepped its way there: the
//masks and learning rates of the sparsity in force get loaded and applied
func (tr *Trainer) Resume(epoch int) error {
	tr.epoch = epoch
	mpi.Printf("Resuming from epoch %d\n", epoch)
	sparsity := tr.cfg.Schedule.At(epoch)
	tr.currentSparsity = sparsity
	if sparsity > 0.0 {
		masks, err := tr.loadMasks(sparsity)
		if err != nil {
			return err
		}
		tr.currentMasks = masks
		tr.updateLRs(sparsity)
		if tr.cfg.ForwardMask {
			tr.applier.Apply(tr.net, tr.currentMasks)
		}
	} else {
		tr.currentMasks = nil
		tr.resetLRs()
	}
	return nil
}

//puts the initial value back into every weight that sits at 0 but is not
//masked out. After a sparsity drop this revives the returning weights, and
//with no mask at all the whole network gets its zeros re-seeded
func (tr *Trainer) restoreInit() {
	mpi.Printf("Restoring newly unmasked weights to initial values\n")
	if tr.currentMasks == nil {
		for _, p := range tr.net.Params() {
			init, ok := tr.initValues[p.Name]
			if !ok {
				continue
			}
			rows, cols := p.W.Dims()
			for i := 0; i < rows; i++ {
				for j := 0; j < cols; j++ {
					if p.W.At(i, j) == 0.0 {
						p.W.Set(i, j, init.At(i, j))
					}
				}
			}
		}
		return
	}
	for name, mask := range tr.currentMasks {
		p := tr.net.Param(name)
		init, ok := tr.initValues[name]
		if p == nil || !ok {
			continue
		}
		rows, cols := p.W.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				if p.W.At(i, j) == 0.0 && mask.At(i, j) != 0.0 {
					p.W.Set(i, j, init.At(i, j))
				}
			}
		}
	}
}

func (tr *Trainer) logNonzerosCount() {
	r := tr.Report()
	mpi.Printf("Network has %d / %d parameters (sparsity %.2f%%) at epoch %d\n", r.Nonzero, r.Numel, r.Sparsity(), tr.epoch)
}

//learning rates grow as the network shrinks, so the surviving weights keep
//moving as much as the full set did
func (tr *Trainer) updateLRs(newSparsity float64) {
	if !tr.cfg.ScaleLR && !tr.cfg.ScaleLRByParam {
		return
	}
	mpi.Printf("Setting new learning rates\n")
	newFactor := 1.0
	if tr.cfg.ScaleLR {
		newFactor = tr.scalingFn(newSparsity / 100.0)
	}
	tr.lrFactor = newFactor
	if tr.cfg.ScaleLRByParam {
		factors := make(map[string]float64, len(tr.currentMasks))
		for name, mask := range tr.currentMasks {
			density := maskUtils.Density(mask)
			//fully pruned params fall back to the global factor
			if density > 0.0 {
				factors[name] = tr.scalingFn(1.0 - density)
			}
		}
		tr.lrFactors = factors
	}
}

func (tr *Trainer) resetLRs() {
	tr.lrFactor = 1.0
	tr.lrFactors = nil
}

func (tr *Trainer) scalingFn(sparsityRatio float64) float64 {
	return math.Min(tr.cfg.MaxLRScaling, 1.0/(1.0-sparsityRatio))
}

//LR returns the learning rate for a param: the base rate times the global
//factor, or times the param's own factor when it has a mask
func (tr *Trainer) LR(name string) float64 {
	factor := tr.lrFactor
	if f, ok := tr.lrFactors[name]; ok {
		factor = f
	}
	return tr.baseLR * factor
}

//SetBaseLR lets an outer schedule (decay, warmup) move the base rate. The
//sparsity scaling factors stay on top of it
func (tr *Trainer) SetBaseLR(lr float64) {
	tr.baseLR = lr
}

//TrainEpoch runs one epoch of masked sgd over every complete batch of d and
//returns the accumulated loss and timing stats
func (tr *Trainer) TrainEpoch(d *data.Data) (utils.Stats, error) {
	stats := utils.NewStats(d.BatchSize)
	d.Reset()
	for b := 0; b < d.NumBatches; b++ {
		start := time.Now()
		X, Y, _, err := d.BatchDense()
		if err != nil {
			return stats, err
		}
		grads, lossVal := tr.net.Gradients(X, Y, tr.loss)
		if tr.cfg.ForwardMask {
			tr.applier.MaskGrads(grads, tr.currentMasks)
		}
		tr.net.ApplyGradients(grads, tr.LR)
		if tr.cfg.ForwardMask {
			//bias gradients flow into masked weights through the update, so
			//the mask goes back on after every step
			tr.applier.Apply(tr.net, tr.currentMasks)
		}
		stats.Accumulate(utils.Stats{Loss: lossVal, Time: time.Since(start).Milliseconds()})
	}
	return stats, nil
}

//Evaluate runs the network over every complete batch of d and reports
//accuracy, loss and timing
func (tr *Trainer) Evaluate(d *data.Data) (utils.Stats, error) {
	stats := utils.NewStats(d.BatchSize)
	labels := d.NumLabels()
	d.Reset()
	for b := 0; b < d.NumBatches; b++ {
		X, Y1hot, Y, err := d.BatchDense()
		if err != nil {
			return stats, err
		}
		start := time.Now()
		pred := tr.net.Forward(X)
		elapsed := time.Since(start).Milliseconds()
		corrects, accuracy, _ := utils.Predict(Y, labels, plainUtils.MatToArray(pred))
		stats.Accumulate(utils.Stats{
			Corrects: corrects,
			Accuracy: accuracy,
			Loss:     tr.loss.Loss(pred, Y1hot),
			Time:     elapsed,
		})
	}
	return stats, nil
}


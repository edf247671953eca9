//Package maskUtils creates and applies pruning masks. A mask is a 0/1 matrix
//with the shape of its param: 1 keeps the weight, 0 prunes it
package maskUtils

import (
	"math"
	"math/rand"
	"sort"

	"github.com/iamanigeeit/sniper/network"
	"github.com/iamanigeeit/sniper/plainUtils"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"
)

//masks that would prune a param completely are refilled at random with a
//fixed seed, so every run regenerates the same mask
const fillSeed = 0

func sortedNames(tensors map[string]*mat.Dense) []string {
	names := lo.Keys(tensors)
	sort.Strings(names)
	return names
}

//Build thresholds the accumulated importances globally so that the wanted
//percentage of weights is pruned overall. Params whose own sparsity would
//exceed maxParamSparsity are re-thresholded locally against the cap
func Build(totalGrads map[string]*mat.Dense, sparsity, maxParamSparsity float64) map[string]*mat.Dense {
	names := sortedNames(totalGrads)

	total := 0
	for _, name := range names {
		r, c := totalGrads[name].Dims()
		total += r * c
	}
	flattened := make([]float64, 0, total)
	for _, name := range names {
		flattened = append(flattened, plainUtils.RowFlatten(totalGrads[name])...)
	}

	threshold := math.Inf(-1)
	if k := int(sparsity / 100.0 * float64(len(flattened))); k >= 1 {
		threshold = plainUtils.KthSmallest(flattened, k)
	}
	maxSparsity := maxParamSparsity / 100.0

	masks := make(map[string]*mat.Dense, len(totalGrads))
	for _, name := range names {
		grad := totalGrads[name]
		mask := thresholdMask(grad, threshold)
		nonzero := plainUtils.CountNonzeroDense(mask)
		rows, cols := grad.Dims()
		numel := rows * cols
		if 1.0-float64(nonzero)/float64(numel) > maxSparsity {
			//param pruned beyond the cap: re-threshold it on its own
			paramThreshold := plainUtils.KthSmallest(plainUtils.RowFlatten(grad), 1+int(maxSparsity*float64(numel)))
			mask = thresholdMask(grad, paramThreshold)
			nonzero = plainUtils.CountNonzeroDense(mask)
			if nonzero == 0 && maxSparsity < 1.0 {
				//ties left nothing above the threshold, fill at random up to the cap
				mask = randomFill(rows, cols, maxSparsity)
			}
		}
		masks[name] = mask
	}
	return masks
}

//keeps entries strictly above the threshold
func thresholdMask(grad *mat.Dense, threshold float64) *mat.Dense {
	rows, cols := grad.Dims()
	mask := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if grad.At(i, j) > threshold {
				mask.Set(i, j, 1.0)
			}
		}
	}
	return mask
}

func randomFill(rows, cols int, maxSparsity float64) *mat.Dense {
	numel := rows * cols
	numFalse := int(maxSparsity * float64(numel))
	vals := make([]float64, numel)
	for i := numFalse; i < numel; i++ {
		vals[i] = 1.0
	}
	rng := rand.New(rand.NewSource(fillSeed))
	rng.Shuffle(numel, func(i, j int) {
		vals[i], vals[j] = vals[j], vals[i]
	})
	return mat.NewDense(rows, cols, vals)
}

//GlobalPrune zeroes the lowest-valued weights across all params in one
//shot. A quick baseline, no importances needed
func GlobalPrune(params []*network.Param, pruneRatio float64) {
	total := 0
	for _, p := range params {
		total += p.Size()
	}
	flattened := make([]float64, 0, total)
	for _, p := range params {
		flattened = append(flattened, plainUtils.RowFlatten(p.W)...)
	}
	k := int(pruneRatio * float64(len(flattened)))
	if k < 1 {
		return
	}
	threshold := plainUtils.KthSmallest(flattened, k)
	for _, p := range params {
		rows, cols := p.W.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				if p.W.At(i, j) < threshold {
					p.W.Set(i, j, 0.0)
				}
			}
		}
	}
}

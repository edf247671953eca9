//Package schedule maps training epochs to target sparsity percentages.
package schedule

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/samber/lo"
)

//Schedule is a step function from epoch to sparsity percentage: the rate at
//any epoch is the one set at the greatest scheduled epoch not after it.
//Epoch 0 must always be scheduled so that every epoch has a defined rate.
//Rates may go up and down: pruned weights come back when the rate drops.
//Marshals to json with epochs as object keys, e.g {"0": 0, "10": 70.5}
type Schedule map[int]float64

func (s Schedule) Validate() error {
	if len(s) == 0 {
		return errors.New("empty schedule")
	}
	if _, ok := s[0]; !ok {
		return errors.New("schedule must define epoch 0")
	}
	for epoch, sparsity := range s {
		if epoch < 0 {
			return fmt.Errorf("negative epoch %d in schedule", epoch)
		}
		if sparsity < 0.0 || sparsity >= 100.0 {
			return fmt.Errorf("sparsity %f at epoch %d outside [0, 100)", sparsity, epoch)
		}
	}
	return nil
}

//At returns the sparsity percentage in force at epoch
func (s Schedule) At(epoch int) float64 {
	if epoch < 0 {
		panic("epoch must be >= 0")
	}
	if sparsity, ok := s[epoch]; ok {
		return sparsity
	}
	last := 0
	for e := range s {
		if e < epoch && e > last {
			last = e
		}
	}
	return s[last]
}

//Epochs returns the scheduled epochs in increasing order
func (s Schedule) Epochs() []int {
	epochs := lo.Keys(s)
	sort.Ints(epochs)
	return epochs
}

//Levels returns the distinct nonzero sparsity percentages of the schedule,
//in the order they are first reached. Each one needs a mask set
func (s Schedule) Levels() []float64 {
	levels := make([]float64, 0, len(s))
	for _, epoch := range s.Epochs() {
		if s[epoch] != 0.0 {
			levels = append(levels, s[epoch])
		}
	}
	return lo.Uniq(levels)
}

//Final returns the sparsity at the last scheduled epoch
func (s Schedule) Final() float64 {
	epochs := s.Epochs()
	return s[epochs[len(epochs)-1]]
}

//IsRamp is true when the sparsity never rises across scheduled epochs: the
//rate starts at its peak and only relaxes from there
func (s Schedule) IsRamp() bool {
	prev := math.Inf(1)
	for _, epoch := range s.Epochs() {
		if s[epoch] > prev {
			return false
		}
		prev = s[epoch]
	}
	return true
}

func (s Schedule) String() string {
	parts := make([]string, 0, len(s))
	for _, epoch := range s.Epochs() {
		parts = append(parts, fmt.Sprintf("%d:%g", epoch, s[epoch]))
	}
	return strings.Join(parts, " ")
}

//Linear ramps the sparsity down from start at epoch 0 to final at endEpoch
//with a new level every `every` epochs
func Linear(start, final float64, endEpoch, every int) Schedule {
	return ramp(start, final, endEpoch, every, func(frac float64) float64 {
		return frac
	})
}

//Exponential ramps the sparsity down from start to final with steps that
//shrink by factor gamma in (0, 1): most of the relaxing happens early
func Exponential(start, final float64, endEpoch, every int, gamma float64) Schedule {
	if gamma <= 0.0 || gamma >= 1.0 {
		panic("gamma must be in (0, 1)")
	}
	n := float64(numSteps(endEpoch, every))
	return ramp(start, final, endEpoch, every, func(frac float64) float64 {
		return (1.0 - math.Pow(gamma, frac*n)) / (1.0 - math.Pow(gamma, n))
	})
}

//Cosine ramps the sparsity down from start to final along a half cosine
//wave: slow at both ends, fast in the middle
func Cosine(start, final float64, endEpoch, every int) Schedule {
	return ramp(start, final, endEpoch, every, func(frac float64) float64 {
		return (1.0 - math.Cos(math.Pi*frac)) / 2.0
	})
}

func numSteps(endEpoch, every int) int {
	if endEpoch <= 0 {
		panic("endEpoch must be > 0")
	}
	if every <= 0 {
		panic("every must be > 0")
	}
	return (endEpoch + every - 1) / every
}

func ramp(start, final float64, endEpoch, every int, frac func(float64) float64) Schedule {
	if start >= 100.0 || final < 0.0 || start < final {
		panic("need 100 > start >= final >= 0")
	}
	n := numSteps(endEpoch, every)
	s := Schedule{}
	for i := 0; i <= n; i++ {
		epoch := i * every
		if epoch > endEpoch {
			epoch = endEpoch
		}
		s[epoch] = start - (start-final)*frac(float64(i)/float64(n))
	}
	return s
}

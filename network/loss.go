package network

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

//Loss gives the error of a prediction and its gradient wrt the prediction
type Loss interface {
	Loss(pred, want *mat.Dense) float64
	Grad(pred, want *mat.Dense) *mat.Dense
}

//mean squared error over all entries
type MeanSquared struct{}

func (MeanSquared) Loss(pred, want *mat.Dense) float64 {
	rows, cols := pred.Dims()
	s := 0.0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			d := pred.At(i, j) - want.At(i, j)
			s += d * d
		}
	}
	return s / float64(rows*cols)
}

func (MeanSquared) Grad(pred, want *mat.Dense) *mat.Dense {
	rows, cols := pred.Dims()
	g := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			g.Set(i, j, 2.0*(pred.At(i, j)-want.At(i, j))/float64(rows*cols))
		}
	}
	return g
}

//softmax cross entropy on raw scores with one-hot targets.
//Use an identity output layer: the softmax lives in the loss
type CategoricalCrossEntropy struct{}

func (CategoricalCrossEntropy) Loss(pred, want *mat.Dense) float64 {
	rows, _ := pred.Dims()
	loss := 0.0
	for i := 0; i < rows; i++ {
		p := softmaxRow(mat.Row(nil, i, pred))
		for j := range p {
			if want.At(i, j) > 0.0 {
				loss -= want.At(i, j) * math.Log(math.Max(p[j], 1e-15))
			}
		}
	}
	return loss / float64(rows)
}

func (CategoricalCrossEntropy) Grad(pred, want *mat.Dense) *mat.Dense {
	rows, cols := pred.Dims()
	g := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		p := softmaxRow(mat.Row(nil, i, pred))
		for j := 0; j < cols; j++ {
			g.Set(i, j, (p[j]-want.At(i, j))/float64(rows))
		}
	}
	return g
}

//numerically stable softmax
func softmaxRow(v []float64) []float64 {
	max := v[0]
	for _, x := range v {
		if x > max {
			max = x
		}
	}
	sum := 0.0
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Exp(x - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

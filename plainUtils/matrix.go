package plainUtils

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

func NewDense(X [][]float64) *mat.Dense {
	return mat.NewDense(len(X), len(X[0]), Flatten(X))
}

func MatToArray(m *mat.Dense) [][]float64 {
	v := make([][]float64, NumRows(m))
	for i := 0; i < NumRows(m); i++ {
		v[i] = mat.Row(nil, i, m)
	}
	return v
}

func RowFlatten(m *mat.Dense) []float64 {
	v := make([][]float64, NumRows(m))
	for i := 0; i < NumRows(m); i++ {
		v[i] = mat.Row(nil, i, m)
	}
	return Flatten(v)
}

func NumRows(m *mat.Dense) int {
	rows, _ := m.Dims()
	return rows
}

func NumCols(m *mat.Dense) int {
	_, cols := m.Dims()
	return cols
}

func RandMatrix(r, c int) *mat.Dense {
	rand.Seed(42)
	m := make([]float64, r*c)
	for i := range m {
		m[i] = rand.Float64()
	}
	return mat.NewDense(r, c, m)
}

//gaussian matrix with entries ~ N(0, sd^2), seeded for reproducibility
func RandnMatrix(r, c int, sd float64, seed int64) *mat.Dense {
	rng := rand.New(rand.NewSource(seed))
	m := make([]float64, r*c)
	for i := range m {
		m[i] = rng.NormFloat64() * sd
	}
	return mat.NewDense(r, c, m)
}

//returns a matrix useful for debug. E.g if r,c = 3,3 -> returns
// | 1 2 3 |
// | 4 5 6 |
// | 7 8 9 |
func MatrixForDebug(r, c int) *mat.Dense {
	m := make([]float64, r*c)
	for i := range m {
		m[i] = float64(i) + 1.0
	}
	return mat.NewDense(r, c, m)
}

func ApplyFuncDense(f func(v float64) float64, a *mat.Dense) *mat.Dense {
	m := mat.NewDense(NumRows(a), NumCols(a), nil)
	for i := 0; i < NumRows(a); i++ {
		for j := 0; j < NumCols(a); j++ {
			m.Set(i, j, f(a.At(i, j)))
		}
	}
	return m
}

func CountNonzeroDense(m *mat.Dense) int {
	nnz := 0
	for i := 0; i < NumRows(m); i++ {
		for j := 0; j < NumCols(m); j++ {
			if m.At(i, j) != 0.0 {
				nnz++
			}
		}
	}
	return nnz
}

func Distance(a, b []float64) float64 {
	//computes euclidean distance between arrays
	d := 0.0
	for i := range a {
		d += math.Pow(a[i]-b[i], 2.0)
	}
	return math.Sqrt(d)
}

package plainUtils

import "sort"

//pads v with n 0s
func Pad(v []float64, n int) []float64 {
	res := make([]float64, len(v)+n)
	for i := range v {
		res[i] = v[i]
	}
	return res
}

//row-major flattening of X
func Flatten(X [][]float64) []float64 {
	rows := len(X)
	cols := len(X[0])
	flat := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			flat[i*cols+j] = X[i][j]
		}
	}
	return flat
}

func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func Max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

//k-th smallest value of v, with k starting at 1.
//v is not modified
func KthSmallest(v []float64, k int) float64 {
	if k < 1 || k > len(v) {
		panic("k out of range")
	}
	tmp := make([]float64, len(v))
	copy(tmp, v)
	sort.Float64s(tmp)
	return tmp[k-1]
}

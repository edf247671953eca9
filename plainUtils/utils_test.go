package plainUtils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlatten(t *testing.T) {
	X := [][]float64{{1, 2, 3}, {4, 5, 6}}
	require.Equal(t, []float64{1, 2, 3, 4, 5, 6}, Flatten(X))
	m := NewDense(X)
	require.Equal(t, 2, NumRows(m))
	require.Equal(t, 3, NumCols(m))
	require.Equal(t, X, MatToArray(m))
	require.Equal(t, Flatten(X), RowFlatten(m))
}

func TestKthSmallest(t *testing.T) {
	v := []float64{5.0, 1.0, 4.0, 2.0, 3.0}
	require.Equal(t, 1.0, KthSmallest(v, 1))
	require.Equal(t, 3.0, KthSmallest(v, 3))
	require.Equal(t, 5.0, KthSmallest(v, 5))
	//input untouched
	require.Equal(t, []float64{5.0, 1.0, 4.0, 2.0, 3.0}, v)
}

func TestCountNonzeroDense(t *testing.T) {
	m := MatrixForDebug(3, 3)
	require.Equal(t, 9, CountNonzeroDense(m))
	m.Set(1, 1, 0.0)
	require.Equal(t, 8, CountNonzeroDense(m))
}

func TestMinMax(t *testing.T) {
	require.Equal(t, 2, Min(2, 7))
	require.Equal(t, 7, Max(2, 7))
	require.Equal(t, 3, Max(3, 3))
}

func TestRandnMatrixDeterminism(t *testing.T) {
	a := RandnMatrix(4, 5, 0.1, 0)
	b := RandnMatrix(4, 5, 0.1, 0)
	require.Equal(t, 0.0, Distance(RowFlatten(a), RowFlatten(b)))
	c := RandnMatrix(4, 5, 0.1, 1)
	require.NotEqual(t, 0.0, Distance(RowFlatten(a), RowFlatten(c)))
}

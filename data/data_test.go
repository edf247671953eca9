package data

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBatching(t *testing.T) {
	d := Synthetic(25, 4, 3, 0)
	require.NoError(t, d.Init(10))
	require.Equal(t, 2, d.NumBatches)

	X, Y, err := d.Batch()
	require.NoError(t, err)
	require.Len(t, X, 10)
	require.Len(t, Y, 10)

	_, _, err = d.Batch()
	require.NoError(t, err)
	//leftover 5 samples do not form a batch
	_, _, err = d.Batch()
	require.Error(t, err)

	d.Reset()
	_, _, err = d.Batch()
	require.NoError(t, err)
}

func TestBatchDense(t *testing.T) {
	d := Synthetic(8, 2, 4, 1)
	require.NoError(t, d.Init(8))
	X, Y1h, Y, err := d.BatchDense()
	require.NoError(t, err)

	r, c := X.Dims()
	require.Equal(t, 8, r)
	require.Equal(t, 2, c)
	r, c = Y1h.Dims()
	require.Equal(t, 8, r)
	require.Equal(t, 4, c)
	for i, y := range Y {
		require.Equal(t, 1.0, Y1h.At(i, y))
		rowSum := 0.0
		for j := 0; j < 4; j++ {
			rowSum += Y1h.At(i, j)
		}
		require.Equal(t, 1.0, rowSum)
	}
}

func TestNumLabelsInferred(t *testing.T) {
	d := &Data{X: [][]float64{{1}, {2}, {3}}, Y: []int{0, 2, 1}}
	require.Equal(t, 3, d.NumLabels())
	//an explicit count wins over scanning the labels
	d.Labels = 5
	require.Equal(t, 5, d.NumLabels())
}

func TestSyntheticDeterminism(t *testing.T) {
	a := Synthetic(10, 3, 2, 7)
	b := Synthetic(10, 3, 2, 7)
	require.Equal(t, a.X, b.X)
	require.Equal(t, a.Y, b.Y)
}

func TestSaveLoad(t *testing.T) {
	d := Synthetic(6, 3, 2, 2)
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, d.Save(path))
	back := LoadData(path)
	require.Equal(t, d.X, back.X)
	require.Equal(t, d.Y, back.Y)
	require.Equal(t, 2, back.NumLabels())
}

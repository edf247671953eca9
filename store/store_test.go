package store

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/iamanigeeit/sniper/plainUtils"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestTensorRoundtrip(t *testing.T) {
	tensors := map[string]*mat.Dense{
		"dense_1.weight": plainUtils.RandMatrix(7, 3),
		"dense_1.bias":   plainUtils.MatrixForDebug(1, 3),
	}
	var buf bytes.Buffer
	require.NoError(t, WriteTensors(&buf, tensors))

	back, err := ReadTensors(&buf)
	require.NoError(t, err)
	require.Len(t, back, 2)
	for name, m := range tensors {
		require.Equal(t, 0.0, plainUtils.Distance(plainUtils.RowFlatten(m), plainUtils.RowFlatten(back[name])), name)
	}
}

func TestMaskRoundtrip(t *testing.T) {
	mask := mat.NewDense(3, 5, nil)
	mask.Set(0, 0, 1.0)
	mask.Set(1, 4, 1.0)
	mask.Set(2, 2, 1.0)
	var buf bytes.Buffer
	require.NoError(t, WriteMasks(&buf, map[string]*mat.Dense{"dense_1.weight": mask}))

	back, err := ReadMasks(&buf)
	require.NoError(t, err)
	got := back["dense_1.weight"]
	require.Equal(t, 3, plainUtils.CountNonzeroDense(got))
	require.Equal(t, 0.0, plainUtils.Distance(plainUtils.RowFlatten(mask), plainUtils.RowFlatten(got)))
}

func TestKindMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTensors(&buf, map[string]*mat.Dense{"w": plainUtils.RandMatrix(2, 2)}))
	_, err := ReadMasks(&buf)
	require.Error(t, err)
}

func TestSaveLoadFiles(t *testing.T) {
	dir := t.TempDir()
	tensors := map[string]*mat.Dense{"w": plainUtils.RandMatrix(10, 10)}
	path := InitValuesPath(dir)
	require.False(t, Exists(path))
	require.NoError(t, SaveTensors(path, tensors))
	require.True(t, Exists(path))

	back, err := LoadTensors(path)
	require.NoError(t, err)
	require.Equal(t, 0.0, plainUtils.Distance(plainUtils.RowFlatten(tensors["w"]), plainUtils.RowFlatten(back["w"])))

	masks := map[string]*mat.Dense{"w": mat.NewDense(2, 2, []float64{1, 0, 0, 1})}
	require.NoError(t, SaveMasks(MaskPath(dir, 70.0, 100.0), masks))
	back2, err := LoadMasks(MaskPath(dir, 70.0, 100.0))
	require.NoError(t, err)
	require.Equal(t, 0.0, plainUtils.Distance(plainUtils.RowFlatten(masks["w"]), plainUtils.RowFlatten(back2["w"])))
}

func TestPaths(t *testing.T) {
	require.Equal(t, filepath.Join("run", "init_values.snap"), InitValuesPath("run"))
	require.Equal(t, filepath.Join("run", "total_grads.snap"), TotalGradsPath("run"))
	require.Equal(t, filepath.Join("run", "masks_70.snap"), MaskPath("run", 70.0, 100.0))
	require.Equal(t, filepath.Join("run", "masks_72.5_max95.snap"), MaskPath("run", 72.5, 95.0))
}

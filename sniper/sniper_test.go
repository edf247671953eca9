package sniper

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iamanigeeit/sniper/data"
	"github.com/iamanigeeit/sniper/network"
	"github.com/iamanigeeit/sniper/plainUtils"
	"github.com/iamanigeeit/sniper/schedule"
	"github.com/iamanigeeit/sniper/store"
	"github.com/iamanigeeit/sniper/utils"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func testActivations(t *testing.T) []utils.Activation {
	softRelu, err := utils.GetActivation("soft relu")
	require.NoError(t, err)
	identity, err := utils.GetActivation("identity")
	require.NoError(t, err)
	return []utils.Activation{softRelu, identity}
}

func testNet(t *testing.T, seed int64) network.NetworkI {
	net, err := network.NewRandomMLP([]int{4, 10, 3}, testActivations(t), seed)
	require.NoError(t, err)
	return net
}

func testData(t *testing.T) *data.Data {
	d := data.Synthetic(64, 4, 3, 1)
	require.NoError(t, d.Init(16))
	return d
}

func testConfig(t *testing.T, sched schedule.Schedule) *Config {
	cfg := DefaultConfig()
	cfg.Schedule = sched
	cfg.SniperDir = t.TempDir()
	//biases start at zero, so their importances are all zero too. Keep the
	//tests on the weights
	cfg.ExcludeParams = []string{"bias"}
	cfg.OptimLR = 0.1
	return cfg
}

func testTrainer(t *testing.T, cfg *Config, seed int64) *Trainer {
	tr, err := NewTrainer(cfg, testNet(t, seed), network.CategoricalCrossEntropy{})
	require.NoError(t, err)
	return tr
}

//nonzero count and size over the weight params only
func weightNonzeros(net network.NetworkI) (nonzero, numel int) {
	for _, p := range net.Params() {
		if strings.Contains(p.Name, "weight") {
			nonzero += plainUtils.CountNonzeroDense(p.W)
			numel += p.Size()
		}
	}
	return
}

//how many weights survive globally, computed the way the thresholding does
func expectKept(numel int, sparsity float64) int {
	return numel - int(sparsity/100.0*float64(numel))
}

func TestSetupCreatesArtifacts(t *testing.T) {
	cfg := testConfig(t, schedule.Schedule{0: 0.0, 2: 50.0, 4: 80.0})
	tr := testTrainer(t, cfg, 42)
	require.NoError(t, tr.Setup(testData(t)))

	require.True(t, store.Exists(store.InitValuesPath(cfg.SniperDir)))
	require.True(t, store.Exists(store.TotalGradsPath(cfg.SniperDir)))
	require.True(t, store.Exists(store.MaskPath(cfg.SniperDir, 50.0, 100.0)))
	require.True(t, store.Exists(store.MaskPath(cfg.SniperDir, 80.0, 100.0)))

	//start sparsity is 0, the network stays dense
	require.Equal(t, 0.0, tr.Sparsity())
	require.Equal(t, 0, tr.Epoch())
	nonzero, numel := weightNonzeros(tr.net)
	require.Equal(t, numel, nonzero)
}

func TestSetupAppliesStartSparsity(t *testing.T) {
	cfg := testConfig(t, schedule.Schedule{0: 60.0, 3: 80.0})
	tr := testTrainer(t, cfg, 42)
	require.NoError(t, tr.Setup(testData(t)))

	require.Equal(t, 60.0, tr.Sparsity())
	nonzero, numel := weightNonzeros(tr.net)
	require.Equal(t, expectKept(numel, 60.0), nonzero)
	//only weight masks, biases are excluded from pruning
	require.Len(t, tr.currentMasks, 2)
	require.Contains(t, tr.currentMasks, "dense_1.weight")
	require.Contains(t, tr.currentMasks, "dense_2.weight")
}

func TestSetupRestoresSavedInit(t *testing.T) {
	cfg := testConfig(t, schedule.Schedule{0: 0.0, 2: 50.0})
	tr := testTrainer(t, cfg, 42)
	init := tr.net.Snapshot()
	require.NoError(t, tr.Setup(testData(t)))

	gradsBefore, err := ioutil.ReadFile(store.TotalGradsPath(cfg.SniperDir))
	require.NoError(t, err)

	//a different model picking up the same dir gets put back at the saved
	//initial values, and nothing is recomputed
	tr2 := testTrainer(t, cfg, 777)
	require.NoError(t, tr2.Setup(testData(t)))
	for name, want := range init {
		require.True(t, mat.Equal(want, tr2.net.Param(name).W), name)
	}
	gradsAfter, err := ioutil.ReadFile(store.TotalGradsPath(cfg.SniperDir))
	require.NoError(t, err)
	require.Equal(t, gradsBefore, gradsAfter)
}

func TestStepOnlyOnScheduledEpochs(t *testing.T) {
	cfg := testConfig(t, schedule.Schedule{0: 0.0, 3: 60.0})
	tr := testTrainer(t, cfg, 42)
	require.NoError(t, tr.Setup(testData(t)))

	_, numel := weightNonzeros(tr.net)
	for epoch := 1; epoch <= 2; epoch++ {
		require.NoError(t, tr.Step())
		require.Equal(t, epoch, tr.Epoch())
		require.Equal(t, 0.0, tr.Sparsity())
		nonzero, _ := weightNonzeros(tr.net)
		require.Equal(t, numel, nonzero)
	}
	require.NoError(t, tr.Step())
	require.Equal(t, 3, tr.Epoch())
	require.Equal(t, 60.0, tr.Sparsity())
	nonzero, _ := weightNonzeros(tr.net)
	require.Equal(t, expectKept(numel, 60.0), nonzero)
}

func TestSparsityDropRevivesWeights(t *testing.T) {
	cfg := testConfig(t, schedule.Schedule{0: 0.0, 1: 50.0, 2: 0.0})
	tr := testTrainer(t, cfg, 42)
	require.NoError(t, tr.Setup(testData(t)))
	init := tr.net.Snapshot()

	require.NoError(t, tr.Step())
	nonzero, numel := weightNonzeros(tr.net)
	require.Equal(t, expectKept(numel, 50.0), nonzero)

	//dropping back to 0 revives every pruned weight at its initial value.
	//The net never trained, so it must equal the init snapshot exactly
	require.NoError(t, tr.Step())
	require.Equal(t, 0.0, tr.Sparsity())
	for name, want := range init {
		require.True(t, mat.Equal(want, tr.net.Param(name).W), name)
	}
}

func TestNoRestoreKeepsZeros(t *testing.T) {
	cfg := testConfig(t, schedule.Schedule{0: 0.0, 1: 50.0, 2: 0.0})
	cfg.RestoreInitValues = false
	tr := testTrainer(t, cfg, 42)
	require.NoError(t, tr.Setup(testData(t)))

	require.NoError(t, tr.Step())
	nonzero, numel := weightNonzeros(tr.net)
	require.Equal(t, expectKept(numel, 50.0), nonzero)

	//without restore the pruned weights stay at zero after the drop
	require.NoError(t, tr.Step())
	stillNonzero, _ := weightNonzeros(tr.net)
	require.Equal(t, nonzero, stillNonzero)
}

func TestGlobalLRScaling(t *testing.T) {
	cfg := testConfig(t, schedule.Schedule{0: 0.0, 1: 80.0})
	cfg.ScaleLR = true
	cfg.ScaleLRByParam = false
	tr := testTrainer(t, cfg, 42)
	require.NoError(t, tr.Setup(testData(t)))

	require.InDelta(t, 0.1, tr.LR("dense_1.weight"), 1e-12)
	require.NoError(t, tr.Step())
	//1/(1-0.8) = 5x on every param
	require.InDelta(t, 0.5, tr.LR("dense_1.weight"), 1e-12)
	require.InDelta(t, 0.5, tr.LR("dense_1.bias"), 1e-12)
}

func TestLRScalingCap(t *testing.T) {
	cfg := testConfig(t, schedule.Schedule{0: 0.0, 1: 80.0})
	cfg.ScaleLR = true
	cfg.ScaleLRByParam = false
	cfg.MaxLRScaling = 3.0
	tr := testTrainer(t, cfg, 42)
	require.NoError(t, tr.Setup(testData(t)))

	require.NoError(t, tr.Step())
	require.InDelta(t, 0.3, tr.LR("dense_1.weight"), 1e-12)
}

func TestPerParamLRScaling(t *testing.T) {
	//30% globally cannot empty either weight param, so both get a density
	cfg := testConfig(t, schedule.Schedule{0: 0.0, 1: 30.0})
	cfg.ScaleLR = true
	tr := testTrainer(t, cfg, 42)
	require.NoError(t, tr.Setup(testData(t)))
	require.NoError(t, tr.Step())

	//masked params scale by 1/density of their own mask
	for _, name := range []string{"dense_1.weight", "dense_2.weight"} {
		mask := tr.currentMasks[name]
		require.NotNil(t, mask)
		rows, cols := mask.Dims()
		density := float64(plainUtils.CountNonzeroDense(mask)) / float64(rows*cols)
		require.Greater(t, density, 0.0)
		require.InDelta(t, 0.1/density, tr.LR(name), 1e-12)
	}
	//params without a mask fall back to the global factor
	require.InDelta(t, 0.1/(1.0-0.3), tr.LR("dense_1.bias"), 1e-12)
}

func TestLRResetOnSparsityDrop(t *testing.T) {
	cfg := testConfig(t, schedule.Schedule{0: 0.0, 1: 70.0, 2: 0.0})
	cfg.ScaleLR = true
	cfg.ScaleLRByParam = false
	tr := testTrainer(t, cfg, 42)
	require.NoError(t, tr.Setup(testData(t)))

	require.NoError(t, tr.Step())
	require.Greater(t, tr.LR("dense_1.weight"), 0.1)
	require.NoError(t, tr.Step())
	require.InDelta(t, 0.1, tr.LR("dense_1.weight"), 1e-12)
}

func TestResume(t *testing.T) {
	cfg := testConfig(t, schedule.Schedule{0: 0.0, 2: 70.0})
	tr := testTrainer(t, cfg, 42)
	require.NoError(t, tr.Setup(testData(t)))

	resumed := *cfg
	resumed.ResumeEpoch = 5
	tr2 := testTrainer(t, &resumed, 42)
	require.NoError(t, tr2.Setup(testData(t)))

	//epoch 5 sits past the last scheduled epoch, so sparsity 70 is in force
	require.Equal(t, 5, tr2.Epoch())
	require.Equal(t, 70.0, tr2.Sparsity())
	nonzero, numel := weightNonzeros(tr2.net)
	require.Equal(t, expectKept(numel, 70.0), nonzero)
}

func TestTrainEpochKeepsMasksOn(t *testing.T) {
	cfg := testConfig(t, schedule.Schedule{0: 60.0})
	tr := testTrainer(t, cfg, 42)
	d := testData(t)
	require.NoError(t, tr.Setup(d))

	_, numel := weightNonzeros(tr.net)
	kept := expectKept(numel, 60.0)

	first, err := tr.TrainEpoch(d)
	require.NoError(t, err)
	last := first
	for epoch := 1; epoch < 10; epoch++ {
		require.NoError(t, tr.Step())
		last, err = tr.TrainEpoch(d)
		require.NoError(t, err)
		nonzero, _ := weightNonzeros(tr.net)
		require.Equal(t, kept, nonzero)
	}
	//the surviving subnetwork still learns
	require.Less(t, last.Loss/float64(last.Iters), first.Loss/float64(first.Iters))

	stats, err := tr.Evaluate(d)
	require.NoError(t, err)
	require.Greater(t, stats.Accuracy/float64(stats.Iters), 0.25)
}

func TestWillPrune(t *testing.T) {
	exclude := []string{"embed", "norm"}
	require.True(t, willPrune("dense_1.weight", exclude))
	require.False(t, willPrune("embed.weight", exclude))
	require.False(t, willPrune("layer_norm.bias", exclude))
	require.True(t, willPrune("anything", nil))
}

func TestReadConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
		"schedule": {"0": 0, "5": 70},
		"sniper_dir": "runs/test",
		"scale_lr": true,
		"restore_init_values": false
	}`
	require.NoError(t, ioutil.WriteFile(path, []byte(raw), 0644))

	cfg := ReadConfig(path)
	require.NoError(t, cfg.Validate())
	require.Equal(t, 70.0, cfg.Schedule[5])
	require.True(t, cfg.ScaleLR)
	require.False(t, cfg.RestoreInitValues)
	//absent fields keep their defaults
	require.Equal(t, 100.0, cfg.MaxParamSparsity)
	require.True(t, cfg.ScaleLRByParam)
	require.Equal(t, []string{"embed", "norm"}, cfg.ExcludeParams)
	require.Equal(t, 0.01, cfg.OptimLR)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Schedule = schedule.Schedule{0: 0.0}
	require.Error(t, cfg.Validate()) //no sniper_dir
	cfg.SniperDir = "runs/test"
	require.NoError(t, cfg.Validate())
	cfg.OptimLR = -1.0
	require.Error(t, cfg.Validate())
}

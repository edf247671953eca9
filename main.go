package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/iamanigeeit/sniper/data"
	"github.com/iamanigeeit/sniper/maskUtils"
	"github.com/iamanigeeit/sniper/network"
	"github.com/iamanigeeit/sniper/schedule"
	"github.com/iamanigeeit/sniper/sniper"
	"github.com/iamanigeeit/sniper/utils"
)

func main() {

	//toy end to end run: gaussian blobs in, an mlp that starts 80% pruned
	//and relaxes to dense as the schedule steps down

	features := 16
	labels := 4
	samples := 512
	batchSize := 32
	epochs := 12

	d := data.Synthetic(samples, features, labels, 0)
	utils.ThrowErr(d.Init(batchSize))

	softRelu, err := utils.GetActivation("soft relu")
	utils.ThrowErr(err)
	identity, err := utils.GetActivation("identity")
	utils.ThrowErr(err)
	dims := []int{features, 64, 32, labels}
	net, err := network.NewRandomMLP(dims, []utils.Activation{softRelu, softRelu, identity}, 42)
	utils.ThrowErr(err)

	cfg := sniper.DefaultConfig()
	cfg.Schedule = schedule.Linear(80.0, 0.0, 8, 2)
	cfg.SniperDir = "runs/demo"
	cfg.ExcludeParams = []string{"bias"}
	cfg.ScaleLR = true
	cfg.MaxLRScaling = 3.0
	cfg.OptimLR = 0.1
	cfg.PoolSize = 4
	fmt.Printf("Schedule: %s\n", cfg.Schedule.String())

	trainer, err := sniper.NewTrainer(cfg, net, network.CategoricalCrossEntropy{})
	utils.ThrowErr(err)
	utils.ThrowErr(trainer.Setup(d))

	for e := 0; e < epochs; e++ {
		now := time.Now()
		stats, err := trainer.TrainEpoch(d)
		utils.ThrowErr(err)
		fmt.Printf("Epoch %d: sparsity %g, avg loss %f, took %s\n",
			e, trainer.Sparsity(), stats.Loss/float64(stats.Iters), time.Since(now))
		utils.ThrowErr(trainer.Step())
	}

	stats, err := trainer.Evaluate(d)
	utils.ThrowErr(err)
	stats.PrintResult()
	trainer.Report().Print()
	utils.ThrowErr(net.Save("runs/demo/model_final.json"))

	//one shot pruning of the same trained weights, for comparison
	baseline, err := network.NewRandomMLP(dims, []utils.Activation{softRelu, softRelu, identity}, 42)
	utils.ThrowErr(err)
	baseline.Restore(net.Snapshot())
	weights := []*network.Param{}
	for _, p := range baseline.Params() {
		if strings.Contains(p.Name, "weight") {
			weights = append(weights, p)
		}
	}
	maskUtils.GlobalPrune(weights, 0.8)
	blTrainer, err := sniper.NewTrainer(cfg, baseline, network.CategoricalCrossEntropy{})
	utils.ThrowErr(err)
	blStats, err := blTrainer.Evaluate(d)
	utils.ThrowErr(err)
	fmt.Println("//////////////////////////")
	fmt.Printf("Progressive 80 -> 0: accuracy %f\n", stats.Accuracy/float64(stats.Iters))
	fmt.Printf("One shot at 80%%: accuracy %f\n", blStats.Accuracy/float64(blStats.Iters))
}

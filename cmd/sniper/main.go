package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/akamensky/argparse"
	"github.com/cheggaaa/pb/v3"
	"github.com/emer/empi/mpi"
	"github.com/iamanigeeit/sniper/data"
	"github.com/iamanigeeit/sniper/network"
	"github.com/iamanigeeit/sniper/sniper"
	"github.com/iamanigeeit/sniper/utils"
)

func parseDims(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	dims := make([]int, len(parts))
	for i, part := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("bad dim %q: %v", part, err)
		}
		dims[i] = d
	}
	return dims, nil
}

func lossByName(name string) (network.Loss, error) {
	switch name {
	case "", "cross entropy":
		return network.CategoricalCrossEntropy{}, nil
	case "mean squared":
		return network.MeanSquared{}, nil
	}
	return nil, fmt.Errorf("unknown loss %q", name)
}

//every rank keeps its own contiguous slice of the samples, so the
//importance pass splits across the world and AllReduce stitches it back
func shardData(d *data.Data, rank, size int) *data.Data {
	n := len(d.Y)
	chunk := n / size
	i := rank * chunk
	j := i + chunk
	if rank == size-1 {
		j = n
	}
	shard := &data.Data{X: d.X[i:j], Y: d.Y[i:j], Labels: d.NumLabels()}
	return shard
}

func main() {
	parser := argparse.NewParser("sniper", "progressive sparsity training")

	configfile := parser.String("c", "config", &argparse.Options{Required: true, Help: "Pruning config json."})
	datafile := parser.String("d", "data", &argparse.Options{Required: true, Help: "Dataset json."})
	modelfile := parser.String("m", "model", &argparse.Options{Help: "Model json to start from. Omit to train from random init."})
	dims := parser.String("", "dims", &argparse.Options{Help: "Layer sizes for a random model, e.g 784,92,10."})
	outfile := parser.String("o", "out", &argparse.Options{Help: "Where to save the final model json."})
	logfile := parser.String("", "log", &argparse.Options{Help: "Where to write the per-epoch tsv log."})
	lossname := parser.String("l", "loss", &argparse.Options{Help: "Loss: cross entropy (default) or mean squared."})
	epochs := parser.Int("e", "epochs", &argparse.Options{Help: "Training epochs. Default 10."})
	batch := parser.Int("b", "batch", &argparse.Options{Help: "Batch size. Default 32."})
	seed := parser.Int("s", "seed", &argparse.Options{Help: "Seed for a random model. Default 42."})
	useMPI := parser.Flag("", "mpi", &argparse.Options{Help: "Accumulate importances across mpi ranks."})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		panic("Error parsing arguments")
	}
	if *epochs == 0 {
		*epochs = 10
	}
	if *batch == 0 {
		*batch = 32
	}
	if *seed == 0 {
		*seed = 42
	}

	var comm *mpi.Comm
	if *useMPI {
		mpi.Init()
		defer mpi.Finalize()
		var err error
		comm, err = mpi.NewComm(nil) //use all procs
		if err != nil {
			log.Println(err)
			comm = nil
		} else {
			mpi.Printf("MPI running on %d procs\n", mpi.WorldSize())
		}
	}

	d := data.LoadData(*datafile)
	utils.ThrowErr(d.Init(*batch))

	var net network.NetworkI
	var err error
	if *modelfile != "" {
		loader := &network.MLPLoader{}
		net, err = loader.Load(*modelfile)
		utils.ThrowErr(err)
	} else {
		if *dims == "" {
			panic("need either --model or --dims")
		}
		layerDims, err := parseDims(*dims)
		utils.ThrowErr(err)
		softRelu, err := utils.GetActivation("soft relu")
		utils.ThrowErr(err)
		identity, err := utils.GetActivation("identity")
		utils.ThrowErr(err)
		activations := make([]utils.Activation, len(layerDims)-1)
		for i := range activations {
			activations[i] = softRelu
		}
		activations[len(activations)-1] = identity
		net, err = network.NewRandomMLP(layerDims, activations, int64(*seed))
		utils.ThrowErr(err)
	}

	loss, err := lossByName(*lossname)
	utils.ThrowErr(err)

	cfg := sniper.ReadConfig(*configfile)
	trainer, err := sniper.NewTrainer(cfg, net, loss)
	utils.ThrowErr(err)
	trainer.Comm = comm

	//progress bar over the importance accumulation, on rank 0 only
	if comm == nil || mpi.WorldRank() == 0 {
		var bar *pb.ProgressBar
		trainer.Progress = func(done, total int) {
			if bar == nil {
				bar = pb.StartNew(total)
			}
			bar.Increment()
			if done == total {
				bar.Finish()
			}
		}
	}

	snipData := d
	if comm != nil {
		snipData = shardData(d, mpi.WorldRank(), mpi.WorldSize())
		utils.ThrowErr(snipData.Init(*batch))
	}
	utils.ThrowErr(trainer.Setup(snipData))

	var logw *os.File
	if (comm == nil || mpi.WorldRank() == 0) && *logfile != "" {
		logw, err = os.Create(*logfile)
		utils.ThrowErr(err)
		fmt.Fprintf(logw, "epoch\tsparsity\tloss\ttime_ms\n")
		defer logw.Close()
	}

	for e := 0; e < *epochs; e++ {
		stats, err := trainer.TrainEpoch(d)
		utils.ThrowErr(err)
		avgLoss := stats.Loss / float64(stats.Iters)
		mpi.Printf("Epoch %d: sparsity %g, avg loss %f\n", e, trainer.Sparsity(), avgLoss)
		if logw != nil {
			fmt.Fprintf(logw, "%d\t%g\t%f\t%d\n", e, trainer.Sparsity(), avgLoss, stats.Time)
		}
		utils.ThrowErr(trainer.Step())
	}

	stats, err := trainer.Evaluate(d)
	utils.ThrowErr(err)
	if comm == nil || mpi.WorldRank() == 0 {
		stats.PrintResult()
		trainer.Report().Print()
		if *outfile != "" {
			utils.ThrowErr(net.Save(*outfile))
			mpi.Printf("Saved final model to %s\n", *outfile)
		}
	}
}

package main

import (
	"fmt"
	"math"
	"os"

	"github.com/akamensky/argparse"
	"github.com/iamanigeeit/sniper/sniper"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

func main() {
	parser := argparse.NewParser("schedplot", "plots a sparsity schedule and its lr scaling")

	configfile := parser.String("c", "config", &argparse.Options{Required: true, Help: "Pruning config json."})
	outfile := parser.String("o", "out", &argparse.Options{Help: "Output image. Default schedule.png."})
	horizon := parser.Int("e", "epochs", &argparse.Options{Help: "Epochs to plot. Default: last scheduled + 5."})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		panic("Error parsing arguments")
	}
	if *outfile == "" {
		*outfile = "schedule.png"
	}

	cfg := sniper.ReadConfig(*configfile)
	if err := cfg.Schedule.Validate(); err != nil {
		panic(err)
	}
	if *horizon == 0 {
		epochs := cfg.Schedule.Epochs()
		*horizon = epochs[len(epochs)-1] + 5
	}

	sparsities := make(plotter.XYs, *horizon+1)
	factors := make(plotter.XYs, *horizon+1)
	for e := 0; e <= *horizon; e++ {
		s := cfg.Schedule.At(e)
		sparsities[e].X = float64(e)
		sparsities[e].Y = s
		factors[e].X = float64(e)
		factors[e].Y = math.Min(cfg.MaxLRScaling, 1.0/(1.0-s/100.0))
	}

	p, err := plot.New()
	if err != nil {
		panic(err)
	}
	p.Title.Text = fmt.Sprintf("Schedule %s", cfg.Schedule.String())
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = "Sparsity % / LR factor"

	err = plotutil.AddLinePoints(p,
		"Sparsity", sparsities,
		"LR factor", factors)
	if err != nil {
		panic(err)
	}

	if err := p.Save(10*vg.Inch, 6*vg.Inch, *outfile); err != nil {
		panic(err)
	}
	fmt.Println("Saved plot to", *outfile)
}

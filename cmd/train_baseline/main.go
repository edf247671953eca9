package main

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/akamensky/argparse"
	til "github.com/tuneinsight/tilearn"
	tim "github.com/tuneinsight/timatrices"

	"github.com/iamanigeeit/sniper/data"
	"github.com/iamanigeeit/sniper/network"
	"github.com/iamanigeeit/sniper/utils"
)

func softrelu(x float64) float64 {
	// beta = 20
	if x > -20 && x < 20 {
		return math.Log(1 + math.Exp(x))
	} else {
		if x > 0 {
			return x
		} else {
			return 0
		}
	}
}

func sigmoid(x float64) float64 {
	return 1 / (math.Exp(-x) + 1)
}

type SoftRelu struct{}

func (act *SoftRelu) Forward(threads int, outRaw, outActiv *tim.FloatMatrix) {
	outActiv.Func(threads, outRaw, softrelu)
}

func (act *SoftRelu) Backward(threads int, outRaw, errWeights *tim.FloatMatrix) {
	errWeights.FuncAndDot(threads, outRaw, sigmoid)
}

func idxMaxList(s []float64) (idx int) {
	var max float64
	for i, c := range s {
		if c > max {
			max = c
			idx = i
		}
	}

	return
}

func evaluateModelArgMax(model *til.Model, XTest, YTest [][]float64) {
	var TP, FP int

	dataSetTest := til.NewDataSet(XTest, nil)

	pred := model.Predict(dataSetTest)

	for j := 0; j < len(YTest); j++ {

		want := int(YTest[j][0])
		have := idxMaxList(pred[j])

		if have == want {
			TP++
		} else {
			FP++
		}
	}

	fmt.Println("Accuracy", float64(TP)/float64(TP+FP))
	fmt.Println()
}

func parseDims(s string) []int {
	parts := strings.Split(s, ",")
	dims := make([]int, len(parts))
	for i, part := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(part))
		utils.ThrowErr(err)
		dims[i] = d
	}
	return dims
}

//dumps the trained layers in the json format the pruning side loads
func serialize(model *til.Model, path string) error {
	serialized := network.NetworkJ{}
	for i, layer := range model.Layers {
		w := layer.Weights()
		b := layer.Bias()
		serialized.Layers = append(serialized.Layers, utils.Layer{
			Weight: utils.Kernel{W: w.M, Rows: w.Rows(), Cols: w.Cols()},
			Bias:   utils.Bias{B: b.M, Len: len(b.M)},
		})
		if i == len(model.Layers)-1 {
			serialized.Activations = append(serialized.Activations, "identity")
		} else {
			serialized.Activations = append(serialized.Activations, "soft relu")
		}
	}
	serialized.NumLayers = len(serialized.Layers)
	buf, err := json.Marshal(&serialized)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, buf, 0755)
}

//converts csv samples to the dataset json the pruning side reads
func exportData(X, Y [][]float64, classes int, path string) error {
	d := &data.Data{X: X, Y: make([]int, len(Y)), Labels: classes}
	for j := range Y {
		d.Y[j] = int(Y[j][0])
	}
	return d.Save(path)
}

func main() {
	parser := argparse.NewParser("train_baseline", "trains a dense model to prune later")

	trainfile := parser.String("t", "train", &argparse.Options{Required: true, Help: "Training csv with a label column."})
	testfile := parser.String("v", "test", &argparse.Options{Required: true, Help: "Test csv with a label column."})
	dimstr := parser.String("", "dims", &argparse.Options{Required: true, Help: "Layer sizes, e.g 784,92,10."})
	outfile := parser.String("o", "out", &argparse.Options{Required: true, Help: "Where to save the model json."})
	datafile := parser.String("d", "export-data", &argparse.Options{Help: "Also save the test samples as dataset json."})
	epochs := parser.Int("e", "epochs", &argparse.Options{Help: "Training epochs. Default 20."})
	threads := parser.Int("", "threads", &argparse.Options{Help: "Worker threads. Default 8."})
	scale := parser.Flag("", "scale", &argparse.Options{Help: "Scale features by 1/255, for image bytes."})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		panic("Error parsing arguments")
	}
	if *epochs == 0 {
		*epochs = 20
	}
	if *threads == 0 {
		*threads = 8
	}

	rules := til.Rule{
		WithHeader:   true,
		FieldsToDrop: []string{},
		Labels:       []string{"label"},
	}

	XTrain, YTrain, err := til.CSVToSamples(*trainfile, rules)
	utils.ThrowErr(err)
	XTest, YTest, err := til.CSVToSamples(*testfile, rules)
	utils.ThrowErr(err)

	if *scale {
		for i := range XTrain {
			til.Scale(XTrain[i], 1.0/255.0)
		}
		for i := range XTest {
			til.Scale(XTest[i], 1.0/255.0)
		}
	}

	validationsplit := float64(len(XTest)) / float64(len(XTrain)+len(XTest))

	dims := parseDims(*dimstr)
	classes := dims[len(dims)-1]
	batchSize := 32
	Y1HTrain := til.OneHotEncode(YTrain, classes)

	dataSetTrain := til.NewDataSet(append(XTrain, XTest...), append(Y1HTrain, til.OneHotEncode(YTest, classes)...))

	heNormal := til.NewNormalInitializer(8)
	loss := &til.CategoricalCrossEntropy{}
	optimizer := til.NewADAM(0.001, 0.9, 0.999, 1e-8)
	regularizerL1L2 := &til.L1L2Regularizer{Value: 1e-3, L1Ratio: 0.5}
	activation := &SoftRelu{}
	fmt.Println("Optimizer = Adam, Regularizer = l1l2, Act = soft relu")

	model := til.NewModel(*threads, optimizer, loss)
	for i := 0; i < len(dims)-2; i++ {
		model.Add(til.NewDense(dims[i], dims[i+1], activation, heNormal, regularizerL1L2))
	}
	model.Add(til.NewDense(dims[len(dims)-2], classes, &til.Identity{}, heNormal, regularizerL1L2))
	model.SetVerbose(1)
	model.Train(dataSetTrain, batchSize, *epochs, validationsplit)

	evaluateModelArgMax(model, XTest, YTest)

	utils.ThrowErr(serialize(model, *outfile))
	fmt.Println("Saved model to", *outfile)

	if *datafile != "" {
		utils.ThrowErr(exportData(XTest, YTest, classes, *datafile))
		fmt.Println("Saved dataset to", *datafile)
	}
}

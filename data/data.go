package data

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"math"
	"math/rand"
	"os"

	"github.com/iamanigeeit/sniper/plainUtils"
	"github.com/iamanigeeit/sniper/utils"
	"gonum.org/v1/gonum/mat"
)

type Data struct {
	X            [][]float64 `json:"X"`
	Y            []int       `json:"Y"`
	Labels       int         `json:"labels,omitempty"`
	BatchSize    int
	NumBatches   int
	CurrentBatch int
}

func LoadData(path string) *Data {
	jsonFile, err := os.Open(path)
	utils.ThrowErr(err)
	defer jsonFile.Close()
	byteValue, err := ioutil.ReadAll(jsonFile)
	utils.ThrowErr(err)

	var res Data
	utils.ThrowErr(json.Unmarshal(byteValue, &res))
	return &res
}

func (data *Data) Save(path string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, raw, 0644)
}

func (data *Data) Init(batchSize int) error {
	if batchSize <= 0 || batchSize > len(data.Y) {
		return errors.New("batch size out of range")
	}
	data.BatchSize = batchSize
	totData := len(data.Y)
	data.NumBatches = int(math.Floor(float64(totData) / float64(batchSize)))
	data.CurrentBatch = 0
	return nil
}

func (data *Data) Batch() ([][]float64, []int, error) {
	if data.CurrentBatch < data.NumBatches {
		i := data.CurrentBatch * data.BatchSize
		j := (data.CurrentBatch + 1) * data.BatchSize
		Xbatch := data.X[i:j]
		Y := data.Y[i:j]
		data.CurrentBatch += 1
		return Xbatch, Y, nil
	}
	//last batch is incomplete
	return nil, nil, errors.New("No more complete batches")
}

//BatchDense returns the next batch as matrices: features and one-hot labels
func (data *Data) BatchDense() (*mat.Dense, *mat.Dense, []int, error) {
	Xbatch, Y, err := data.Batch()
	if err != nil {
		return nil, nil, nil, err
	}
	return plainUtils.NewDense(Xbatch), OneHot(Y, data.NumLabels()), Y, nil
}

//rewinds to the first batch, e.g at the start of a new epoch
func (data *Data) Reset() {
	data.CurrentBatch = 0
}

func (data *Data) NumLabels() int {
	if data.Labels > 0 {
		return data.Labels
	}
	max := 0
	for _, y := range data.Y {
		max = plainUtils.Max(max, y)
	}
	return max + 1
}

func OneHot(Y []int, labels int) *mat.Dense {
	m := mat.NewDense(len(Y), labels, nil)
	for i, y := range Y {
		m.Set(i, y, 1.0)
	}
	return m
}

//Synthetic builds a gaussian blob classification set: one cluster center per
//label, samples scattered around it. Deterministic given the seed
func Synthetic(n, features, labels int, seed int64) *Data {
	rng := rand.New(rand.NewSource(seed))
	centers := make([][]float64, labels)
	for k := range centers {
		centers[k] = make([]float64, features)
		for j := range centers[k] {
			centers[k][j] = 2.0 * rng.NormFloat64()
		}
	}
	d := &Data{
		X:      make([][]float64, n),
		Y:      make([]int, n),
		Labels: labels,
	}
	for i := 0; i < n; i++ {
		y := rng.Intn(labels)
		x := make([]float64, features)
		for j := range x {
			x[j] = centers[y][j] + 0.5*rng.NormFloat64()
		}
		d.X[i] = x
		d.Y[i] = y
	}
	return d
}

package network

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/iamanigeeit/sniper/utils"
	"gonum.org/v1/gonum/mat"
)

//Param is a named tensor of a network. Names are stable across runs so that
//masks and snapshots saved to disk can be matched back to the model
type Param struct {
	Name string
	W    *mat.Dense
}

func (p *Param) Size() int {
	r, c := p.W.Dims()
	return r * c
}

//Network with named parameters that can be trained and pruned
type NetworkI interface {
	//all params, weights and biases, in a fixed order
	Params() []*Param
	Param(name string) *Param
	Forward(X *mat.Dense) *mat.Dense
	//gradients of loss wrt every param for one batch, plus the loss value
	Gradients(X, Y *mat.Dense, loss Loss) (map[string]*mat.Dense, float64)
	//sgd update. lr gives the learning rate per param name
	ApplyGradients(grads map[string]*mat.Dense, lr func(name string) float64)
	//deep copy of all param values
	Snapshot() map[string]*mat.Dense
	Restore(values map[string]*mat.Dense)
	GetNumOfLayers() int
	Save(path string) error
}

//Custom Network Loader.
//Exposes the method Load to load a model from file
type NetworkLoader interface {
	Load(path string) (NetworkI, error)
}

//NetworkJ wrapper for the json struct
type NetworkJ struct {
	Layers      []utils.Layer `json:"layers"`
	Activations []string      `json:"activations,omitempty"`
	NumLayers   int           `json:"numLayers,omitempty"`
}

type MLPLoader struct{}

//Load reads a json model. When the file carries no activation names the
//hidden layers default to soft relu with an identity output layer
func (l *MLPLoader) Load(path string) (NetworkI, error) {
	jsonFile, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer jsonFile.Close()
	byteValue, err := ioutil.ReadAll(jsonFile)
	if err != nil {
		return nil, err
	}

	var res NetworkJ
	if err = json.Unmarshal(byteValue, &res); err != nil {
		return nil, err
	}
	if len(res.Layers) == 0 {
		return nil, fmt.Errorf("no layers in %s", path)
	}

	names := res.Activations
	if len(names) == 0 {
		names = defaultActivations(len(res.Layers))
	}
	if len(names) != len(res.Layers) {
		return nil, fmt.Errorf("%d layers but %d activations", len(res.Layers), len(names))
	}
	activations := make([]utils.Activation, len(names))
	for i, name := range names {
		if activations[i], err = utils.GetActivation(name); err != nil {
			return nil, err
		}
	}
	return NewMLP(res.Layers, activations)
}

func defaultActivations(layers int) []string {
	names := make([]string, layers)
	for i := 0; i < layers-1; i++ {
		names[i] = "soft relu"
	}
	names[layers-1] = "identity"
	return names
}

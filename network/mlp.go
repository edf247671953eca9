package network

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"math"

	"github.com/iamanigeeit/sniper/plainUtils"
	"github.com/iamanigeeit/sniper/utils"
	"gonum.org/v1/gonum/mat"
)

//MLP is a stack of dense layers. Implements NetworkI
type MLP struct {
	weights     []*mat.Dense //layer l: in x out
	biases      []*mat.Dense //layer l: 1 x out
	activations []utils.Activation
}

func NewMLP(layers []utils.Layer, activations []utils.Activation) (*MLP, error) {
	if len(layers) != len(activations) {
		return nil, fmt.Errorf("%d layers but %d activations", len(layers), len(activations))
	}
	n := new(MLP)
	n.activations = activations
	for i := range layers {
		w := layers[i].BuildWeight()
		b := layers[i].BuildBias(1)
		if i > 0 {
			if plainUtils.NumCols(n.weights[i-1]) != plainUtils.NumRows(w) {
				return nil, fmt.Errorf("layer %d: output dim %d does not match input dim %d",
					i, plainUtils.NumCols(n.weights[i-1]), plainUtils.NumRows(w))
			}
		}
		n.weights = append(n.weights, w)
		n.biases = append(n.biases, b)
	}
	return n, nil
}

//NewRandomMLP builds an MLP with gaussian weights scaled by 1/sqrt(fan-in)
//and zero biases. dims lists the layer sizes, e.g {784, 92, 10}
func NewRandomMLP(dims []int, activations []utils.Activation, seed int64) (*MLP, error) {
	if len(dims) < 2 {
		return nil, fmt.Errorf("need at least input and output dims")
	}
	layers := make([]utils.Layer, len(dims)-1)
	for i := 0; i < len(dims)-1; i++ {
		sd := 1.0 / math.Sqrt(float64(dims[i]))
		w := plainUtils.RandnMatrix(dims[i], dims[i+1], sd, seed+int64(i))
		b := mat.NewDense(1, dims[i+1], nil)
		layers[i] = utils.NewLayer(w, b)
	}
	return NewMLP(layers, activations)
}

func weightName(layer int) string {
	return fmt.Sprintf("dense_%d.weight", layer+1)
}

func biasName(layer int) string {
	return fmt.Sprintf("dense_%d.bias", layer+1)
}

func (n *MLP) Params() []*Param {
	params := make([]*Param, 0, 2*len(n.weights))
	for l := range n.weights {
		params = append(params, &Param{Name: weightName(l), W: n.weights[l]})
		params = append(params, &Param{Name: biasName(l), W: n.biases[l]})
	}
	return params
}

func (n *MLP) Param(name string) *Param {
	for _, p := range n.Params() {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (n *MLP) GetNumOfLayers() int {
	return len(n.weights)
}

//Returns array of rows and cols of weights
func (n *MLP) GetDimensions() ([]int, []int) {
	rows, cols := make([]int, len(n.weights)), make([]int, len(n.weights))
	for i := range n.weights {
		rows[i], cols[i] = n.weights[i].Dims()
	}
	return rows, cols
}

func (n *MLP) Forward(X *mat.Dense) *mat.Dense {
	_, As := n.forward(X)
	return As[len(As)-1]
}

//forward pass keeping the pre-activations and activations of every layer
func (n *MLP) forward(X *mat.Dense) (Zs, As []*mat.Dense) {
	A := mat.DenseCopyOf(X)
	As = append(As, A)
	for l := range n.weights {
		Z := new(mat.Dense)
		Z.Mul(A, n.weights[l])
		addBias(Z, n.biases[l])
		Anext := plainUtils.ApplyFuncDense(n.activations[l].F, Z)
		Zs = append(Zs, Z)
		As = append(As, Anext)
		A = Anext
	}
	return Zs, As
}

//adds the 1 x cols bias to every row of Z
func addBias(Z, bias *mat.Dense) {
	for i := 0; i < plainUtils.NumRows(Z); i++ {
		for j := 0; j < plainUtils.NumCols(Z); j++ {
			Z.Set(i, j, Z.At(i, j)+bias.At(0, j))
		}
	}
}

func (n *MLP) Gradients(X, Y *mat.Dense, loss Loss) (map[string]*mat.Dense, float64) {
	Zs, As := n.forward(X)
	pred := As[len(As)-1]
	lossVal := loss.Loss(pred, Y)
	delta := loss.Grad(pred, Y)

	grads := make(map[string]*mat.Dense, 2*len(n.weights))
	for l := len(n.weights) - 1; l >= 0; l-- {
		//dL/dZ = dL/dA ⊙ act'(Z)
		dZ := plainUtils.ApplyFuncDense(n.activations[l].Deriv, Zs[l])
		dZ.MulElem(dZ, delta)

		gw := new(mat.Dense)
		gw.Mul(As[l].T(), dZ)
		grads[weightName(l)] = gw
		grads[biasName(l)] = colSums(dZ)

		if l > 0 {
			prev := new(mat.Dense)
			prev.Mul(dZ, n.weights[l].T())
			delta = prev
		}
	}
	return grads, lossVal
}

func colSums(m *mat.Dense) *mat.Dense {
	sums := mat.NewDense(1, plainUtils.NumCols(m), nil)
	for j := 0; j < plainUtils.NumCols(m); j++ {
		s := 0.0
		for i := 0; i < plainUtils.NumRows(m); i++ {
			s += m.At(i, j)
		}
		sums.Set(0, j, s)
	}
	return sums
}

func (n *MLP) ApplyGradients(grads map[string]*mat.Dense, lr func(name string) float64) {
	for _, p := range n.Params() {
		g, ok := grads[p.Name]
		if !ok {
			continue
		}
		scaled := new(mat.Dense)
		scaled.Scale(lr(p.Name), g)
		p.W.Sub(p.W, scaled)
	}
}

func (n *MLP) Snapshot() map[string]*mat.Dense {
	values := make(map[string]*mat.Dense, 2*len(n.weights))
	for _, p := range n.Params() {
		values[p.Name] = mat.DenseCopyOf(p.W)
	}
	return values
}

func (n *MLP) Restore(values map[string]*mat.Dense) {
	for _, p := range n.Params() {
		v, ok := values[p.Name]
		if !ok {
			continue
		}
		r1, c1 := p.W.Dims()
		r2, c2 := v.Dims()
		if r1 != r2 || c1 != c2 {
			panic(fmt.Errorf("restore %s: have %dx%d, snapshot is %dx%d", p.Name, r1, c1, r2, c2))
		}
		p.W.Copy(v)
	}
}

func (n *MLP) Save(path string) error {
	res := NetworkJ{NumLayers: len(n.weights)}
	for l := range n.weights {
		res.Layers = append(res.Layers, utils.NewLayer(n.weights[l], n.biases[l]))
		res.Activations = append(res.Activations, n.activations[l].Name)
	}
	raw, err := json.MarshalIndent(&res, "", " ")
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, raw, 0644)
}

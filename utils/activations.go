package utils

import (
	"fmt"
	"math"
	"strings"
)

func ReLU(x float64) float64 {
	if x > 0 {
		return x
	} else {
		return 0.0
	}
}

func ReLUDeriv(x float64) float64 {
	if x > 0 {
		return 1.0
	} else {
		return 0.0
	}
}

func SoftReLu(x float64) float64 {
	return math.Log(1 + math.Exp(x))
}

//derivative of soft relu is the sigmoid
func SoftReLuDeriv(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func SigmoidDeriv(x float64) float64 {
	s := Sigmoid(x)
	return s * (1.0 - s)
}

func Identity(x float64) float64 {
	return x
}

func Unit(x float64) float64 {
	return 1.0
}

//An activation function with its derivative, needed for backprop
type Activation struct {
	Name  string
	F     func(float64) float64
	Deriv func(float64) float64
}

func GetActivation(name string) (Activation, error) {
	switch strings.ToLower(name) {
	case "relu":
		return Activation{Name: "relu", F: ReLU, Deriv: ReLUDeriv}, nil
	case "soft relu", "softrelu":
		return Activation{Name: "soft relu", F: SoftReLu, Deriv: SoftReLuDeriv}, nil
	case "sigmoid":
		return Activation{Name: "sigmoid", F: Sigmoid, Deriv: SigmoidDeriv}, nil
	case "identity", "linear":
		return Activation{Name: "identity", F: Identity, Deriv: Unit}, nil
	}
	return Activation{}, fmt.Errorf("unknown activation: %s", name)
}

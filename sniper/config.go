package sniper

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"os"
	"strings"

	"github.com/iamanigeeit/sniper/schedule"
	"github.com/iamanigeeit/sniper/utils"
)

//Config drives a pruning run. Json example:
//
//	{
//	  "schedule": {"0": 0, "2": 50, "5": 70},
//	  "sniper_dir": "runs/demo",
//	  "max_param_sparsity": 95,
//	  "scale_lr": true,
//	  "optim_lr": 0.05
//	}
type Config struct {
	//epoch to sparsity percentage, epoch 0 required
	Schedule schedule.Schedule `json:"schedule"`
	//where snapshots, importances and masks live
	SniperDir string `json:"sniper_dir"`
	//no single param may get sparser than this percentage
	MaxParamSparsity float64 `json:"max_param_sparsity,omitempty"`
	//params whose name contains any of these substrings are never pruned
	ExcludeParams []string `json:"exclude_params,omitempty"`
	//masks are multiplied into the weights during training
	ForwardMask bool `json:"forward_mask"`
	//weights revived by a sparsity drop restart from their initial values
	//instead of 0
	RestoreInitValues bool `json:"restore_init_values"`
	//scale the global learning rate by 1/(1-sparsity)
	ScaleLR bool `json:"scale_lr,omitempty"`
	//scale each masked param's learning rate by 1/density instead
	ScaleLRByParam bool `json:"scale_lr_by_param"`
	//cap for either scaling factor
	MaxLRScaling float64 `json:"max_lr_scaling,omitempty"`
	//base sgd learning rate
	OptimLR float64 `json:"optim_lr,omitempty"`
	//how many batches feed the importance accumulation, 0 for all
	SnipBatches int `json:"snip_batches,omitempty"`
	//worker pool size for masking and accumulation, 1 for single thread
	PoolSize int `json:"pool_size,omitempty"`
	//rewind the trainer to this epoch instead of starting fresh
	ResumeEpoch int `json:"resume_epoch,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		MaxParamSparsity:  100.0,
		ExcludeParams:     []string{"embed", "norm"},
		ForwardMask:       true,
		RestoreInitValues: true,
		ScaleLR:           false,
		ScaleLRByParam:    true,
		MaxLRScaling:      100.0,
		OptimLR:           0.01,
		PoolSize:          1,
	}
}

//ReadConfig loads a json config over the defaults, so absent fields keep
//their default values
func ReadConfig(path string) *Config {
	jsonFile, err := os.Open(path)
	utils.ThrowErr(err)
	defer jsonFile.Close()
	byteValue, err := ioutil.ReadAll(jsonFile)
	utils.ThrowErr(err)

	c := DefaultConfig()
	utils.ThrowErr(json.Unmarshal(byteValue, c))
	return c
}

func (c *Config) Validate() error {
	if err := c.Schedule.Validate(); err != nil {
		return err
	}
	if c.SniperDir == "" {
		return errors.New("sniper_dir not set")
	}
	if c.MaxParamSparsity <= 0.0 || c.MaxParamSparsity > 100.0 {
		return errors.New("max_param_sparsity outside (0, 100]")
	}
	if c.MaxLRScaling < 1.0 {
		return errors.New("max_lr_scaling below 1")
	}
	if c.OptimLR <= 0.0 {
		return errors.New("optim_lr must be positive")
	}
	if c.PoolSize < 1 {
		return errors.New("pool_size must be >= 1")
	}
	if c.ResumeEpoch < 0 {
		return errors.New("resume_epoch must be >= 0")
	}
	return nil
}

func willPrune(paramName string, excludeParams []string) bool {
	for _, excludeParam := range excludeParams {
		if strings.Contains(paramName, excludeParam) {
			return false
		}
	}
	return true
}

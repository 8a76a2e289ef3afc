package vm

import (
	"fmt"
	"os"

	"github.com/naoina/toml"
)

// FileConfig is the on-disk shape of VM tuning knobs, loaded with
// naoina/toml from the file the driver's -config flag names.
type FileConfig struct {
	Stack struct {
		Capacity int `toml:"capacity"`
	} `toml:"stack"`
	Heap struct {
		InitialMax  int `toml:"initial_max"`
		HardCeiling int `toml:"hard_ceiling"`
	} `toml:"heap"`
}

// LoadConfig reads a TOML file at path and folds it onto the supplied
// defaults; a missing file is not an error, callers get defaults back.
func LoadConfig(path string, defaults Config) (Config, error) {
	cfg := defaults
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	var fc FileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if fc.Stack.Capacity > 0 {
		cfg.StackCapacity = fc.Stack.Capacity
	}
	if fc.Heap.InitialMax > 0 {
		cfg.InitialMaxHeap = fc.Heap.InitialMax
	}
	if fc.Heap.HardCeiling > 0 {
		cfg.HardHeapCeiling = fc.Heap.HardCeiling
	}
	return cfg, nil
}

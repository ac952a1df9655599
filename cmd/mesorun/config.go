package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RunConfig is the yaml-facing description of a simple DPD fluid run.
type RunConfig struct {
	Domain struct {
		Size  [3]float64 `yaml:"size"`
		Ranks [3]int     `yaml:"ranks"`
	} `yaml:"domain"`

	Dt    float64 `yaml:"dt"`
	Steps int64   `yaml:"steps"`
	Seed  int64   `yaml:"seed"`

	Fluid struct {
		Name    string  `yaml:"name"`
		Density float64 `yaml:"density"`
		Mass    float64 `yaml:"mass"`
	} `yaml:"fluid"`

	DPD struct {
		RC    float64 `yaml:"rc"`
		A     float64 `yaml:"a"`
		Gamma float64 `yaml:"gamma"`
		KBT   float64 `yaml:"kbt"`
		Power float64 `yaml:"power"`
	} `yaml:"dpd"`

	Stats struct {
		Every int64 `yaml:"every"`
	} `yaml:"stats"`

	Checkpoint struct {
		Folder string `yaml:"folder"`
		Every  int64  `yaml:"every"`
	} `yaml:"checkpoint"`

	GPUAwareMPI bool `yaml:"gpu_aware_mpi"`
}

func defaultRunConfig() *RunConfig {
	cfg := &RunConfig{}
	cfg.Domain.Size = [3]float64{16, 16, 16}
	cfg.Domain.Ranks = [3]int{1, 1, 1}
	cfg.Dt = 0.01
	cfg.Steps = 1000
	cfg.Fluid.Name = "solvent"
	cfg.Fluid.Density = 8
	cfg.Fluid.Mass = 1
	cfg.DPD.RC = 1.0
	cfg.DPD.A = 10
	cfg.DPD.Gamma = 10
	cfg.DPD.KBT = 1.0
	cfg.DPD.Power = 1.0
	cfg.Stats.Every = 100
	return cfg
}

func loadRunConfig(path string) (*RunConfig, error) {
	cfg := defaultRunConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// mesorun drives a DPD fluid described by a yaml config through the
// simulation core. Multi-rank runs require a build with the mpi tag and
// an MPI launcher.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mesokit/mesokit/comm"
	"github.com/mesokit/mesokit/device"
	"github.com/mesokit/mesokit/integrators"
	"github.com/mesokit/mesokit/interactions/pairwise"
	"github.com/mesokit/mesokit/particles"
	"github.com/mesokit/mesokit/plugins"
	"github.com/mesokit/mesokit/sim"
)

func main() {
	var (
		configPath string
		restartDir string
		graphPath  string
	)

	root := &cobra.Command{
		Use:   "mesorun",
		Short: "run a particle-dynamics simulation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRunConfig(configPath)
			if err != nil {
				return err
			}
			return run(cfg, restartDir, graphPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (empty = defaults)")
	root.Flags().StringVar(&restartDir, "restart", "", "restart from a checkpoint folder")
	root.Flags().StringVar(&graphPath, "graph", "", "export the task graph as GraphML and exit")

	if err := root.Execute(); err != nil {
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg *RunConfig, restartDir, graphPath string) error {
	c, err := makeComm(cfg.Domain.Ranks)
	if err != nil {
		return err
	}
	dev := device.Auto()
	defer dev.Free()

	s := sim.New(sim.Config{
		Dt: cfg.Dt,
		GlobalSize: r3.Vec{
			X: cfg.Domain.Size[0],
			Y: cfg.Domain.Size[1],
			Z: cfg.Domain.Size[2],
		},
		CheckpointFolder: cfg.Checkpoint.Folder,
		CheckpointEvery:  cfg.Checkpoint.Every,
		GPUAwareMPI:      cfg.GPUAwareMPI,
	}, c, dev)

	if restartDir != "" {
		if err := s.Restart(restartDir); err != nil {
			return err
		}
	}

	fluid := particles.New(cfg.Fluid.Name, cfg.Fluid.Mass)
	ic := sim.Uniform{Density: cfg.Fluid.Density, VelAmp: 1, Seed: cfg.Seed}
	if err := s.RegisterParticleVector(fluid, ic, cfg.Checkpoint.Every); err != nil {
		return err
	}

	dpd := pairwise.NewDPD("dpd", cfg.DPD.RC, cfg.DPD.A, cfg.DPD.Gamma, cfg.DPD.KBT, cfg.DPD.Power)
	if err := s.RegisterInteraction(dpd); err != nil {
		return err
	}
	if err := s.SetInteraction("dpd", fluid.Name(), fluid.Name()); err != nil {
		return err
	}

	vv := integrators.NewVelocityVerlet("vv")
	if err := s.RegisterIntegrator(vv); err != nil {
		return err
	}
	if err := s.SetIntegrator("vv", fluid.Name()); err != nil {
		return err
	}

	pipe := plugins.NewChannelPipe(64)
	s.SetPostprocessPipe(pipe)
	if cfg.Stats.Every > 0 {
		stats := plugins.NewStats("stats", cfg.Stats.Every, pipe, fluid)
		if err := s.RegisterPlugin(stats); err != nil {
			return err
		}
	}

	post := make(chan error, 1)
	go func() {
		post <- plugins.RunPostprocess(pipe, plugins.NewTemperatureGraph("stats", os.Stdout))
	}()

	if graphPath != "" {
		return s.SaveDependencyGraph(graphPath)
	}

	if err := s.Run(cfg.Steps); err != nil {
		return err
	}
	if err := s.Finalize(); err != nil {
		return err
	}
	return <-post
}

func makeComm(ranks [3]int) (comm.Comm, error) {
	world := ranks[0] * ranks[1] * ranks[2]
	if world == 1 {
		return comm.NewSingle(), nil
	}
	c, err := comm.NewMPI([3]int{ranks[0], ranks[1], ranks[2]})
	if err != nil {
		return nil, fmt.Errorf("rank grid %v needs MPI: %w", ranks, err)
	}
	return c, nil
}

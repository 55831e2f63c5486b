package cmd

import (
	"math"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/workqueue-sim/workqueue-sim/sim"
)

var (
	// CLI flags for the simulation run
	configPath        string // Optional yaml configuration file
	logLevel          string // Log verbosity level
	simulationHorizon int64  // Total simulation time (in ticks)
	seed              int64  // Seed for all RNG subsystems

	// CLI flags for the queue configuration
	capacity      int     // Number of items storage may hold
	baseLatency   int64   // Acceptance-to-release latency (in ticks)
	latencyJitter int64   // Bound of the optional latency jitter (0 = off)
	bandwidth     float64 // Ticks per byte added to latency (0 = off)

	// CLI flags for the synthetic workload
	items              int     // Number of items the producer pushes
	pushGap            int64   // Ticks between producer arrivals
	popGap             int64   // Ticks between consumer pop demands (0 = off)
	itemSizeMin        int64   // Minimum item size in bytes
	itemSizeMax        int64   // Maximum item size in bytes
	rejectRatio        float64 // Fraction of deliveries the consumer declines
	consumerRetryDelay int64   // Ticks before a declined delivery is retried
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "workqueue-sim",
	Short: "Discrete-event simulator for a bounded dual-ported work queue",
}

// runCmd executes the simulation using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the work queue simulation",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		cfg := sim.DefaultConfig()
		if configPath != "" {
			cfg, err = sim.LoadConfig(configPath)
			if err != nil {
				logrus.Fatalf("unable to load config: %v", err)
			}
		}
		applyFlagOverrides(cmd, &cfg)
		if err := cfg.Validate(); err != nil {
			logrus.Fatalf("invalid configuration: %v", err)
		}

		wl := sim.Workload{
			Items:              items,
			PushGap:            pushGap,
			PopGap:             popGap,
			ItemSizeMin:        itemSizeMin,
			ItemSizeMax:        itemSizeMax,
			RejectRatio:        rejectRatio,
			ConsumerRetryDelay: consumerRetryDelay,
		}

		logrus.Infof("Starting simulation with capacity=%d, baseLatency=%d ticks, horizon=%d ticks, seed=%d",
			cfg.Capacity, cfg.BaseLatency, simulationHorizon, cfg.Seed)

		s, err := sim.BuildSimulation(cfg, wl, simulationHorizon, prometheus.NewRegistry())
		if err != nil {
			logrus.Fatalf("unable to build simulation: %v", err)
		}
		s.Run()
		s.Sim.Metrics.Print()

		logrus.Info("Simulation complete.")
	},
}

// applyFlagOverrides lets explicitly set flags win over the config file.
func applyFlagOverrides(cmd *cobra.Command, cfg *sim.Config) {
	if cmd.Flags().Changed("capacity") {
		cfg.Capacity = capacity
	}
	if cmd.Flags().Changed("base-latency") {
		cfg.BaseLatency = baseLatency
	}
	if cmd.Flags().Changed("latency-jitter") {
		cfg.LatencyJitter = latencyJitter
	}
	if cmd.Flags().Changed("bandwidth-ticks-per-byte") {
		cfg.BandwidthTicksPerByte = bandwidth
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = seed
	}
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Path to a yaml configuration file")
	runCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().Int64Var(&simulationHorizon, "horizon", math.MaxInt64, "Total simulation horizon (in ticks)")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for random workload generation")

	// queue configs
	runCmd.Flags().IntVar(&capacity, "capacity", 8, "Number of items the queue may hold")
	runCmd.Flags().Int64Var(&baseLatency, "base-latency", 10, "Acceptance-to-release latency (in ticks)")
	runCmd.Flags().Int64Var(&latencyJitter, "latency-jitter", 0, "Bound of the uniform latency jitter (0 disables)")
	runCmd.Flags().Float64Var(&bandwidth, "bandwidth-ticks-per-byte", 0, "Ticks per byte added to latency (0 disables)")

	// workload configs
	runCmd.Flags().IntVar(&items, "items", 100, "Number of items the producer pushes")
	runCmd.Flags().Int64Var(&pushGap, "push-gap", 20, "Ticks between producer arrivals")
	runCmd.Flags().Int64Var(&popGap, "pop-gap", 0, "Ticks between consumer pop demands (0 disables)")
	runCmd.Flags().Int64Var(&itemSizeMin, "item-size-min", 64, "Minimum item size in bytes")
	runCmd.Flags().Int64Var(&itemSizeMax, "item-size-max", 64, "Maximum item size in bytes")
	runCmd.Flags().Float64Var(&rejectRatio, "reject-ratio", 0, "Fraction of deliveries the consumer declines")
	runCmd.Flags().Int64Var(&consumerRetryDelay, "consumer-retry-delay", 5, "Ticks before a declined delivery is retried")

	rootCmd.AddCommand(runCmd)
}

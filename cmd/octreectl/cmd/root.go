package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/distoctree/distoctree/pkg/utils"
)

var (
	verbose bool
	logger  utils.Logger
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "octreectl",
	Short: "Drive distributed linear octree construction",
	Long: `octreectl is a demonstration CLI for the distributed linear octree
construction pipeline: Morton encoding, hyksort sample-sort, SSB08
block partitioning, local refinement, optional 2:1 balancing, and
point-to-leaf redistribution.

It runs the pipeline over an in-process communicator fleet (one
goroutine per simulated rank), not a real cluster — useful for
inspecting pipeline behavior without standing up MPI or gRPC ranks.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logLevel := utils.LevelInfo
		if verbose {
			logLevel = utils.LevelDebug
		}
		logger = utils.NewTextLogger(logLevel, os.Stdout)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	binName := BinName()
	rootCmd.Example = `  # Build an octree from a CSV of points across 4 simulated ranks
  ` + binName + ` build --points ./points.csv --ranks 4

  # Same, with 2:1 balancing enabled
  ` + binName + ` build --points ./points.csv --ranks 4 --balanced

  # Load construction parameters from a config file
  ` + binName + ` build --points ./points.csv --ranks 8 --config ./config.yaml`
}

// GetLogger returns the configured logger.
func GetLogger() utils.Logger {
	return logger
}

// BinName returns the base name of the current executable.
func BinName() string {
	return filepath.Base(os.Args[0])
}

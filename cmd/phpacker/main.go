// Command phpacker is the thin CLI front-end spec.md §1 places out of
// scope: it owns none of the core logic, only flag parsing, Config
// construction, and mapping the orchestrator's result to an exit code.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tourze/php-packer-sub000/internal/config"
	"github.com/tourze/php-packer-sub000/internal/pack"
)

var configPath string

var flagEntry string
var flagOutput string
var flagDatabase string
var flagExclude []string
var flagMinify bool
var flagComments bool
var flagDebug bool
var flagOptimizeCode bool

var rootCmd = &cobra.Command{
	Use:   "phpacker",
	Short: "Pack a multi-file PHP application into a single file",
	RunE:  runPack,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a phpacker.json configuration file")
	rootCmd.Flags().StringVar(&flagEntry, "entry", "", "entry file (overrides config)")
	rootCmd.Flags().StringVar(&flagOutput, "output", "", "output file (overrides config)")
	rootCmd.Flags().StringVar(&flagDatabase, "database", "", "persistent store path (overrides config)")
	rootCmd.Flags().StringSliceVar(&flagExclude, "exclude", nil, "glob pattern to exclude from the load order (repeatable)")
	rootCmd.Flags().BoolVar(&flagMinify, "minify", false, "minify the output")
	rootCmd.Flags().BoolVar(&flagComments, "comments", false, "keep comments in the output")
	rootCmd.Flags().BoolVar(&flagDebug, "debug", false, "write a <database>.debug.json diagnostic dump")
	rootCmd.Flags().BoolVar(&flagOptimizeCode, "optimize-code", false, "enable the private-member removal pass")
}

func runPack(cmd *cobra.Command, args []string) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}

	result, err := pack.New(nil).Pack(c)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "packed %d files into %s (%d classes deduped, %d functions merged)\n",
		len(result.LoadOrder), c.Output, result.Stats.DedupedClasses, result.Stats.DedupedFunctionsMerged)
	return nil
}

// loadConfig builds a config.Config either from --config (flags overlay on
// top of the file) or entirely from flags when no config file is given.
func loadConfig() (*config.Config, error) {
	var c *config.Config
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		c = loaded
	} else {
		c = &config.Config{ProjectRoot: "."}
	}

	if flagEntry != "" {
		c.Entry = flagEntry
	}
	if flagOutput != "" {
		c.Output = flagOutput
	}
	if flagDatabase != "" {
		c.Database = flagDatabase
	}
	if len(flagExclude) > 0 {
		c.Exclude = flagExclude
	}
	if flagMinify {
		c.Minify = true
	}
	if flagComments {
		c.Comments = true
	}
	if flagDebug {
		c.Debug = true
	}
	if flagOptimizeCode {
		c.OptimizeCode = true
	}

	return c, c.Validate()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "phpacker:", err)
		os.Exit(1)
	}
}

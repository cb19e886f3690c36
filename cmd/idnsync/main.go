package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edusync/idnsync/pkg/config"
	"github.com/edusync/idnsync/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "idnsync",
	Short: "idnsync - one-way identity sync from school databases into LDAP",
	Long: `idnsync propagates person records from the per-institution school
databases into the central LDAP directory. The databases log every
relevant change into an event table; the sync consumes that log and
keeps the directory current, one subtree per institution plus a shared
subtree all institutions fan into.

Besides the daemon it bundles the operational one-shots: initial
directory provisioning, CSV exports, the export anonymizer, and the
downstream deletion marker.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"idnsync version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "YAML config file (environment variables still win)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")
}

// setupConfig loads the configuration in the scope the subcommand needs
// and brings up logging. Every config-driven subcommand starts here.
func setupConfig(cmd *cobra.Command, loader func(string) (*config.Config, error)) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := loader(path)
	if err != nil {
		return nil, err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Verbose = true
	}
	initLogging(cfg.Verbose, cfg.LogJSON)
	return cfg, nil
}

func initLogging(verbose, json bool) {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	log.Init(log.Config{Level: level, JSONOutput: json})
}

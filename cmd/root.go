package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgPath   string
	verbosity int
	rootCmd   = &cobra.Command{
		Use:   "transient-gateway",
		Short: "Astronomical transient alert gateway CLI",
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file (embedded defaults otherwise)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(injectCmd)
	rootCmd.AddCommand(cleanupCmd)
}

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set via ldflags at build time
var (
	Version   = "dev"
	BuildTime = ""
	GitCommit = ""
)

var rootCmd = &cobra.Command{
	Use:     "chatlite",
	Short:   "Chatlite - real-time chat backend",
	Long:    `A chat backend with WebSocket fan-out, Redis presence, and PostgreSQL persistence.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate("chatlite version {{.Version}}\n")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

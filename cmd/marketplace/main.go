// Command marketplace runs the Chlu marketplace REST service and the
// vendor setup tool.
package main

import (
	"fmt"
	"os"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
)

var log = logging.Logger("marketplace")

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "marketplace",
		Short:         "Chlu marketplace",
		Long:          `marketplace registers vendors, countersigns their delegated keys and issues signed payment requests.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (yaml)")
	root.AddCommand(newServeCmd())
	root.AddCommand(newSetupVendorCmd())
	return root
}

func main() {
	logging.SetAllLoggers(logging.LevelInfo)

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

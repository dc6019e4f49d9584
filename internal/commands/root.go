// Package commands implements the CLI subcommands for the tripwire binary.
package commands

import (
	"github.com/spf13/cobra"
)

// configDir is where tripwire.yaml is looked up.
var configDir = "."

// NewRootCmd assembles the tripwire command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "tripwire",
		Short: "Event-triggered strategy dispatch with gasless cross-chain USDC transfers",
		Long: `Tripwire matches real-world events against registered strategies and runs
their actions. Bridge actions burn USDC on the source chain, wait for the
attestation and mint on the destination chain through sponsored operations.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "dir", ".", "Directory containing tripwire.yaml")

	root.AddCommand(
		NewInitCmd(),
		NewRegisterCmd(),
		NewActivateCmd(),
		NewDeactivateCmd(),
		NewStatusCmd(),
		NewDispatchCmd(),
		NewBalanceCmd(),
		NewSimulateCmd(),
		NewServeCmd(),
	)
	return root
}

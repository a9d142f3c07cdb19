package root

import (
	"github.com/spf13/cobra"

	"github.com/depflow/depflow/cmd/resolve"
	"github.com/depflow/depflow/cmd/sequence"
	"github.com/depflow/depflow/cmd/validate"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "depflow",
		Short: "depflow sequences software deployment actions for managed clients",
		Long: `depflow resolves product dependencies, conflicts and priorities into a
deterministic per-client action order, suitable for handing to remote
deployment agents and for audit.`,
	}

	// add sub-commands
	rootCmd.AddCommand(resolve.NewResolveCommand())
	rootCmd.AddCommand(validate.NewValidateCommand())
	rootCmd.AddCommand(sequence.NewSequenceCommand())

	return rootCmd
}

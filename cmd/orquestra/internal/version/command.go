package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gestao-presente/orquestra/cmd/orquestra/internal"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the orquestra version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), internal.GetVersion())
		},
	}
}

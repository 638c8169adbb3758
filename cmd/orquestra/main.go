package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/gestao-presente/orquestra/cmd/orquestra/internal"
	"github.com/gestao-presente/orquestra/cmd/orquestra/internal/gateway"
	"github.com/gestao-presente/orquestra/cmd/orquestra/internal/teams"
	"github.com/gestao-presente/orquestra/cmd/orquestra/internal/version"
)

func NewOrquestraCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "orquestra",
		Short:   "orquestra - Chatwoot support message orchestrator v" + internal.GetVersion(),
		Example: "orquestra gateway --debug",
	}

	cmd.AddCommand(
		gateway.NewGatewayCommand(),
		teams.NewTeamsCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewOrquestraCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

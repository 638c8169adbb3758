package teams

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gestao-presente/orquestra/pkg/chatwoot"
	"github.com/gestao-presente/orquestra/pkg/config"
	"github.com/gestao-presente/orquestra/pkg/directory"
)

func NewTeamsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "teams",
		Short: "List Chatwoot teams and the resolved default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			client := chatwoot.NewClient(cfg.ChatwootAPIURL, cfg.ChatwootAPIToken, cfg.ChatwootAccountID, zap.NewNop())
			teams, err := client.ListTeams(ctx)
			if err != nil {
				return fmt.Errorf("listing teams: %w", err)
			}

			dir := directory.New(cfg.DefaultHumanTeam)
			dir.Load(teams)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tID")
			for _, team := range dir.Teams() {
				fmt.Fprintf(w, "%s\t%s\n", team.Name, team.ID)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if def, err := dir.DefaultTeam(); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "\ndefault human team: %s (id %s)\n", def.Name, def.ID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "\nno default human team: %v\n", err)
			}
			return nil
		},
	}
}

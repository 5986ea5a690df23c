package cmd

import (
	"fmt"

	"github.com/agentrun-io/agentrun/engine"
	"github.com/spf13/cobra"
)

func newStatusCmd(configPath *string) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show live session status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := wireApp(*configPath)
			if err != nil {
				return err
			}

			resp := app.Status(sessionID)
			switch resp.Status {
			case engine.StatusWarning:
				fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			case engine.StatusError:
				return fmt.Errorf("%s", resp.Message)
			default:
				fmt.Fprintln(cmd.OutOrStdout(), resp.Result)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id (default: aggregate view)")
	return cmd
}

package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newChatCmd(configPath *string) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat without the agent loop",
		Long:  "Starts a REPL that streams plain model narration. The transcript is kept in the session store, so a later 'run --session' shares the same memory.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := wireApp(*configPath)
			if err != nil {
				return err
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "session %s (type 'exit' to quit)\n", sessionID)

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					return nil
				}

				fragments, errCh, err := app.Chat(cmd.Context(), sessionID, line)
				if err != nil {
					return err
				}
				for fragment := range fragments {
					fmt.Fprint(out, fragment)
				}
				fmt.Fprintln(out)
				if err := <-errCh; err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "chat error: %s\n", err)
				}
			}
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id to reuse (default: fresh session)")
	return cmd
}

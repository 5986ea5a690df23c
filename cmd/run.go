package cmd

import (
	"fmt"
	"strings"

	"github.com/agentrun-io/agentrun/engine"
	"github.com/spf13/cobra"
)

func newRunCmd(configPath *string) *cobra.Command {
	var (
		sessionID    string
		systemPrompt string
		maxSteps     int
		stream       bool
	)

	cmd := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Run an agent task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := wireApp(*configPath)
			if err != nil {
				return err
			}
			prompt := strings.Join(args, " ")

			if stream {
				s := app.ExecuteAdvancedStream(cmd.Context(), engine.Request{
					Prompt:       prompt,
					SessionID:    sessionID,
					SystemPrompt: systemPrompt,
					MaxSteps:     maxSteps,
				})
				for ev := range s.Events() {
					fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", ev.Type, ev.Data)
				}
				return nil
			}

			resp := app.ExecuteAdvanced(cmd.Context(), engine.Request{
				Prompt:       prompt,
				SessionID:    sessionID,
				SystemPrompt: systemPrompt,
				MaxSteps:     maxSteps,
			})
			if resp.Status == engine.StatusError {
				return fmt.Errorf("%s", resp.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Result)
			fmt.Fprintf(cmd.ErrOrStderr(), "session=%s state=%s elapsed=%dms\n",
				resp.SessionID, resp.State, resp.ElapsedMS)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id to reuse (default: fresh session)")
	cmd.Flags().StringVar(&systemPrompt, "system-prompt", "", "override the configured system prompt")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "override the configured step budget")
	cmd.Flags().BoolVar(&stream, "stream", false, "deliver step results incrementally")
	return cmd
}

// Package cmd implements the agentrun command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "agentrun",
		Short:         "agentrun: run tool-calling agent tasks from the terminal",
		Long:          "agentrun drives a reason/act agent loop against a configured model provider, with blocking and streaming delivery, session management and pluggable session storage.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: ./agentrun.yaml)")

	rootCmd.AddCommand(
		newRunCmd(&configPath),
		newChatCmd(&configPath),
		newStatusCmd(&configPath),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the agentrun version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("agentrun " + Version)
		},
	}
}

// Version is set at build time via -ldflags.
var Version = "dev"

// cmd/chat.go
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/seeclaw/internal/agent"
	"github.com/xkilldash9x/seeclaw/internal/llmclient"
	"github.com/xkilldash9x/seeclaw/internal/observability"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <message>",
		Short: "Ask the chat model a question without touching the desktop",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			logger := observability.Component("cli.chat")

			registry, err := llmclient.NewRegistryFromConfig(cmd.Context(), cfg.LLM(), logger)
			if err != nil {
				return fmt.Errorf("failed to initialize LLM providers: %w", err)
			}
			engine := agent.NewEngine(agent.Deps{Providers: registry}, cfg.Agent(), logger)

			reply, err := engine.Chat(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
}

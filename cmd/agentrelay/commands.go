package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentrelay"
	"github.com/hupe1980/agentrelay/routing"
)

func newValidateCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			for _, w := range cfg.Warnings() {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d agents, %d bindings, %d fallback chains\n",
				len(cfg.Agents), len(cfg.Bindings), len(cfg.Fallbacks))
			return nil
		},
	}
}

func newAgentsCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List configured agents with their model chains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			r := cfg.Resolver()
			out := cmd.OutOrStdout()
			for _, id := range r.ListAgentIDs() {
				chain, err := r.ResolveAgentModel(id)
				if err != nil {
					fmt.Fprintf(out, "%s\t<%v>\n", id, err)
					continue
				}
				fmt.Fprintf(out, "%s\t%s\tdepth=%d\n", id, strings.Join(chain.AllModels(), " -> "), cfg.MaxSubagentDepth(id))
			}
			return nil
		},
	}
}

func newChainCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chain AGENT",
		Short: "Print the model chain of an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			chain, err := cfg.Resolver().ResolveAgentModel(args[0])
			if err != nil {
				return err
			}
			for i, m := range chain.AllModels() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", i, m)
			}
			return nil
		},
	}
}

type metaFlags struct {
	meta       routing.SessionMetadata
	sessionKey string
}

func (m *metaFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&m.meta.Channel, "channel", "", "channel of the inbound message")
	cmd.Flags().StringVar(&m.meta.AccountID, "account", "", "account id")
	cmd.Flags().StringVar(&m.meta.Peer, "peer", "", "peer id")
	cmd.Flags().StringVar(&m.meta.GuildID, "guild", "", "guild id")
	cmd.Flags().StringVar(&m.sessionKey, "session-key", "", "explicit session key")
}

func newResolveCmd(f *rootFlags) *cobra.Command {
	m := &metaFlags{}

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the agent and session key for session metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			route, err := cfg.Resolver().ResolveSession(m.meta, m.sessionKey)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "agent:       %s\n", route.AgentID)
			fmt.Fprintf(out, "session_key: %s\n", route.SessionKey)
			fmt.Fprintf(out, "matched_by:  %s\n", route.MatchedBy)
			return nil
		},
	}

	m.register(cmd)

	return cmd
}

func newChatCmd(f *rootFlags) *cobra.Command {
	var (
		m       = &metaFlags{}
		mock    bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "chat MESSAGE",
		Short: "Send one message through the relay and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}

			logger := f.logger(cmd)

			providers, err := buildProviders(cfg, mock, logger.WithComponent("provider"))
			if err != nil {
				return err
			}

			relay := agentrelay.New(cfg, providers, func(o *agentrelay.Options) {
				o.Logger = logger
			})

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			reply, err := relay.Handle(ctx, m.meta, m.sessionKey, strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, reply.Text())
			for _, c := range reply.Result.ToolCalls {
				fmt.Fprintf(out, "[tool call] %s %s\n", c.Name, c.Arguments)
			}

			totals := relay.Usage().Totals()
			fmt.Fprintf(cmd.ErrOrStderr(), "agent=%s model=%s tokens=%d requests=%d\n",
				reply.Route.AgentID, reply.Result.Model, totals.TotalTokens, totals.RequestCount)
			return nil
		},
	}

	m.register(cmd)
	cmd.Flags().BoolVar(&mock, "mock", false, "answer with mock providers instead of calling real APIs")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall timeout")

	return cmd
}

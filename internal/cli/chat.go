// Package cli defines the cobra commands of the terminal chat client and the
// development backend.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"promochat/internal/bootstrap"
	"promochat/internal/config"
	"promochat/internal/pkg/logger"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type chatFlags struct {
	transport string
	scenario  string
	activity  bool
	noColor   bool
}

// NewChatCommand builds the "chat" root command with its subcommands.
func NewChatCommand() *cobra.Command {
	flags := &chatFlags{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the promotion assistant from the terminal",
		Long: `chat opens a session with the promotion assistant backend and runs an
interactive conversation. The transport (polling, websocket, nats, redis or
the in-process channel simulator) comes from CHAT_TRANSPORT or --transport.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, flags)
		},
	}
	cmd.Flags().StringVar(&flags.transport, "transport", "", "override CHAT_TRANSPORT")
	cmd.Flags().StringVar(&flags.scenario, "scenario", "", "simulator scenario for the channel transport")
	cmd.Flags().BoolVar(&flags.activity, "activity", true, "show the AI activity report")
	cmd.Flags().BoolVar(&flags.noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(newLogsCommand())
	return cmd
}

func runChat(cmd *cobra.Command, flags *chatFlags) error {
	cfg := config.Load()
	if flags.transport != "" {
		cfg.Transport.Kind = flags.transport
	}
	if flags.scenario != "" {
		cfg.Simulator.ScenarioPath = flags.scenario
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if flags.noColor {
		color.NoColor = true
	}

	// File-only logging keeps log lines out of the conversation.
	sysLogger := logger.NewIsolatedLogger(cfg.App.LogFilePath, cfg.App.Debug)
	container, err := bootstrap.NewContainer(cfg, sysLogger)
	if err != nil {
		return fmt.Errorf("starting chat: %w", err)
	}
	defer container.Close(context.Background())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	orch := container.Orchestrator
	renderer := NewRenderer(out, flags.activity)

	updates, err := orch.Updates(ctx)
	if err != nil {
		return err
	}
	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("connecting to backend: %w", err)
	}

	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		for snap := range updates {
			renderer.Render(snap)
		}
	}()

	fmt.Fprintf(out, "promochat · transport %s · /help for commands\n", cfg.Transport.Kind)
	if err := orch.CreateSession(ctx); err != nil {
		renderer.Errorf("could not create a session: %v", err)
	}

	err = NewREPL(orch, renderer, out).Run(ctx, cmd.InOrStdin())
	stop()
	<-rendered
	return err
}

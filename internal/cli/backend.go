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
	"promochat/internal/simulator"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewBackendCommand builds the "devbackend" root command.
func NewBackendCommand() *cobra.Command {
	var (
		scenario  string
		port      string
		transport string
	)
	cmd := &cobra.Command{
		Use:   "devbackend",
		Short: "Run the scripted promotion chat backend",
		Long: `devbackend serves the polling REST API and the websocket push API from a
YAML scenario. With --broker nats or redis it also answers actions published
on the broker.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if scenario != "" {
				cfg.Simulator.ScenarioPath = scenario
			}
			if port != "" {
				cfg.Simulator.Port = port
			}
			if transport != "" {
				cfg.Transport.Kind = transport
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
			container, err := bootstrap.NewBackendContainer(cfg, sysLogger)
			if err != nil {
				return err
			}
			if err := container.Start(); err != nil {
				container.Close(context.Background())
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			serveErr := make(chan error, 1)
			go func() { serveErr <- container.Server.Run() }()

			select {
			case err = <-serveErr:
			case <-ctx.Done():
			}
			if cerr := container.Close(context.Background()); err == nil {
				err = cerr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&scenario, "scenario", "", "built-in scenario name or YAML file (SIM_SCENARIO)")
	cmd.Flags().StringVar(&port, "port", "", "listen port (APP_PORT)")
	cmd.Flags().StringVar(&transport, "broker", "", "also serve actions over a broker: nats or redis")

	cmd.AddCommand(&cobra.Command{
		Use:   "scenarios",
		Short: "List the built-in scenarios",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range simulator.BuiltinScenarios() {
				fmt.Fprintln(cmd.OutOrStdout(), color.CyanString(name))
			}
		},
	})
	return cmd
}

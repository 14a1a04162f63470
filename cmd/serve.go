package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"kimi-proxy/internal/app"
	"kimi-proxy/internal/llm"
	"kimi-proxy/internal/rpc"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		listenAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := llm.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("listen-addr") {
				cfg.ListenAddr = listenAddr
			}
			if err := configureLogging(cfg.LogLevel); err != nil {
				return err
			}
			if cfg.LogHeaders {
				log.Warn("header logging enabled; credentials are masked but other headers are logged verbatim")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a := app.NewApp(cfg, rpc.NewFactory(&http.Client{}))
			for _, m := range llm.DefaultModels() {
				log.Debug("model available", "id", m.ID)
			}
			return a.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "YAML config file path")
	cmd.Flags().StringVar(&listenAddr, "listen-addr", "", "Override listen address from config (e.g. 127.0.0.1:8080)")
	return cmd
}

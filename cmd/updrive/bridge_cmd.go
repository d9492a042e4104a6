package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"updrive/internal/bridge"
	"updrive/internal/config"
	"updrive/internal/server"
)

func newBridgeCmd(cfg *config.Config) *cobra.Command {
	var apiURL string

	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Run the browser bridge that turns session cookies into bearer calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			backend := cfg.Bridge.APIURL
			if apiURL != "" {
				backend = apiURL
			}

			addr, err := server.ListenAddr(cfg.Bridge.ListenURL)
			if err != nil {
				return err
			}
			b, err := bridge.New(bridge.Options{
				APIURL:       backend,
				SecureCookie: cfg.Bridge.SecureCookie,
				Logger:       slog.Default().With("component", "bridge"),
			})
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return b.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&apiURL, "api-url", "", "core API base URL (default: bridge.api_url)")
	return cmd
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"updrive/internal/audit"
	internalauth "updrive/internal/auth"
	"updrive/internal/blobstore"
	"updrive/internal/config"
	"updrive/internal/server"
	"updrive/internal/store"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the updrive API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if cfg.SecretKey == "" {
				return fmt.Errorf("secret_key is required (set UPDRIVE_SECRET_KEY or `updrive config set secret_key ...`)")
			}

			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			logger.Info("opening database", "path", cfg.DBPath)
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			blobs, err := blobstore.NewLocalStore(cfg.BlobDir())
			if err != nil {
				return err
			}
			tokens, err := internalauth.NewTokenIssuer(cfg.SecretKey, cfg.JWTAlgorithm, cfg.TokenTTL())
			if err != nil {
				return err
			}
			auditLog, closer, err := audit.Open(cfg.AuditLogPath)
			if err != nil {
				return err
			}
			defer closer.Close()

			srv, err := server.New(server.Options{
				Addr:              addr,
				Users:             st,
				Files:             st,
				Blobs:             blobs,
				Tokens:            tokens,
				Logger:            logger,
				Audit:             auditLog,
				MaxUploadBytes:    cfg.MaxUploadBytes(),
				DefaultQuotaBytes: cfg.DefaultQuotaBytes(),
				CORS:              cfg.CORS,
				RateLimit:         cfg.RateLimit,
				TrustedProxies:    cfg.TrustedProxies,
			})
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return srv.ListenAndServe(ctx)
		},
	}
}

// openStore creates the database directory and applies migrations.
func openStore(cfg *config.Config) (*store.Store, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return store.Open(cfg.DBPath)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

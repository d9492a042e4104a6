package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"updrive/internal/audit"
	"updrive/internal/blobstore"
	"updrive/internal/config"
	"updrive/internal/server"
)

func newGCCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		apply bool
		grace time.Duration
	)

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Find and remove blobs that no file record references",
		Long: "Scans the blob directory for files no record points at. Runs as a dry run " +
			"unless --apply is given. Blobs newer than --grace are skipped so in-flight uploads survive.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if grace < 0 {
				return fmt.Errorf("--grace must not be negative")
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			blobs, err := blobstore.NewLocalStore(cfg.BlobDir())
			if err != nil {
				return err
			}
			auditLog, closer, err := audit.Open(cfg.AuditLogPath)
			if err != nil {
				return err
			}
			defer closer.Close()

			result, err := server.GCBlobs(cmd.Context(), st, blobs, server.BlobGCOptions{
				Apply:       apply,
				GracePeriod: grace,
				Logger:      slog.Default().With("component", "gc"),
				Audit:       auditLog,
			})
			if err != nil {
				return err
			}

			if *jsonOutput {
				return writeJSON(result)
			}
			mode := "dry run"
			if !result.DryRun {
				mode = "applied"
			}
			if err := writePlain("%s: candidates=%d deleted=%d failed=%d skipped_recent=%d reclaimed=%s\n",
				mode, result.CandidateCount, result.DeletedCount, result.FailedCount, result.SkippedRecent, formatSize(result.ReclaimedBytes)); err != nil {
				return err
			}
			if result.DryRun {
				for _, name := range result.Candidates {
					if err := writePlain("  %s\n", name); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "delete orphan blobs instead of listing them")
	cmd.Flags().DurationVar(&grace, "grace", server.DefaultGCGracePeriod, "skip blobs modified more recently than this")
	return cmd
}

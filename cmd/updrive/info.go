package main

import (
	"github.com/spf13/cobra"

	"updrive/internal/api"
	"updrive/internal/config"
	"updrive/internal/store"
)

type localInfo struct {
	DBPath  string `json:"db_path" yaml:"db_path"`
	BlobDir string `json:"blob_dir" yaml:"blob_dir"`
	*store.StoreInfo
}

func newInfoCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var local bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show server info, or local database statistics with --local",
		RunE: func(cmd *cobra.Command, args []string) error {
			if local {
				st, err := openStore(cfg)
				if err != nil {
					return err
				}
				defer st.Close()
				stats, err := st.StoreInfo(cmd.Context())
				if err != nil {
					return err
				}
				resp := localInfo{DBPath: cfg.DBPath, BlobDir: cfg.BlobDir(), StoreInfo: stats}
				if *jsonOutput {
					return writeJSON(resp)
				}
				_ = writePlain("db_path: %s\n", resp.DBPath)
				_ = writePlain("blob_dir: %s\n", resp.BlobDir)
				_ = writePlain("schema_version: %d\n", stats.SchemaVersion)
				_ = writePlain("users: %d\n", stats.Users)
				_ = writePlain("folders: %d\n", stats.Folders)
				_ = writePlain("files: %d (%s)\n", stats.Files, formatSize(stats.LogicalBytes))
				return writePlain("blobs: %d (%s)\n", stats.Blobs, formatSize(stats.StoredBytes))
			}

			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.GetInfo(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				_ = writePlain("api_url: %s\n", cfg.APIURL)
				_ = writePlain("app_name: %s\n", resp.AppName)
				_ = writePlain("app_version: %s\n", resp.AppVersion)
				return writePlain("status: %s\n", resp.Status)
			})
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "read statistics from the local database instead of the API")
	return cmd
}

package main

import (
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"updrive/internal/api"
	"updrive/internal/config"
)

func newListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		folder string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List your files, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			folderID, err := parseFolderFlag(folder)
			if err != nil {
				return err
			}
			query := url.Values{}
			if folderID != nil {
				query.Set("folder_id", strconv.FormatInt(*folderID, 10))
			}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				query.Set("offset", strconv.Itoa(offset))
			}

			return withAuthClient(cfg, func(client *api.Client) error {
				files, err := client.ListFiles(cmd.Context(), query)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(files)
				}
				return writeFileList(files)
			})
		},
	}

	cmd.Flags().StringVar(&folder, "folder", "", "only files directly in this folder id")
	cmd.Flags().IntVar(&limit, "limit", 0, "max files to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "files to skip")
	return cmd
}

func newPutCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		folder      string
		name        string
		contentType string
	)

	cmd := &cobra.Command{
		Use:   "put <path>",
		Short: "Upload a local file",
		Args:  requireExactlyArgs(1, "path is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			folderID, err := parseFolderFlag(folder)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			filename := name
			if filename == "" {
				filename = filepath.Base(args[0])
			}
			declared := contentType
			if declared == "" {
				declared = mime.TypeByExtension(filepath.Ext(filename))
			}

			return withAuthClient(cfg, func(client *api.Client) error {
				file, err := client.Upload(cmd.Context(), filename, declared, f, folderID)
				if err != nil {
					return fmt.Errorf("upload %s: %w", args[0], err)
				}
				if *jsonOutput {
					return writeJSON(file)
				}
				return writeFileDetail(file)
			})
		},
	}

	cmd.Flags().StringVar(&folder, "folder", "", "destination folder id (default: root)")
	cmd.Flags().StringVar(&name, "name", "", "display name (default: the local file name)")
	cmd.Flags().StringVar(&contentType, "type", "", "declared content type (default: guessed from the extension)")
	return cmd
}

func newGetCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var dest string

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Download a file",
		Args:  requireFileID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuthClient(cfg, func(client *api.Client) error {
				target := dest
				if target == "-" {
					_, n, err := client.Download(cmd.Context(), args[0], stdout)
					if err == nil {
						fmt.Fprintf(os.Stderr, "%s written\n", formatSize(n))
					}
					return err
				}

				tmpDir := "."
				if target != "" {
					tmpDir = filepath.Dir(target)
				}
				tmp, err := os.CreateTemp(tmpDir, ".updrive-download-*")
				if err != nil {
					return err
				}
				defer os.Remove(tmp.Name())

				filename, n, err := client.Download(cmd.Context(), args[0], tmp)
				if closeErr := tmp.Close(); err == nil {
					err = closeErr
				}
				if err != nil {
					return err
				}
				if target == "" {
					target = filepath.Base(filename)
					if target == "." || target == "/" || target == "" {
						target = args[0]
					}
				}
				if err := os.Rename(tmp.Name(), target); err != nil {
					return err
				}

				if *jsonOutput {
					return writeJSON(map[string]any{"id": args[0], "path": target, "bytes": n})
				}
				return writePlain("saved %s (%s)\n", target, formatSize(n))
			})
		},
	}

	cmd.Flags().StringVar(&dest, "dest", "", "destination path, or - for stdout (default: the stored file name)")
	return cmd
}

func newRemoveCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a file",
		Args:    requireFileID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuthClient(cfg, func(client *api.Client) error {
				if err := client.DeleteFile(cmd.Context(), args[0]); err != nil {
					return err
				}
				return writePlain("deleted %s\n", args[0])
			})
		},
	}
}

func newMoveCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var folder string

	cmd := &cobra.Command{
		Use:   "mv <id>",
		Short: "Move a file to another folder",
		Args:  requireFileID,
		RunE: func(cmd *cobra.Command, args []string) error {
			folderID, err := parseFolderFlag(folder)
			if err != nil {
				return err
			}
			return withAuthClient(cfg, func(client *api.Client) error {
				file, err := client.MoveFile(cmd.Context(), args[0], folderID)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(file)
				}
				return writePlain("moved %s to %s\n", file.UUID, formatFolder(file.FolderID))
			})
		},
	}

	cmd.Flags().StringVar(&folder, "folder", "", "destination folder id (default: root)")
	return cmd
}

func newRenameCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <new-name>",
		Short: "Change a file's display name",
		Args:  requireExactlyArgs(2, "file id and new name are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuthClient(cfg, func(client *api.Client) error {
				file, err := client.RenameFile(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(file)
				}
				return writePlain("renamed %s to %s\n", file.UUID, file.OriginalName)
			})
		},
	}
}

package main

import (
	"github.com/spf13/cobra"

	"updrive/internal/api"
	"updrive/internal/config"
)

func newMkdirCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var parent string

	cmd := &cobra.Command{
		Use:   "mkdir <name>",
		Short: "Create a folder",
		Args:  requireExactlyArgs(1, "folder name is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			parentID, err := parseFolderFlag(parent)
			if err != nil {
				return err
			}
			return withAuthClient(cfg, func(client *api.Client) error {
				folder, err := client.CreateFolder(cmd.Context(), api.FolderCreateRequest{Name: args[0], ParentID: parentID})
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(folder)
				}
				return writePlain("created folder %d (%s)\n", folder.ID, folder.Name)
			})
		},
	}

	cmd.Flags().StringVar(&parent, "parent", "", "parent folder id (default: root)")
	return cmd
}

func newFoldersCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "folders",
		Short: "List all of your folders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuthClient(cfg, func(client *api.Client) error {
				folders, err := client.ListFolders(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(folders)
				}
				return writeFolderList(folders)
			})
		},
	}
}

func newDriveCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var folder string

	cmd := &cobra.Command{
		Use:   "drive",
		Short: "Show the folders and files directly under one folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			folderID, err := parseFolderFlag(folder)
			if err != nil {
				return err
			}
			return withAuthClient(cfg, func(client *api.Client) error {
				listing, err := client.Drive(cmd.Context(), folderID)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(listing)
				}
				if err := writePlain("folder %s\n\n", formatFolder(folderID)); err != nil {
					return err
				}
				if err := writeFolderList(listing.Folders); err != nil {
					return err
				}
				if err := writePlain("\n"); err != nil {
					return err
				}
				return writeFileList(listing.Files)
			})
		},
	}

	cmd.Flags().StringVar(&folder, "folder", "", "folder id (default: root)")
	return cmd
}

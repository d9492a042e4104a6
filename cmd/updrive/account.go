package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"updrive/internal/api"
	"updrive/internal/config"
)

var stdin io.Reader = os.Stdin

func readPasswordStdin() (string, error) {
	raw, err := io.ReadAll(io.LimitReader(stdin, 4096))
	if err != nil {
		return "", err
	}
	password := strings.TrimRight(string(raw), "\r\n")
	if password == "" {
		return "", fmt.Errorf("empty password on stdin")
	}
	return password, nil
}

func newRegisterCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		email         string
		passwordStdin bool
	)

	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account",
		Args:  requireExactlyArgs(1, "username is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !passwordStdin {
				return fmt.Errorf("--password-stdin is required")
			}
			password, err := readPasswordStdin()
			if err != nil {
				return err
			}

			return withClient(cfg, func(client *api.Client) error {
				user, err := client.Register(cmd.Context(), api.RegisterRequest{
					Username: args[0],
					Email:    email,
					Password: password,
				})
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(user)
				}
				return writePlain("registered %s (id %d, quota %s)\n", user.Username, user.ID, formatSize(user.QuotaBytes))
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "contact email")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func newLoginCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		passwordStdin bool
		export        bool
	)

	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Exchange credentials for an access token",
		Args:  requireExactlyArgs(1, "username is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !passwordStdin {
				return fmt.Errorf("--password-stdin is required")
			}
			password, err := readPasswordStdin()
			if err != nil {
				return err
			}

			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.Token(cmd.Context(), args[0], password)
				if err != nil {
					return err
				}
				switch {
				case *jsonOutput:
					return writeJSON(resp)
				case export:
					return writePlain("export UPDRIVE_TOKEN=%s\n", resp.AccessToken)
				default:
					return writePlain("%s\n", resp.AccessToken)
				}
			})
		},
	}

	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	cmd.Flags().BoolVar(&export, "export", false, "print a shell export line for UPDRIVE_TOKEN")
	return cmd
}

func newWhoamiCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the account behind UPDRIVE_TOKEN",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuthClient(cfg, func(client *api.Client) error {
				user, err := client.Me(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(user)
				}
				_ = writePlain("id: %d\n", user.ID)
				_ = writePlain("username: %s\n", user.Username)
				if user.Email != "" {
					_ = writePlain("email: %s\n", user.Email)
				}
				return writePlain("created_at: %s\n", formatTime(user.CreatedAt))
			})
		},
	}
}

func newUsageCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show storage used against the quota",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuthClient(cfg, func(client *api.Client) error {
				usage, err := client.Usage(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(usage)
				}
				return writeUsage(usage)
			})
		},
	}
}

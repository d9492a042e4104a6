package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func requireExactlyArgs(count int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != count {
			return errors.New(message)
		}
		return nil
	}
}

func requireFileID(cmd *cobra.Command, args []string) error {
	return requireExactlyArgs(1, "file id is required")(cmd, args)
}

// parseFolderFlag turns a --folder value into a folder id. Empty means the
// root folder.
func parseFolderFlag(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("invalid folder id %q", raw)
	}
	return &id, nil
}

package main

import (
	"context"
	"errors"
	"net"

	"updrive/internal/api"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "unauthorized":
			lines = append(lines, "hint: token missing or expired; run `updrive login` and export UPDRIVE_TOKEN.")
		case "forbidden":
			lines = append(lines, "hint: the resource belongs to another account.")
		case "quota_exceeded":
			lines = append(lines, "hint: storage quota exhausted; check `updrive usage` and delete files to free space.")
		case "resource_exhausted":
			lines = append(lines, "hint: rate limited; retry shortly.")
		case "payload_too_large":
			lines = append(lines, "hint: file exceeds the server's max_upload_size_mb.")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify UPDRIVE_API_URL points to an updrive server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, errNotLoggedIn) {
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase UPDRIVE_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure an updrive server is running at UPDRIVE_API_URL.",
			"hint: start a local server with: updrive srv",
			"hint: or set UPDRIVE_AUTOSTART=true to start one on demand.",
		)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"updrive/internal/format"
	"updrive/internal/models"
)

var (
	outputFormatter format.Formatter = format.JSONFormatter{}
	stdout          io.Writer        = os.Stdout
)

func writeJSON(payload any) error {
	return outputFormatter.Write(stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(stdout, format, args...)
	return err
}

func writeFileList(files []models.File) error {
	if len(files) == 0 {
		return writePlain("no files\n")
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIZE\tTYPE\tFOLDER\tDOWNLOADS\tCREATED")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			f.UUID, f.OriginalName, formatSize(f.Size), f.MimeType, formatFolder(f.FolderID), f.DownloadCount, formatTime(f.CreatedAt))
	}
	return tw.Flush()
}

func writeFileDetail(f models.File) error {
	tw := tabwriter.NewWriter(stdout, 0, 4, 1, ' ', 0)
	fmt.Fprintf(tw, "id:\t%s\n", f.UUID)
	fmt.Fprintf(tw, "name:\t%s\n", f.OriginalName)
	fmt.Fprintf(tw, "size:\t%s (%d bytes)\n", formatSize(f.Size), f.Size)
	fmt.Fprintf(tw, "type:\t%s\n", f.MimeType)
	fmt.Fprintf(tw, "folder:\t%s\n", formatFolder(f.FolderID))
	fmt.Fprintf(tw, "sha256:\t%s\n", f.SHA256)
	fmt.Fprintf(tw, "created_at:\t%s\n", formatTime(f.CreatedAt))
	return tw.Flush()
}

func writeFolderList(folders []models.Folder) error {
	if len(folders) == 0 {
		return writePlain("no folders\n")
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPARENT\tCREATED")
	for _, f := range folders {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", f.ID, f.Name, formatFolder(f.ParentID), formatTime(f.CreatedAt))
	}
	return tw.Flush()
}

func writeUsage(u models.Usage) error {
	percent := 0.0
	if u.QuotaBytes > 0 {
		percent = float64(u.UsedBytes) / float64(u.QuotaBytes) * 100
	}
	return writePlain("used: %s of %s (%.1f%%), %s available\n",
		formatSize(u.UsedBytes), formatSize(u.QuotaBytes), percent, formatSize(u.AvailableBytes))
}

func formatSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func formatFolder(id *int64) string {
	if id == nil {
		return "/"
	}
	return strconv.FormatInt(*id, 10)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

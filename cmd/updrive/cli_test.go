package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	internalauth "updrive/internal/auth"
	"updrive/internal/blobstore"
	"updrive/internal/config"
	"updrive/internal/format"
	"updrive/internal/models"
	"updrive/internal/server"
	"updrive/internal/store"
)

type cliEnv struct {
	cfg *config.Config
	dir string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.StoragePath = filepath.Join(dir, "data")
	cfg.DBPath = filepath.Join(cfg.StoragePath, config.DefaultDBFileName)
	cfg.SecretKey = "cli-test-secret"

	st, err := openStore(&cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	blobs, err := blobstore.NewLocalStore(cfg.BlobDir())
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	tokens, err := internalauth.NewTokenIssuer(cfg.SecretKey, cfg.JWTAlgorithm, time.Hour)
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}
	srv, err := server.New(server.Options{
		Users:             st,
		Files:             st,
		Blobs:             blobs,
		Tokens:            tokens,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		MaxUploadBytes:    1 << 20,
		DefaultQuotaBytes: 1 << 20,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	cfg.APIURL = ts.URL

	t.Setenv("UPDRIVE_TOKEN", "")
	t.Setenv(autostartEnvKey, "")
	t.Setenv(logLevelEnvKey, "error")
	return &cliEnv{cfg: &cfg, dir: dir}
}

// run executes one command line and returns what it wrote to stdout.
func (e *cliEnv) run(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	prevOut, prevIn, prevFormatter := stdout, stdin, outputFormatter
	stdout, stdin, outputFormatter = &out, strings.NewReader(input), format.JSONFormatter{}
	defer func() { stdout, stdin, outputFormatter = prevOut, prevIn, prevFormatter }()

	cmd := newRootCmd(e.cfg)
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return out.String(), err
}

func (e *cliEnv) mustRun(t *testing.T, input string, args ...string) string {
	t.Helper()
	out, err := e.run(t, input, args...)
	if err != nil {
		t.Fatalf("updrive %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func (e *cliEnv) loginAs(t *testing.T, username string) {
	t.Helper()
	e.mustRun(t, "password-123\n", "register", username, "--password-stdin")
	token := strings.TrimSpace(e.mustRun(t, "password-123\n", "login", username, "--password-stdin"))
	if token == "" {
		t.Fatalf("login printed no token")
	}
	t.Setenv("UPDRIVE_TOKEN", token)
}

func TestCLIFileLifecycle(t *testing.T) {
	env := newCLIEnv(t)
	env.loginAs(t, "alice")

	local := filepath.Join(env.dir, "notes.txt")
	if err := os.WriteFile(local, []byte("hello from the cli"), 0o644); err != nil {
		t.Fatalf("write local file: %v", err)
	}

	var uploaded models.File
	if err := json.Unmarshal([]byte(env.mustRun(t, "", "put", local, "--json")), &uploaded); err != nil {
		t.Fatalf("decode upload: %v", err)
	}
	if uploaded.OriginalName != "notes.txt" || uploaded.Size != int64(len("hello from the cli")) {
		t.Fatalf("unexpected upload: %+v", uploaded)
	}
	if !strings.HasPrefix(uploaded.MimeType, "text/plain") {
		t.Fatalf("expected text/plain, got %q", uploaded.MimeType)
	}

	var listed []models.File
	if err := json.Unmarshal([]byte(env.mustRun(t, "", "ls", "--json")), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 || listed[0].UUID != uploaded.UUID {
		t.Fatalf("expected uploaded file in listing, got %+v", listed)
	}

	dest := filepath.Join(env.dir, "copy.txt")
	env.mustRun(t, "", "get", uploaded.UUID, "--dest", dest)
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if string(data) != "hello from the cli" {
		t.Fatalf("unexpected download content %q", data)
	}

	var usage models.Usage
	if err := json.Unmarshal([]byte(env.mustRun(t, "", "usage", "--json")), &usage); err != nil {
		t.Fatalf("decode usage: %v", err)
	}
	if usage.UsedBytes != uploaded.Size {
		t.Fatalf("expected used %d, got %d", uploaded.Size, usage.UsedBytes)
	}

	renamed := env.mustRun(t, "", "rename", uploaded.UUID, "final.txt")
	if !strings.Contains(renamed, "final.txt") {
		t.Fatalf("unexpected rename output %q", renamed)
	}

	env.mustRun(t, "", "rm", uploaded.UUID)
	if err := json.Unmarshal([]byte(env.mustRun(t, "", "usage", "--json")), &usage); err != nil {
		t.Fatalf("decode usage: %v", err)
	}
	if usage.UsedBytes != 0 {
		t.Fatalf("expected quota released, got %d", usage.UsedBytes)
	}
}

func TestCLIFoldersAndMove(t *testing.T) {
	env := newCLIEnv(t)
	env.loginAs(t, "bob")

	var folder models.Folder
	if err := json.Unmarshal([]byte(env.mustRun(t, "", "mkdir", "photos", "--json")), &folder); err != nil {
		t.Fatalf("decode folder: %v", err)
	}
	if folder.Name != "photos" || folder.ID <= 0 {
		t.Fatalf("unexpected folder %+v", folder)
	}

	local := filepath.Join(env.dir, "cat.jpg")
	if err := os.WriteFile(local, []byte("meow"), 0o644); err != nil {
		t.Fatalf("write local file: %v", err)
	}
	var file models.File
	if err := json.Unmarshal([]byte(env.mustRun(t, "", "put", local, "--json")), &file); err != nil {
		t.Fatalf("decode upload: %v", err)
	}

	folderArg := jsonNumber(folder.ID)
	env.mustRun(t, "", "mv", file.UUID, "--folder", folderArg)

	var listing models.DriveListing
	if err := json.Unmarshal([]byte(env.mustRun(t, "", "drive", "--folder", folderArg, "--json")), &listing); err != nil {
		t.Fatalf("decode drive: %v", err)
	}
	if len(listing.Files) != 1 || listing.Files[0].UUID != file.UUID {
		t.Fatalf("expected moved file in folder, got %+v", listing.Files)
	}

	out := env.mustRun(t, "", "folders")
	if !strings.Contains(out, "photos") {
		t.Fatalf("expected folder in table, got %q", out)
	}
}

func TestCLIRequiresToken(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "", "ls")
	if err != errNotLoggedIn {
		t.Fatalf("expected errNotLoggedIn, got %v", err)
	}
}

func TestCLIRejectsBadFolderFlag(t *testing.T) {
	env := newCLIEnv(t)
	t.Setenv("UPDRIVE_TOKEN", "anything")
	if _, err := env.run(t, "", "ls", "--folder", "root"); err == nil {
		t.Fatal("expected invalid folder id error")
	}
}

func TestCLIOutputYAML(t *testing.T) {
	env := newCLIEnv(t)
	out := env.mustRun(t, "", "info", "-o", "yaml")
	if !strings.Contains(out, "app_name: "+config.AppName) {
		t.Fatalf("expected yaml info, got %q", out)
	}
}

func TestCLIMigrateAndLocalInfo(t *testing.T) {
	env := newCLIEnv(t)

	var plan store.MigrationStatus
	if err := json.Unmarshal([]byte(env.mustRun(t, "", "migrate", "--inspect", "--json")), &plan); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	if len(plan.Pending) != 0 || plan.CurrentVersion != plan.AvailableVersion {
		t.Fatalf("expected migrated database, got %+v", plan)
	}

	out := env.mustRun(t, "", "info", "--local")
	if !strings.Contains(out, "schema_version:") || !strings.Contains(out, "users: 0") {
		t.Fatalf("unexpected local info %q", out)
	}
}

func TestCLIGCDryRunByDefault(t *testing.T) {
	env := newCLIEnv(t)
	blobs, err := blobstore.NewLocalStore(env.cfg.BlobDir())
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	orphan, err := blobs.Write(t.Context(), "stray.bin", strings.NewReader("stray"))
	if err != nil {
		t.Fatalf("write orphan: %v", err)
	}

	var result server.BlobGCResult
	if err := json.Unmarshal([]byte(env.mustRun(t, "", "gc", "--grace", "0s", "--json")), &result); err != nil {
		t.Fatalf("decode gc: %v", err)
	}
	if !result.DryRun || result.CandidateCount != 1 {
		t.Fatalf("unexpected dry run %+v", result)
	}
	if _, ok := blobs.Locate(orphan.StorageName); !ok {
		t.Fatal("dry run removed the blob")
	}

	if err := json.Unmarshal([]byte(env.mustRun(t, "", "gc", "--grace", "0s", "--apply", "--json")), &result); err != nil {
		t.Fatalf("decode gc: %v", err)
	}
	if result.DeletedCount != 1 {
		t.Fatalf("expected one deletion, got %+v", result)
	}
	if _, ok := blobs.Locate(orphan.StorageName); ok {
		t.Fatal("orphan blob survived --apply")
	}
}

func jsonNumber(id int64) string {
	raw, _ := json.Marshal(id)
	return string(raw)
}

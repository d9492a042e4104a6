package server

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"updrive/internal/api"
	"updrive/internal/models"
)

func TestUploadAndDownloadRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.register(t, "alice")
	content := []byte("hello, drive")

	file := env.mustUpload(t, token, `C:\Users\alice\notes.txt`, content)
	if file.OriginalName != "notes.txt" {
		t.Fatalf("expected base name, got %q", file.OriginalName)
	}
	if file.Size != int64(len(content)) {
		t.Fatalf("expected size %d, got %d", len(content), file.Size)
	}
	if !strings.HasPrefix(file.MimeType, "text/plain") {
		t.Fatalf("expected guessed text/plain, got %q", file.MimeType)
	}
	if len(file.SHA256) != 64 {
		t.Fatalf("expected sha256 hex digest, got %q", file.SHA256)
	}
	if strings.Contains(env.upload(t, token, "x.bin", []byte("x"), nil).Body.String(), "storage_name") {
		t.Fatal("storage name must not be exposed")
	}

	w := env.do(t, http.MethodGet, "/api/files/"+file.UUID+"/download", token, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected download 200, got %d (%s)", w.Code, w.Body.String())
	}
	if !bytes.Equal(w.Body.Bytes(), content) {
		t.Fatalf("unexpected body %q", w.Body.String())
	}
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename=notes.txt` {
		t.Fatalf("unexpected content-disposition %q", got)
	}
	if got := w.Header().Get("Content-Length"); got != strconv.Itoa(len(content)) {
		t.Fatalf("unexpected content-length %q", got)
	}

	env.srv.downloads.drain()
	stored, err := env.store.GetFileByUUID(context.Background(), file.UUID)
	if err != nil || stored == nil {
		t.Fatalf("get file: %v", err)
	}
	if stored.DownloadCount != 1 {
		t.Fatalf("expected download_count 1, got %d", stored.DownloadCount)
	}
}

func TestUploadDeclaredContentTypeWins(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.register(t, "alice")

	var buf bytes.Buffer
	body := "--b\r\nContent-Disposition: form-data; name=\"upload\"; filename=\"data\"\r\nContent-Type: application/json\r\n\r\n{}\r\n--b--\r\n"
	buf.WriteString(body)
	w := env.do(t, http.MethodPost, "/api/upload", token, &buf, "multipart/form-data; boundary=b")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	file := decodeBody[models.File](t, w)
	if file.MimeType != "application/json" {
		t.Fatalf("expected declared type, got %q", file.MimeType)
	}

	file = env.mustUpload(t, token, "blob", []byte("raw"))
	if file.MimeType != models.DefaultMediaType {
		t.Fatalf("expected default media type, got %q", file.MimeType)
	}
}

func TestUploadDeduplicatesContent(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	content := []byte("same bytes")

	first := env.mustUpload(t, alice, "a.txt", content)
	second := env.mustUpload(t, alice, "b.txt", content)
	third := env.mustUpload(t, bob, "c.txt", content)

	if first.UUID == second.UUID || second.UUID == third.UUID {
		t.Fatal("expected distinct logical records")
	}
	if first.SHA256 != second.SHA256 || second.SHA256 != third.SHA256 {
		t.Fatal("expected identical digests")
	}
	if got := env.blobCount(t); got != 1 {
		t.Fatalf("expected one physical blob, got %d", got)
	}
	if got := env.usage(t, alice).UsedBytes; got != 2*int64(len(content)) {
		t.Fatalf("expected alice charged per record, got %d", got)
	}
	if got := env.usage(t, bob).UsedBytes; got != int64(len(content)) {
		t.Fatalf("expected bob charged once, got %d", got)
	}
}

func TestUploadQuotaBoundary(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.register(t, "alice")

	env.mustUpload(t, token, "one.bin", bytes.Repeat([]byte("a"), 500))
	env.mustUpload(t, token, "two.bin", bytes.Repeat([]byte("b"), 500))
	if got := env.usage(t, token); got.UsedBytes != 1000 || got.AvailableBytes != 0 {
		t.Fatalf("expected quota filled exactly, got %+v", got)
	}
	blobsBefore := env.blobCount(t)

	w := env.upload(t, token, "three.bin", []byte("c"), nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (%s)", w.Code, w.Body.String())
	}
	resp := decodeBody[api.ErrorResponse](t, w)
	if resp.Code != "quota_exceeded" || resp.ErrorCode != ErrCodeQuotaExceeded {
		t.Fatalf("unexpected error: %+v", resp)
	}
	if got := env.blobCount(t); got != blobsBefore {
		t.Fatalf("expected rejected blob removed, got %d blobs (was %d)", got, blobsBefore)
	}
	if got := env.usage(t, token).UsedBytes; got != 1000 {
		t.Fatalf("expected ledger unchanged, got %d", got)
	}
}

func TestUploadTooLarge(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.register(t, "alice")

	w := env.upload(t, token, "big.bin", bytes.Repeat([]byte("x"), 501), nil)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d (%s)", w.Code, w.Body.String())
	}
	if got := env.blobCount(t); got != 0 {
		t.Fatalf("expected no blobs after rejection, got %d", got)
	}
	if got := env.usage(t, token).UsedBytes; got != 0 {
		t.Fatalf("expected no charge, got %d", got)
	}

	env.mustUpload(t, token, "max.bin", bytes.Repeat([]byte("x"), 500))
}

func TestUploadRejectsMalformedRequests(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.register(t, "alice")

	w := env.do(t, http.MethodPost, "/api/upload", token, strings.NewReader("{}"), "application/json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-multipart body, got %d", w.Code)
	}

	body := "--b\r\nContent-Disposition: form-data; name=\"other\"\r\n\r\nvalue\r\n--b--\r\n"
	w = env.do(t, http.MethodPost, "/api/upload", token, strings.NewReader(body), "multipart/form-data; boundary=b")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing upload field, got %d", w.Code)
	}
	resp := decodeBody[api.ErrorResponse](t, w)
	if resp.ErrorCode != ErrCodeMissingRequired {
		t.Fatalf("expected error_code %d, got %d", ErrCodeMissingRequired, resp.ErrorCode)
	}

	w = env.upload(t, token, "x.txt", []byte("x"), nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected upload to still work, got %d", w.Code)
	}
	w = env.do(t, http.MethodPost, "/api/upload?folder_id=abc", token, strings.NewReader(""), "multipart/form-data; boundary=b")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid folder_id, got %d", w.Code)
	}
}

func TestOwnershipIsolation(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.register(t, "alice")
	mallory := env.register(t, "mallory")
	file := env.mustUpload(t, alice, "secret.txt", []byte("top secret"))

	checks := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"download", http.MethodGet, "/api/files/" + file.UUID + "/download", nil},
		{"rename", http.MethodPost, "/api/files/" + file.UUID + "/rename", api.RenameRequest{NewName: "mine.txt"}},
		{"move", http.MethodPost, "/api/files/" + file.UUID + "/move", api.MoveRequest{}},
		{"delete", http.MethodDelete, "/api/files/" + file.UUID, nil},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			w := env.doJSON(t, c.method, c.path, mallory, c.body)
			if w.Code != http.StatusForbidden {
				t.Fatalf("expected 403, got %d (%s)", w.Code, w.Body.String())
			}
		})
	}

	w := env.do(t, http.MethodGet, "/api/files", mallory, nil, "")
	if files := decodeBody[[]models.File](t, w); len(files) != 0 {
		t.Fatalf("expected mallory to see no files, got %d", len(files))
	}

	w = env.do(t, http.MethodGet, "/api/files/"+file.UUID+"/download", alice, nil, "")
	if w.Code != http.StatusOK || w.Body.String() != "top secret" {
		t.Fatalf("expected owner download intact, got %d %q", w.Code, w.Body.String())
	}
	if got := env.usage(t, alice).UsedBytes; got != int64(len("top secret")) {
		t.Fatalf("expected owner ledger unchanged, got %d", got)
	}
}

func TestDeleteReferenceCounting(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	content := []byte("shared payload")

	aFile := env.mustUpload(t, alice, "x.txt", content)
	bFile := env.mustUpload(t, bob, "x-copy.txt", content)
	if env.blobCount(t) != 1 {
		t.Fatalf("expected one blob, got %d", env.blobCount(t))
	}

	w := env.do(t, http.MethodDelete, "/api/files/"+aFile.UUID, alice, nil, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d (%s)", w.Code, w.Body.String())
	}
	if env.blobCount(t) != 1 {
		t.Fatal("expected blob kept while bob references it")
	}
	if got := env.usage(t, alice).UsedBytes; got != 0 {
		t.Fatalf("expected alice released, got %d", got)
	}

	w = env.do(t, http.MethodGet, "/api/files/"+bFile.UUID+"/download", bob, nil, "")
	if w.Code != http.StatusOK || !bytes.Equal(w.Body.Bytes(), content) {
		t.Fatalf("expected bob download intact, got %d", w.Code)
	}

	w = env.do(t, http.MethodDelete, "/api/files/"+bFile.UUID, bob, nil, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if env.blobCount(t) != 0 {
		t.Fatal("expected blob removed after last reference")
	}

	w = env.do(t, http.MethodDelete, "/api/files/"+bFile.UUID, bob, nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for deleted file, got %d", w.Code)
	}
}

func TestDownloadMissingBlob(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.register(t, "alice")
	file := env.mustUpload(t, token, "gone.txt", []byte("gone"))

	stored, err := env.store.GetFileByUUID(context.Background(), file.UUID)
	if err != nil || stored == nil {
		t.Fatalf("get file: %v", err)
	}
	if err := env.blobs.Remove(context.Background(), stored.StorageName); err != nil {
		t.Fatalf("remove blob: %v", err)
	}

	w := env.do(t, http.MethodGet, "/api/files/"+file.UUID+"/download", token, nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	resp := decodeBody[api.ErrorResponse](t, w)
	if resp.Error != "file missing on disk" || resp.ErrorCode != ErrCodeBlobMissing {
		t.Fatalf("unexpected error: %+v", resp)
	}

	w = env.do(t, http.MethodGet, "/api/files/not-a-uuid/download", token, nil, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/api/files/00000000-0000-0000-0000-000000000000/download", token, nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown id, got %d", w.Code)
	}
}

func TestFoldersAndDrive(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	w := env.doJSON(t, http.MethodPost, "/api/folders", alice, api.FolderCreateRequest{Name: "Photos"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	photos := decodeBody[models.Folder](t, w)

	w = env.doJSON(t, http.MethodPost, "/api/folders", alice, api.FolderCreateRequest{Name: "2026", ParentID: &photos.ID})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected nested folder 201, got %d", w.Code)
	}

	w = env.doJSON(t, http.MethodPost, "/api/folders", alice, api.FolderCreateRequest{Name: "  "})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank name, got %d", w.Code)
	}
	missing := int64(9999)
	w = env.doJSON(t, http.MethodPost, "/api/folders", alice, api.FolderCreateRequest{Name: "x", ParentID: &missing})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing parent, got %d", w.Code)
	}
	w = env.doJSON(t, http.MethodPost, "/api/folders", bob, api.FolderCreateRequest{Name: "x", ParentID: &photos.ID})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign parent, got %d", w.Code)
	}

	inFolder := env.upload(t, alice, "cat.jpg", []byte("meow"), &photos.ID)
	if inFolder.Code != http.StatusCreated {
		t.Fatalf("expected upload into folder 201, got %d (%s)", inFolder.Code, inFolder.Body.String())
	}
	env.mustUpload(t, alice, "root.txt", []byte("root"))

	if w := env.upload(t, bob, "x.txt", []byte("x"), &photos.ID); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 uploading into foreign folder, got %d", w.Code)
	}
	if w := env.upload(t, alice, "x.txt", []byte("x"), &missing); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 uploading into missing folder, got %d", w.Code)
	}
	if got := env.usage(t, bob).UsedBytes; got != 0 {
		t.Fatalf("expected bob ledger untouched, got %d", got)
	}

	w = env.do(t, http.MethodGet, "/api/drive", alice, nil, "")
	root := decodeBody[models.DriveListing](t, w)
	if len(root.Folders) != 1 || root.Folders[0].ID != photos.ID {
		t.Fatalf("expected only Photos at root, got %+v", root.Folders)
	}
	if len(root.Files) != 1 || root.Files[0].OriginalName != "root.txt" {
		t.Fatalf("expected only root.txt at root, got %+v", root.Files)
	}

	w = env.do(t, http.MethodGet, "/api/drive?folder_id="+strconv.FormatInt(photos.ID, 10), alice, nil, "")
	sub := decodeBody[models.DriveListing](t, w)
	if len(sub.Folders) != 1 || sub.Folders[0].Name != "2026" {
		t.Fatalf("expected nested folder, got %+v", sub.Folders)
	}
	if len(sub.Files) != 1 || sub.Files[0].OriginalName != "cat.jpg" {
		t.Fatalf("expected cat.jpg in Photos, got %+v", sub.Files)
	}

	w = env.do(t, http.MethodGet, "/api/drive?folder_id="+strconv.FormatInt(photos.ID, 10), bob, nil, "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 listing foreign folder, got %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/folders", alice, nil, "")
	if folders := decodeBody[[]models.Folder](t, w); len(folders) != 2 {
		t.Fatalf("expected 2 folders, got %d", len(folders))
	}

	w = env.do(t, http.MethodGet, "/api/files?folder_id="+strconv.FormatInt(photos.ID, 10), alice, nil, "")
	if files := decodeBody[[]models.File](t, w); len(files) != 1 {
		t.Fatalf("expected 1 file in folder filter, got %d", len(files))
	}
}

func TestMoveAndRename(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	file := env.mustUpload(t, alice, "draft.txt", []byte("draft"))

	w := env.doJSON(t, http.MethodPost, "/api/folders", alice, api.FolderCreateRequest{Name: "Docs"})
	docs := decodeBody[models.Folder](t, w)
	w = env.doJSON(t, http.MethodPost, "/api/folders", bob, api.FolderCreateRequest{Name: "Bob"})
	bobs := decodeBody[models.Folder](t, w)

	w = env.doJSON(t, http.MethodPost, "/api/files/"+file.UUID+"/rename", alice, api.RenameRequest{NewName: "final.txt"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected rename 200, got %d (%s)", w.Code, w.Body.String())
	}
	if renamed := decodeBody[models.File](t, w); renamed.OriginalName != "final.txt" {
		t.Fatalf("expected renamed file, got %q", renamed.OriginalName)
	}
	w = env.doJSON(t, http.MethodPost, "/api/files/"+file.UUID+"/rename", alice, api.RenameRequest{NewName: " "})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank name, got %d", w.Code)
	}

	w = env.doJSON(t, http.MethodPost, "/api/files/"+file.UUID+"/move", alice, api.MoveRequest{FolderID: &docs.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("expected move 200, got %d (%s)", w.Code, w.Body.String())
	}
	moved := decodeBody[models.File](t, w)
	if moved.FolderID == nil || *moved.FolderID != docs.ID {
		t.Fatalf("expected file in Docs, got %v", moved.FolderID)
	}

	w = env.doJSON(t, http.MethodPost, "/api/files/"+file.UUID+"/move", alice, api.MoveRequest{FolderID: &bobs.ID})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 moving into foreign folder, got %d", w.Code)
	}
	missing := int64(424242)
	w = env.doJSON(t, http.MethodPost, "/api/files/"+file.UUID+"/move", alice, api.MoveRequest{FolderID: &missing})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 moving into missing folder, got %d", w.Code)
	}

	w = env.doJSON(t, http.MethodPost, "/api/files/"+file.UUID+"/move", alice, api.MoveRequest{})
	if w.Code != http.StatusOK {
		t.Fatalf("expected move to root 200, got %d", w.Code)
	}
	if root := decodeBody[models.File](t, w); root.FolderID != nil {
		t.Fatalf("expected file at root, got %v", *root.FolderID)
	}
}

func TestListFilesOrderingAndPaging(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.register(t, "alice")
	for i := 0; i < 3; i++ {
		env.mustUpload(t, token, "f"+strconv.Itoa(i)+".txt", []byte("content-"+strconv.Itoa(i)))
	}

	w := env.do(t, http.MethodGet, "/api/files", token, nil, "")
	files := decodeBody[[]models.File](t, w)
	if len(files) != 3 || files[0].OriginalName != "f2.txt" || files[2].OriginalName != "f0.txt" {
		t.Fatalf("expected newest first, got %+v", files)
	}

	w = env.do(t, http.MethodGet, "/api/files?limit=1&offset=1", token, nil, "")
	page := decodeBody[[]models.File](t, w)
	if len(page) != 1 || page[0].OriginalName != "f1.txt" {
		t.Fatalf("unexpected page %+v", page)
	}

	w = env.do(t, http.MethodGet, "/api/files?limit=-1", token, nil, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative limit, got %d", w.Code)
	}
}

func TestDownloadCounterDropsWhenFull(t *testing.T) {
	env := newTestEnv(t, nil)
	counter := env.srv.downloads
	counter.queue = make(chan int64, 1)

	counter.enqueue(1)
	counter.enqueue(2)
	if len(counter.queue) != 1 {
		t.Fatalf("expected queue to hold one item, got %d", len(counter.queue))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	counter.run(ctx)
	if len(counter.queue) != 0 {
		t.Fatal("expected run to drain queue on shutdown")
	}
}

func TestStopWorkersWaitsForQueuedDownloads(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.register(t, "alice")
	file := env.mustUpload(t, token, "a.txt", []byte("a"))
	stored, err := env.store.GetFileByUUID(context.Background(), file.UUID)
	if err != nil || stored == nil {
		t.Fatalf("get file: %v", err)
	}

	stop := env.srv.startWorkers()
	for i := 0; i < 3; i++ {
		env.srv.downloads.enqueue(stored.ID)
	}
	stop()

	after, err := env.store.GetFileByUUID(context.Background(), file.UUID)
	if err != nil || after == nil {
		t.Fatalf("get file: %v", err)
	}
	if after.DownloadCount != 3 {
		t.Fatalf("expected 3 downloads recorded before stop returned, got %d", after.DownloadCount)
	}
}

package server

import (
	"compress/gzip"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"updrive/internal/models"
)

func TestListingsAreGzippedOnRequest(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.register(t, "alice")
	for i := 0; i < 8; i++ {
		env.mustUpload(t, token, "file-"+strconv.Itoa(i)+".txt", []byte("content-"+strconv.Itoa(i)))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	env.h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("expected gzip encoding, got %q", got)
	}
	zr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	var files []models.File
	if err := json.NewDecoder(zr).Decode(&files); err != nil {
		t.Fatalf("decode gzipped listing: %v", err)
	}
	if len(files) != 8 {
		t.Fatalf("expected 8 files, got %d", len(files))
	}
}

func TestDownloadsAreNotCompressed(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.register(t, "alice")
	payload := make([]byte, 400)
	for i := range payload {
		payload[i] = 'a'
	}
	file := env.mustUpload(t, token, "data.json", payload)

	req := httptest.NewRequest(http.MethodGet, "/api/files/"+file.UUID+"/download", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	env.h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Encoding"); got != "" {
		t.Fatalf("download must not be re-encoded, got %q", got)
	}
	if w.Body.Len() != len(payload) {
		t.Fatalf("expected %d raw bytes, got %d", len(payload), w.Body.Len())
	}
}

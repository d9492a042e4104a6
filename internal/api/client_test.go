package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPTimeoutFromEnv(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "")
		if got := httpTimeoutFromEnv(); got != defaultHTTPTimeout {
			t.Fatalf("expected default timeout %v, got %v", defaultHTTPTimeout, got)
		}
	})

	t.Run("duration format", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "45s")
		if got := httpTimeoutFromEnv(); got != 45*time.Second {
			t.Fatalf("expected 45s timeout, got %v", got)
		}
	})

	t.Run("integer seconds", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "25")
		if got := httpTimeoutFromEnv(); got != 25*time.Second {
			t.Fatalf("expected 25s timeout, got %v", got)
		}
	})

	t.Run("invalid falls back", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "invalid")
		if got := httpTimeoutFromEnv(); got != defaultHTTPTimeout {
			t.Fatalf("expected default timeout %v, got %v", defaultHTTPTimeout, got)
		}
	})
}

func TestClientTokenUsesPasswordForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("username") != "alice" || r.PostForm.Get("password") != "secret-pw" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer"}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).Token(context.Background(), "alice", "secret-pw")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if resp.AccessToken != "tok" || resp.TokenType != "bearer" {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestClientUploadStreamsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected auth header %q", got)
		}
		if got := r.URL.Query().Get("folder_id"); got != "7" {
			t.Errorf("unexpected folder_id %q", got)
		}
		file, header, err := r.FormFile(UploadField)
		if err != nil {
			t.Errorf("form file: %v", err)
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "hello" || header.Filename != "hi.txt" || header.Header.Get("Content-Type") != "text/plain" {
			t.Errorf("unexpected part %q %q %q", data, header.Filename, header.Header.Get("Content-Type"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"abc","original_name":"hi.txt","size":5}`))
	}))
	defer srv.Close()

	folder := int64(7)
	file, err := NewClient(srv.URL).WithToken("tok").Upload(context.Background(), "hi.txt", "text/plain", strings.NewReader("hello"), &folder)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if file.UUID != "abc" || file.Size != 5 {
		t.Fatalf("unexpected file %#v", file)
	}
}

func TestClientDownloadReturnsFilename(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="report.pdf"`)
		_, _ = w.Write([]byte("pdf-bytes"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	name, n, err := NewClient(srv.URL).Download(context.Background(), "abc", &buf)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if name != "report.pdf" || n != 9 || buf.String() != "pdf-bytes" {
		t.Fatalf("unexpected download %q %d %q", name, n, buf.String())
	}
}

func TestClientDecodesStructuredErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"quota exceeded","code":"quota_exceeded","error_code":2201}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Usage(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T %v", err, err)
	}
	if apiErr.Status != http.StatusForbidden || apiErr.Code != "quota_exceeded" || apiErr.ErrorCode != 2201 {
		t.Fatalf("unexpected api error %#v", apiErr)
	}
	if !IsStatus(err, http.StatusForbidden) || IsUnauthorized(err) {
		t.Fatal("status helpers disagree with decoded error")
	}
}

package bridge

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"updrive/internal/api"
)

const folderFieldMaxBytes = 32

// handleUpload re-encodes the browser's multipart body as a fresh one holding
// only the file part, streamed to the backend through a pipe.
func (b *Bridge) handleUpload(w http.ResponseWriter, r *http.Request) {
	token, ok := b.cookieToken(w, r)
	if !ok {
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "expected multipart/form-data body", Code: "invalid_argument"})
		return
	}

	folderID := strings.TrimSpace(r.URL.Query().Get("folder_id"))
	var file *multipart.Part
	for file == nil {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: fmt.Sprintf("missing %q file field", api.UploadField), Code: "invalid_argument"})
			return
		}
		if err != nil {
			writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid multipart body", Code: "invalid_argument"})
			return
		}
		switch {
		case part.FormName() == api.UploadField && part.FileName() != "":
			file = part
		case part.FormName() == "folder_id":
			value, err := io.ReadAll(io.LimitReader(part, folderFieldMaxBytes))
			_ = part.Close()
			if err != nil {
				writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid multipart body", Code: "invalid_argument"})
				return
			}
			folderID = strings.TrimSpace(string(value))
		default:
			_ = part.Close()
		}
	}
	defer file.Close()

	if folderID != "" {
		if id, err := strconv.ParseInt(folderID, 10, 64); err != nil || id <= 0 {
			writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: "invalid folder_id", Code: "invalid_argument"})
			return
		}
	}

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(api.WriteUploadPart(mw, file.FileName(), file.Header.Get("Content-Type"), file))
	}()

	target := *b.backend
	target.Path = b.backendPath("/web/api/upload")
	if folderID != "" {
		target.RawQuery = url.Values{"folder_id": {folderID}}.Encode()
	}
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, target.String(), pr)
	if err != nil {
		pr.CloseWithError(err)
		b.backendUnreachable(w, r, err)
		return
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if ip := peerIP(r); ip != "" {
		req.Header.Set(api.ForwardedForHeader, ip)
	}
	if ua := r.Header.Get("User-Agent"); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := b.transfer.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		b.backendUnreachable(w, r, err)
		return
	}
	defer resp.Body.Close()
	relay(w, resp)
}

// relay copies the allow-listed headers, status and body of resp.
func relay(w http.ResponseWriter, resp *http.Response) {
	for key, values := range copyHeaders(resp.Header, relayedResponseHeaders) {
		w.Header()[key] = values
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

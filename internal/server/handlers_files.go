package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"updrive/internal/api"
	"updrive/internal/audit"
	"updrive/internal/store"
)

// multipartOverhead bounds the envelope around the file part.
const multipartOverhead = 1 << 20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	folderID, err := queryOptionalID(r, "folder_id")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	if !s.acquireLimiter(s.uploadLimiter, w, r, "upload") {
		return
	}
	defer s.releaseLimiter(s.uploadLimiter)

	clearTransferDeadlines(w)
	if s.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+multipartOverhead)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("expected multipart/form-data body"), ErrCodeInvalidMultipart))
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("missing %q file field", api.UploadField), ErrCodeMissingRequired))
			return
		}
		if err != nil {
			if isMaxBytesError(err) {
				s.files.metrics.RecordUpload(uploadResultTooLarge, 0)
				s.writeServiceError(w, r, s.files.tooLarge())
				return
			}
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("invalid multipart body: %w", err), ErrCodeInvalidMultipart))
			return
		}
		if part.FormName() != api.UploadField || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		file, err := s.files.Upload(r.Context(), UploadInput{
			OwnerID:     principal.User.ID,
			FolderID:    folderID,
			Filename:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Body:        part,
		})
		_ = part.Close()
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, file)
		return
	}
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	limit, offset, err := listWindow(r)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	folderID, err := queryOptionalID(r, "folder_id")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	files, err := s.files.List(r.Context(), store.FileFilter{
		OwnerID:  principal.User.ID,
		InFolder: folderID != nil,
		FolderID: folderID,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleDrive(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	folderID, err := queryOptionalID(r, "folder_id")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	listing, err := s.files.Drive(r.Context(), principal.User.ID, folderID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}

	file, rc, err := s.files.Open(r.Context(), id, principal.User.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer rc.Close()

	clearTransferDeadlines(w)
	h := w.Header()
	h.Set("Content-Type", file.MimeType)
	if file.MimeType == "" {
		h.Set("Content-Type", "application/octet-stream")
	}
	h.Set("Content-Disposition", contentDisposition(file.OriginalName))
	h.Set("Content-Length", strconv.FormatInt(file.Size, 10))
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, rc)
	if err != nil {
		s.log().Warn("download interrupted", "file_id", file.UUID, "bytes", n, "error", err)
		return
	}
	s.files.metrics.RecordDownload(n)
	s.downloads.enqueue(file.ID)
}

func (s *Server) handleRenameFile(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	var req api.RenameRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	file, err := s.files.Rename(r.Context(), id, principal.User.ID, req.NewName)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, file)
}

func (s *Server) handleMoveFile(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	var req api.MoveRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	if req.FolderID != nil && *req.FolderID <= 0 {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("invalid folder_id"), ErrCodeInvalidID))
		return
	}
	file, err := s.files.Move(r.Context(), id, principal.User.ID, req.FolderID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, file)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	if err := s.files.Delete(r.Context(), id, principal.User.ID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	usage, err := s.users.GetUsage(r.Context(), principal.User.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, usage)
}

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	folders, err := s.files.ListFolders(r.Context(), principal.User.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, folders)
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requirePrincipal(w, r)
	if !ok {
		return
	}
	var req api.FolderCreateRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	if req.ParentID != nil && *req.ParentID <= 0 {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("invalid parent_id"), ErrCodeInvalidID))
		return
	}
	folder, err := s.files.CreateFolder(r.Context(), principal.User.ID, req.Name, req.ParentID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.audit.LogFileOp(principal.User.ID, "create_folder", strconv.FormatInt(folder.ID, 10), audit.ResultAllowed, 0, folder.Name)
	s.writeJSON(w, http.StatusCreated, folder)
}

func contentDisposition(name string) string {
	if name == "" {
		name = "download"
	}
	if value := mime.FormatMediaType("attachment", map[string]string{"filename": name}); value != "" {
		return value
	}
	return "attachment"
}

// clearTransferDeadlines lifts the server-wide timeouts for a streaming body.
func clearTransferDeadlines(w http.ResponseWriter) {
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})
}

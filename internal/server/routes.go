package server

import (
	"net/http"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check, info and metrics.
	mux.HandleFunc("GET /{$}", s.handleInfo)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	// Accounts and tokens.
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/token", s.handleToken)
	mux.Handle("GET /auth/me", s.withAuthFunc(s.handleMe))

	// Files.
	mux.Handle("POST /api/upload", s.withAuthFunc(s.handleUpload))
	mux.Handle("GET /api/files", s.compress(s.withAuthFunc(s.handleListFiles)))
	mux.Handle("GET /api/files/{id}/download", s.withAuthFunc(s.handleDownload))
	mux.Handle("POST /api/files/{id}/rename", s.withAuthFunc(s.handleRenameFile))
	mux.Handle("POST /api/files/{id}/move", s.withAuthFunc(s.handleMoveFile))
	mux.Handle("DELETE /api/files/{id}", s.withAuthFunc(s.handleDeleteFile))

	// Folders and drive view.
	mux.Handle("GET /api/drive", s.compress(s.withAuthFunc(s.handleDrive)))
	mux.Handle("GET /api/folders", s.compress(s.withAuthFunc(s.handleListFolders)))
	mux.Handle("POST /api/folders", s.withAuthFunc(s.handleCreateFolder))

	// Quota ledger.
	mux.Handle("GET /api/usage", s.withAuthFunc(s.handleUsage))

	return s.withRequestLogging(s.withCORS(s.withRateLimit(mux)))
}

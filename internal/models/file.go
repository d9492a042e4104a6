package models

import "time"

// DefaultMediaType is used when neither the client nor the extension names one.
const DefaultMediaType = "application/octet-stream"

// File is a logical file record. Several records may share one StorageName.
type File struct {
	ID            int64     `json:"-"`
	UUID          string    `json:"id"`
	OwnerID       int64     `json:"owner_id"`
	FolderID      *int64    `json:"folder_id"`
	OriginalName  string    `json:"original_name"`
	StorageName   string    `json:"-"`
	Size          int64     `json:"size"`
	MimeType      string    `json:"mime_type"`
	SHA256        string    `json:"sha256"`
	DownloadCount int64     `json:"download_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Folder is a node in one owner's folder tree; a nil ParentID is the root.
type Folder struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	OwnerID   int64     `json:"owner_id"`
	ParentID  *int64    `json:"parent_id"`
	CreatedAt time.Time `json:"created_at"`
}

// DriveListing holds the folders and files directly under one folder.
type DriveListing struct {
	Folders []Folder `json:"folders"`
	Files   []File   `json:"files"`
}

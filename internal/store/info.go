package store

import "context"

// StoreInfo summarizes registry contents for the info endpoint.
type StoreInfo struct {
	SchemaVersion int   `json:"schema_version" yaml:"schema_version"`
	Users         int   `json:"users" yaml:"users"`
	Folders       int   `json:"folders" yaml:"folders"`
	Files         int   `json:"files" yaml:"files"`
	Blobs         int   `json:"blobs" yaml:"blobs"`
	LogicalBytes  int64 `json:"logical_bytes" yaml:"logical_bytes"`
	StoredBytes   int64 `json:"stored_bytes" yaml:"stored_bytes"`
}

// StoreInfo counts users, folders, records and distinct blobs.
func (s *Store) StoreInfo(ctx context.Context) (*StoreInfo, error) {
	info := &StoreInfo{}
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&info.SchemaVersion); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&info.Users); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM folders").Scan(&info.Folders); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*), COALESCE(SUM(size), 0) FROM files").Scan(&info.Files, &info.LogicalBytes); err != nil {
		return nil, err
	}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(size), 0)
		FROM (SELECT storage_name, MAX(size) AS size FROM files GROUP BY storage_name)
	`).Scan(&info.Blobs, &info.StoredBytes)
	if err != nil {
		return nil, err
	}
	return info, nil
}

package models

import "time"

// User is one registered account with its quota ledger.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	UsedBytes    int64     `json:"used_bytes"`
	QuotaBytes   int64     `json:"quota_bytes"`
	CreatedAt    time.Time `json:"created_at"`
}

// Usage is a snapshot of one account's quota ledger.
type Usage struct {
	UsedBytes      int64 `json:"used_bytes"`
	QuotaBytes     int64 `json:"quota_bytes"`
	AvailableBytes int64 `json:"available_bytes"`
}

// NewUsage derives available bytes, floored at zero.
func NewUsage(used, quota int64) Usage {
	available := quota - used
	if available < 0 {
		available = 0
	}
	return Usage{UsedBytes: used, QuotaBytes: quota, AvailableBytes: available}
}

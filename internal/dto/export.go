package dto

import "time"

// ExportResponse describes a generated export and its signed download link.
type ExportResponse struct {
	ExportID    string    `json:"export_id"`
	Format      string    `json:"format"`
	RowCount    int       `json:"row_count"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

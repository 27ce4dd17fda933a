package domain

import "time"

// ProviderGoogleDrive is the only integration provider.
const ProviderGoogleDrive = "google-drive"

// Integration is an agency's connection to an external provider.
type Integration struct {
	AgencyID    string    `json:"agencyId"`
	Provider    string    `json:"provider"`
	AccessToken string    `json:"accessToken,omitempty"`
	FolderID    string    `json:"folderId,omitempty"`
	ConnectedBy string    `json:"connectedBy,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// IntegrationStatus is the public view of an integration (no secrets).
type IntegrationStatus struct {
	Provider    string     `json:"provider"`
	Connected   bool       `json:"connected"`
	FolderID    string     `json:"folderId,omitempty"`
	ConnectedAt *time.Time `json:"connectedAt,omitempty"`
}

// ConnectDriveRequest is the body for POST /api/integrations/google-drive/connect.
type ConnectDriveRequest struct {
	AccessToken string `json:"accessToken"`
	FolderID    string `json:"folderId"`
}

// DriveFile is the subset of Drive file metadata the portal uses.
type DriveFile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mimeType"`
	WebViewLink  string `json:"webViewLink,omitempty"`
	ThumbnailURL string `json:"thumbnailLink,omitempty"`
	ModifiedTime string `json:"modifiedTime,omitempty"`
}

// ImportDriveRequest is the body for POST /api/integrations/google-drive/import.
type ImportDriveRequest struct {
	ClientID string   `json:"clientId"`
	FileIDs  []string `json:"fileIds"`
	Tags     []string `json:"tags,omitempty"`
}

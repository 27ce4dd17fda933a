package domain

// ============================================================
// Client registry — Request types
// ============================================================

// CreateClientRequest is the body for POST /api/agency/clients.
// ID is derived from Name when omitted.
type CreateClientRequest struct {
	ID          string            `json:"id,omitempty"`
	Name        string            `json:"name"`
	Status      string            `json:"status,omitempty"`
	ContactName string            `json:"contactName,omitempty"`
	Email       string            `json:"email,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	WhatsApp    string            `json:"whatsapp,omitempty"`
	Preferences ClientPreferences `json:"preferences"`
	LogoURL     string            `json:"logoUrl,omitempty"`
	Password    string            `json:"password,omitempty"`
}

// UpdateClientRequest is the body for PUT /api/agency/clients/{id}.
// Omitted (nil) fields keep their stored value.
type UpdateClientRequest struct {
	Name        *string            `json:"name,omitempty"`
	Status      *string            `json:"status,omitempty"`
	ContactName *string            `json:"contactName,omitempty"`
	Email       *string            `json:"email,omitempty"`
	Phone       *string            `json:"phone,omitempty"`
	WhatsApp    *string            `json:"whatsapp,omitempty"`
	Preferences *ClientPreferences `json:"preferences,omitempty"`
	LogoURL     *string            `json:"logoUrl,omitempty"`
}

// ============================================================
// Portal state — mutation Request types
// ============================================================

// ApprovalInput is the body for creating or patching an approval.
type ApprovalInput struct {
	Title          *string   `json:"title,omitempty"`
	Type           *string   `json:"type,omitempty"`
	Date           *string   `json:"date,omitempty"`
	PostDate       *string   `json:"postDate,omitempty"`
	Status         *string   `json:"status,omitempty"`
	CopyText       *string   `json:"copyText,omitempty"`
	Caption        *string   `json:"caption,omitempty"`
	ImageURL       *string   `json:"imageUrl,omitempty"`
	UploadedImages *[]string `json:"uploadedImages,omitempty"`
	Tags           *[]string `json:"tags,omitempty"`
	ChangeNote     string    `json:"changeNote,omitempty"`
}

// NeedInput is the body for creating or patching a need.
type NeedInput struct {
	Text     *string `json:"text,omitempty"`
	Severity *string `json:"severity,omitempty"`
	Status   *string `json:"status,omitempty"`
}

// RequestInput is the body for creating or patching a client request.
type RequestInput struct {
	Type    *string `json:"type,omitempty"`
	Details *string `json:"details,omitempty"`
	By      *string `json:"by,omitempty"`
	Status  *string `json:"status,omitempty"`
}

// AssetInput is the body for adding an asset to the content library.
type AssetInput struct {
	Title  string   `json:"title"`
	URL    string   `json:"url"`
	Type   string   `json:"type"`
	Status string   `json:"status,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}

// ApprovalDecision is the body for PATCH /api/client/approvals/{id}.
type ApprovalDecision struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

// FrustrationInput sets the manually tracked frustration KPI.
type FrustrationInput struct {
	Frustration int `json:"frustration"`
}

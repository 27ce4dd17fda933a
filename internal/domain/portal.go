package domain

import "time"

// TimestampLayout is the ISO-8601 layout used for timestamps inside portal
// documents (millisecond precision, always UTC).
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ============================================================
// Portal state — one aggregate document per client
// ============================================================

// Approval statuses.
const (
	ApprovalPending      = "pending"
	ApprovalChanges      = "changes"
	ApprovalApproved     = "approved"
	ApprovalCopyPending  = "copy_pending"
	ApprovalCopyApproved = "copy_approved"
	ApprovalCopyChanges  = "copy_changes"
)

// ValidApprovalStatus reports whether s is an accepted approval status.
// The empty string is accepted and counts as pending.
func ValidApprovalStatus(s string) bool {
	switch s {
	case "", ApprovalPending, ApprovalChanges, ApprovalApproved,
		ApprovalCopyPending, ApprovalCopyApproved, ApprovalCopyChanges:
		return true
	}
	return false
}

// ClientDecisionStatus reports whether a client may move an approval to s.
func ClientDecisionStatus(s string) bool {
	switch s {
	case ApprovalApproved, ApprovalChanges, ApprovalCopyApproved, ApprovalCopyChanges:
		return true
	}
	return false
}

// SameApprovalStatus compares statuses treating the empty string as pending.
func SameApprovalStatus(a, b string) bool {
	if a == "" {
		a = ApprovalPending
	}
	if b == "" {
		b = ApprovalPending
	}
	return a == b
}

// Open/done status shared by needs and requests.
const (
	StatusOpen = "open"
	StatusDone = "done"
)

// Need severities.
const (
	SeverityWarn = "warn"
	SeverityBad  = "bad"
)

// Asset types.
const (
	AssetPhoto = "photo"
	AssetVideo = "video"
	AssetLogo  = "logo"
	AssetDoc   = "doc"
)

// ValidAssetType reports whether t is a known asset type.
func ValidAssetType(t string) bool {
	switch t {
	case AssetPhoto, AssetVideo, AssetLogo, AssetDoc:
		return true
	}
	return false
}

// PortalClient is the client header embedded in a portal document.
type PortalClient struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	WhatsApp string `json:"whatsapp,omitempty"`
}

// KPIs are derived counters cached in the document.
type KPIs struct {
	Scheduled       int `json:"scheduled"`
	WaitingApproval int `json:"waitingApproval"`
	MissingAssets   int `json:"missingAssets"`
	Frustration     int `json:"frustration"`
}

// Approval is a content item awaiting sign-off before it is posted.
type Approval struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Type           string   `json:"type,omitempty"`
	Date           string   `json:"date,omitempty"`
	PostDate       string   `json:"postDate,omitempty"`
	Status         string   `json:"status"`
	CopyText       string   `json:"copyText,omitempty"`
	Caption        string   `json:"caption,omitempty"`
	ImageURL       string   `json:"imageUrl,omitempty"`
	UploadedImages []string `json:"uploadedImages,omitempty"`
	ChangeNotes    []string `json:"change_notes"`
	Tags           []string `json:"tags"`
}

// Need is an outstanding ask from the agency to the client.
type Need struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Severity  string `json:"severity"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
	DoneAt    string `json:"doneAt,omitempty"`
}

// Request is something the client asked the agency to do.
type Request struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Details   string `json:"details"`
	By        string `json:"by"`
	Status    string `json:"status"`
	CreatedAt string `json:"createdAt"`
	DoneAt    string `json:"doneAt,omitempty"`
}

// Asset is an entry of the client's content library.
type Asset struct {
	ID           string   `json:"id"`
	ClientID     string   `json:"clientId"`
	Title        string   `json:"title"`
	URL          string   `json:"url"`
	Type         string   `json:"type"`
	Status       string   `json:"status,omitempty"`
	Tags         []string `json:"tags"`
	UploadedDate string   `json:"uploadedDate"`
}

// Activity is one entry of the append-only activity log.
type Activity struct {
	When string `json:"when"`
	Text string `json:"text"`
}

// PortalState is the aggregate root read and written wholesale by the agency
// dashboard and the client portal.
type PortalState struct {
	SchemaVersion int          `json:"schemaVersion"`
	AgencyID      string       `json:"agencyId"`
	Client        PortalClient `json:"client"`
	KPIs          KPIs         `json:"kpis"`
	Approvals     []Approval   `json:"approvals"`
	Needs         []Need       `json:"needs"`
	Requests      []Request    `json:"requests"`
	Assets        []Asset      `json:"assets"`
	Activity      []Activity   `json:"activity"`
	Seen          bool         `json:"seen"`
	UpdatedAt     string       `json:"updatedAt,omitempty"`
}

// LastActivity returns the most recent activity entry, if any.
func (p *PortalState) LastActivity() *Activity {
	if len(p.Activity) == 0 {
		return nil
	}
	a := p.Activity[len(p.Activity)-1]
	return &a
}

// PortalOverview is the dashboard summary for one client.
type PortalOverview struct {
	ClientID     string    `json:"clientId"`
	ClientName   string    `json:"clientName"`
	KPIs         KPIs      `json:"kpis"`
	OpenRequests int       `json:"openRequests"`
	LastActivity *Activity `json:"lastActivity,omitempty"`
	Seen         bool      `json:"seen"`
}

// SaveResult is returned by full-document saves.
type SaveResult struct {
	State    *PortalState `json:"state"`
	Warnings []string     `json:"warnings,omitempty"`
}

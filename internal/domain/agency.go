package domain

import "time"

// ============================================================
// Agency / Staff / Client registry
// ============================================================

// Agency is the tenant root. Every other entity carries its AgencyID.
type Agency struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Role is a staff user's role inside an agency.
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleStaff  Role = "STAFF"
	RoleClient Role = "CLIENT"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleStaff, RoleClient:
		return true
	}
	return false
}

// CanManage reports whether the role may manage users, credentials and integrations.
func (r Role) CanManage() bool {
	return r == RoleOwner || r == RoleAdmin
}

// UserStatus is the lifecycle state of a staff user.
type UserStatus string

const (
	UserInvited  UserStatus = "INVITED"
	UserActive   UserStatus = "ACTIVE"
	UserDisabled UserStatus = "DISABLED"
)

// User is a staff member (or a CLIENT-role login bound to one client).
type User struct {
	ID           string     `json:"id"`
	AgencyID     string     `json:"agencyId"`
	Email        string     `json:"email"`
	Username     string     `json:"username,omitempty"`
	Name         string     `json:"name"`
	Role         Role       `json:"role"`
	Status       UserStatus `json:"status"`
	PasswordHash string     `json:"passwordHash,omitempty"`
	ClientID     string     `json:"clientId,omitempty"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Public returns a copy without the password hash, safe to serialize to callers.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

// ClientPreferences holds platform and process preferences for a client.
type ClientPreferences struct {
	Platforms        []string `json:"platforms,omitempty"`
	PostingFrequency string   `json:"postingFrequency,omitempty"`
	ApprovalProcess  string   `json:"approvalProcess,omitempty"`
	Notes            string   `json:"notes,omitempty"`
}

// Client is an agency customer whose content is managed through the portal.
type Client struct {
	ID          string            `json:"id"`
	AgencyID    string            `json:"agencyId"`
	Name        string            `json:"name"`
	Status      string            `json:"status"`
	ContactName string            `json:"contactName,omitempty"`
	Email       string            `json:"email,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	WhatsApp    string            `json:"whatsapp,omitempty"`
	Preferences ClientPreferences `json:"preferences"`
	LogoURL     string            `json:"logoUrl,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// ClientCredential is the hashed client-portal password for one client.
type ClientCredential struct {
	AgencyID     string    `json:"agencyId"`
	ClientID     string    `json:"clientId"`
	PasswordHash string    `json:"passwordHash"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TokenKind distinguishes invite tokens from password-reset tokens.
type TokenKind string

const (
	TokenInvite TokenKind = "invite"
	TokenReset  TokenKind = "reset"
)

// ActionToken is a single-use, hash-stored, time-boxed token.
type ActionToken struct {
	ID        string     `json:"id"`
	Kind      TokenKind  `json:"kind"`
	UserID    string     `json:"userId"`
	AgencyID  string     `json:"agencyId"`
	TokenHash string     `json:"tokenHash"`
	ExpiresAt time.Time  `json:"expiresAt"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// AuditLog records a security or registry relevant event.
type AuditLog struct {
	ID        string         `json:"id"`
	AgencyID  string         `json:"agencyId"`
	ActorID   string         `json:"actorId,omitempty"`
	Action    string         `json:"action"`
	TargetID  string         `json:"targetId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

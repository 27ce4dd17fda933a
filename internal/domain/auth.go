package domain

import "time"

// ============================================================
// Auth — Request / Response types (matches portal frontend contract)
// ============================================================

// PrincipalKind tells a staff session apart from a client-portal session.
type PrincipalKind string

const (
	PrincipalStaff  PrincipalKind = "staff"
	PrincipalClient PrincipalKind = "client"
)

// Principal is the authenticated caller, injected into the request context.
type Principal struct {
	Kind     PrincipalKind `json:"kind"`
	UserID   string        `json:"userId,omitempty"`
	AgencyID string        `json:"agencyId"`
	ClientID string        `json:"clientId,omitempty"`
	Role     Role          `json:"role,omitempty"`
	Legacy   bool          `json:"-"`
}

// IsStaff reports whether the principal may use the agency dashboard.
func (p *Principal) IsStaff() bool {
	return p != nil && p.Kind == PrincipalStaff && p.Role != RoleClient
}

// CanManage reports whether the principal may manage users and credentials.
func (p *Principal) CanManage() bool {
	return p.IsStaff() && p.Role.CanManage()
}

// PortalClientID returns the client a portal session is bound to, or "" for
// principals that are not bound to a single client.
func (p *Principal) PortalClientID() string {
	if p == nil {
		return ""
	}
	if p.Kind == PrincipalClient || p.Role == RoleClient {
		return p.ClientID
	}
	return ""
}

// LoginRequest is the body for POST /api/auth/login.
// Identifier is an email or a username.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email,omitempty"`
	Password   string `json:"password"`
	AgencyID   string `json:"agencyId"`
	RemoteAddr string `json:"-"`
}

// LoginResponse is the body for 200 from POST /api/auth/login.
// The token is also set as the session cookie.
type LoginResponse struct {
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

// ClientLoginRequest is the body for POST /api/auth/client-login.
type ClientLoginRequest struct {
	ClientID   string `json:"clientId"`
	Password   string `json:"password"`
	RemoteAddr string `json:"-"`
}

// ClientLoginResponse is the body for 200 from POST /api/auth/client-login.
type ClientLoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
	ClientID  string `json:"clientId"`
	AgencyID  string `json:"agencyId"`
}

// ForgotPasswordRequest is the body for POST /api/auth/forgot-password.
type ForgotPasswordRequest struct {
	Email      string `json:"email"`
	AgencyID   string `json:"agencyId,omitempty"`
	RemoteAddr string `json:"-"`
}

// ResetPasswordRequest is the body for POST /api/auth/reset-password.
type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// InviteUserRequest is the body for POST /api/users/invite.
type InviteUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	Role     Role   `json:"role"`
	ClientID string `json:"clientId,omitempty"`
}

// InviteResponse carries the invite link. The raw token is only ever
// returned here and never persisted.
type InviteResponse struct {
	User      User      `json:"user"`
	InviteURL string    `json:"inviteUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ResendInviteRequest is the body for POST /api/users/resend-invite.
type ResendInviteRequest struct {
	UserID string `json:"userId"`
}

// AcceptInviteRequest is the body for POST /api/users/accept-invite.
type AcceptInviteRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
}

// UpdateUserRequest is the body for PATCH /api/users/{id}.
// Nil fields are left unchanged.
type UpdateUserRequest struct {
	Name     *string     `json:"name,omitempty"`
	Username *string     `json:"username,omitempty"`
	Role     *Role       `json:"role,omitempty"`
	Status   *UserStatus `json:"status,omitempty"`
	Password *string     `json:"password,omitempty"`
	ClientID *string     `json:"clientId,omitempty"`
}

// SetClientPasswordRequest is the body for PUT /api/agency/clients/{id}/credentials.
type SetClientPasswordRequest struct {
	Password string `json:"password"`
}

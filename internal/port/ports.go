// Package port defines the interfaces (ports) for persistence and external
// dependencies. Following hexagonal architecture, these ports decouple the
// service layer from the JSON document store and the provider clients.
package port

import (
	"context"
	"time"

	"github.com/twofly/client-portal-go/internal/domain"
)

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
	Purge()
}

// RateLimiter counts attempts per key inside a fixed window.
type RateLimiter interface {
	// Allow records one attempt and reports whether it is within limit.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Reset forgets all attempts for key.
	Reset(ctx context.Context, key string) error
}

// AgencyStore persists agencies.
type AgencyStore interface {
	GetAgency(ctx context.Context, agencyID string) (*domain.Agency, error)
	ListAgencies(ctx context.Context) ([]domain.Agency, error)
	CreateAgency(ctx context.Context, agency *domain.Agency) error
}

// UserStore persists staff users. Lookups by identifier are agency-scoped.
// Get and Find methods return (nil, nil) when nothing matches.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	FindUserByIdentifier(ctx context.Context, agencyID, identifier string) (*domain.User, error)
	FindUsersByEmail(ctx context.Context, email string) ([]domain.User, error)
	ListUsers(ctx context.Context, agencyID string) ([]domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) error
	UpdateUser(ctx context.Context, user *domain.User) error
	// UpdateUserChecked applies fn to the stored user and validates the whole
	// agency's user set with check before persisting, in one critical section.
	UpdateUserChecked(ctx context.Context, userID string, fn func(u *domain.User) error, check func(users []domain.User) error) (*domain.User, error)
}

// ClientStore persists clients. Client ids are unique across all agencies.
type ClientStore interface {
	GetClient(ctx context.Context, clientID string) (*domain.Client, error)
	ListClients(ctx context.Context, agencyID string) ([]domain.Client, error)
	ClientIDExists(ctx context.Context, clientID string) (bool, error)
	CreateClient(ctx context.Context, client *domain.Client) error
	UpdateClient(ctx context.Context, client *domain.Client) error
	DeleteClient(ctx context.Context, clientID string) error
}

// PortalStore persists portal documents as raw JSON objects so the
// migration chain can see legacy shapes before they are decoded.
type PortalStore interface {
	GetPortalDocument(ctx context.Context, clientID string) (map[string]any, error)
	ListPortalClientIDs(ctx context.Context) ([]string, error)
	SavePortalDocument(ctx context.Context, clientID string, doc any) error
	DeletePortalDocument(ctx context.Context, clientID string) error
}

// CredentialStore persists hashed client-portal passwords.
type CredentialStore interface {
	GetClientCredential(ctx context.Context, clientID string) (*domain.ClientCredential, error)
	SetClientCredential(ctx context.Context, cred *domain.ClientCredential) error
	DeleteClientCredential(ctx context.Context, clientID string) error
	// UpgradeLegacyCredentials replaces plaintext entries with hash(password)
	// and reports how many were rewritten.
	UpgradeLegacyCredentials(ctx context.Context, hash func(plain string) (string, error)) (int, error)
}

// LegacyAssetStore reads the pre-portal content library (assets.json), whose
// entries are folded into the owning portal document on load.
type LegacyAssetStore interface {
	ListLegacyAssets(ctx context.Context, clientID string) ([]domain.Asset, error)
	DeleteLegacyAssets(ctx context.Context, clientID string) error
}

// TokenStore persists invite and reset tokens by hash.
type TokenStore interface {
	StoreToken(ctx context.Context, token *domain.ActionToken) error
	GetTokenByHash(ctx context.Context, kind domain.TokenKind, tokenHash string) (*domain.ActionToken, error)
	// ConsumeToken marks the token used; it fails with ErrInvalidToken if it
	// was already used, so a token is consumed exactly once.
	ConsumeToken(ctx context.Context, kind domain.TokenKind, tokenID string, usedAt time.Time) error
	RevokeUserTokens(ctx context.Context, kind domain.TokenKind, userID string, at time.Time) error
}

// AuditStore persists audit log entries.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry *domain.AuditLog) error
	ListAudit(ctx context.Context, agencyID string, limit int) ([]domain.AuditLog, error)
}

// IntegrationStore persists provider connections per agency.
type IntegrationStore interface {
	GetIntegration(ctx context.Context, agencyID, provider string) (*domain.Integration, error)
	SaveIntegration(ctx context.Context, integration *domain.Integration) error
	DeleteIntegration(ctx context.Context, agencyID, provider string) error
}

// LegacyStaffStore resolves the pre-agency staff/workspace records used by
// the legacy header authentication path.
type LegacyStaffStore interface {
	GetLegacyStaff(ctx context.Context, workspaceID, staffID string) (*domain.User, error)
}

// DriveFetcher calls the Google Drive API.
type DriveFetcher interface {
	ListFiles(ctx context.Context, accessToken, folderID string) ([]domain.DriveFile, error)
	GetFile(ctx context.Context, accessToken, fileID string) (*domain.DriveFile, error)
}

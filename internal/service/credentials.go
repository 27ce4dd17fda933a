package service

import (
	"context"
	"fmt"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/port"
)

// bcryptCost is a variable so tests can lower it.
var bcryptCost = 12

const (
	minPasswordLength = 8

	StrategyStaffPassword  = "staff-password"
	StrategyClientPassword = "client-password"
)

var (
	dummyOnce sync.Once
	dummy     []byte
)

// dummyHash is compared against when the account does not exist, so a miss
// costs as much as a wrong password.
func dummyHash() []byte {
	dummyOnce.Do(func() {
		dummy, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcryptCost)
	})
	return dummy
}

// bcryptMaxInput is the longest input bcrypt hashes.
const bcryptMaxInput = 72

// bcryptInput maps a secret to the bytes given to bcrypt. Secrets over
// bcryptMaxInput bytes are pre-hashed with SHA-256.
func bcryptInput(secret string) []byte {
	if len(secret) <= bcryptMaxInput {
		return []byte(secret)
	}
	return []byte(hashToken(secret))
}

// Credentials is what a login form submits.
type Credentials struct {
	Identifier string // email/username for staff, client id for the portal
	Secret     string
	AgencyID   string
}

// Verified is the outcome of a successful verification.
type Verified struct {
	Principal domain.Principal
	User      *domain.User // nil for client-password
}

// CredentialVerifier checks a credential pair with one strategy.
// Every failure that could reveal whether the account exists is reported as
// the same *domain.ErrUnauthorized.
type CredentialVerifier interface {
	Strategy() string
	Verify(ctx context.Context, creds Credentials) (*Verified, error)
}

// HashPassword bcrypt-hashes a password after checking the length policy.
func HashPassword(password string) (string, error) {
	if err := validatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword(bcryptInput(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return &domain.ErrValidation{Field: "password", Message: fmt.Sprintf("must be at least %d characters", minPasswordLength)}
	}
	if len(password) > bcryptMaxInput {
		return &domain.ErrValidation{Field: "password", Message: fmt.Sprintf("must be at most %d bytes", bcryptMaxInput)}
	}
	return nil
}

func invalidCredentials() error {
	return &domain.ErrUnauthorized{Message: "invalid credentials"}
}

// ============================================================
// staff-password — users.json, agency scoped
// ============================================================

type staffPasswordVerifier struct {
	users port.UserStore
}

// NewStaffPasswordVerifier verifies staff identifier + password inside an agency.
func NewStaffPasswordVerifier(users port.UserStore) CredentialVerifier {
	return &staffPasswordVerifier{users: users}
}

func (v *staffPasswordVerifier) Strategy() string { return StrategyStaffPassword }

func (v *staffPasswordVerifier) Verify(ctx context.Context, creds Credentials) (*Verified, error) {
	user, err := v.users.FindUserByIdentifier(ctx, creds.AgencyID, creds.Identifier)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil || user.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword(dummyHash(), bcryptInput(creds.Secret))
		return nil, invalidCredentials()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), bcryptInput(creds.Secret)); err != nil {
		return nil, invalidCredentials()
	}
	if user.Status != domain.UserActive {
		return nil, &domain.ErrAccountInactive{Status: user.Status}
	}

	return &Verified{
		Principal: domain.Principal{
			Kind:     domain.PrincipalStaff,
			UserID:   user.ID,
			AgencyID: user.AgencyID,
			ClientID: user.ClientID,
			Role:     user.Role,
		},
		User: user,
	}, nil
}

// ============================================================
// client-password — client-credentials.json
// ============================================================

type clientPasswordVerifier struct {
	clients port.ClientStore
	creds   port.CredentialStore
}

// NewClientPasswordVerifier verifies a client id + portal password.
func NewClientPasswordVerifier(clients port.ClientStore, creds port.CredentialStore) CredentialVerifier {
	return &clientPasswordVerifier{clients: clients, creds: creds}
}

func (v *clientPasswordVerifier) Strategy() string { return StrategyClientPassword }

func (v *clientPasswordVerifier) Verify(ctx context.Context, creds Credentials) (*Verified, error) {
	cred, err := v.creds.GetClientCredential(ctx, creds.Identifier)
	if err != nil {
		return nil, fmt.Errorf("get client credential: %w", err)
	}
	if cred == nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash(), bcryptInput(creds.Secret))
		return nil, invalidCredentials()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), bcryptInput(creds.Secret)); err != nil {
		return nil, invalidCredentials()
	}

	client, err := v.clients.GetClient(ctx, cred.ClientID)
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	if client == nil || client.AgencyID != cred.AgencyID {
		return nil, invalidCredentials()
	}

	return &Verified{
		Principal: domain.Principal{
			Kind:     domain.PrincipalClient,
			AgencyID: client.AgencyID,
			ClientID: client.ID,
			Role:     domain.RoleClient,
		},
	}, nil
}

// HashLegacyPassword hashes a stored plaintext credential without applying
// the length policy. Passwords longer than bcrypt accepts go through
// bcryptInput, the same as at login.
func HashLegacyPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(bcryptInput(plain), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash legacy password: %w", err)
	}
	return string(hash), nil
}

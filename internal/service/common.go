// Package service holds the portal's business rules: authentication,
// the agency/client registry, portal-state mutations and integrations.
// Handlers call services; services talk to storage through port interfaces.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/twofly/client-portal-go/internal/domain"
	"go.uber.org/zap"
)

// Metrics is the subset of observability.Metrics the services record into.
type Metrics interface {
	IncrLogin(strategy, outcome string)
	IncrRateLimited(action string)
	IncrPortalLoad()
	IncrPortalMigration()
	IncrExternalError(service string)
}

type nopMetrics struct{}

func (nopMetrics) IncrLogin(string, string) {}
func (nopMetrics) IncrRateLimited(string)   {}
func (nopMetrics) IncrPortalLoad()          {}
func (nopMetrics) IncrPortalMigration()     {}
func (nopMetrics) IncrExternalError(string) {}

func metricsOrNop(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}

// Notifier delivers invite and password-reset links. Email delivery is not
// part of this service; LogNotifier writes the events to the log.
type Notifier interface {
	SendInvite(ctx context.Context, user *domain.User, link string) error
	SendPasswordReset(ctx context.Context, user *domain.User, link string) error
}

// LogNotifier logs notifications. Links are only logged when IncludeLinks is
// set (development), since they are bearer credentials.
type LogNotifier struct {
	Logger       *zap.Logger
	IncludeLinks bool
}

func (n *LogNotifier) SendInvite(_ context.Context, user *domain.User, link string) error {
	n.log("invite issued", user, link)
	return nil
}

func (n *LogNotifier) SendPasswordReset(_ context.Context, user *domain.User, link string) error {
	n.log("password reset issued", user, link)
	return nil
}

func (n *LogNotifier) log(msg string, user *domain.User, link string) {
	fields := []zap.Field{
		zap.String("user_id", user.ID),
		zap.String("agency_id", user.AgencyID),
	}
	if n.IncludeLinks {
		fields = append(fields, zap.String("link", link))
	}
	n.Logger.Info(msg, fields...)
}

// generateToken returns a 32-byte random token, hex encoded.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// hashToken returns the SHA-256 hex digest stored in place of a raw token.
func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// keyedMutex serializes work per key (one portal document, one client id).
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func requireStaff(p *domain.Principal) error {
	if !p.IsStaff() {
		return &domain.ErrForbidden{Action: "staff access required"}
	}
	return nil
}

func requireManager(p *domain.Principal) error {
	if !p.CanManage() {
		return &domain.ErrForbidden{Action: "owner or admin role required"}
	}
	return nil
}

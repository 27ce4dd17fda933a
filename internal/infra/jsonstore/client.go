// Package jsonstore implements the persistence ports on top of named JSON
// documents held by a docstore backend (flat files, sqlite or postgres).
package jsonstore

import (
	"context"
	"encoding/json"

	"github.com/twofly/client-portal-go/internal/infra/docstore"
	"github.com/twofly/client-portal-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("jsonstore")

// Document names, as laid out under the data directory.
const (
	DocAgencies     = "agencies.json"
	DocUsers        = "users.json"
	DocClients      = "clients.json"
	DocPortalState  = "portal-state.json"
	DocCredentials  = "client-credentials.json"
	DocInviteTokens = "invite-tokens.json"
	DocResetTokens  = "password-reset-tokens.json"
	DocAuditLogs    = "audit-logs.json"
	DocAssets       = "assets.json"
	DocIntegrations = "integrations.json"
	DocWorkspaces   = "workspaces.json"
	DocStaff        = "staff.json"
)

var (
	_ port.AgencyStore      = (*Client)(nil)
	_ port.UserStore        = (*Client)(nil)
	_ port.ClientStore      = (*Client)(nil)
	_ port.PortalStore      = (*Client)(nil)
	_ port.CredentialStore  = (*Client)(nil)
	_ port.LegacyAssetStore = (*Client)(nil)
	_ port.TokenStore       = (*Client)(nil)
	_ port.AuditStore       = (*Client)(nil)
	_ port.IntegrationStore = (*Client)(nil)
	_ port.LegacyStaffStore = (*Client)(nil)
)

// Client implements every store port against one docstore.
type Client struct {
	store  *docstore.Store
	logger *zap.Logger
}

// NewClient creates a store client.
func NewClient(store *docstore.Store, logger *zap.Logger) *Client {
	return &Client{store: store, logger: logger}
}

// Ping checks the backend.
func (c *Client) Ping(ctx context.Context) error {
	return c.store.Backend().Ping(ctx)
}

// Driver names the backend in use.
func (c *Client) Driver() string {
	return c.store.Backend().Driver()
}

func emptyList[T any]() func() []T {
	return func() []T { return []T{} }
}

func emptyRawMap() map[string]json.RawMessage {
	return map[string]json.RawMessage{}
}

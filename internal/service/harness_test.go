package service_test

import (
	"context"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/twofly/client-portal-go/internal/domain"
	"github.com/twofly/client-portal-go/internal/infra/cache"
	"github.com/twofly/client-portal-go/internal/infra/docstore"
	"github.com/twofly/client-portal-go/internal/infra/jsonstore"
	"github.com/twofly/client-portal-go/internal/infra/ratelimit"
	"github.com/twofly/client-portal-go/internal/service"
)

func TestMain(m *testing.M) {
	service.SetBcryptCost(bcrypt.MinCost)
	os.Exit(m.Run())
}

const (
	testAgency        = "twofly"
	testOwnerEmail    = "owner@2fly.test"
	testOwnerPassword = "correct-horse"
	testClientID      = "casa-nova"
	testClientPass    = "casa-nova-pass"
)

// capturingNotifier keeps the last link sent per kind.
type capturingNotifier struct {
	mu      sync.Mutex
	invites []string
	resets  []string
}

func (n *capturingNotifier) SendInvite(_ context.Context, _ *domain.User, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.invites = append(n.invites, link)
	return nil
}

func (n *capturingNotifier) SendPasswordReset(_ context.Context, _ *domain.User, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, link)
	return nil
}

func (n *capturingNotifier) lastReset(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.resets, "no reset link sent")
	return tokenFromLink(t, n.resets[len(n.resets)-1])
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	tok := u.Query().Get("token")
	require.NotEmpty(t, tok)
	return tok
}

type testEnv struct {
	dir      string
	store    *jsonstore.Client
	notifier *capturingNotifier
	audit    *service.AuditService
	portal   *service.PortalService
	clients  *service.ClientService
	users    *service.UserService
	auth     *service.AuthService
	admin    *service.AdminService
	owner    *domain.Principal
}

type envOptions struct {
	maxDocBytes int
	legacy      bool
}

func newEnv(t *testing.T) *testEnv {
	return newEnvWith(t, envOptions{maxDocBytes: 1 << 20})
}

// newEnvWith wires every service over a file-backed document store in a
// temp dir and seeds agency "twofly" with an owner and client "casa-nova".
func newEnvWith(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	dir := t.TempDir()
	backend, err := docstore.NewFileBackend(dir)
	require.NoError(t, err)
	store := jsonstore.NewClient(docstore.New(backend, logger), logger)

	portalCache := cache.New[*domain.PortalState](time.Minute)
	t.Cleanup(portalCache.Close)

	notifier := &capturingNotifier{}
	audit := service.NewAuditService(store, logger)
	portal := service.NewPortalService(store, store, store, portalCache, nil, opts.maxDocBytes, logger)
	clients := service.NewClientService(store, store, store, portal, audit, logger)
	users := service.NewUserService(store, store, store, audit, notifier, 72*time.Hour, "https://portal.test", logger)
	auth := service.NewAuthService(service.AuthDeps{
		Users:       store,
		Clients:     store,
		Credentials: store,
		Tokens:      store,
		Legacy:      store,
		Limiter:     ratelimit.NewMemory(),
		Audit:       audit,
		Notifier:    notifier,
	}, service.AuthConfig{
		JWTSecret:        "test-secret",
		StaffSessionTTL:  7 * 24 * time.Hour,
		ClientSessionTTL: 24 * time.Hour,
		ResetTTL:         time.Hour,
		AppBaseURL:       "https://portal.test",
		LegacyHeaderAuth: opts.legacy,
	}, logger)
	admin := service.NewAdminService(store, store, store, users, clients, portal, audit, logger)

	res, err := admin.Setup(ctx, service.SetupInput{
		CreateAdminInput: service.CreateAdminInput{
			AgencyID:   testAgency,
			AgencyName: "2FLY",
			Email:      testOwnerEmail,
			Name:       "Owner",
			Password:   testOwnerPassword,
		},
		DemoClientName:     "Casa Nova",
		DemoClientPassword: testClientPass,
	})
	require.NoError(t, err)
	require.Equal(t, testClientID, res.Client.ID)

	return &testEnv{
		dir:      dir,
		store:    store,
		notifier: notifier,
		audit:    audit,
		portal:   portal,
		clients:  clients,
		users:    users,
		auth:     auth,
		admin:    admin,
		owner: &domain.Principal{
			Kind:     domain.PrincipalStaff,
			UserID:   res.User.ID,
			AgencyID: testAgency,
			Role:     domain.RoleOwner,
		},
	}
}

// clientSession logs into the portal as clientID and returns the principal
// the middleware would build from the bearer token.
func (e *testEnv) clientSession(t *testing.T, clientID, password string) *domain.Principal {
	t.Helper()
	ctx := context.Background()
	resp, err := e.auth.ClientLogin(ctx, &domain.ClientLoginRequest{ClientID: clientID, Password: password, RemoteAddr: "10.0.0.1"})
	require.NoError(t, err)
	p, err := e.auth.ValidateClientSession(ctx, resp.Token)
	require.NoError(t, err)
	return p
}

func strPtr(s string) *string { return &s }

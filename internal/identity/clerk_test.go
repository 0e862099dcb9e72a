package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/mute-store/internal/apiclient"
	"github.com/safar/mute-store/internal/session"
)

type fakeClerk struct {
	mu      sync.Mutex
	status  string
	revoked []string
}

func (f *fakeClerk) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/sessions/sess_1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		f.mu.Lock()
		status := f.status
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"id":"sess_1","user_id":"user_1","status":"` + status + `","created_at":1767225600000}`))
	})
	mux.HandleFunc("GET /v1/users/user_1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"user_1","first_name":"Luis","last_name":"Mora",
			"primary_email_address_id":"idn_2",
			"email_addresses":[{"id":"idn_1","email_address":"old@gmail.com"},{"id":"idn_2","email_address":"luis@gmail.com"}]}`))
	})
	mux.HandleFunc("POST /v1/sessions/{id}/revoke", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.revoked = append(f.revoked, r.PathValue("id"))
		f.status = "revoked"
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"id":"sess_1","status":"revoked"}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":[{"message":"not found","long_message":"Resource not found"}]}`))
	})
	return mux
}

func newTestClerk(t *testing.T, status, sessionID string) (*Clerk, *fakeClerk) {
	t.Helper()
	fake := &fakeClerk{status: status}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	c, err := NewClerk("sk_test", WithBaseURL(srv.URL), WithSessionID(sessionID))
	require.NoError(t, err)
	return c, fake
}

func TestNewClerkRequiresSecretKey(t *testing.T) {
	_, err := NewClerk("  ")
	assert.ErrorIs(t, err, errSecretKeyRequired)
}

func TestSignInReturnsSessionUser(t *testing.T) {
	c, _ := newTestClerk(t, "active", "sess_1")

	s, err := c.SignIn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sess_1", s.SessionID)
	assert.Equal(t, "user_1", s.UserID)
	assert.Equal(t, "luis@gmail.com", s.Email)
	assert.Equal(t, "Luis Mora", s.Name)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), s.SignedInAt)
}

func TestSignInRejectsMissingOrEndedSession(t *testing.T) {
	ctx := context.Background()

	none, _ := newTestClerk(t, "active", "")
	_, err := none.SignIn(ctx)
	assert.ErrorIs(t, err, ErrNoSession)

	ended, _ := newTestClerk(t, "expired", "sess_1")
	_, err = ended.SignIn(ctx)
	assert.ErrorIs(t, err, ErrSessionInactive)

	unknown, _ := newTestClerk(t, "active", "sess_404")
	_, err = unknown.SignIn(ctx)
	assert.ErrorIs(t, err, ErrSessionInactive)
}

func TestCurrent(t *testing.T) {
	ctx := context.Background()

	c, fake := newTestClerk(t, "active", "sess_1")
	s, err := c.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)

	fake.mu.Lock()
	fake.status = "ended"
	fake.mu.Unlock()
	s, err = c.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)

	empty, _ := newTestClerk(t, "active", "")
	s, err = empty.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestSignOutRevokesOnce(t *testing.T) {
	ctx := context.Background()
	c, fake := newTestClerk(t, "active", "sess_1")

	require.NoError(t, c.SignOut(ctx))
	require.NoError(t, c.SignOut(ctx))
	assert.Equal(t, []string{"sess_1"}, fake.revoked)

	s, err := c.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestServerErrorsSurface(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"Unauthorized"}]}`))
	}))
	defer srv.Close()

	c, err := NewClerk("sk_bad", WithBaseURL(srv.URL), WithSessionID("sess_1"))
	require.NoError(t, err)

	_, err = c.Current(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Unauthorized", apiErr.Message)
}

type stubAuth struct{}

func (stubAuth) Login(context.Context, string, string) (string, error) { return "jwt", nil }

func (stubAuth) Register(context.Context, apiclient.RegisterRequest) (string, error) {
	return "jwt", nil
}

func TestBridgeWithClerk(t *testing.T) {
	ctx := context.Background()
	c, fake := newTestClerk(t, "active", "sess_1")

	var synced session.ProviderSession
	store := session.NewMemoryStore()
	b := session.NewBridge(store, stubAuth{},
		session.WithIdentityProvider(c),
		session.WithProviderSync(func(_ context.Context, s session.ProviderSession) error {
			synced = s
			return nil
		}),
	)
	require.NoError(t, b.Init(ctx))
	assert.True(t, b.Authenticated(), "a live provider session signs the bridge in at startup")
	assert.Equal(t, session.SourceIdentityProvider, b.Source())

	require.NoError(t, b.SignInWithProvider(ctx))
	assert.Equal(t, "luis@gmail.com", b.CurrentEmail())
	assert.Equal(t, "user_1", synced.UserID)

	require.NoError(t, b.SignOut(ctx))
	assert.False(t, b.Authenticated())
	assert.Equal(t, []string{"sess_1"}, fake.revoked)

	restarted := session.NewBridge(store, stubAuth{}, session.WithIdentityProvider(c))
	require.NoError(t, restarted.Init(ctx))
	assert.False(t, restarted.Authenticated())
}

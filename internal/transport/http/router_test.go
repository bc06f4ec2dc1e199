package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-whatsapp-otp/internal/application/auth"
	"github.com/go-whatsapp-otp/internal/application/otp"
	"github.com/go-whatsapp-otp/internal/application/role"
	"github.com/go-whatsapp-otp/internal/config"
	"github.com/go-whatsapp-otp/internal/domain"
	jwtinfra "github.com/go-whatsapp-otp/internal/infrastructure/jwt"
	"github.com/go-whatsapp-otp/internal/infrastructure/messaging"
	"github.com/go-whatsapp-otp/internal/pkg/logging"
	"github.com/go-whatsapp-otp/internal/pkg/phone"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memUsers is an in-memory user store.
type memUsers struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUsers() *memUsers { return &memUsers{users: make(map[string]*domain.User)} }

func (m *memUsers) upsert(p string) *domain.User {
	u, ok := m.users[p]
	if !ok {
		u = &domain.User{PhoneNumber: p, UserID: "u-" + p, Role: domain.RoleUser, Status: domain.StatusPending, CreatedAt: time.Now()}
		m.users[p] = u
	}
	return u
}

func (m *memUsers) Get(_ context.Context, p string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[p]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", p, domain.ErrNotFound)
	}
	c := *u
	return &c, nil
}

func (m *memUsers) RecordLoginAttempt(_ context.Context, a domain.LoginAttempt) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.upsert(a.PhoneNumber)
	u.LastLoginAttempt = &a.At
	u.DeviceID = a.DeviceID
	u.IPAddress = a.IPAddress
	c := *u
	return &c, nil
}

func (m *memUsers) RecordLogin(_ context.Context, p string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.upsert(p)
	now := time.Now()
	u.LastLogin = &now
	c := *u
	return &c, nil
}

func (m *memUsers) UpdateRole(_ context.Context, p string, r domain.Role) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[p]
	if !ok {
		return nil, domain.ErrNotFound
	}
	u.Role = r
	c := *u
	return &c, nil
}

func (m *memUsers) UpdateStatus(_ context.Context, p string, s domain.Status) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[p]
	if !ok {
		return nil, domain.ErrNotFound
	}
	u.Status = s
	c := *u
	return &c, nil
}

// fakeChannel stands in for the messaging manager.
type fakeChannel struct {
	mu      sync.Mutex
	open    bool
	sent    []string
	replies []string
}

func (c *fakeChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeChannel) State() messaging.State {
	if c.IsOpen() {
		return messaging.StateOpen
	}
	return messaging.StateConnecting
}

func (c *fakeChannel) Send(_ context.Context, to phone.Identity, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, to.Standardized+" "+text)
	return nil
}

func (c *fakeChannel) Reply(_ context.Context, _ domain.InboundMessage, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, text)
	return nil
}

type testServer struct {
	mr      *miniredis.Miniredis
	users   *memUsers
	channel *fakeChannel
	tokens  *jwtinfra.Provider
	trigger *otp.TriggerHandler
	router  *Router
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, &config.Config{AllowedOrigins: []string{"*"}})
}

func newTestServerWith(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := logging.Discard()
	s := otp.DefaultSettings()
	expiry := otp.NewExpiryScheduler(rdb, time.Second, log, otp.LogObserver(log))
	t.Cleanup(expiry.Stop)

	ts := &testServer{mr: mr, users: newMemUsers(), channel: &fakeChannel{open: true}}
	tokens, err := jwtinfra.NewProvider("router-secret", time.Hour)
	require.NoError(t, err)
	ts.tokens = tokens

	markers := otp.NewMarkers(rdb, s)
	issuer := otp.NewIssuer(otp.NewGuard(rdb, s), ts.channel, expiry, s, log)
	ts.trigger = otp.NewTriggerHandler(markers, issuer, ts.channel, log)

	ts.router = NewRouter(cfg, &Deps{
		Auth: auth.NewService(auth.ServiceDeps{
			Users:    ts.users,
			Markers:  markers,
			Issuer:   issuer,
			Verifier: otp.NewVerifier(rdb, expiry),
			Tokens:   tokens,
			Log:      log,
		}),
		Roles:   role.NewService(ts.users, log),
		Tokens:  tokens,
		Redis:   rdb,
		Channel: ts.channel,
		Log:     log,
	})
	t.Cleanup(ts.router.Close)
	return ts
}

var clientIP = 0

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	clientIP++
	req.RemoteAddr = fmt.Sprintf("10.1.%d.%d:5000", clientIP/250, clientIP%250)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v))
}

func (ts *testServer) tokenFor(t *testing.T, p string, r domain.Role) string {
	t.Helper()
	ts.users.mu.Lock()
	u := ts.users.upsert(p)
	u.Role = r
	u.Status = domain.StatusApproved
	c := *u
	ts.users.mu.Unlock()
	tok, err := ts.tokens.Sign(&c)
	require.NoError(t, err)
	return tok
}

func TestLoginTriggerVerify(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	rr := ts.do(t, nethttp.MethodPost, "/login", map[string]string{"phoneNumber": "9876543210"}, "")
	require.Equal(t, nethttp.StatusOK, rr.Code, rr.Body.String())
	var login struct {
		UserStatus domain.Status `json:"userStatus"`
	}
	decodeBody(t, rr, &login)
	assert.Equal(t, domain.StatusPending, login.UserStatus)

	require.NoError(t, ts.trigger.HandleInbound(ctx, domain.InboundMessage{
		ID: "wamid-1", From: "919876543210@s.whatsapp.net", Text: "Hello, give me access",
	}))
	code, err := ts.mr.Get("otp:+919876543210")
	require.NoError(t, err)
	require.Len(t, ts.channel.sent, 1)
	assert.Contains(t, ts.channel.sent[0], code)

	rr = ts.do(t, nethttp.MethodPost, "/verify-otp", map[string]string{"phoneNumber": "9876543210", "otp": code}, "")
	require.Equal(t, nethttp.StatusOK, rr.Code, rr.Body.String())
	var verified struct {
		Token string `json:"token"`
		User  struct {
			Role        domain.Role        `json:"role"`
			Permissions domain.Permissions `json:"permissions"`
		} `json:"user"`
	}
	decodeBody(t, rr, &verified)
	assert.Equal(t, domain.RoleUser, verified.User.Role)
	assert.Equal(t, domain.Permissions{CanViewProducts: true}, verified.User.Permissions)

	claims, err := ts.tokens.Verify(verified.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, claims.Role)
	assert.Equal(t, "+919876543210", claims.PhoneNumber)

	assert.False(t, ts.mr.Exists("otp:+919876543210"))
	assert.False(t, ts.mr.Exists("login_request:+919876543210"))

	rr = ts.do(t, nethttp.MethodPost, "/api/auth/verify-otp", map[string]string{"phoneNumber": "9876543210", "otp": code}, "")
	assert.Equal(t, nethttp.StatusBadRequest, rr.Code)
	var e struct {
		Type    domain.ErrorType `json:"type"`
		Message string           `json:"message"`
	}
	decodeBody(t, rr, &e)
	assert.Equal(t, domain.ErrorOTPNotFound, e.Type)
	assert.Equal(t, "No OTP found or OTP expired", e.Message)

	rr = ts.do(t, nethttp.MethodGet, "/api/auth/me", nil, verified.Token)
	assert.Equal(t, nethttp.StatusOK, rr.Code, rr.Body.String())
}

func TestVerifyOTP_Mismatch(t *testing.T) {
	ts := newTestServer(t)
	ts.mr.Set("otp:+919876543210", "123456")

	rr := ts.do(t, nethttp.MethodPost, "/verify-otp", map[string]string{"phoneNumber": "9876543210", "otp": "654321"}, "")
	assert.Equal(t, nethttp.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Incorrect OTP")
	assert.True(t, ts.mr.Exists("otp:+919876543210"))
}

func TestRegister(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, nethttp.MethodPost, "/api/auth/register", map[string]string{"phoneNumber": "12345"}, "")
	assert.Equal(t, nethttp.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), string(domain.ErrorInvalidPhoneNumber))
	assert.Empty(t, ts.mr.Keys())

	rr = ts.do(t, nethttp.MethodPost, "/api/auth/register", map[string]string{"phoneNumber": "+91 98765 43210"}, "")
	require.Equal(t, nethttp.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, ts.mr.Exists("otp:+919876543210"))

	rr = ts.do(t, nethttp.MethodPost, "/api/auth/register", map[string]string{"phoneNumber": "9876543210"}, "")
	assert.Equal(t, nethttp.StatusTooManyRequests, rr.Code)

	ts.channel.mu.Lock()
	ts.channel.open = false
	ts.channel.mu.Unlock()
	rr = ts.do(t, nethttp.MethodPost, "/api/auth/register", map[string]string{"phoneNumber": "9123456789"}, "")
	assert.Equal(t, nethttp.StatusServiceUnavailable, rr.Code)
}

func TestLogin_Banned(t *testing.T) {
	ts := newTestServer(t)
	ts.users.mu.Lock()
	ts.users.upsert("+919876543210").Status = domain.StatusBanned
	ts.users.mu.Unlock()

	rr := ts.do(t, nethttp.MethodPost, "/login", map[string]string{"phoneNumber": "9876543210"}, "")
	assert.Equal(t, nethttp.StatusForbidden, rr.Code)
	assert.False(t, ts.mr.Exists("login_request:+919876543210"))
}

func TestRoleRoutes(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.tokenFor(t, "+919000000001", domain.RoleAdmin)
	user := ts.tokenFor(t, "+919000000002", domain.RoleUser)
	ts.tokenFor(t, "+919000000003", domain.RoleUser)

	rr := ts.do(t, nethttp.MethodPost, "/api/roles/assign-role", map[string]string{"phoneNumber": "9000000003", "role": "moderator"}, "")
	assert.Equal(t, nethttp.StatusUnauthorized, rr.Code)

	rr = ts.do(t, nethttp.MethodPost, "/api/roles/assign-role", map[string]string{"phoneNumber": "9000000003", "role": "moderator"}, user)
	assert.Equal(t, nethttp.StatusForbidden, rr.Code)

	rr = ts.do(t, nethttp.MethodPost, "/api/roles/assign-role", map[string]string{"phoneNumber": "9000000003", "role": "moderator"}, admin)
	require.Equal(t, nethttp.StatusOK, rr.Code, rr.Body.String())

	rr = ts.do(t, nethttp.MethodPost, "/api/roles/assign-role", map[string]string{"phoneNumber": "9000000002", "role": "superadmin"}, admin)
	assert.Equal(t, nethttp.StatusForbidden, rr.Code)

	rr = ts.do(t, nethttp.MethodPost, "/api/roles/assign-role", map[string]string{"phoneNumber": "9000000002", "role": "emperor"}, admin)
	assert.Equal(t, nethttp.StatusBadRequest, rr.Code)

	rr = ts.do(t, nethttp.MethodPatch, "/api/roles/approve/9000000002", nil, admin)
	assert.Equal(t, nethttp.StatusOK, rr.Code, rr.Body.String())

	rr = ts.do(t, nethttp.MethodPatch, "/api/roles/ban/9000000002", nil, admin)
	assert.Equal(t, nethttp.StatusForbidden, rr.Code)

	rr = ts.do(t, nethttp.MethodPatch, "/api/roles/approve/9000000099", nil, admin)
	assert.Equal(t, nethttp.StatusNotFound, rr.Code)
}

func TestRateLimit_VerifyOTP(t *testing.T) {
	ts := newTestServer(t)
	send := func() int {
		req := httptest.NewRequest(nethttp.MethodPost, "/verify-otp",
			bytes.NewBufferString(`{"phoneNumber":"9876543210","otp":"123456"}`))
		req.RemoteAddr = "203.0.113.9:4000"
		rr := httptest.NewRecorder()
		ts.router.ServeHTTP(rr, req)
		return rr.Code
	}
	for i := 0; i < 3; i++ {
		assert.Equal(t, nethttp.StatusBadRequest, send())
	}
	assert.Equal(t, nethttp.StatusTooManyRequests, send())
}

func verifyFrom(ts *testServer, remoteAddr, forwardedFor string) int {
	req := httptest.NewRequest(nethttp.MethodPost, "/verify-otp",
		bytes.NewBufferString(`{"phoneNumber":"9876543210","otp":"123456"}`))
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr.Code
}

func TestRateLimit_ForwardedForIgnoredByDefault(t *testing.T) {
	ts := newTestServer(t)
	for i := 0; i < 3; i++ {
		assert.Equal(t, nethttp.StatusBadRequest, verifyFrom(ts, "203.0.113.9:4000", fmt.Sprintf("198.51.100.%d", i)))
	}
	assert.Equal(t, nethttp.StatusTooManyRequests, verifyFrom(ts, "203.0.113.9:4000", "198.51.100.77"))
}

func TestRateLimit_TrustedProxyKeysOnForwardedFor(t *testing.T) {
	ts := newTestServerWith(t, &config.Config{AllowedOrigins: []string{"*"}, TrustProxy: true})
	const proxy = "10.0.0.2:8080"
	for i := 0; i < 5; i++ {
		assert.Equal(t, nethttp.StatusBadRequest, verifyFrom(ts, proxy, fmt.Sprintf("198.51.100.%d", i)))
	}
	for i := 0; i < 2; i++ {
		assert.Equal(t, nethttp.StatusBadRequest, verifyFrom(ts, proxy, "198.51.100.0"))
	}
	assert.Equal(t, nethttp.StatusTooManyRequests, verifyFrom(ts, proxy, "198.51.100.0"))
}

func TestMe_NetworkChangesKeepAccess(t *testing.T) {
	ts := newTestServer(t)
	tok := ts.tokenFor(t, "+919000000005", domain.RoleUser)
	for i := 0; i < 8; i++ {
		rr := ts.do(t, nethttp.MethodGet, "/api/auth/me", nil, tok)
		require.Equal(t, nethttp.StatusOK, rr.Code, rr.Body.String())
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(t, nethttp.MethodGet, "/health", nil, "")
	require.Equal(t, nethttp.StatusOK, rr.Code)
	var h struct {
		Status   string `json:"status"`
		WhatsApp string `json:"whatsapp"`
	}
	decodeBody(t, rr, &h)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "open", h.WhatsApp)
}

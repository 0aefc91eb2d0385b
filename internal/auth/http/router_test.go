package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	authhttp "github.com/aussiebroadwan/tokengate/internal/auth/http"
	"github.com/aussiebroadwan/tokengate/internal/auth/revocation"
	"github.com/aussiebroadwan/tokengate/internal/auth/service"
	"github.com/aussiebroadwan/tokengate/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/tokengate/pkg/authsdk"
	"github.com/aussiebroadwan/tokengate/pkg/cryptox"
	"github.com/aussiebroadwan/tokengate/pkg/httpx"
	"github.com/aussiebroadwan/tokengate/pkg/jwtx"
	"github.com/aussiebroadwan/tokengate/pkg/metricsx"
	"github.com/aussiebroadwan/tokengate/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	router *authhttp.Router
	mr     *miniredis.Miniredis
	clock  *clock
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the token clock and the Redis TTL clock together.
func (s *testServer) Advance(d time.Duration) {
	s.clock.mu.Lock()
	s.clock.now = s.clock.now.Add(d)
	s.clock.mu.Unlock()
	s.mr.FastForward(d)
}

func newTestServer(t *testing.T, failOpen bool) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	clk := &clock{now: time.Now().UTC().Truncate(time.Second)}
	revs := revocation.NewRedisStore(rdb, revocation.WithClock(clk.Now))

	codec, err := jwtx.NewCodec([]byte("http-test-secret-0123456789abcdef"), jwtx.WithClock(clk.Now))
	require.NoError(t, err)

	hasher, err := cryptox.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)

	m := metricsx.New(prometheus.NewRegistry())
	gate := httpx.GateConfig{Verifier: codec, Revocations: revs, FailOpen: failOpen, Metrics: m}

	r := authhttp.NewRouter(gate, "test", st, revs, slogx.Discard())
	r.TokenService = &service.TokenService{
		Codec:       codec,
		Revocations: revs,
		Store:       st,
		Hasher:      hasher,
		Metrics:     m,
		AccessTTL:   time.Hour,
		RefreshTTL:  24 * time.Hour,
		Now:         clk.Now,
	}
	r.UserService = &service.UserService{Store: st}
	r.ApplyRoutes()

	return &testServer{router: r, mr: mr, clock: clk}
}

type request struct {
	method  string
	path    string
	body    any
	headers map[string]string
	cookies []*http.Cookie
}

func (s *testServer) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if req.body != nil {
		b, err := json.Marshal(req.body)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	r := httptest.NewRequest(req.method, req.path, body)
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}
	for _, c := range req.cookies {
		r.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, r)
	return rec
}

func (s *testServer) signUp(t *testing.T, username string) string {
	t.Helper()
	rec := s.do(t, request{method: http.MethodPost, path: "/auth/signup", body: authsdk.SignUpRequest{
		Name: strings.ToUpper(username[:1]) + username[1:], Username: username, Password: "pw123",
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out authsdk.SignUpResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.ID
}

func (s *testServer) signIn(t *testing.T, username string) (authsdk.TokenResponse, []*http.Cookie) {
	t.Helper()
	rec := s.do(t, request{method: http.MethodPost, path: "/auth/signin", body: authsdk.SignInRequest{
		Username: username, Password: "pw123",
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out authsdk.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out, rec.Result().Cookies()
}

func bearer(tok string) string { return "Bearer " + tok }

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) authsdk.APIError {
	t.Helper()
	var e authsdk.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func TestSignUp(t *testing.T) {
	s := newTestServer(t, false)

	id := s.signUp(t, "alice")
	require.NotEmpty(t, id)

	tests := []struct {
		name string
		body any
		code int
		err  string
	}{
		{
			name: "duplicate username",
			body: authsdk.SignUpRequest{Name: "Alice", Username: "alice", Password: "x"},
			code: http.StatusConflict,
			err:  authsdk.ErrorCodeDuplicateUser,
		},
		{
			name: "missing password",
			body: authsdk.SignUpRequest{Name: "Bob", Username: "bob"},
			code: http.StatusBadRequest,
			err:  authsdk.ErrorCodeInvalidRequest,
		},
		{
			name: "unknown field",
			body: map[string]string{"username": "carol", "role": "admin"},
			code: http.StatusBadRequest,
			err:  authsdk.ErrorCodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, request{method: http.MethodPost, path: "/auth/signup", body: tt.body})
			require.Equal(t, tt.code, rec.Code)
			require.Equal(t, tt.err, decodeError(t, rec).Code)
		})
	}
}

func TestSignIn(t *testing.T) {
	s := newTestServer(t, false)
	s.signUp(t, "alice")

	t.Run("sets session cookies", func(t *testing.T) {
		pair, cookies := s.signIn(t, "alice")
		require.NotEmpty(t, pair.Token)
		require.NotEmpty(t, pair.RefreshToken)
		require.EqualValues(t, 3600, pair.ExpiresIn)

		byName := map[string]*http.Cookie{}
		for _, c := range cookies {
			byName[c.Name] = c
		}
		require.Equal(t, pair.Token, byName[httpx.CookieAccess].Value)
		require.Equal(t, pair.RefreshToken, byName[httpx.CookieRefresh].Value)
		for _, c := range byName {
			require.True(t, c.HttpOnly)
			require.Equal(t, "/", c.Path)
			require.Equal(t, http.SameSiteLaxMode, c.SameSite)
		}
		require.Equal(t, int((4 * time.Hour).Seconds()), byName[httpx.CookieAccess].MaxAge)
		require.Equal(t, int((4 * 7 * 24 * time.Hour).Seconds()), byName[httpx.CookieRefresh].MaxAge)
	})

	t.Run("wrong password and unknown user look the same", func(t *testing.T) {
		wrong := s.do(t, request{method: http.MethodPost, path: "/auth/signin",
			body: authsdk.SignInRequest{Username: "alice", Password: "nope"}})
		unknown := s.do(t, request{method: http.MethodPost, path: "/auth/signin",
			body: authsdk.SignInRequest{Username: "mallory", Password: "pw123"}})

		require.Equal(t, http.StatusBadRequest, wrong.Code)
		require.Equal(t, wrong.Code, unknown.Code)
		require.JSONEq(t, wrong.Body.String(), unknown.Body.String())
		require.Equal(t, authsdk.ErrorCodeInvalidCredentials, decodeError(t, wrong).Code)
		require.Empty(t, wrong.Result().Cookies())
	})
}

func TestSessionOverHTTP(t *testing.T) {
	s := newTestServer(t, false)
	id := s.signUp(t, "alice")
	pair, cookies := s.signIn(t, "alice")

	// Access via header and via cookie.
	rec := s.do(t, request{method: http.MethodGet, path: "/user/profile",
		headers: map[string]string{"Authorization": bearer(pair.Token)}})
	require.Equal(t, http.StatusOK, rec.Code)
	var me authsdk.UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	require.Equal(t, id, me.ID)
	require.Equal(t, "alice", me.Username)

	rec = s.do(t, request{method: http.MethodGet, path: "/auth/token", cookies: cookies})
	require.Equal(t, http.StatusOK, rec.Code)
	var echoed authsdk.AccessTokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &echoed))
	require.Equal(t, pair.Token, echoed.Token)

	// The refresh gate refuses access tokens and the access gate refuses
	// refresh tokens.
	rec = s.do(t, request{method: http.MethodGet, path: "/auth/refresh-token",
		headers: map[string]string{httpx.HeaderRefresh: bearer(pair.Token)}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, `Bearer error="invalid_token"`, rec.Header().Get("WWW-Authenticate"))

	rec = s.do(t, request{method: http.MethodGet, path: "/user/profile",
		headers: map[string]string{"Authorization": bearer(pair.RefreshToken)}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Refresh from header.
	rec = s.do(t, request{method: http.MethodGet, path: "/auth/refresh-token",
		headers: map[string]string{httpx.HeaderRefresh: bearer(pair.RefreshToken)}})
	require.Equal(t, http.StatusOK, rec.Code)
	var refreshed authsdk.AccessTokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &refreshed))
	require.NotEmpty(t, refreshed.Token)

	rec = s.do(t, request{method: http.MethodGet, path: "/user/profile",
		headers: map[string]string{"Authorization": bearer(refreshed.Token)}})
	require.Equal(t, http.StatusOK, rec.Code)

	// Sign out with cookies; both cookies are cleared.
	rec = s.do(t, request{method: http.MethodGet, path: "/auth/signout", cookies: cookies})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	for _, c := range rec.Result().Cookies() {
		require.Empty(t, c.Value)
		require.Negative(t, c.MaxAge)
	}

	for _, tc := range []struct {
		path    string
		headers map[string]string
	}{
		{"/user/profile", map[string]string{"Authorization": bearer(pair.Token)}},
		{"/auth/refresh-token", map[string]string{httpx.HeaderRefresh: bearer(pair.RefreshToken)}},
		// Derived from the revoked refresh token.
		{"/user/profile", map[string]string{"Authorization": bearer(refreshed.Token)}},
	} {
		rec = s.do(t, request{method: http.MethodGet, path: tc.path, headers: tc.headers})
		require.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
	}
}

func TestSignOutErrors(t *testing.T) {
	s := newTestServer(t, false)
	s.signUp(t, "alice")

	t.Run("missing refresh token", func(t *testing.T) {
		pair, _ := s.signIn(t, "alice")
		rec := s.do(t, request{method: http.MethodGet, path: "/auth/signout",
			headers: map[string]string{"Authorization": bearer(pair.Token)}})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("garbage tokens", func(t *testing.T) {
		rec := s.do(t, request{method: http.MethodGet, path: "/auth/signout", headers: map[string]string{
			"Authorization":    bearer("not-a-jwt"),
			httpx.HeaderRefresh: bearer("also-not"),
		}})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("revocation store down", func(t *testing.T) {
		pair, _ := s.signIn(t, "alice")
		s.mr.SetError("LOADING")
		t.Cleanup(func() { s.mr.SetError("") })

		rec := s.do(t, request{method: http.MethodGet, path: "/auth/signout", headers: map[string]string{
			"Authorization":    bearer(pair.Token),
			httpx.HeaderRefresh: bearer(pair.RefreshToken),
		}})
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.Equal(t, authsdk.ErrorCodeRevocationUnavailable, decodeError(t, rec).Code)
		require.Empty(t, rec.Result().Cookies())
	})
}

func TestSignOutCannotShortenRevocation(t *testing.T) {
	s := newTestServer(t, false)
	s.signUp(t, "alice")
	pair, _ := s.signIn(t, "alice")
	refreshHeader := map[string]string{httpx.HeaderRefresh: bearer(pair.RefreshToken)}

	rec := s.do(t, request{method: http.MethodGet, path: "/auth/refresh-token", headers: refreshHeader})
	require.Equal(t, http.StatusOK, rec.Code)
	var derived authsdk.AccessTokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &derived))

	rec = s.do(t, request{method: http.MethodGet, path: "/auth/signout", headers: map[string]string{
		"Authorization":    bearer(derived.Token),
		httpx.HeaderRefresh: bearer(pair.RefreshToken),
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The derived access token has expired; it still carries the refresh
	// token's id and is accepted by sign-out.
	s.Advance(2 * time.Hour)
	rec = s.do(t, request{method: http.MethodGet, path: "/auth/signout", headers: map[string]string{
		"Authorization":    bearer(derived.Token),
		httpx.HeaderRefresh: bearer(derived.Token),
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s.Advance(2 * time.Second)

	rec = s.do(t, request{method: http.MethodGet, path: "/auth/refresh-token", headers: refreshHeader})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRevocationFailurePolicy(t *testing.T) {
	s := newTestServer(t, true)
	s.signUp(t, "alice")
	pair, _ := s.signIn(t, "alice")

	s.mr.SetError("LOADING")

	rec := s.do(t, request{method: http.MethodGet, path: "/user/profile",
		headers: map[string]string{"Authorization": bearer(pair.Token)}})
	require.Equal(t, http.StatusOK, rec.Code, "access gate fails open")

	rec = s.do(t, request{method: http.MethodGet, path: "/auth/refresh-token",
		headers: map[string]string{httpx.HeaderRefresh: bearer(pair.RefreshToken)}})
	require.Equal(t, http.StatusUnauthorized, rec.Code, "refresh gate fails closed")
}

func TestUsers(t *testing.T) {
	s := newTestServer(t, false)
	aliceID := s.signUp(t, "alice")
	s.signUp(t, "bob")
	s.signUp(t, "alicia")
	pair, _ := s.signIn(t, "alice")
	auth := map[string]string{"Authorization": bearer(pair.Token)}

	t.Run("get by id", func(t *testing.T) {
		rec := s.do(t, request{method: http.MethodGet, path: "/user/" + aliceID, headers: auth})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = s.do(t, request{method: http.MethodGet, path: "/user/01ARZ3NDEKTSV4RRFFQ69G5FAV", headers: auth})
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("list", func(t *testing.T) {
		rec := s.do(t, request{method: http.MethodGet, path: "/user/?q=ali&limit=1", headers: auth})
		require.Equal(t, http.StatusOK, rec.Code)

		var page authsdk.UserPageResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		require.Equal(t, 2, page.Total)
		require.Equal(t, 1, page.Limit)
		require.Len(t, page.Data, 1)

		rec = s.do(t, request{method: http.MethodGet, path: "/user/?limit=-1", headers: auth})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("requires a token", func(t *testing.T) {
		rec := s.do(t, request{method: http.MethodGet, path: "/user/"})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.JSONEq(t, `{"error":"unauthorized","error_description":"unauthorized"}`, rec.Body.String())
	})

	t.Run("update", func(t *testing.T) {
		rec := s.do(t, request{method: http.MethodPut, path: "/user/", headers: auth,
			body: authsdk.UpdateProfileRequest{Name: "Alice Liddell"}})
		require.Equal(t, http.StatusOK, rec.Code)

		var u authsdk.UserResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
		require.Equal(t, "Alice Liddell", u.Name)
		require.Equal(t, "alice", u.Username)

		rec = s.do(t, request{method: http.MethodPut, path: "/user/", headers: auth,
			body: authsdk.UpdateProfileRequest{Username: "bob"}})
		require.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestSignInRateLimit(t *testing.T) {
	s := newTestServer(t, false)

	var last *httptest.ResponseRecorder
	for range httpx.StrictLimit.Burst + 1 {
		last = s.do(t, request{method: http.MethodPost, path: "/auth/signin",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9"},
			body:    authsdk.SignInRequest{Username: "alice", Password: "guess"}})
	}
	require.Equal(t, http.StatusTooManyRequests, last.Code)
	require.NotEmpty(t, last.Header().Get("Retry-After"))

	// Another username from the same address has its own bucket.
	rec := s.do(t, request{method: http.MethodPost, path: "/auth/signin",
		headers: map[string]string{"X-Forwarded-For": "203.0.113.9"},
		body:    authsdk.SignInRequest{Username: "bob", Password: "guess"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, request{method: http.MethodGet, path: "/livez"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, request{method: http.MethodGet, path: "/readyz"})
	require.Equal(t, http.StatusOK, rec.Code)

	s.mr.SetError("LOADING")
	rec = s.do(t, request{method: http.MethodGet, path: "/readyz"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var h authsdk.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	require.Equal(t, "degraded", h.Status)
	require.Equal(t, "ok", h.Checks.Database)
	require.Contains(t, h.Checks.Revocation, "error")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, false)
	s.do(t, request{method: http.MethodGet, path: "/user/profile"})

	rec := s.do(t, request{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `auth_gate_rejections_total{gate="auth_token",reason="missing_credential"} 1`)
	require.Contains(t, rec.Body.String(), `http_requests_total{method="GET",route="GET /user/profile",status="401"} 1`)
}

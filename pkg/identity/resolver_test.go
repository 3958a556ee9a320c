package identity

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/widgetgate/widgetgate/pkg/config"
	"github.com/widgetgate/widgetgate/pkg/logging"
	"github.com/widgetgate/widgetgate/pkg/passthrough"
	"github.com/widgetgate/widgetgate/pkg/registry"
	"github.com/widgetgate/widgetgate/pkg/session"
)

// fakeAuthority serves an OIDC discovery document and a userinfo endpoint.
type fakeAuthority struct {
	server         *httptest.Server
	userinfoStatus int
	userinfoCalls  atomic.Int64
	discoveryCalls atomic.Int64
}

func newFakeAuthority(t *testing.T) *fakeAuthority {
	t.Helper()

	fa := &fakeAuthority{userinfoStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		fa.discoveryCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"userinfo_endpoint": fa.server.URL + "/userinfo",
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		fa.userinfoCalls.Add(1)
		if fa.userinfoStatus != http.StatusOK {
			w.WriteHeader(fa.userinfoStatus)
			return
		}
		auth := r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"sub":                "user-1",
			"email":              "user@acme.example",
			"name":               "Test User",
			"preferred_username": "tuser",
			"token_seen":         auth,
		})
	})

	fa.server = httptest.NewServer(mux)
	t.Cleanup(fa.server.Close)
	return fa
}

func newTestResolver(t *testing.T, authority string) (*Resolver, session.Cache) {
	t.Helper()

	reg, err := registry.New([]config.TenantConfig{
		{
			Identifier: "acme",
			ChatflowID: "11111111-1111-1111-1111-111111111111",
			OAuth: &config.OAuthConfig{
				ClientID:  "acme-widget",
				Authority: authority,
			},
		},
		{
			Identifier: "plain",
			ChatflowID: "22222222-2222-2222-2222-222222222222",
		},
	}, "", logging.NewTestLogger())
	require.NoError(t, err)

	sessions := session.NewMemoryCache(time.Minute)
	t.Cleanup(func() { _ = sessions.Close() })

	resolver := NewResolver(registry.NewHandle(reg), sessions,
		passthrough.NewMatcher(nil), 2*time.Second, logging.NewTestLogger())
	return resolver, sessions
}

// capture wraps the resolver middleware around a handler that records the
// resolved user.
func capture(resolver *Resolver) (http.Handler, *struct {
	User *session.UserInfo
	OK   bool
}) {
	result := &struct {
		User *session.UserInfo
		OK   bool
	}{}
	handler := resolver.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result.User, result.OK = UserFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	return handler, result
}

func bearerWithExp(exp int64) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"exp":%d}`, exp)))
	return header + "." + payload + ".sig"
}

func postJSON(path, body, bearer string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		r.Header.Set("Authorization", "Bearer "+bearer)
	}
	return r
}

func TestResolveBearerAttachesUser(t *testing.T) {
	fa := newFakeAuthority(t)
	resolver, _ := newTestResolver(t, fa.server.URL)
	handler, result := capture(resolver)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, postJSON("/api/v1/prediction/acme", `{"question":"hi"}`, "opaque-token"))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, result.OK)
	assert.Equal(t, "user-1", result.User.Subject)
	assert.Equal(t, "user@acme.example", result.User.Email)
	assert.Equal(t, "tuser", result.User.Username)
}

func TestResolveFailureIsAdvisory(t *testing.T) {
	fa := newFakeAuthority(t)
	fa.userinfoStatus = http.StatusUnauthorized
	resolver, _ := newTestResolver(t, fa.server.URL)
	handler, result := capture(resolver)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, postJSON("/api/v1/prediction/acme", `{"question":"hi"}`, "bad-token"))

	assert.Equal(t, http.StatusOK, rec.Code, "the request proceeds despite the failed userinfo call")
	assert.False(t, result.OK, "no identity is attached")
}

func TestResolveUnreachableAuthorityIsAdvisory(t *testing.T) {
	resolver, _ := newTestResolver(t, "http://127.0.0.1:1")
	handler, result := capture(resolver)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, postJSON("/api/v1/prediction/acme", `{"question":"hi"}`, "token"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, result.OK)
}

func TestResolveTenantWithoutOAuthSkips(t *testing.T) {
	fa := newFakeAuthority(t)
	resolver, _ := newTestResolver(t, fa.server.URL)
	handler, result := capture(resolver)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, postJSON("/api/v1/prediction/plain", `{"question":"hi"}`, "token"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, result.OK)
	assert.Zero(t, fa.userinfoCalls.Load(), "no userinfo call for a tenant without OAuth")
}

func TestResolveStoresSessionOnChatID(t *testing.T) {
	fa := newFakeAuthority(t)
	resolver, sessions := newTestResolver(t, fa.server.URL)
	handler, _ := capture(resolver)

	exp := time.Now().Add(time.Hour).Unix()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, postJSON("/api/v1/prediction/acme",
		`{"question":"hi","chatId":"chat-42"}`, bearerWithExp(exp)))
	require.Equal(t, http.StatusOK, rec.Code)

	sess, err := sessions.Get("chat-42")
	require.NoError(t, err)
	assert.Equal(t, "user-1", sess.User.Subject)
	assert.Equal(t, "acme", sess.Identifier)
	assert.Equal(t, time.UnixMilli(exp*1000), sess.ExpiresAt, "the token's exp claim sizes the TTL")
}

func TestResolveDefaultLifetimeForOpaqueToken(t *testing.T) {
	fa := newFakeAuthority(t)
	resolver, sessions := newTestResolver(t, fa.server.URL)
	handler, _ := capture(resolver)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, postJSON("/api/v1/prediction/acme",
		`{"chatId":"chat-7"}`, "opaque-token"))
	require.Equal(t, http.StatusOK, rec.Code)

	sess, err := sessions.Get("chat-7")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(session.DefaultLifetime), sess.ExpiresAt, time.Minute)
}

func TestResolveSessionReuseWithoutBearer(t *testing.T) {
	fa := newFakeAuthority(t)
	resolver, sessions := newTestResolver(t, fa.server.URL)
	handler, result := capture(resolver)

	now := time.Now()
	require.NoError(t, sessions.Put("chat-42", &session.Session{
		ChatID:       "chat-42",
		User:         session.UserInfo{Subject: "cached-user"},
		Identifier:   "acme",
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Hour),
		LastAccessed: now,
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, postJSON("/api/v1/prediction/acme", `{"chatId":"chat-42"}`, ""))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, result.OK)
	assert.Equal(t, "cached-user", result.User.Subject)
	assert.Zero(t, fa.userinfoCalls.Load(), "cached sessions short-circuit the userinfo call")
}

func TestResolveBodyRestoredAfterProbe(t *testing.T) {
	fa := newFakeAuthority(t)
	resolver, _ := newTestResolver(t, fa.server.URL)

	body := `{"question":"hi","chatId":"chat-42"}`
	var seenBody string
	handler := resolver.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := make([]byte, len(body)+10)
		n, _ := r.Body.Read(data)
		seenBody = string(data[:n])
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, postJSON("/api/v1/prediction/acme", body, "opaque-token"))

	assert.Equal(t, body, seenBody, "the downstream handler sees the original body bytes")
}

func TestResolveOversizedBodyForwardedIntact(t *testing.T) {
	fa := newFakeAuthority(t)
	resolver, sessions := newTestResolver(t, fa.server.URL)

	filler := strings.Repeat("x", 2<<20)
	body := `{"question":"` + filler + `","chatId":"chat-big"}`

	var seen []byte
	handler := resolver.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		seen = data
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, postJSON("/api/v1/prediction/acme", body, "opaque-token"))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, seen, len(body), "the downstream handler receives every body byte")
	assert.Equal(t, body[:64], string(seen[:64]))
	assert.Equal(t, body[len(body)-64:], string(seen[len(seen)-64:]))

	_, err := sessions.Get("chat-big")
	assert.Error(t, err, "bodies too large to parse skip session handling")
}

func TestResolveDiscoveryCached(t *testing.T) {
	fa := newFakeAuthority(t)
	resolver, _ := newTestResolver(t, fa.server.URL)
	handler, _ := capture(resolver)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, postJSON("/api/v1/prediction/acme", `{}`, "token"))
	}

	assert.Equal(t, int64(1), fa.discoveryCalls.Load(), "discovery is fetched once per authority")
	assert.Equal(t, int64(3), fa.userinfoCalls.Load())
}

func TestPassthroughSkipsResolution(t *testing.T) {
	fa := newFakeAuthority(t)

	reg, err := registry.New([]config.TenantConfig{
		{
			Identifier: "acme",
			ChatflowID: "11111111-1111-1111-1111-111111111111",
			OAuth:      &config.OAuthConfig{Authority: fa.server.URL},
		},
	}, "", logging.NewTestLogger())
	require.NoError(t, err)

	sessions := session.NewMemoryCache(time.Minute)
	defer func() { _ = sessions.Close() }()

	matcher := passthrough.NewMatcher(&config.PassthroughConfig{
		Prefix: []string{"/api/v1/prediction"},
	})
	resolver := NewResolver(registry.NewHandle(reg), sessions, matcher,
		2*time.Second, logging.NewTestLogger())
	handler, result := capture(resolver)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, postJSON("/api/v1/prediction/acme", `{}`, "token"))

	assert.False(t, result.OK)
	assert.Zero(t, fa.userinfoCalls.Load(), "passthrough paths never touch the authority")
}

func TestUserFromEmptyContext(t *testing.T) {
	user, ok := UserFrom(context.Background())
	assert.False(t, ok)
	assert.Nil(t, user)
}

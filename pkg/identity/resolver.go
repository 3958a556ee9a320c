// Package identity resolves caller identities from bearer tokens or
// cached sessions. Resolution on the relay path is advisory: failures are
// logged and the request proceeds unauthenticated, they never abort the
// pipeline.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/widgetgate/widgetgate/pkg/logging"
	"github.com/widgetgate/widgetgate/pkg/passthrough"
	"github.com/widgetgate/widgetgate/pkg/registry"
	"github.com/widgetgate/widgetgate/pkg/rewrite"
	"github.com/widgetgate/widgetgate/pkg/session"
)

type contextKey struct{}

// UserFrom extracts the resolved identity from a request context, if any.
func UserFrom(ctx context.Context) (*session.UserInfo, bool) {
	user, ok := ctx.Value(contextKey{}).(*session.UserInfo)
	return user, ok
}

// withUser attaches an identity to a context.
func withUser(ctx context.Context, user *session.UserInfo) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// maxProbeBody bounds how much of a JSON body the resolver buffers while
// looking for a chatId. Larger bodies skip session handling.
const maxProbeBody = 1 << 20

// Resolver is the user-context middleware for relay routes.
type Resolver struct {
	registry    *registry.Handle
	sessions    session.Cache
	discovery   *DiscoveryClient
	timeout     time.Duration
	passthrough *passthrough.Matcher
	logger      logging.Logger
}

// NewResolver creates a Resolver.
func NewResolver(h *registry.Handle, sessions session.Cache, matcher *passthrough.Matcher, timeout time.Duration, logger logging.Logger) *Resolver {
	return &Resolver{
		registry:    h,
		sessions:    sessions,
		discovery:   NewDiscoveryClient(timeout),
		timeout:     timeout,
		passthrough: matcher,
		logger:      logger.WithModule("identity"),
	}
}

// Middleware attaches a resolved identity to requests when possible and
// keeps the session cache fresh. It never rejects a request.
func (rs *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rs.passthrough.Match(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		identifier := rewrite.TrailingIdentifier(r.URL.Path)
		if identifier == "" {
			next.ServeHTTP(w, r)
			return
		}

		oauthCfg, err := rs.registry.Get().OAuthLookup(identifier)
		if err != nil || !oauthCfg.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		chatID := rs.probeChatID(r)
		bearer := bearerToken(r)

		if bearer != "" {
			user, err := rs.resolveUser(r.Context(), oauthCfg, bearer)
			if err != nil {
				// Advisory only: a failed userinfo call downgrades to
				// unauthenticated instead of failing the request.
				rs.logger.Warn("Identity resolution failed, proceeding unauthenticated",
					"identifier", identifier, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if chatID != "" && r.Method == http.MethodPost {
				rs.upsertSession(chatID, identifier, bearer, user)
			}

			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
			return
		}

		if chatID != "" {
			if sess, err := rs.sessions.Get(chatID); err == nil {
				if err := rs.sessions.Touch(chatID); err != nil {
					rs.logger.Debug("Session touch failed", "chat_id", chatID, "error", err)
				}
				user := sess.User
				next.ServeHTTP(w, r.WithContext(withUser(r.Context(), &user)))
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return auth[len(prefix):]
	}
	return ""
}

// probeChatID reads a chatId from a JSON request body, restoring the body
// so downstream forwarding sees the original bytes. Bodies larger than
// maxProbeBody are never parsed: the buffered prefix is stitched back
// onto the unread remainder and session handling is skipped.
func (rs *Resolver) probeChatID(r *http.Request) string {
	if r.Body == nil || r.Method != http.MethodPost {
		return ""
	}
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		return ""
	}

	buffered, err := io.ReadAll(io.LimitReader(r.Body, maxProbeBody+1))
	if len(buffered) > maxProbeBody {
		r.Body = stitchedBody{io.MultiReader(bytes.NewReader(buffered), r.Body), r.Body}
		return ""
	}

	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(buffered))
	if err != nil {
		return ""
	}

	var probe struct {
		ChatID string `json:"chatId"`
	}
	if err := json.Unmarshal(buffered, &probe); err != nil {
		return ""
	}
	return probe.ChatID
}

// stitchedBody joins a buffered prefix with the unread remainder of the
// original body while keeping the original Close.
type stitchedBody struct {
	io.Reader
	io.Closer
}

// userinfoClaims is the subset of OIDC userinfo claims the gateway keeps.
type userinfoClaims struct {
	Sub               string `json:"sub"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

// resolveUser calls the tenant authority's userinfo endpoint with the
// caller's bearer token.
func (rs *Resolver) resolveUser(ctx context.Context, cfg *registry.OAuthEntry, bearer string) (*session.UserInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, rs.timeout)
	defer cancel()

	endpoint, err := rs.discovery.UserinfoEndpoint(ctx, cfg.Authority)
	if err != nil {
		return nil, err
	}

	// The bearer token is forwarded as-is; verification is the
	// authority's job.
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: bearer, TokenType: "Bearer"})
	client := oauth2.NewClient(ctx, src)
	client.Timeout = rs.timeout

	resp, err := client.Get(endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &userinfoStatusError{status: resp.StatusCode}
	}

	var claims userinfoClaims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, err
	}

	return &session.UserInfo{
		Subject:  claims.Sub,
		Email:    claims.Email,
		Name:     claims.Name,
		Username: claims.PreferredUsername,
	}, nil
}

type userinfoStatusError struct {
	status int
}

func (e *userinfoStatusError) Error() string {
	return fmt.Sprintf("userinfo endpoint returned status %d", e.status)
}

// upsertSession stores the resolved identity under the chat id. The
// expiry comes from the token's unverified exp claim when decodable
// (advisory TTL sizing only), else 24 hours out.
func (rs *Resolver) upsertSession(chatID, identifier, bearer string, user *session.UserInfo) {
	now := time.Now()
	expiresAt := now.Add(session.DefaultLifetime)
	if hint, ok := session.DeriveExpiry(bearer); ok {
		expiresAt = hint.Time()
	}

	sess := &session.Session{
		ChatID:       chatID,
		User:         *user,
		Identifier:   identifier,
		CreatedAt:    now,
		ExpiresAt:    expiresAt,
		LastAccessed: now,
	}

	if err := rs.sessions.Put(chatID, sess); err != nil {
		rs.logger.Warn("Session upsert failed", "chat_id", chatID, "error", err)
	}
}

package registry

import (
	"errors"

	"github.com/widgetgate/widgetgate/pkg/config"
)

// ErrNotConfigured is returned when a known tenant carries no OAuth block.
var ErrNotConfigured = errors.New("oauth not configured for tenant")

// OAuth modes
const (
	ModeRequired = "required"
	ModeOptional = "optional"
	ModeDisabled = "disabled"
)

// OAuthEntry holds the resolved OAuth/OIDC parameters for a tenant.
// Defaults are applied once at registration time.
type OAuthEntry struct {
	Mode         string `json:"mode"`
	ClientID     string `json:"clientId"`
	Authority    string `json:"authority"`
	RedirectURI  string `json:"redirectUri"`
	Scope        string `json:"scope"`
	ResponseType string `json:"responseType"`
	Prompt       string `json:"prompt"`
}

func newOAuthEntry(cfg *config.OAuthConfig, defaultRedirectURI string) *OAuthEntry {
	entry := &OAuthEntry{
		Mode:         cfg.Mode,
		ClientID:     cfg.ClientID,
		Authority:    cfg.Authority,
		RedirectURI:  cfg.RedirectURI,
		Scope:        cfg.Scope,
		ResponseType: cfg.ResponseType,
		Prompt:       cfg.Prompt,
	}

	if entry.Mode == "" {
		entry.Mode = ModeOptional
	}
	if entry.Scope == "" {
		entry.Scope = "openid profile email"
	}
	if entry.ResponseType == "" {
		entry.ResponseType = "code"
	}
	if entry.Prompt == "" {
		entry.Prompt = "select_account"
	}
	if entry.RedirectURI == "" {
		entry.RedirectURI = defaultRedirectURI
	}

	return entry
}

// Enabled reports whether identity resolution applies for this entry.
func (e *OAuthEntry) Enabled() bool {
	return e != nil && e.Mode != ModeDisabled
}

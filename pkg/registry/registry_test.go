package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/widgetgate/widgetgate/pkg/config"
	"github.com/widgetgate/widgetgate/pkg/logging"
)

func boolPtr(b bool) *bool { return &b }

func TestNewSkipsInvalidEntries(t *testing.T) {
	logger := logging.NewTestLogger()

	reg, err := New([]config.TenantConfig{
		{Identifier: "", ChatflowID: "11111111-1111-1111-1111-111111111111"},
		{Identifier: "orphan", ChatflowID: ""},
		{Identifier: "acme", ChatflowID: "22222222-2222-2222-2222-222222222222"},
	}, "", logger)
	require.NoError(t, err)

	assert.Equal(t, 1, reg.Len(), "only the complete entry should register")
	assert.Equal(t, []string{"acme"}, reg.Identifiers())
}

func TestNewEmptyTableIsFatal(t *testing.T) {
	logger := logging.NewTestLogger()

	_, err := New(nil, "", logger)
	assert.ErrorIs(t, err, ErrNoServableTenants)

	_, err = New([]config.TenantConfig{{Identifier: "x"}}, "", logger)
	assert.ErrorIs(t, err, ErrNoServableTenants, "a table of only invalid entries is still empty")
}

func TestLookupCaseInsensitive(t *testing.T) {
	reg, err := New([]config.TenantConfig{
		{Identifier: "Acme", ChatflowID: "11111111-1111-1111-1111-111111111111"},
	}, "", logging.NewTestLogger())
	require.NoError(t, err)

	for _, identifier := range []string{"Acme", "acme", "ACME", "aCmE"} {
		entry, err := reg.Lookup(identifier)
		require.NoError(t, err, "lookup %q", identifier)
		assert.Equal(t, "Acme", entry.Identifier, "canonical case is preserved")
		assert.Equal(t, "11111111-1111-1111-1111-111111111111", entry.ChatflowID)
	}
}

func TestLookupNotFoundNamesIdentifier(t *testing.T) {
	reg, err := New([]config.TenantConfig{
		{Identifier: "acme", ChatflowID: "11111111-1111-1111-1111-111111111111"},
	}, "", logging.NewTestLogger())
	require.NoError(t, err)

	_, err = reg.Lookup("globex")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "globex", notFound.Identifier)
	assert.Contains(t, err.Error(), "globex")
}

func TestDuplicateIdentifiersUnionOrigins(t *testing.T) {
	reg, err := New([]config.TenantConfig{
		{
			Identifier:     "Acme",
			ChatflowID:     "11111111-1111-1111-1111-111111111111",
			AllowedOrigins: []string{"https://a.example"},
		},
		{
			Identifier:     "acme",
			ChatflowID:     "99999999-9999-9999-9999-999999999999",
			AllowedOrigins: []string{"https://b.example"},
		},
	}, "", logging.NewTestLogger())
	require.NoError(t, err)

	require.Equal(t, 1, reg.Len())
	entry, err := reg.Lookup("acme")
	require.NoError(t, err)

	assert.Equal(t, "Acme", entry.Identifier, "first entry's case wins")
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", entry.ChatflowID, "first entry's chatflow id wins")
	assert.Contains(t, entry.AllowedOrigins, "https://a.example")
	assert.Contains(t, entry.AllowedOrigins, "https://b.example")
}

func TestWildcardOriginDisablesTenant(t *testing.T) {
	reg, err := New([]config.TenantConfig{
		{
			Identifier:     "open",
			ChatflowID:     "11111111-1111-1111-1111-111111111111",
			AllowedOrigins: []string{"https://ok.example", "*"},
		},
		{
			Identifier:     "closed",
			ChatflowID:     "22222222-2222-2222-2222-222222222222",
			AllowedOrigins: []string{"https://other.example"},
		},
	}, "", logging.NewTestLogger())
	require.NoError(t, err)

	entry, err := reg.Lookup("open")
	require.NoError(t, err, "the tenant stays visible for diagnostics")
	assert.True(t, entry.Unreachable)

	origins := reg.AllOrigins()
	assert.NotContains(t, origins, "https://ok.example", "unreachable tenants contribute no origins")
	assert.Contains(t, origins, "https://other.example")
}

func TestOAuthLookup(t *testing.T) {
	reg, err := New([]config.TenantConfig{
		{
			Identifier: "acme",
			ChatflowID: "11111111-1111-1111-1111-111111111111",
			OAuth: &config.OAuthConfig{
				ClientID:  "acme-widget",
				Authority: "https://login.acme.example",
			},
		},
		{
			Identifier: "plain",
			ChatflowID: "22222222-2222-2222-2222-222222222222",
		},
	}, "https://gate.example.com/callback", logging.NewTestLogger())
	require.NoError(t, err)

	oauth, err := reg.OAuthLookup("acme")
	require.NoError(t, err)
	assert.Equal(t, ModeOptional, oauth.Mode, "mode defaults to optional")
	assert.Equal(t, "openid profile email", oauth.Scope)
	assert.Equal(t, "code", oauth.ResponseType)
	assert.Equal(t, "select_account", oauth.Prompt)
	assert.Equal(t, "https://gate.example.com/callback", oauth.RedirectURI, "redirect falls back to the gateway default")

	_, err = reg.OAuthLookup("plain")
	assert.ErrorIs(t, err, ErrNotConfigured, "a tenant without OAuth is configured, just not for auth")

	_, err = reg.OAuthLookup("missing")
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound, "an unknown tenant is a different failure")
}

func TestOAuthEntryEnabled(t *testing.T) {
	assert.False(t, (*OAuthEntry)(nil).Enabled())
	assert.True(t, (&OAuthEntry{Mode: ModeOptional}).Enabled())
	assert.True(t, (&OAuthEntry{Mode: ModeRequired}).Enabled())
	assert.False(t, (&OAuthEntry{Mode: ModeDisabled}).Enabled())
}

func TestHandleSwap(t *testing.T) {
	logger := logging.NewTestLogger()

	first, err := New([]config.TenantConfig{
		{Identifier: "acme", ChatflowID: "11111111-1111-1111-1111-111111111111"},
	}, "", logger)
	require.NoError(t, err)

	handle := NewHandle(first)
	assert.Same(t, first, handle.Get())

	second, err := New([]config.TenantConfig{
		{Identifier: "globex", ChatflowID: "22222222-2222-2222-2222-222222222222"},
	}, "", logger)
	require.NoError(t, err)

	handle.Swap(second)
	assert.Same(t, second, handle.Get())

	_, err = handle.Get().Lookup("acme")
	var notFound *NotFoundError
	assert.True(t, errors.As(err, &notFound), "old tenants vanish after swap")
}

func TestDebugOverrideCarried(t *testing.T) {
	reg, err := New([]config.TenantConfig{
		{
			Identifier: "acme",
			ChatflowID: "11111111-1111-1111-1111-111111111111",
			Debug:      boolPtr(true),
		},
	}, "", logging.NewTestLogger())
	require.NoError(t, err)

	entry, err := reg.Lookup("acme")
	require.NoError(t, err)
	require.NotNil(t, entry.Debug)
	assert.True(t, *entry.Debug)
}

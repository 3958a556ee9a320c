package passthrough

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/widgetgate/widgetgate/pkg/config"
)

func TestMatcherPrefix(t *testing.T) {
	m := NewMatcher(&config.PassthroughConfig{
		Prefix: []string{"/api/v1/ping", "/static/"},
	})

	assert.True(t, m.Match("/api/v1/ping"))
	assert.True(t, m.Match("/api/v1/ping/deep"))
	assert.True(t, m.Match("/static/app.css"))
	assert.False(t, m.Match("/api/v1/prediction/acme"))
}

func TestMatcherRegex(t *testing.T) {
	m := NewMatcher(&config.PassthroughConfig{
		Regex: []string{`^/api/v1/public-[a-z]+$`},
	})
	require.False(t, m.HasErrors())

	assert.True(t, m.Match("/api/v1/public-config"))
	assert.False(t, m.Match("/api/v1/public-config/extra"))
	assert.False(t, m.Match("/api/v1/private"))
}

func TestMatcherGlob(t *testing.T) {
	m := NewMatcher(&config.PassthroughConfig{
		Glob: []string{"/api/v1/*/health", "/assets/**"},
	})

	assert.True(t, m.Match("/api/v1/flows/health"))
	assert.False(t, m.Match("/api/v1/flows/deep/health"), "single star stops at slashes")
	assert.True(t, m.Match("/assets/js/app.js"), "double star crosses slashes")
	assert.False(t, m.Match("/api/v1/prediction"))
}

func TestMatcherInvalidRegexCollected(t *testing.T) {
	m := NewMatcher(&config.PassthroughConfig{
		Regex: []string{`[unclosed`, `^/ok$`},
	})

	assert.True(t, m.HasErrors())
	assert.Len(t, m.Errors(), 1)
	assert.True(t, m.Match("/ok"), "valid patterns still work")
}

func TestMatcherNilAndEmpty(t *testing.T) {
	assert.False(t, NewMatcher(nil).Match("/anything"))
	assert.False(t, NewMatcher(&config.PassthroughConfig{}).Match("/anything"))

	var m *Matcher
	assert.False(t, m.Match("/anything"), "nil matcher matches nothing")
}

// Package assets carries the embedded widget loader script served by the
// gateway.
package assets

import (
	_ "embed"
)

// Embedded widget loader served at /web.js
//
//go:embed static/web.js
var embeddedWebJS []byte

// WebJS returns the embedded widget loader script
func WebJS() []byte {
	return embeddedWebJS
}

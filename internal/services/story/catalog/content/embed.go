// Package content embeds the built-in story and achievement catalog.
package content

import "embed"

// FS contains the authored TOML content shipped with the server.
//
//go:embed stories/*.toml achievements.toml
var FS embed.FS

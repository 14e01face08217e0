// Package templates embeds the files written by `sstbridge init`.
package templates

import "embed"

//go:embed config.yaml world.yaml
var FS embed.FS

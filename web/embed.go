package web

import "embed"

// FS contains the embedded page templates.
//
//go:embed *.tmpl.html
var FS embed.FS

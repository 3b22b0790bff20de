package web

import "embed"

// TemplatesFS embeds the report templates.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

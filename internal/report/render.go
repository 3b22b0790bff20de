package report

import (
	"context"
	"fmt"
	"io"
	"strings"

	"churchledger/internal/core"
)

// Renderer writes a compiled document in one output format.
type Renderer interface {
	Render(ctx context.Context, doc Document, w io.Writer) error
	ContentType() string
	Extension() string
}

// Formats lists the supported renderer names.
var Formats = []string{"pdf", "xlsx", "html"}

// RendererFor returns the renderer for "pdf", "xlsx" or "html".
func RendererFor(format string) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "pdf":
		return PDFRenderer{}, nil
	case "xlsx":
		return XLSXRenderer{}, nil
	case "html":
		r, err := NewHTMLRenderer()
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	return nil, core.NewValidationError("format", fmt.Sprintf("unsupported report format %q (want one of %s)", format, strings.Join(Formats, ", ")))
}

func money(v int64) string { return core.FormatAmount(v, "") }

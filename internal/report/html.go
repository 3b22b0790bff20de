package report

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"strings"

	"churchledger/web"
)

// HTMLRenderer executes the embedded report template. The same markup is
// what a browser print dialog or an HTML-to-PDF sink would consume.
type HTMLRenderer struct {
	tmpl *template.Template
}

func NewHTMLRenderer() (*HTMLRenderer, error) {
	tmpl, err := template.New("report.html").Funcs(template.FuncMap{
		"money": money,
		"join":  strings.Join,
	}).ParseFS(web.TemplatesFS, "templates/report.html")
	if err != nil {
		return nil, fmt.Errorf("parse report template: %w", err)
	}
	return &HTMLRenderer{tmpl: tmpl}, nil
}

func (r *HTMLRenderer) Render(ctx context.Context, doc Document, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.tmpl.Execute(w, doc); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}

func (r *HTMLRenderer) ContentType() string { return "text/html; charset=utf-8" }
func (r *HTMLRenderer) Extension() string   { return "html" }

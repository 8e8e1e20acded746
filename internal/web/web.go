// Package web holds the home page template and the browser client assets.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
)

//go:embed templates/*.tmpl static
var content embed.FS

var homeTemplate = template.Must(template.ParseFS(content, "templates/home.html.tmpl"))

// HomeData is rendered by the home page.
type HomeData struct {
	SpaceID    string
	Connected  bool
	ConnectURL string
	RefreshURL string
}

// RenderHome writes the home page to w. Nothing is written when rendering
// fails.
func RenderHome(w io.Writer, data HomeData) error {
	var buf bytes.Buffer
	if err := homeTemplate.Execute(&buf, data); err != nil {
		return fmt.Errorf("rendering home page: %w", err)
	}

	_, err := buf.WriteTo(w)

	return err
}

// Static serves the browser client assets.
func Static() http.Handler {
	sub, err := fs.Sub(content, "static")
	if err != nil {
		panic(err)
	}

	return http.FileServerFS(sub)
}

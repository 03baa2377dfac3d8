package board

import (
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/board.html.tmpl
var templateFS embed.FS

var page = template.Must(template.ParseFS(templateFS, "templates/board.html.tmpl"))

// Render writes v as a self-contained HTML document.
func Render(w io.Writer, v *View) error {
	if err := page.Execute(w, v); err != nil {
		return fmt.Errorf("board: render: %w", err)
	}
	return nil
}

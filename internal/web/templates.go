// Package web renders the server-side HTML pages from embedded templates.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strconv"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{
	"dashboard",
	"products",
	"product_detail",
	"conversations",
	"auth",
	"not_found",
}

type Renderer struct {
	templates map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	funcs := template.FuncMap{
		"apr": func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) },
		"num": func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) },
	}

	templates := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html",
			"templates/product_card.html",
			"templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		templates[name] = t
	}
	return &Renderer{templates: templates}, nil
}

// Render writes a page. Template execution errors after headers are sent can
// only be logged.
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data any) {
	t, ok := r.templates[page]
	if !ok {
		log.Printf("Unknown page template %q", page)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := t.ExecuteTemplate(w, "layout", data); err != nil {
		log.Printf("Failed to render page %q: %v", page, err)
	}
}

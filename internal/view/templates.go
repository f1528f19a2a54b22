// Package view renders HTML pages from the embedded template tree.
package view

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Engine parses the template tree once and renders named pages into a
// shared layout.
type Engine struct {
	pages map[string]*template.Template
}

var funcMap = template.FuncMap{
	"formatDate": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("Jan 2, 2006")
	},
	"formatLongDate": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("January 2, 2006")
	},
	"upper": cases.Upper(language.English).String,
	"add":   func(a, b int) int { return a + b },
	"seq": func(n int) []int {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	},
}

// NewEngine parses every page against the shared layout and partials.
func NewEngine(fsys fs.FS) (*Engine, error) {
	pageFiles, err := fs.Glob(fsys, "templates/pages/*.html")
	if err != nil {
		return nil, fmt.Errorf("view: glob pages: %w", err)
	}

	pages := make(map[string]*template.Template, len(pageFiles))
	for _, file := range pageFiles {
		name := strings.TrimSuffix(strings.TrimPrefix(file, "templates/pages/"), ".html")
		tmpl, err := template.New("base.html").Funcs(funcMap).ParseFS(fsys,
			"templates/layouts/base.html",
			"templates/partials/*.html",
			file,
		)
		if err != nil {
			return nil, fmt.Errorf("view: parse %s: %w", file, err)
		}
		pages[name] = tmpl
	}
	return &Engine{pages: pages}, nil
}

// Render writes a page. The page renders fully into a buffer first so a
// template fault cannot leak a half-written body.
func (e *Engine) Render(w http.ResponseWriter, status int, page string, data any) error {
	tmpl, ok := e.pages[page]
	if !ok {
		return fmt.Errorf("view: unknown page %q", page)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		return fmt.Errorf("view: render %s: %w", page, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

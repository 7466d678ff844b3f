// Package web holds the server-rendered pages and static assets of the site.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"github.com/kjstillabower/climate-risk-service/internal/auth"
	"github.com/kjstillabower/climate-risk-service/internal/models"
	"github.com/kjstillabower/climate-risk-service/internal/validation"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

//go:embed content/about.md
var aboutSource []byte

// Page names accepted by Renderer.Render.
const (
	PageIndex     = "index"
	PageAbout     = "about"
	PagePredict   = "predict"
	PageContact   = "contact"
	PageLogin     = "login"
	PageDashboard = "dashboard"
)

var pageNames = []string{PageIndex, PageAbout, PagePredict, PageContact, PageLogin, PageDashboard}

// markdown escapes raw HTML in its input; WithUnsafe is not set.
var markdown = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// Page is the data every template receives.
type Page struct {
	Title      string
	User       *models.User
	Flashes    []auth.Flash
	CSRFField  template.HTML
	Year       int
	Form       map[string]string
	Errors     validation.FieldErrors
	Assessment *models.Assessment
	Dashboard  *models.Dashboard
	Climate    *models.ClimateData
	Next       string
	About      template.HTML
}

// Renderer executes the embedded page templates.
type Renderer struct {
	pages map[string]*template.Template
	about template.HTML
}

// NewRenderer parses every page against the shared layout and renders the
// about page markdown once.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		r.pages[name] = t
	}

	var buf bytes.Buffer
	if err := markdown.Convert(aboutSource, &buf); err != nil {
		return nil, fmt.Errorf("render about page: %w", err)
	}
	r.about = template.HTML(buf.String())
	return r, nil
}

// Render executes page name into w. Output is buffered so a template error
// never leaves a half-written response.
func (r *Renderer) Render(w io.Writer, name string, p Page) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	if p.Year == 0 {
		p.Year = time.Now().Year()
	}
	if name == PageAbout && p.About == "" {
		p.About = r.about
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", p); err != nil {
		return fmt.Errorf("execute %s template: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// Static serves the embedded assets. Mount it under /static/.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

var funcs = template.FuncMap{
	"formatNumber": formatNumber,
	"riskClass":    riskClass,
	"flashClass":   flashClass,
	"date": func(t time.Time) string {
		return t.Format("2006-01-02")
	},
	"fieldError": func(fe validation.FieldErrors, field string) string {
		return fe[field]
	},
	"title": func(s string) string {
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	},
}

// formatNumber inserts thousands separators: 1200000 -> "1,200,000".
func formatNumber(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func riskClass(level string) string {
	switch level {
	case "high":
		return "danger"
	case "medium":
		return "warning"
	case "low":
		return "success"
	}
	return "secondary"
}

func flashClass(category string) string {
	switch category {
	case "success", "warning", "danger", "info":
		return category
	case "error":
		return "danger"
	}
	return "info"
}

package page

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"mixtape/internal/editor"
	"mixtape/pkg/models"
)

//go:embed templates/*.html
var embedded embed.FS

const (
	mixtapeTemplate = "mixtape.html"
	draftTemplate   = "draft.html"
)

// DraftView is the data behind the draft editor page.
type DraftView struct {
	ID          string
	Name        string
	Description string
	Items       []string
	Rows        []editor.ItemView
}

// Renderer executes the page templates. Templates come from the embedded
// set unless an override directory is given, in which case Reload re-reads
// them from disk.
type Renderer struct {
	dir string

	mu   sync.RWMutex
	tmpl *template.Template
}

var funcs = template.FuncMap{
	"duration": models.FormatDuration,
	"join":     strings.Join,
}

// NewRenderer parses templates from dir, or the embedded set when dir is "".
func NewRenderer(dir string) (*Renderer, error) {
	r := &Renderer{dir: dir}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Dir returns the override directory, if any.
func (r *Renderer) Dir() string {
	return r.dir
}

// Reload re-parses all templates. On error the previous set stays active.
func (r *Renderer) Reload() error {
	var fsys fs.FS = embedded
	pattern := "templates/*.html"
	if r.dir != "" {
		fsys = os.DirFS(r.dir)
		pattern = "*.html"
	}

	tmpl, err := template.New("").Funcs(funcs).ParseFS(fsys, pattern)
	if err != nil {
		return fmt.Errorf("failed to parse templates: %w", err)
	}
	for _, name := range []string{mixtapeTemplate, draftTemplate} {
		if tmpl.Lookup(name) == nil {
			return fmt.Errorf("template %s missing", name)
		}
	}

	r.mu.Lock()
	r.tmpl = tmpl
	r.mu.Unlock()
	return nil
}

// RenderMixtape writes the public mixtape page.
func (r *Renderer) RenderMixtape(w io.Writer, data *Data) error {
	return r.execute(w, mixtapeTemplate, data)
}

// RenderDraft writes the draft editor page.
func (r *Renderer) RenderDraft(w io.Writer, view DraftView) error {
	return r.execute(w, draftTemplate, view)
}

// execute renders into a buffer first so a failing template never leaves a
// half-written response.
func (r *Renderer) execute(w io.Writer, name string, data interface{}) error {
	r.mu.RLock()
	tmpl := r.tmpl
	r.mu.RUnlock()

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

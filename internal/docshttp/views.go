package docshttp

import (
	"bytes"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"

	"github.com/keithlinneman/linnemanlabs-docs/internal/log"
	"github.com/keithlinneman/linnemanlabs-docs/internal/xerrors"
)

const layoutFile = "layout.html"

// Page names, each backed by <name>.html in the templates FS.
const (
	pageIndex    = "index"
	pageEdit     = "edit"
	pageNew      = "new"
	pageLogin    = "login"
	pageNotFound = "notfound"
)

var pages = []string{pageIndex, pageEdit, pageNew, pageLogin, pageNotFound}

// Page is the data every template receives. Fields a page does not use stay
// empty.
type Page struct {
	Title string
	Flash string
	User  string

	Documents []string

	// Name is the document being edited, or the value entered on the new
	// document form.
	Name    string
	Content string

	Username string
	Error    string
}

// Views holds one parsed template set per page, each combined with the shared
// layout.
type Views struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	// docpath escapes a document name for use as a single path segment
	"docpath": url.PathEscape,
}

// NewViews parses every page template from fsys. A missing or broken template
// fails here rather than on first request.
func NewViews(fsys fs.FS) (*Views, error) {
	base, err := template.New("layout").Funcs(funcs).ParseFS(fsys, layoutFile)
	if err != nil {
		return nil, xerrors.Wrap(err, "parse layout template")
	}
	v := &Views{pages: make(map[string]*template.Template, len(pages))}
	for _, name := range pages {
		t, err := base.Clone()
		if err != nil {
			return nil, xerrors.Wrapf(err, "clone layout for %s", name)
		}
		if _, err := t.ParseFS(fsys, name+".html"); err != nil {
			return nil, xerrors.Wrapf(err, "parse %s template", name)
		}
		v.pages[name] = t
	}
	return v, nil
}

// Render executes page into a buffer and only then writes status and body, so
// a template error never leaves a half written page behind.
func (v *Views) Render(w http.ResponseWriter, r *http.Request, status int, page string, data *Page) {
	ctx := r.Context()
	t, ok := v.pages[page]
	if !ok {
		log.FromContext(ctx).Error(ctx, xerrors.Newf("unknown page %q", page), "render failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if data == nil {
		data = &Page{}
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		log.FromContext(ctx).Error(ctx, xerrors.Wrapf(err, "execute %s template", page), "render failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

package webassets

import (
	"html/template"
	"io/fs"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// TemplatesFS
// ---------------------------------------------------------------------------

func TestTemplatesFS_HasEveryPage(t *testing.T) {
	fsys := TemplatesFS()

	for _, name := range []string{"layout.html", "index.html", "edit.html", "new.html", "login.html", "notfound.html"} {
		info, err := fs.Stat(fsys, name)
		if err != nil {
			t.Fatalf("%s not found: %v", name, err)
		}
		if info.IsDir() {
			t.Fatalf("%s is a directory", name)
		}
		if info.Size() == 0 {
			t.Fatalf("%s is empty", name)
		}
	}
}

func TestTemplatesFS_PagesParseWithLayout(t *testing.T) {
	fsys := TemplatesFS()
	funcs := template.FuncMap{"docpath": func(s string) string { return s }}

	pages, err := fs.Glob(fsys, "*.html")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	for _, page := range pages {
		if page == "layout.html" {
			continue
		}
		if _, err := template.New("layout").Funcs(funcs).ParseFS(fsys, "layout.html", page); err != nil {
			t.Fatalf("parse %s: %v", page, err)
		}
	}
}

func TestTemplatesFS_NoInlineScriptOrStyle(t *testing.T) {
	// the content security policy only allows same-origin files
	fsys := TemplatesFS()

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		body := strings.ToLower(string(data))
		for _, bad := range []string{"<script", "<style", "style=\"", "onclick="} {
			if strings.Contains(body, bad) {
				t.Errorf("%s contains %q", p, bad)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
}

func TestTemplatesFS_NoParentEscape(t *testing.T) {
	fsys := TemplatesFS()

	if _, err := fs.Stat(fsys, "../static/docs.css"); err == nil {
		t.Fatal("should not be able to escape to parent via ../")
	}
}

// ---------------------------------------------------------------------------
// StaticFS
// ---------------------------------------------------------------------------

func TestStaticFS_HasStylesheet(t *testing.T) {
	data, err := fs.ReadFile(StaticFS(), "docs.css")
	if err != nil {
		t.Fatalf("read docs.css: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("docs.css is empty")
	}
}

func TestStaticFS_NoTemplateAccess(t *testing.T) {
	if _, err := fs.ReadFile(StaticFS(), "layout.html"); err == nil {
		t.Fatal("templates should not be reachable from the static FS")
	}
}

func TestStaticFS_Idempotent(t *testing.T) {
	_, err1 := fs.Stat(StaticFS(), "docs.css")
	_, err2 := fs.Stat(StaticFS(), "docs.css")

	if err1 != nil || err2 != nil {
		t.Fatalf("multiple StaticFS() calls should all work: err1=%v err2=%v", err1, err2)
	}
}

// ---------------------------------------------------------------------------
// Embedded FS structure
// ---------------------------------------------------------------------------

func TestEmbeddedFS_RootHasBothDirs(t *testing.T) {
	entries, err := fs.ReadDir(embedded, ".")
	if err != nil {
		t.Fatalf("read root: %v", err)
	}

	names := make(map[string]bool)
	for _, e := range entries {
		names[e.Name()] = true
	}

	if !names["templates"] {
		t.Error("embedded FS missing templates/")
	}
	if !names["static"] {
		t.Error("embedded FS missing static/")
	}
}

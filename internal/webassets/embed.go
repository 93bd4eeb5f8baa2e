// Package webassets embeds the HTML templates and static files served by the
// document handlers.
package webassets

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed templates static
var embedded embed.FS

// TemplatesFS returns the page templates rooted at templates/.
func TemplatesFS() fs.FS {
	return mustSub("templates")
}

// StaticFS returns the stylesheet and other assets rooted at static/.
func StaticFS() fs.FS {
	return mustSub("static")
}

func mustSub(dir string) fs.FS {
	sub, err := fs.Sub(embedded, dir)
	if err != nil {
		panic(fmt.Errorf("webassets: %s subfs: %w", dir, err))
	}
	return sub
}

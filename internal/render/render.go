// Package render turns stored document bytes into a response body and
// content type. Dispatch is by exact, case-sensitive file extension.
package render

import (
	"bytes"
	"errors"
	"path"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/keithlinneman/linnemanlabs-docs/internal/xerrors"
)

const (
	ContentTypePlain = "text/plain"
	ContentTypeHTML  = "text/html"
)

// ErrUnsupportedType is returned for documents that are neither .txt nor .md.
var ErrUnsupportedType = errors.New("unsupported document type")

// Kind is the closed set of ways a document can be rendered.
type Kind int

const (
	Unsupported Kind = iota
	PlainText
	Markdown
)

func (k Kind) String() string {
	switch k {
	case PlainText:
		return "plain_text"
	case Markdown:
		return "markdown"
	default:
		return "unsupported"
	}
}

// KindOf classifies a document by its extension. ".TXT" is not ".txt".
func KindOf(name string) Kind {
	switch path.Ext(name) {
	case ".txt":
		return PlainText
	case ".md":
		return Markdown
	default:
		return Unsupported
	}
}

// md is safe for concurrent use. Raw HTML in documents is not passed through.
var md = goldmark.New(
	goldmark.WithExtensions(extension.Strikethrough, extension.Table),
)

// Render returns the content type and body for a document. It has no state
// and does no I/O, the same input always yields the same output.
func Render(name string, data []byte) (contentType string, body []byte, err error) {
	switch KindOf(name) {
	case PlainText:
		return ContentTypePlain, data, nil
	case Markdown:
		out, err := MarkdownToHTML(data)
		if err != nil {
			return "", nil, err
		}
		return ContentTypeHTML, out, nil
	default:
		return "", nil, xerrors.Wrapf(ErrUnsupportedType, "render %q", name)
	}
}

// MarkdownToHTML converts CommonMark source to an HTML fragment.
func MarkdownToHTML(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := md.Convert(src, &buf); err != nil {
		return nil, xerrors.Wrap(err, "render markdown")
	}
	return buf.Bytes(), nil
}

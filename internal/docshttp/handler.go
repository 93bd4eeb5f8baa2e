package docshttp

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-docs/internal/auth"
	"github.com/keithlinneman/linnemanlabs-docs/internal/docstore"
	"github.com/keithlinneman/linnemanlabs-docs/internal/flash"
	"github.com/keithlinneman/linnemanlabs-docs/internal/log"
	"github.com/keithlinneman/linnemanlabs-docs/internal/render"
	"github.com/keithlinneman/linnemanlabs-docs/internal/session"
)

// User facing messages.
const (
	msgSignInRequired   = "You must be signed in to do that."
	msgWelcome          = "Welcome!"
	msgInvalidLogin     = "Invalid credentials."
	msgSignedOut        = "You have been signed out."
	msgTooManyAttempts  = "Too many sign in attempts. Try again later."
	fmtDoesNotExist     = "%s does not exist."
	fmtCannotDisplay    = "%s cannot be displayed."
	fmtUpdated          = "%s has been updated."
	fmtCreated          = "%s was created."
	fmtDeleted          = "%s was deleted."
	fmtAlreadyExists    = "%s already exists."
	fmtInvalidName      = "%s is not a valid document name."
	fmtDocumentTooLarge = "Documents are limited to %d bytes."
)

type Handler struct {
	opts Options
}

func New(opts *Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Handler{opts: *opts}, nil
}

// RegisterRoutes attaches the document, form and session routes. Literal
// segments (/document/new, /user/login) take precedence over {filename} in
// chi, so those paths are never looked up as documents.
func (h *Handler) RegisterRoutes(r chi.Router) {
	if h.opts.StaticFS != nil {
		r.Handle("/static/*", http.StripPrefix("/static/", staticHandler(h.opts.StaticFS)))
	}
	// browsers ask for this on every page, keep it from becoming a flash
	r.Get("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/", h.index)

	r.Get("/document/new", h.newDocument)
	r.Post("/document/new", h.createDocument)

	r.Get("/user/login", h.loginForm)
	if h.opts.LoginLimiter != nil {
		r.With(h.opts.LoginLimiter).Post("/user/login", h.login)
	} else {
		r.Post("/user/login", h.login)
	}
	r.Post("/user/logout", h.logout)

	r.Get("/{filename}", h.show)
	r.Get("/{filename}/edit", h.edit)
	r.Post("/{filename}/edit", h.update)
	r.Post("/{filename}/delete", h.remove)
}

// NotFound renders the not found page for unmatched routes.
func (h *Handler) NotFound() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromContext(r.Context())
		h.opts.Views.Render(w, r, http.StatusNotFound, pageNotFound, h.page(sess, "Not found"))
	})
}

// LoginThrottled answers a rate limited sign in attempt with the login form
// and a 429. A Retry-After set by the limiter is kept.
func LoginThrottled(v *Views) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if w.Header().Get("Retry-After") == "" {
			w.Header().Set("Retry-After", "60")
		}
		v.Render(w, r, http.StatusTooManyRequests, pageLogin, &Page{
			Title:    "Sign In",
			Username: r.PostFormValue("username"),
			Error:    msgTooManyAttempts,
		})
	})
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	names, err := h.opts.Store.List(ctx)
	if err != nil {
		h.fail(w, r, sess, "", err)
		return
	}
	p := h.page(sess, "")
	p.Documents = names
	h.opts.Views.Render(w, r, http.StatusOK, pageIndex, p)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)
	name := docName(r)

	data, err := h.opts.Store.Read(ctx, name)
	if err != nil {
		h.fail(w, r, sess, name, err)
		return
	}
	contentType, body, err := render.Render(name, data)
	if err != nil {
		h.fail(w, r, sess, name, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)
	if !h.requireSignedIn(w, r, sess) {
		return
	}
	name := docName(r)

	data, err := h.opts.Store.Read(ctx, name)
	if err != nil {
		h.fail(w, r, sess, name, err)
		return
	}
	p := h.page(sess, "Edit "+name)
	p.Name = name
	p.Content = string(data)
	h.opts.Views.Render(w, r, http.StatusOK, pageEdit, p)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)
	if !h.requireSignedIn(w, r, sess) {
		return
	}
	name := docName(r)

	if err := r.ParseForm(); err != nil {
		h.badForm(w, r, err)
		return
	}
	content := r.PostForm.Get("content")
	if int64(len(content)) > h.opts.MaxDocumentBytes {
		p := h.page(sess, "Edit "+name)
		p.Name = name
		p.Content = content
		p.Error = fmt.Sprintf(fmtDocumentTooLarge, h.opts.MaxDocumentBytes)
		h.opts.Views.Render(w, r, http.StatusRequestEntityTooLarge, pageEdit, p)
		return
	}

	// edits never create, new documents come through /document/new
	if !h.opts.Store.Exists(ctx, name) {
		h.fail(w, r, sess, name, docstore.ErrNotFound)
		return
	}
	if err := h.opts.Store.Write(ctx, name, []byte(content)); err != nil {
		h.fail(w, r, sess, name, err)
		return
	}
	h.redirectWithFlash(w, r, sess, fmt.Sprintf(fmtUpdated, name))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)
	if !h.requireSignedIn(w, r, sess) {
		return
	}
	name := docName(r)

	if err := h.opts.Store.Delete(ctx, name); err != nil {
		h.fail(w, r, sess, name, err)
		return
	}
	h.redirectWithFlash(w, r, sess, fmt.Sprintf(fmtDeleted, name))
}

func (h *Handler) newDocument(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if !h.requireSignedIn(w, r, sess) {
		return
	}
	h.opts.Views.Render(w, r, http.StatusOK, pageNew, h.page(sess, "New Document"))
}

func (h *Handler) createDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)
	if !h.requireSignedIn(w, r, sess) {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.badForm(w, r, err)
		return
	}
	entered := r.PostForm.Get("filename")

	created, err := h.opts.Store.Create(ctx, entered)
	if err != nil {
		var ve *docstore.ValidationError
		switch {
		case errors.As(err, &ve):
			h.renderNewWithError(w, r, sess, entered, ve.Message())
		case errors.Is(err, docstore.ErrExists):
			h.renderNewWithError(w, r, sess, entered, fmt.Sprintf(fmtAlreadyExists, strings.TrimSpace(entered)))
		case errors.Is(err, docstore.ErrNotFound):
			// names with separators or dot segments never reach the disk
			h.renderNewWithError(w, r, sess, entered, fmt.Sprintf(fmtInvalidName, strings.TrimSpace(entered)))
		default:
			h.fail(w, r, sess, entered, err)
		}
		return
	}
	h.redirectWithFlash(w, r, sess, fmt.Sprintf(fmtCreated, created))
}

func (h *Handler) renderNewWithError(w http.ResponseWriter, r *http.Request, sess *session.Session, entered, msg string) {
	p := h.page(sess, "New Document")
	p.Name = entered
	p.Error = msg
	h.opts.Views.Render(w, r, http.StatusUnprocessableEntity, pageNew, p)
}

func (h *Handler) loginForm(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	h.opts.Views.Render(w, r, http.StatusOK, pageLogin, h.page(sess, "Sign In"))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)
	if err := r.ParseForm(); err != nil {
		h.badForm(w, r, err)
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")

	if !h.opts.Auth.Verify(ctx, username, password) {
		p := h.page(sess, "Sign In")
		p.Username = username
		p.Error = msgInvalidLogin
		h.opts.Views.Render(w, r, http.StatusUnprocessableEntity, pageLogin, p)
		return
	}
	h.opts.Auth.SignIn(sess, username)
	h.redirectWithFlash(w, r, sess, msgWelcome)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	h.opts.Auth.SignOut(sess)
	h.redirectWithFlash(w, r, sess, msgSignedOut)
}

// requireSignedIn is the single gate in front of every mutating route. On
// failure it has already answered the request.
func (h *Handler) requireSignedIn(w http.ResponseWriter, r *http.Request, sess *session.Session) bool {
	if err := h.opts.Auth.RequireSignedIn(sess); err != nil {
		h.fail(w, r, sess, "", err)
		return false
	}
	return true
}

// fail maps an error from the store, auth or render packages to a response.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, sess *session.Session, name string, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		h.redirectWithFlash(w, r, sess, msgSignInRequired)
	case errors.Is(err, docstore.ErrNotFound):
		h.redirectWithFlash(w, r, sess, fmt.Sprintf(fmtDoesNotExist, name))
	case errors.Is(err, render.ErrUnsupportedType):
		h.redirectWithFlash(w, r, sess, fmt.Sprintf(fmtCannotDisplay, name))
	default:
		log.FromContext(ctx).Error(ctx, err, "document request failed", "document", name)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) badForm(w http.ResponseWriter, r *http.Request, err error) {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
		return
	}
	http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, sess *session.Session, msg string) {
	flash.Set(sess, msg)
	http.Redirect(w, r, "/", http.StatusFound)
}

// page starts the template data shared by every page and consumes the
// pending flash message.
func (h *Handler) page(sess *session.Session, title string) *Page {
	p := &Page{Title: title}
	if msg, ok := flash.Take(sess); ok {
		p.Flash = msg
	}
	if user, ok := h.opts.Auth.User(sess); ok {
		p.User = user
	}
	return p
}

// docName returns the {filename} segment decoded exactly once. chi matches on
// the raw path when the URL carries escapes net/url would not reproduce (%2F).
func docName(r *http.Request) string {
	raw := chi.URLParam(r, "filename")
	if r.URL.RawPath == "" {
		return raw
	}
	name, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return name
}

func staticHandler(fsys fs.FS) http.Handler {
	fileServer := http.FileServerFS(fsys)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		fileServer.ServeHTTP(w, r)
	})
}

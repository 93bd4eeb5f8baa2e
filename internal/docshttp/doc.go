// Package docshttp serves the document pages: the index, rendered documents,
// the edit/new/delete forms and sign in/out.
//
// Reads are public. Every mutating route goes through requireSignedIn before
// the store is touched, and failures from the store, auth and render packages
// are mapped to responses in one place (fail). Outcomes of mutations reach the
// user as flash messages on the redirected index page.
package docshttp

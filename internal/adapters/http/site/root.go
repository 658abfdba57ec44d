// Package site serves the embedded landing page.
package site

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Register attaches the landing page and its assets to r. Paths are
// registered individually so they never shadow the API routes.
func Register(r chi.Router) {
	if r == nil {
		panic("router is nil")
	}
	files := http.FileServer(FS())
	r.Get("/", files.ServeHTTP)
	r.Get("/site.css", files.ServeHTTP)
}

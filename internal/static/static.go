package static

import (
	"crypto/sha256"
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
)

//go:embed dashboard.css
var dashboardCSS []byte

//go:embed favicon.svg
var favicon []byte

var StylesheetPath string

var faviconETag string

func Init() {
	hash := fmt.Sprintf("%x", sha256.Sum256(dashboardCSS))
	StylesheetPath = fmt.Sprintf("/static/dashboard.%s.css", hash[:12])
	faviconETag = fmt.Sprintf(`"%x"`, sha256.Sum256(favicon))
}

// Register serves the embedded assets. Init must run first.
func Register(mux *http.ServeMux) {
	// versioned by content so browsers can cache forever
	mux.HandleFunc("GET "+StylesheetPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		if _, err := w.Write(dashboardCSS); err != nil {
			slog.ErrorContext(r.Context(), "failed to write stylesheet", "error", err)
		}
	})

	mux.HandleFunc("GET /favicon.svg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Header().Set("ETag", faviconETag)
		if r.Header.Get("If-None-Match") == faviconETag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		if _, err := w.Write(favicon); err != nil {
			slog.ErrorContext(r.Context(), "failed to write favicon", "error", err)
		}
	})
}

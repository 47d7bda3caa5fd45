//go:build embed_openapi

package api

import (
	_ "embed"
	"net/http"
)

//go:embed embedded/station.html
var stationHTML []byte

//go:embed embedded/station.js
var stationJS []byte

//go:embed embedded/station.css
var stationCSS []byte

// StaticHandler serves the embedded weighing station assets
func (s *Server) StaticHandler(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/static/station.js":
		w.Header().Set("Content-Type", "application/javascript")
		w.WriteHeader(200)
		_, _ = w.Write(stationJS)
	case "/static/station.css":
		w.Header().Set("Content-Type", "text/css")
		w.WriteHeader(200)
		_, _ = w.Write(stationCSS)
	case "/station", "/station/":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(200)
		_, _ = w.Write(stationHTML)
	default:
		http.NotFound(w, r)
	}
}

// Package web provides the chat web interface of the assistant.
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/tiendamx/asistente-catalogo/internal/session"
)

//go:embed static/*
var staticFiles embed.FS

//go:embed templates/transcript.html
var transcriptFiles embed.FS

var transcriptTmpl = template.Must(
	template.ParseFS(transcriptFiles, "templates/transcript.html"),
)

// Handler returns an http.Handler that serves the chat UI.
func Handler() http.Handler {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}

	// FileServer serves index.html itself for the "/" directory path;
	// rewriting to "/index.html" would bounce off its canonical 301.
	return http.FileServer(http.FS(subFS))
}

// RegisterRoutes adds the chat UI and transcript routes to a mux.
func RegisterRoutes(mux *http.ServeMux, sessions *session.Store) {
	handler := Handler()

	mux.HandleFunc("GET /chat", func(w http.ResponseWriter, r *http.Request) {
		r.URL.Path = "/"
		handler.ServeHTTP(w, r)
	})
	mux.HandleFunc("GET /chat/", func(w http.ResponseWriter, r *http.Request) {
		r.URL.Path = r.URL.Path[len("/chat"):]
		if r.URL.Path == "" {
			r.URL.Path = "/"
		}
		handler.ServeHTTP(w, r)
	})

	mux.HandleFunc("GET /chat/transcript", func(w http.ResponseWriter, r *http.Request) {
		serveTranscript(w, r, sessions)
	})
}

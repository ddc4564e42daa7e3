package web

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/yuin/goldmark"

	"github.com/tiendamx/asistente-catalogo/internal/session"
)

// transcriptTurn is one rendered conversation entry.
type transcriptTurn struct {
	Role string
	HTML template.HTML
}

type transcriptData struct {
	SessionID string
	Turns     []transcriptTurn
}

// serveTranscript renders a read-only HTML view of a session's
// conversation. Assistant replies are markdown (numbered result lists,
// bold titles), so they go through the markdown renderer; user turns
// are plain text.
func serveTranscript(w http.ResponseWriter, r *http.Request, sessions *session.Store) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	snap := sessions.Snapshot(id)
	if snap == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	data := transcriptData{SessionID: id}
	for _, turn := range snap.ChatHistory {
		data.Turns = append(data.Turns, transcriptTurn{
			Role: turn.Type,
			HTML: renderTurn(turn),
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := transcriptTmpl.Execute(w, data); err != nil {
		http.Error(w, "render failed", http.StatusInternalServerError)
	}
}

// renderTurn converts one turn to safe HTML. Markdown conversion only
// applies to assistant turns; user text is escaped verbatim.
func renderTurn(turn session.Turn) template.HTML {
	if turn.Type != "agent" {
		return template.HTML("<p>" + template.HTMLEscapeString(turn.Content) + "</p>")
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(turn.Content), &buf); err != nil {
		return template.HTML("<p>" + template.HTMLEscapeString(turn.Content) + "</p>")
	}
	return template.HTML(buf.String())
}

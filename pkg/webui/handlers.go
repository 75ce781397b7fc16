package webui

import (
	"io"
	"net/http"
	"time"

	"github.com/alantheprice/sitebuilder/pkg/events"
	"github.com/google/uuid"
)

const sseKeepAlive = 25 * time.Second

// previewUpdatedMessage is the data line clients listen for on the preview
// event stream.
const previewUpdatedMessage = "preview-updated"

// handlePreviewFile serves the generated preview document and anything else
// placed next to it.
func (s *Server) handlePreviewFile(w http.ResponseWriter, r *http.Request) {
	if s.opts.Publisher == nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	http.StripPrefix("/preview/", http.FileServer(http.Dir(s.opts.Publisher.Dir()))).ServeHTTP(w, r)
}

// handlePreviewEvents streams a server-sent event each time the preview
// document changes.
func (s *Server) handlePreviewEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sub := s.opts.Events.Subscribe("sse_"+uuid.NewString()[:8], events.EventTypePreviewUpdated)
	defer sub.Close()

	sse, ok := newSSEWriter(w)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			io.WriteString(sse.w, ": keep-alive\n\n")
			sse.flusher.Flush()
		case _, ok := <-sub.C:
			if !ok {
				return
			}
			sse.data(previewUpdatedMessage)
		}
	}
}

package webui

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/alantheprice/sitebuilder/pkg/blocks"
	"github.com/alantheprice/sitebuilder/pkg/docstore"
	"go.uber.org/zap"
)

type documentResponse struct {
	Blocks   []blocks.Block `json:"blocks"`
	Selected string         `json:"selected,omitempty"`
}

func (s *Server) documentState() documentResponse {
	forest := s.store.Snapshot()
	if forest == nil {
		forest = []blocks.Block{}
	}
	return documentResponse{Blocks: forest, Selected: s.store.Selected()}
}

func decodeBody(r *http.Request, v interface{}) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(v)
}

// blockStatus maps store errors to HTTP status codes.
func blockStatus(err error) int {
	switch {
	case errors.Is(err, blocks.ErrBlockNotFound), errors.Is(err, docstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, blocks.ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, blocks.ErrUnknownBlockType), errors.Is(err, blocks.ErrNotContainer),
		errors.Is(err, docstore.ErrInvalidName):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// handleDocument returns the current block tree (GET) or replaces it (PUT).
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.documentState())
	case http.MethodPut:
		var body struct {
			Blocks []blocks.Block `json:"blocks"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if err := s.store.ReplaceAll(body.Blocks); err != nil {
			writeError(w, blockStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, s.documentState())
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAddBlock inserts a block at the root or under parentId.
func (s *Server) handleAddBlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Block    blocks.Block `json:"block"`
		ParentID string       `json:"parentId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	id, err := s.store.Add(body.Block, body.ParentID)
	if err != nil {
		writeError(w, blockStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":     id,
		"blocks": s.documentState().Blocks,
	})
}

// handleBlock merges props into a block (PATCH) or removes it (DELETE).
func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var err error
	switch r.Method {
	case http.MethodPatch:
		var body struct {
			Props map[string]any `json:"props"`
		}
		if derr := decodeBody(r, &body); derr != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		err = s.store.Update(id, body.Props)
	case http.MethodDelete:
		err = s.store.Remove(id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err != nil {
		writeError(w, blockStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.documentState())
}

// handleSelection sets or clears the selected block.
func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := s.store.Select(body.ID); err != nil {
		writeError(w, blockStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"selected": s.store.Selected()})
}

// handleListDocuments lists saved documents, newest first.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.requireDocs(w) {
		return
	}

	docs, err := s.opts.Docs.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list documents", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list documents")
		return
	}
	if docs == nil {
		docs = []docstore.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

// handleDocumentSnapshot saves the current tree under a name (POST), returns
// a saved tree without loading it (GET), or deletes it (DELETE).
func (s *Server) handleDocumentSnapshot(w http.ResponseWriter, r *http.Request) {
	if !s.requireDocs(w) {
		return
	}
	name := r.PathValue("name")

	switch r.Method {
	case http.MethodPost:
		forest := s.store.Snapshot()
		if err := s.opts.Docs.Save(r.Context(), name, forest); err != nil {
			writeError(w, blockStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"name": name, "saved": true})
	case http.MethodGet:
		forest, err := s.opts.Docs.Load(r.Context(), name)
		if err != nil {
			writeError(w, blockStatus(err), err.Error())
			return
		}
		if forest == nil {
			forest = []blocks.Block{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"name": name, "blocks": forest})
	case http.MethodDelete:
		if err := s.opts.Docs.Delete(r.Context(), name); err != nil {
			writeError(w, blockStatus(err), err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleLoadDocument replaces the live tree with a saved one.
func (s *Server) handleLoadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.requireDocs(w) {
		return
	}

	name := r.PathValue("name")
	forest, err := s.opts.Docs.Load(r.Context(), name)
	if err == nil {
		err = s.store.ReplaceAll(forest)
	}
	if err != nil {
		writeError(w, blockStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.documentState())
}

func (s *Server) requireDocs(w http.ResponseWriter) bool {
	if s.opts.Docs == nil {
		writeError(w, http.StatusNotImplemented, "Document storage is disabled")
		return false
	}
	return true
}

package server

import (
	"encoding/json"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/hyperjump/kotaeru/internal/orchestrator"
)

// handleAsk streams the analysis of one question as server-sent events.
// One event per stage transition, strictly ordered; exactly one event in the
// stream carries finished=1 and it is always the last.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	question := r.URL.Query().Get("question")
	if question == "" {
		s.respondError(w, http.StatusBadRequest, "question is required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	emit := func(ev orchestrator.Event) error {
		payload, err := json.Marshal(orchestrator.Wrap(ev))
		if err != nil {
			return err
		}
		if _, err := w.Write(append(append([]byte("data: "), payload...), '\n', '\n')); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	s.orch.Run(r.Context(), question, emit)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"records":    s.retriever.Records(),
		"indexed":    s.retriever.IndexSize(),
		"dimensions": s.retriever.Dimensions(),
		"config": map[string]interface{}{
			"spreadsheet_dir": s.config.Storage.SpreadsheetDir,
			"inventory_path":  s.config.Storage.InventoryPath,
			"index_path":      s.config.Storage.IndexPath,
			"top_k":           s.config.Retrieval.TopK,
		},
	}
	if n, err := artifactBytes(s.config.Storage.InventoryPath, s.config.Storage.IndexPath); err == nil {
		resp["disk_usage_bytes"] = n
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// artifactBytes sums the sizes of the artifact files; missing files count as 0.
func artifactBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("response encode failed", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

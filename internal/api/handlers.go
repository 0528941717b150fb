package api

import (
	"encoding/json"
	"log"
	"net/http"
)

// Handler methods for routerHandlers
// These are used by both the standalone router (for testing) and the full Server.

func (h *routerHandlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.Snapshot())
}

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"engine":    h.engine.Stats(),
		"rateLimit": h.rateLimiter.GetStats(),
	}
	if h.connections != nil {
		stats["connections"] = h.connections()
	}
	if h.limits != nil {
		stats["limits"] = h.limits()
	}
	if events := h.engine.EventLogStats(); events != nil {
		stats["eventLog"] = events
	}
	writeJSON(w, stats)
}

func (h *routerHandlers) handlePreview(w http.ResponseWriter, r *http.Request) {
	img := h.preview.Render(h.engine.Snapshot())

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := h.preview.EncodePNG(w, img); err != nil {
		log.Printf("⚠️ Preview encode failed: %v", err)
	}
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

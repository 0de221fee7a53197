package www

import (
	"encoding/json"
	"log"
	"net/http"
)

func (h *Handlers) apiCache(w http.ResponseWriter, r *http.Request) {
	cache := h.engine.Cache()
	if cache == nil {
		h.jsonOK(w, map[string]any{"enabled": false})
		return
	}
	ctx := r.Context()
	robots, err := cache.Robots(ctx)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}
	resp := map[string]any{
		"enabled": true,
		"robots":  robots,
	}
	if entry, err := cache.GetState(ctx, h.engine.RobotName()); err == nil && entry != nil {
		resp["state"] = entry
	}
	if status, err := cache.GetStatus(ctx, h.engine.RobotName()); err == nil && status != nil {
		resp["status"] = json.RawMessage(status)
	}
	h.jsonOK(w, resp)
}

func (h *Handlers) apiCacheClear(w http.ResponseWriter, r *http.Request) {
	cache := h.engine.Cache()
	if cache == nil {
		h.jsonError(w, "no cache configured", http.StatusNotFound)
		return
	}
	if err := cache.Remove(r.Context(), h.engine.RobotName()); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}
	log.Printf("www: cached state for %s cleared by %s", h.engine.RobotName(), h.getUsername(r))
	h.jsonOK(w, map[string]string{"status": "cleared"})
}

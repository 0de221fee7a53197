package www

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"time"
)

type proxyConfigRequest struct {
	BaseURL string `json:"base_url"`
	Timeout string `json:"timeout"`
}

func (h *Handlers) apiConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.engine.AppConfig()
	h.jsonOK(w, map[string]any{
		"robot": map[string]any{
			"name":          cfg.Robot.Name,
			"endpoint":      cfg.Robot.Endpoint,
			"poll_interval": cfg.Robot.PollInterval.String(),
			"backoff_base":  cfg.Robot.BackoffBase.String(),
			"max_attempts":  cfg.Robot.MaxAttempts,
		},
		"proxy": map[string]any{
			"base_url": h.engine.Proxy().BaseURL(),
			"timeout":  cfg.Proxy.Timeout.String(),
		},
		"live_backend": cfg.Live.Backend,
	})
}

func (h *Handlers) apiConfigProxy(w http.ResponseWriter, r *http.Request) {
	var req proxyConfigRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRelayBody)).Decode(&req); err != nil {
		h.jsonError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	u, err := url.Parse(req.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		h.jsonError(w, "base_url must be an http(s) URL", http.StatusBadRequest)
		return
	}
	var timeout time.Duration
	if req.Timeout != "" {
		timeout, err = time.ParseDuration(req.Timeout)
		if err != nil || timeout <= 0 {
			h.jsonError(w, "timeout must be a positive duration", http.StatusBadRequest)
			return
		}
	}
	if err := h.engine.ReconfigureProxy(req.BaseURL, timeout); err != nil {
		log.Printf("www: reconfigure proxy: %v", err)
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Printf("www: proxy retargeted to %s by %s", req.BaseURL, h.getUsername(r))
	h.apiConfig(w, r)
}

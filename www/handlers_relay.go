package www

import (
	"crypto/subtle"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
)

const maxRelayBody = 1 << 20

// requireRelayToken checks the bearer token when web.relay_token is set.
func (h *Handlers) requireRelayToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := h.engine.AppConfig().Web.RelayToken
		if want == "" {
			next.ServeHTTP(w, r)
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			h.jsonError(w, "invalid relay token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) relayUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRelayBody))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.jsonError(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	state, err := h.engine.Relay().Update(body)
	if err != nil {
		log.Printf("www: relay update rejected: %v", err)
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.jsonOK(w, state)
}

func (h *Handlers) relayState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	h.jsonOK(w, h.engine.Relay().State())
}

package www

import (
	"net/http"
)

func (h *Handlers) handleDashboard(w http.ResponseWriter, r *http.Request) {
	status := h.engine.Status()
	backend, liveUp := h.engine.LiveBackend()

	data := map[string]any{
		"Page":          "dashboard",
		"Robot":         h.engine.RobotName(),
		"State":         h.engine.Snapshot(),
		"Status":        status,
		"LiveBackend":   backend,
		"LiveConnected": liveUp,
		"Authenticated": h.isAuthenticated(r),
		"Username":      h.getUsername(r),
	}
	h.render(w, "dashboard.html", data)
}

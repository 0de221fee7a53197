package www

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/SoberingRealityCheck/hexapod-server/proxy"
	"github.com/SoberingRealityCheck/hexapod-server/store"
)

func (h *Handlers) apiState(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, h.engine.Snapshot())
}

func (h *Handlers) apiStatus(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, h.engine.Status())
}

func (h *Handlers) apiHistory(w http.ResponseWriter, r *http.Request) {
	db := h.engine.DB()
	if db == nil {
		h.jsonOK(w, []*store.Snapshot{})
		return
	}
	snaps, err := db.ListSnapshots(h.engine.RobotName(), queryLimit(r, 100, 1000))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if snaps == nil {
		snaps = []*store.Snapshot{}
	}
	h.jsonOK(w, snaps)
}

func (h *Handlers) apiConnectivity(w http.ResponseWriter, r *http.Request) {
	db := h.engine.DB()
	if db == nil {
		h.jsonOK(w, []*store.ConnectivityEvent{})
		return
	}
	events, err := db.ListConnectivity(h.engine.RobotName(), queryLimit(r, 50, 500))
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []*store.ConnectivityEvent{}
	}
	h.jsonOK(w, events)
}

func (h *Handlers) apiHealthCheck(w http.ResponseWriter, r *http.Request) {
	health := h.engine.Health(r.Context())
	health["status"] = "ok"
	health["sse_clients"] = h.eventHub.ClientCount()
	health["ws_clients"] = h.stateWS.ClientCount()
	h.jsonOK(w, health)
}

func (h *Handlers) apiSyncRestart(w http.ResponseWriter, r *http.Request) {
	log.Printf("www: sync restart requested by %s", h.getUsername(r))
	h.jsonOK(w, h.engine.RestartSync())
}

// apiRobotState forwards to the backend's robot-state resource.
func (h *Handlers) apiRobotState(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Proxy().GetState(r.Context())
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	res.Serve(w)
}

// apiRobotProxy forwards /api/robot/<path> to <base>/<path>.
func (h *Handlers) apiRobotProxy(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.Proxy().Get(r.Context(), chi.URLParam(r, "*"), r.URL.RawQuery)
	if err != nil {
		proxy.WriteError(w, err)
		return
	}
	res.Serve(w)
}

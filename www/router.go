package www

import (
	"html/template"
	"io/fs"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"

	"github.com/SoberingRealityCheck/hexapod-server/engine"
)

// stateUpdateEvent is the frame name dashboards listen for on /ws.
const stateUpdateEvent = "stateUpdate"

type Handlers struct {
	engine   *engine.Engine
	sessions *sessions.CookieStore
	tmpls    map[string]*template.Template
	eventHub *EventHub
	stateWS  *WSHub
	relayWS  *WSHub
}

func NewRouter(eng *engine.Engine) (http.Handler, func()) {
	hub := NewEventHub()
	hub.hello = func() []SSEEvent {
		return []SSEEvent{
			jsonEvent("robot-state", eng.Snapshot()),
			jsonEvent("sync-status", eng.Status()),
		}
	}
	hub.Start()
	hub.SetupEngineListeners(eng)

	stateWS := NewWSHub("state", func() Frame { return Frame{Event: stateUpdateEvent, Data: eng.Snapshot()} })
	relayWS := NewWSHub("relay", func() Frame { return Frame{Event: stateUpdateEvent, Data: eng.Relay().State()} })
	eng.Events.SubscribeTypes(func(evt engine.Event) {
		stateWS.Broadcast(Frame{Event: stateUpdateEvent, Data: evt.Payload.(engine.StateUpdatedEvent).State})
	}, engine.EventStateUpdated)
	eng.Events.SubscribeTypes(func(evt engine.Event) {
		relayWS.Broadcast(Frame{Event: stateUpdateEvent, Data: evt.Payload.(engine.RelayUpdatedEvent).State})
	}, engine.EventRelayUpdated)

	sessionStore := newSessionStore(eng.AppConfig().Web.SessionSecret)

	// Each page is cloned from the layout set so every page gets its own
	// {{define "content"}}.
	base := template.New("").Funcs(templateFuncs())
	base = template.Must(base.ParseFS(templateFS, "templates/layout.html", "templates/partials/*.html"))

	pages := []string{
		"templates/dashboard.html",
		"templates/login.html",
	}
	tmpls := make(map[string]*template.Template, len(pages))
	for _, p := range pages {
		clone := template.Must(base.Clone())
		clone = template.Must(clone.ParseFS(templateFS, p))
		tmpls[p[len("templates/"):]] = clone
	}

	h := &Handlers{
		engine:   eng,
		sessions: sessionStore,
		tmpls:    tmpls,
		eventHub: hub,
		stateWS:  stateWS,
		relayWS:  relayWS,
	}

	h.ensureDefaultAdmin(eng.DB())

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	staticSub, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	// Live channels
	r.Get("/events", hub.SSEHandler)
	r.Get("/ws", stateWS.ServeHTTP)

	// Public routes
	r.Get("/", h.handleDashboard)
	r.Get("/login", h.handleLoginPage)
	r.Post("/login", h.handleLogin)
	r.Get("/logout", h.handleLogout)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", h.apiState)
		r.Get("/status", h.apiStatus)
		r.Get("/history", h.apiHistory)
		r.Get("/connectivity", h.apiConnectivity)
		r.Get("/health", h.apiHealthCheck)
		r.Get("/cache", h.apiCache)
		r.Get("/config", h.apiConfig)
		r.Get("/robot/state", h.apiRobotState)
		r.Get("/robot/*", h.apiRobotProxy)
	})

	r.Route("/relay", func(r chi.Router) {
		r.Get("/robot-state", h.relayState)
		r.Get("/subscribe", relayWS.ServeHTTP)
		r.With(h.requireRelayToken).Post("/update", h.relayUpdate)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/api/sync/restart", h.apiSyncRestart)
		r.Post("/api/cache/clear", h.apiCacheClear)
		r.Post("/api/config/proxy", h.apiConfigProxy)
	})

	stopFn := func() {
		hub.Stop()
		stateWS.Close()
		relayWS.Close()
	}

	return r, stopFn
}

func (h *Handlers) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := h.tmpls[name]
	if !ok {
		log.Printf("render: template %q not found", name)
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}
	if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		log.Printf("render %s: %v", name, err)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

func (h *Handlers) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"Page":          "login",
		"Robot":         h.engine.RobotName(),
		"Authenticated": h.isAuthenticated(r),
		"Username":      h.getUsername(r),
	}
	h.render(w, "login.html", data)
}

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")

	db := h.engine.DB()
	if db == nil {
		h.renderLoginError(w, "Login needs a database; none is configured")
		return
	}
	user, err := db.GetAdminUser(username)
	if err != nil || !checkPassword(user.PasswordHash, password) {
		h.renderLoginError(w, "Invalid username or password")
		return
	}

	session, _ := h.sessions.Get(r, sessionName)
	session.Values["authenticated"] = true
	session.Values["username"] = username
	if err := session.Save(r, w); err != nil {
		log.Printf("auth: session save error: %v", err)
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handlers) renderLoginError(w http.ResponseWriter, msg string) {
	w.WriteHeader(http.StatusUnauthorized)
	h.render(w, "login.html", map[string]any{
		"Page":  "login",
		"Robot": h.engine.RobotName(),
		"Error": msg,
	})
}

func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := h.sessions.Get(r, sessionName)
	session.Values["authenticated"] = false
	session.Values["username"] = ""
	session.Save(r, w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

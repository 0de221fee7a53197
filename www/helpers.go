package www

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"timeAgo": func(t time.Time) string {
			if t.IsZero() {
				return "never"
			}
			return humanize.Time(t)
		},
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.Format("2006-01-02 15:04:05")
		},
		"coord": func(f float64) string {
			return strconv.FormatFloat(f, 'f', 6, 64)
		},
		"battery": func(f float64) string {
			return strconv.FormatFloat(f, 'f', -1, 64)
		},
		"batteryWidth": func(f float64) string {
			return fmt.Sprintf("%.0f", min(max(f, 0), 100))
		},
		"batteryClass": batteryClass,
		"ms": func(ms int64) string {
			return (time.Duration(ms) * time.Millisecond).String()
		},
		"add": func(a, b int) int {
			return a + b
		},
		"upper": strings.ToUpper,
	}
}

// batteryClass buckets a charge level for the battery bar colour.
func batteryClass(level float64) string {
	switch {
	case level >= 75:
		return "battery-high"
	case level >= 50:
		return "battery-ok"
	case level >= 25:
		return "battery-low"
	default:
		return "battery-critical"
	}
}

// queryLimit parses ?limit=, falling back to def and capping at ceiling.
func queryLimit(r *http.Request, def, ceiling int) int {
	limit := def
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > ceiling {
		limit = ceiling
	}
	return limit
}

func (h *Handlers) jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Package adminapi exposes a read-oriented HTTP introspection surface
// over the backend pool: the dashboard's external collaborator (spec
// §1) is out of scope, but this is the interface contract it would
// consume.
package adminapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/0xReLogic/fliphash-lb/internal/logging"
	"github.com/0xReLogic/fliphash-lb/internal/metrics"
	"github.com/0xReLogic/fliphash-lb/internal/pool"
)

// backendView is the JSON shape returned by /v1/backends.
type backendView struct {
	Host string `json:"host"`
	Port uint16 `json:"port"`
}

// NewMux builds the admin API's HTTP handler. token, when non-empty,
// gates every route except /v1/health behind a bearer-token check;
// filter, when non-nil, is applied ahead of auth on every route.
func NewMux(p *pool.Pool, collector *metrics.Collector, token string, filter *IPFilter) http.Handler {
	mux := http.NewServeMux()

	auth := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") || strings.TrimPrefix(authz, "Bearer ") != token {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}

	mux.HandleFunc("/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.Handle("/v1/backends", auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		snap := p.Snapshot()
		views := make([]backendView, len(snap))
		for i, b := range snap {
			views[i] = backendView{Host: b.Host, Port: b.Port}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(views)
	})))

	mux.Handle("/v1/metrics/raw", auth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(p.GetMetrics())
	})))

	if collector != nil {
		mux.Handle("/v1/metrics", auth(collector.Handler()))
	}

	var handler http.Handler = mux
	if filter != nil {
		handler = filter.Middleware(handler)
	}

	logging.L().Info().Msg("admin api mux initialized")
	return handler
}

package net

import (
	"encoding/json"
	nethttp "net/http"
	"net/http/pprof"
	"time"

	"tilewalk/server/internal/game"
	"tilewalk/server/internal/net/ws"
	"tilewalk/server/internal/observability"
	"tilewalk/server/internal/telemetry"
	"tilewalk/server/logging"
)

// HTTPHandlerConfig wires the HTTP surface to its collaborators.
type HTTPHandlerConfig struct {
	ClientDir     string
	Logger        telemetry.Logger
	Metrics       *logging.Metrics
	Observability observability.Config
}

// NewHTTPHandler builds the server mux: join and map endpoints, the
// websocket upgrade, health and diagnostics, and the static demo client.
func NewHTTPHandler(hub *game.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, cfg.Logger, map[string]any{
			"status": "ok",
			"time":   time.Now().UnixMilli(),
		})
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, cfg.Logger, hub.Diagnostics(cfg.Metrics))
	})

	mux.HandleFunc("/join", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, cfg.Logger, hub.Join())
	})

	mux.HandleFunc("/map", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, cfg.Logger, hub.World().Definition())
	})

	mux.Handle("/ws", ws.NewHandler(hub, cfg.Logger))

	if cfg.Observability.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	if cfg.ClientDir != "" {
		mux.Handle("/", nethttp.FileServer(nethttp.Dir(cfg.ClientDir)))
	}

	return mux
}

func writeJSON(w nethttp.ResponseWriter, logger telemetry.Logger, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil && logger != nil {
		logger.Printf("[http] encode response: %v", err)
	}
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}

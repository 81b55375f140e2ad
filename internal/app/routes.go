package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/export"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/health"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/mcptools"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/observe"
	"github.com/Planet9V/mpn-conductor-standalone-sub000/internal/scorestore"
)

const (
	defaultSimilar = 5
	maxSimilar     = 50
)

// Handler returns the HTTP routes:
//
//	GET  /ws                                   worker protocol over websocket
//	GET  /healthz, /readyz                     probes
//	GET  /metrics                              Prometheus, when telemetry.metrics is set
//	     /mcp                                  MCP tools over streamable HTTP
//	GET  /api/scores                           stored score summaries
//	GET  /api/scores/{id}                      one score as JSON
//	GET  /api/scores/{id}/mml                  one score as MML
//	GET  /api/scores/{id}/graph                merged relationship graph
//	GET  /api/scores/{id}/frames/{n}/similar   nearest frames across all scores
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /ws", a.bridge)

	health.New(
		health.Ready("server", a.Ready),
		health.Ping("database", a.store),
	).Register(mux)

	if a.cfg.Telemetry.Metrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	tools := mcptools.NewServer(
		mcptools.WithVersion(a.version),
		mcptools.WithTable(a.table),
		mcptools.WithLogger(a.log),
		mcptools.WithMetrics(a.metrics),
	)
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return tools }, nil))

	mux.HandleFunc("GET /api/scores", a.listScores)
	mux.HandleFunc("GET /api/scores/{id}", a.getScore)
	mux.HandleFunc("GET /api/scores/{id}/mml", a.getScoreMML)
	mux.HandleFunc("GET /api/scores/{id}/graph", a.getScoreGraph)
	mux.HandleFunc("GET /api/scores/{id}/frames/{n}/similar", a.similarFrames)

	if a.metrics == nil {
		return mux
	}
	return observe.Middleware(a.metrics)(mux)
}

func (a *App) listScores(w http.ResponseWriter, r *http.Request) {
	list, err := a.store.ListScores(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if list == nil {
		list = []scorestore.Summary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *App) getScore(w http.ResponseWriter, r *http.Request) {
	score, err := a.store.GetScore(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := export.WriteJSON(w, score, false); err != nil {
		a.log.Warn("app: write score", "id", score.ID, "err", err)
	}
}

func (a *App) getScoreMML(w http.ResponseWriter, r *http.Request) {
	score, err := a.store.GetScore(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := export.WriteMML(w, score); err != nil {
		a.log.Warn("app: write mml", "id", score.ID, "err", err)
	}
}

func (a *App) getScoreGraph(w http.ResponseWriter, r *http.Request) {
	score, err := a.store.GetScore(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, export.ExtractGraph(score))
}

func (a *App) similarFrames(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 0 {
		http.Error(w, "frame index must be a non-negative integer", http.StatusBadRequest)
		return
	}
	k := defaultSimilar
	if q := r.URL.Query().Get("k"); q != "" {
		if k, err = strconv.Atoi(q); err != nil || k < 1 || k > maxSimilar {
			http.Error(w, "k must be between 1 and 50", http.StatusBadRequest)
			return
		}
	}

	score, err := a.store.GetScore(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var found bool
	var sig []float32
	for _, f := range score.Frames {
		if f.Index == n {
			sig, found = scorestore.Signature(f), true
			break
		}
	}
	if !found {
		http.Error(w, "frame not found", http.StatusNotFound)
		return
	}

	matches, err := a.store.SimilarFrames(r.Context(), sig, k)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if matches == nil {
		matches = []scorestore.FrameMatch{}
	}
	writeJSON(w, http.StatusOK, matches)
}

func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, scorestore.ErrNotFound) {
		http.Error(w, "score not found", http.StatusNotFound)
		return
	}
	a.log.Error("app: score api", "path", r.URL.Path, "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/construction-graphrag/internal/config"
	"github.com/kirillkom/construction-graphrag/internal/core/domain"
	"github.com/kirillkom/construction-graphrag/internal/core/ports"
	"github.com/kirillkom/construction-graphrag/internal/observability/metrics"
)

const (
	maxUploadBytes    = 200 << 20
	defaultListLimit  = 50
	queryBackpressure = 2 * time.Second
)

// Services are the inbound ports the API exposes.
type Services struct {
	Ingest  ports.DocumentIngestor
	Query   ports.QueryService
	Planner ports.QueryPlanner
	Docs    ports.DocumentReader
	Admin   ports.DocumentAdmin
}

type Router struct {
	cfg       config.Config
	svc       Services
	metrics   *metrics.HTTPServerMetrics
	logger    *slog.Logger
	validator *requestValidator
}

// NewRouter fails only when the embedded API document is invalid. metrics may
// be nil.
func NewRouter(cfg config.Config, svc Services, m *metrics.HTTPServerMetrics, logger *slog.Logger) (*Router, error) {
	if logger == nil {
		logger = slog.Default()
	}
	validator, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	return &Router{
		cfg:       cfg,
		svc:       svc,
		metrics:   m,
		logger:    logger,
		validator: validator,
	}, nil
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents", rt.listDocuments)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	mux.HandleFunc("DELETE /v1/documents/{id}", rt.deleteDocument)
	mux.HandleFunc("POST /v1/route", rt.route)
	mux.HandleFunc("GET /v1/stats", rt.stats)

	query := backpressureMiddleware(http.HandlerFunc(rt.query), rt.cfg.APIMaxConns, queryBackpressure)
	mux.Handle("POST /v1/query", rateLimitMiddleware(query, rt.cfg.QueryRateLimitRPS, rt.cfg.QueryRateLimitBurst))

	var handler http.Handler = rt.validator.Middleware(mux)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
		handler = rt.metrics.Middleware(handler)
	}
	return requestIDMiddleware(accessLogMiddleware(rt.logger, handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	doc, err := rt.svc.Ingest.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	docs, err := rt.svc.Docs.List(r.Context(), limit)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.svc.Docs.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := rt.svc.Admin.Delete(r.Context(), r.PathValue("id")); err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type questionRequest struct {
	Question string `json:"question"`
}

func decodeQuestion(r *http.Request) (string, error) {
	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", errors.New("invalid json")
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return "", errors.New("question is required")
	}
	return question, nil
}

func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	question, err := decodeQuestion(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	answer, err := rt.svc.Query.Answer(r.Context(), question)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	if rt.metrics != nil {
		var kind domain.RouteKind
		if answer.Route != nil {
			kind = answer.Route.Kind
		}
		rt.metrics.RecordQuery("query", kind, len(answer.Sources), time.Since(start))
	}
	writeJSON(w, http.StatusOK, answer)
}

type routeResponse struct {
	Decision   domain.RouteDecision `json:"decision"`
	Query      *domain.GraphQuery   `json:"query,omitempty"`
	Expansions []string             `json:"expansions"`
}

func (rt *Router) route(w http.ResponseWriter, r *http.Request) {
	question, err := decodeQuestion(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := routeResponse{
		Decision:   rt.svc.Planner.Route(question),
		Expansions: rt.svc.Planner.Expand(question),
	}
	if resp.Decision.IsStructured() {
		query, err := rt.svc.Planner.BuildQuery(resp.Decision)
		if err != nil {
			rt.writeDomainError(w, r, err)
			return
		}
		resp.Query = &query
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.svc.Admin.Stats(r.Context())
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

package chi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	logpkg "github.com/kailas-cloud/toxfilter/internal/logger"
	"github.com/kailas-cloud/toxfilter/internal/usecase/composer"
	healthuc "github.com/kailas-cloud/toxfilter/internal/usecase/health"
	"github.com/kailas-cloud/toxfilter/internal/usecase/session"
	"github.com/kailas-cloud/toxfilter/internal/version"
)

// Server serves the document, composer and health API.
type Server struct {
	sessions      *session.Manager
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
	ws            wsConfig
}

// NewServer creates an HTTP API server. health can be nil.
func NewServer(sessions *session.Manager, health *healthuc.Service, logger *zap.Logger) *Server {
	return &Server{
		sessions:      sessions,
		health:        health,
		logger:        logger,
		errorHandlers: defaultErrorHandlers(),
		ws:            defaultWSConfig(),
	}
}

// Routes registers every endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/documents", s.CreateDocument)
		r.Get("/documents", s.ListDocuments)
		r.Route("/documents/{id}", func(r chi.Router) {
			r.Get("/", s.GetDocument)
			r.Delete("/", s.DeleteDocument)
			r.Post("/fragments", s.AppendFragment)
			r.Delete("/nodes/{nodeID}", s.RemoveNode)
			r.Post("/annotations/{annotationID}/reveal", s.RevealAnnotation)
			r.Post("/flush", s.FlushEscalations)
			r.Route("/surfaces/{surfaceID}", func(r chi.Router) {
				r.Get("/", s.GetSurface)
				r.Post("/input", s.SurfaceInput)
				r.Post("/blur", s.SurfaceBlur)
				r.Post("/dismiss", s.SurfaceDismiss)
			})
		})
		r.Get("/composer/ws", s.ComposerSocket)
	})
}

// Handler returns a router with only the API routes, for tests and embedding.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.Routes(r)
	return r
}

// CreateDocument handles POST /v1/documents.
func (s *Server) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	_, view, err := s.sessions.Create(r.Context(), req.HTML, req.Domain)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	logpkg.AddFields(r.Context(), zap.String("session", view.ID), zap.Int("annotations", len(view.Annotations)))

	writeJSON(w, http.StatusCreated, view)
}

// ListDocuments handles GET /v1/documents.
func (s *Server) ListDocuments(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"items": s.sessions.List(),
	})
}

// GetDocument handles GET /v1/documents/{id}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	view, err := sess.View(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// DeleteDocument handles DELETE /v1/documents/{id}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AppendFragment handles POST /v1/documents/{id}/fragments.
func (s *Server) AppendFragment(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req appendFragmentRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	view, err := sess.AppendFragment(r.Context(), req.ParentID, req.HTML)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// RemoveNode handles DELETE /v1/documents/{id}/nodes/{nodeID}.
func (s *Server) RemoveNode(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	if err := sess.RemoveNode(r.Context(), chi.URLParam(r, "nodeID")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevealAnnotation handles POST /v1/documents/{id}/annotations/{annotationID}/reveal.
func (s *Server) RevealAnnotation(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	if err := sess.Reveal(r.Context(), chi.URLParam(r, "annotationID")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FlushEscalations handles POST /v1/documents/{id}/flush.
func (s *Server) FlushEscalations(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	if err := sess.Flush(r.Context()); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	view, err := sess.View(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetSurface handles GET /v1/documents/{id}/surfaces/{surfaceID}.
func (s *Server) GetSurface(w http.ResponseWriter, r *http.Request) {
	s.surfaceOp(w, r, func(sess *session.Session, id string) (composer.Snapshot, error) {
		return sess.SurfaceState(r.Context(), id)
	})
}

// SurfaceInput handles POST /v1/documents/{id}/surfaces/{surfaceID}/input.
func (s *Server) SurfaceInput(w http.ResponseWriter, r *http.Request) {
	var req inputRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	s.surfaceOp(w, r, func(sess *session.Session, id string) (composer.Snapshot, error) {
		return sess.Input(r.Context(), id, req.Text)
	})
}

// SurfaceBlur handles POST /v1/documents/{id}/surfaces/{surfaceID}/blur.
func (s *Server) SurfaceBlur(w http.ResponseWriter, r *http.Request) {
	s.surfaceOp(w, r, func(sess *session.Session, id string) (composer.Snapshot, error) {
		return sess.Blur(r.Context(), id)
	})
}

// SurfaceDismiss handles POST /v1/documents/{id}/surfaces/{surfaceID}/dismiss.
func (s *Server) SurfaceDismiss(w http.ResponseWriter, r *http.Request) {
	s.surfaceOp(w, r, func(sess *session.Session, id string) (composer.Snapshot, error) {
		return sess.Dismiss(r.Context(), id)
	})
}

func (s *Server) surfaceOp(
	w http.ResponseWriter,
	r *http.Request,
	op func(*session.Session, string) (composer.Snapshot, error),
) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	snap, err := op(sess, chi.URLParam(r, "surfaceID"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status  healthuc.Status                 `json:"status"`
	Mode    healthuc.Mode                   `json:"mode"`
	Checks  map[string]healthuc.CheckResult `json:"checks"`
	Version string                          `json:"version"`
}

// HealthCheck handles GET /health. A degraded classifier still answers 200:
// detection keeps running on the lexicon.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := healthuc.Report{
		Status: healthuc.Healthy,
		Mode:   healthuc.ModeLexiconOnly,
		Checks: map[string]healthuc.CheckResult{},
	}
	if s.health != nil {
		report = s.health.Check(r.Context())
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status:  report.Status,
		Mode:    report.Mode,
		Checks:  report.Checks,
		Version: version.Version,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "id")
	logpkg.AddFields(r.Context(), zap.String("session", id))
	sess, err := s.sessions.Get(id)
	if err != nil {
		s.handleDomainError(w, r, err)
		return nil, false
	}
	return sess, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

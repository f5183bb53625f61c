// Package server exposes the image signer over HTTP: synchronous issuance for
// callers that hold the secret, and queued issuance signed with the service's
// own secret.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/dharsanguruparan/imagesigner/internal/model"
	"github.com/dharsanguruparan/imagesigner/internal/queue"
	"github.com/dharsanguruparan/imagesigner/internal/signing"
	"github.com/dharsanguruparan/imagesigner/internal/storage"
	"github.com/dharsanguruparan/imagesigner/internal/tool"
)

const (
	maxBodyBytes = 64 << 10
	manifestTTL  = 15 * time.Minute
)

// Ledger records issuances.
type Ledger interface {
	Create(ctx context.Context, rec *model.Issuance) error
	Get(ctx context.Context, id string) (*model.Issuance, error)
	MarkIssued(ctx context.Context, id string, expiresAt time.Time, manifestKey string) error
	MarkFailed(ctx context.Context, id string, msg string) error
}

// Enqueuer hands sign jobs to a worker.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload queue.SignPayload) error
}

// ManifestReader fetches published manifests.
type ManifestReader interface {
	GetManifest(ctx context.Context, key string) ([]byte, error)
}

// ManifestPresigner hands out direct download links for published manifests.
type ManifestPresigner interface {
	PresignManifestURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Deps are the collaborators a Server needs. Jobs and Manifests may be nil, in
// which case the job endpoints answer 503. Presigner is optional.
type Deps struct {
	Tool      *tool.Tool
	Ledger    Ledger
	Jobs      Enqueuer
	Manifests ManifestReader
	Presigner ManifestPresigner
	Logger    logr.Logger
}

type issuanceResponse struct {
	*model.Issuance
	ManifestURL string `json:"manifestUrl,omitempty"`
}

// Server hosts the HTTP handlers.
type Server struct {
	addr string
	deps Deps
}

// New creates a configured server.
func New(addr string, deps Deps) *Server {
	return &Server{addr: addr, deps: deps}
}

// Serve runs the HTTP server until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
	s.deps.Logger.Info("listening", "address", s.addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/tool", s.handleDescribe)
		r.Post("/sign", s.handleSign)
		r.Post("/jobs", s.handleEnqueue)
		r.Get("/issuances/{id}", s.handleIssuance)
		r.Get("/issuances/{id}/manifest", s.handleManifest)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, tool.Describe())
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	params, err := decodeParams(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	signed, err := s.deps.Tool.Issue(params)
	if err != nil {
		s.respondIssueError(w, err)
		return
	}
	rec := &model.Issuance{
		ID:         uuid.NewString(),
		ResourceID: signed.ResourceID,
		ExpiresAt:  time.Unix(signed.Expires, 0).UTC(),
		Status:     model.StatusIssued,
	}
	// The URL is already valid; a ledger outage is logged, not surfaced.
	if err := s.deps.Ledger.Create(r.Context(), rec); err != nil {
		s.deps.Logger.Error(err, "record issuance", "image_id", signed.ResourceID)
	}
	respondJSON(w, http.StatusOK, tool.Result{SignedImageURL: signed.URL})
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if s.deps.Jobs == nil {
		respondError(w, http.StatusServiceUnavailable, "job queue not configured")
		return
	}
	params, err := decodeParams(w, r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, ok := params[tool.ParamSecretKey]; ok {
		respondError(w, http.StatusBadRequest, "secret_key must not be sent with jobs")
		return
	}
	payload := queue.SignPayload{IssuanceID: uuid.NewString()}
	id, ok := params[tool.ParamImageID].(string)
	if !ok || id == "" {
		s.respondIssueError(w, signing.ErrInvalidResourceID)
		return
	}
	payload.ResourceID = id
	if raw, ok := params[tool.ParamExpirySeconds]; ok && raw != nil {
		seconds, err := tool.ParseSeconds(raw)
		if err != nil {
			s.respondIssueError(w, err)
			return
		}
		payload.ValiditySeconds = &seconds
	}
	ctx := r.Context()
	rec := &model.Issuance{ID: payload.IssuanceID, ResourceID: id, Status: model.StatusQueued}
	if err := s.deps.Ledger.Create(ctx, rec); err != nil {
		s.deps.Logger.Error(err, "record issuance", "image_id", id)
		respondError(w, http.StatusInternalServerError, "failed to record job")
		return
	}
	if err := s.deps.Jobs.Enqueue(ctx, payload); err != nil {
		s.deps.Logger.Error(err, "enqueue sign job", "issuance", payload.IssuanceID)
		if markErr := s.deps.Ledger.MarkFailed(ctx, payload.IssuanceID, err.Error()); markErr != nil {
			s.deps.Logger.Error(markErr, "mark issuance failed", "issuance", payload.IssuanceID)
		}
		respondError(w, http.StatusServiceUnavailable, "failed to queue job")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"id":     payload.IssuanceID,
		"status": string(model.StatusQueued),
	})
}

func (s *Server) handleIssuance(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}
	resp := issuanceResponse{Issuance: rec}
	if s.deps.Presigner != nil && rec.ManifestKey != "" {
		// The record is still useful without a link.
		link, err := s.deps.Presigner.PresignManifestURL(r.Context(), rec.ManifestKey, manifestTTL)
		if err != nil {
			s.deps.Logger.Error(err, "presign manifest", "issuance", rec.ID)
		} else {
			resp.ManifestURL = link
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if s.deps.Manifests == nil || rec.ManifestKey == "" {
		respondError(w, http.StatusNotFound, "manifest unavailable")
		return
	}
	data, err := s.deps.Manifests.GetManifest(r.Context(), rec.ManifestKey)
	if err != nil {
		s.deps.Logger.Error(err, "get manifest", "issuance", rec.ID)
		respondError(w, http.StatusInternalServerError, "failed to load manifest")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*model.Issuance, bool) {
	rec, err := s.deps.Ledger.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "issuance not found")
		return nil, false
	}
	if err != nil {
		s.deps.Logger.Error(err, "get issuance")
		respondError(w, http.StatusInternalServerError, "failed to load issuance")
		return nil, false
	}
	return rec, true
}

func (s *Server) respondIssueError(w http.ResponseWriter, err error) {
	if signing.IsValidation(err) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.deps.Logger.Error(err, "issue signed url")
	respondError(w, http.StatusInternalServerError, "failed to issue signed url")
}

// logRequests never logs bodies, since they carry secret_key.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.deps.Logger.V(1).Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func decodeParams(w http.ResponseWriter, r *http.Request) (tool.Params, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	var params tool.Params
	if err := dec.Decode(&params); err != nil {
		return nil, errors.New("request body must be a JSON object")
	}
	if dec.More() {
		return nil, errors.New("request body must contain a single JSON object")
	}
	return params, nil
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"domainintel/internal/analysis/models"
	"domainintel/internal/analysis/service"
	dErrors "domainintel/pkg/domain-errors"
	"domainintel/pkg/platform/httputil"
	"domainintel/pkg/requestcontext"
)

// Submitter defines the submission gate used by both submit endpoints.
type Submitter interface {
	Submit(ctx context.Context, domain string) (*service.Submission, error)
}

// Lister returns every persisted record.
type Lister interface {
	List(ctx context.Context) ([]*models.DomainRecord, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Handler wires domain analysis endpoints to the submission gate and store.
type Handler struct {
	submitter Submitter
	lister    Lister
	checks    map[string]HealthCheck
	logger    *slog.Logger
}

// New constructs a domain handler. checks may be nil.
func New(submitter Submitter, lister Lister, checks map[string]HealthCheck, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		submitter: submitter,
		lister:    lister,
		checks:    checks,
		logger:    logger,
	}
}

// Register mounts the domain and health endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/domains", h.HandleGetDomain)
	r.Post("/domains", h.HandleSubmitDomain)
	r.Get("/domains/all", h.HandleListDomains)
	r.Get("/healthz", h.HandleHealth)
}

// HandleGetDomain handles GET /domains?domain=.
func (h *Handler) HandleGetDomain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	domain := r.URL.Query().Get("domain")

	sub, err := h.submitter.Submit(ctx, domain)
	if err != nil {
		h.logFailure(ctx, "GET /domains failed", requestID, domain, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, fromSubmission(sub))
}

// HandleSubmitDomain handles POST /domains.
func (h *Handler) HandleSubmitDomain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, err := httputil.DecodeJSON[SubmitRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	sub, err := h.submitter.Submit(ctx, req.Domain)
	if err != nil {
		h.logFailure(ctx, "POST /domains failed", requestID, req.Domain, err)
		httputil.WriteError(w, err)
		return
	}

	resp := fromSubmission(sub)
	if sub.Status == service.SubmissionCompleted {
		resp.Message = messageCached
		httputil.WriteJSON(w, http.StatusOK, resp)
		return
	}
	resp.Message = messageSubmitted
	httputil.WriteJSON(w, http.StatusAccepted, resp)
}

// HandleListDomains handles GET /domains/all.
func (h *Handler) HandleListDomains(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	records, err := h.lister.List(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list domains",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list domains"))
		return
	}
	if records == nil {
		records = []*models.DomainRecord{}
	}
	httputil.WriteJSON(w, http.StatusOK, records)
}

// HandleHealth handles GET /healthz. Any failing check yields 503.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
			resp.Status = "unavailable"
			resp.Checks[name] = "unavailable"
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, resp)
}

func (h *Handler) logFailure(ctx context.Context, msg, requestID, domain string, err error) {
	if dErrors.HasCode(err, dErrors.CodeBadRequest) {
		h.logger.InfoContext(ctx, "domain rejected",
			"request_id", requestID,
			"domain", domain,
			"reason", dErrors.MessageOf(err),
		)
		return
	}
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestID,
		"domain", domain,
		"error", err,
	)
}

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mybank/internal/api/response"
	"mybank/internal/domain"
	"mybank/pkg/logger"
)

type RequestHandler struct {
	workflow domain.WorkflowService
	logger   logger.Logger
}

func NewRequestHandler(workflow domain.WorkflowService, logger logger.Logger) *RequestHandler {
	return &RequestHandler{
		workflow: workflow,
		logger:   logger,
	}
}

func (h *RequestHandler) RegisterRoutes(r chi.Router) {
	r.Route("/requests", func(r chi.Router) {
		r.Post("/account-creation", h.SubmitAccountCreation)
		r.Post("/account-deletion", h.SubmitAccountDeletion)
		r.Get("/pending", h.ListPending)
		r.Get("/mine", h.ListMine)
		r.Post("/{requestId}/resolve", h.Resolve)
	})
}

func (h *RequestHandler) SubmitAccountCreation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountType string `json:"accountType"`
		CustomerID  string `json:"customerId"`
	}
	if err := response.Decode(w, r, &req); err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	accountType, err := domain.ParseAccountType(req.AccountType)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}

	created, err := h.workflow.SubmitAccountCreation(r.Context(), principal(r), accountType, req.CustomerID)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusCreated, created)
}

func (h *RequestHandler) SubmitAccountDeletion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string `json:"accountId"`
		Reason    string `json:"reason"`
	}
	if err := response.Decode(w, r, &req); err != nil {
		response.Error(w, r, h.logger, err)
		return
	}

	created, err := h.workflow.SubmitAccountDeletion(r.Context(), principal(r), req.AccountID, req.Reason)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusCreated, created)
}

func (h *RequestHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter domain.PendingFilter
	if s := q.Get("kind"); s != "" {
		kind, err := domain.ParseRequestKind(s)
		if err != nil {
			response.Error(w, r, h.logger, err)
			return
		}
		filter.Kind = &kind
	}
	if s := q.Get("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			response.Error(w, r, h.logger, domain.ErrInvalidInput.WithMessage("since must be an RFC 3339 timestamp"))
			return
		}
		filter.Since = &since
	}

	pending, err := h.workflow.ListPending(r.Context(), principal(r), filter)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, pending)
}

func (h *RequestHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	mine, err := h.workflow.ListMine(r.Context(), principal(r))
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, mine)
}

func (h *RequestHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Decision string `json:"decision"`
		Note     string `json:"note"`
	}
	if err := response.Decode(w, r, &req); err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	decision, err := domain.ParseDecision(req.Decision)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}

	outcome, err := h.workflow.Resolve(r.Context(), principal(r), chi.URLParam(r, "requestId"), decision, req.Note)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	// The outcome may carry a temporary password.
	w.Header().Set("Cache-Control", "no-store")
	response.JSON(w, http.StatusOK, outcome)
}

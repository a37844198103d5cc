package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"mybank/internal/api/middleware"
	"mybank/internal/api/response"
	"mybank/internal/domain"
	"mybank/pkg/logger"
)

type AuditLogHandler struct {
	service domain.AuditLogService
	logger  logger.Logger
}

func NewAuditLogHandler(service domain.AuditLogService, logger logger.Logger) *AuditLogHandler {
	return &AuditLogHandler{
		service: service,
		logger:  logger,
	}
}

func (h *AuditLogHandler) RegisterRoutes(r chi.Router) {
	r.Route("/audit-logs", func(r chi.Router) {
		r.Use(middleware.RequireRoles(h.logger, domain.RoleAdmin))
		r.Get("/", h.GetAllLogs)
		r.Get("/{entityType}/{entityId}", h.GetEntityLogs)
	})
}

func (h *AuditLogHandler) GetAllLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := optionalInt(q.Get("page"))
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	pageSize, err := optionalInt(q.Get("page_size"))
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}

	logs, err := h.service.GetAllLogs(r.Context(), principal(r), page, pageSize)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, logs)
}

func (h *AuditLogHandler) GetEntityLogs(w http.ResponseWriter, r *http.Request) {
	entityType := domain.EntityType(chi.URLParam(r, "entityType"))
	logs, err := h.service.GetEntityLogs(r.Context(), principal(r), entityType, chi.URLParam(r, "entityId"))
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, logs)
}

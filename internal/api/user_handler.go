package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"mybank/internal/api/response"
	"mybank/internal/domain"
	"mybank/pkg/logger"
)

type UserHandler struct {
	service domain.UserService
	logger  logger.Logger
}

func NewUserHandler(service domain.UserService, logger logger.Logger) *UserHandler {
	return &UserHandler{
		service: service,
		logger:  logger,
	}
}

func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Post("/users", h.CreateUser)
	r.Get("/users", h.SearchUsers)
	r.Get("/users/{userId}", h.GetUser)
	r.Put("/users/{userId}/role", h.UpdateRole)
	r.Put("/users/{userId}/status", h.ToggleStatus)
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var input domain.NewUser
	if err := response.Decode(w, r, &input); err != nil {
		response.Error(w, r, h.logger, err)
		return
	}

	user, err := h.service.CreateUser(r.Context(), principal(r), input)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusCreated, user)
}

func (h *UserHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.Search(r.Context(), principal(r), r.URL.Query().Get("query"))
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, users)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context(), principal(r), chi.URLParam(r, "userId"))
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, user)
}

func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role string `json:"role"`
	}
	if err := response.Decode(w, r, &req); err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}

	user, err := h.service.UpdateRole(r.Context(), principal(r), chi.URLParam(r, "userId"), role)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, user)
}

func (h *UserHandler) ToggleStatus(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.ToggleActive(r.Context(), principal(r), chi.URLParam(r, "userId"))
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, user)
}

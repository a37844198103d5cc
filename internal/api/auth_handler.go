package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"mybank/internal/api/response"
	"mybank/internal/domain"
	"mybank/pkg/logger"
)

type AuthHandler struct {
	identity domain.IdentityService
	users    domain.UserService
	workflow domain.WorkflowService
	logger   logger.Logger
}

func NewAuthHandler(identity domain.IdentityService, users domain.UserService, workflow domain.WorkflowService, logger logger.Logger) *AuthHandler {
	return &AuthHandler{
		identity: identity,
		users:    users,
		workflow: workflow,
		logger:   logger,
	}
}

// RegisterPublicRoutes mounts the endpoints that need no credential.
func (h *AuthHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/auth/login", h.Login)
	r.Post("/auth/register", h.Register)
	r.Post("/auth/password-reset/request", h.RequestPasswordReset)
}

// RegisterRoutes mounts the endpoints still open to a user who must change
// their password.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/auth/me", h.Me)
	r.Post("/auth/password", h.ChangePassword)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	User               *domain.User `json:"user"`
	Token              string       `json:"token"`
	MustChangePassword bool         `json:"mustChangePassword"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := response.Decode(w, r, &req); err != nil {
		response.Error(w, r, h.logger, err)
		return
	}

	user, token, err := h.identity.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}

	response.JSON(w, http.StatusOK, loginResponse{
		User:               user,
		Token:              token,
		MustChangePassword: user.MustChangePassword,
	})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input domain.NewUser
	if err := response.Decode(w, r, &input); err != nil {
		response.Error(w, r, h.logger, err)
		return
	}

	user, err := h.users.Register(r.Context(), input)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := response.Decode(w, r, &req); err != nil {
		response.Error(w, r, h.logger, err)
		return
	}

	if err := h.workflow.SubmitPasswordReset(r.Context(), req.Username); err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusAccepted, map[string]string{
		"message": "If the username exists, a reset request has been submitted for review.",
	})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewPassword string `json:"newPassword"`
	}
	if err := response.Decode(w, r, &req); err != nil {
		response.Error(w, r, h.logger, err)
		return
	}

	actor := principal(r)
	if err := h.identity.ChangePassword(r.Context(), actor.UserID, req.NewPassword); err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor := principal(r)
	user, err := h.users.GetUser(r.Context(), actor, actor.UserID)
	if err != nil {
		response.Error(w, r, h.logger, err)
		return
	}
	response.JSON(w, http.StatusOK, user)
}

// principal is only called behind the Authenticate middleware.
func principal(r *http.Request) domain.Principal {
	p, _ := domain.PrincipalFromContext(r.Context())
	return p
}
